package productionrelease

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fabworks/foundry/internal/database"
	"github.com/fabworks/foundry/internal/entity"
)

var repoTracer = otel.Tracer("github.com/fabworks/foundry/repository/productionrelease")

// ErrNotFound is returned when a production release is missing.
var ErrNotFound = errors.New("production release not found")

// Repository encapsulates read/write access for production releases.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// GetByID fetches a release with its job-order item.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.ProductionRelease, error) {
	ctx, span := repoTracer.Start(ctx, "ReleaseRepository.GetByID", trace.WithAttributes(attribute.Int64("release.id", id)))
	defer span.End()

	release := new(entity.ProductionRelease)
	err := database.IDB(ctx, r.reader).NewSelect().Model(release).
		Relation("Item").
		Where("pr.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return release, nil
}

// ListByItem returns every release consuming the given job-order item.
func (r *Repository) ListByItem(ctx context.Context, jobOrderItemID int64) ([]*entity.ProductionRelease, error) {
	ctx, span := repoTracer.Start(ctx, "ReleaseRepository.ListByItem", trace.WithAttributes(attribute.Int64("job_order_item.id", jobOrderItemID)))
	defer span.End()

	var releases []*entity.ProductionRelease
	err := database.IDB(ctx, r.reader).NewSelect().Model(&releases).
		Where("pr.job_order_item_id = ?", jobOrderItemID).
		Order("pr.id ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return releases, nil
}

// Insert persists a batch of releases. The caller wraps multi-line requests
// in one transaction so all tuples commit or none do.
func (r *Repository) Insert(ctx context.Context, releases []*entity.ProductionRelease) error {
	if len(releases) == 0 {
		return nil
	}
	ctx, span := repoTracer.Start(ctx, "ReleaseRepository.Insert", trace.WithAttributes(attribute.Int("release.count", len(releases))))
	defer span.End()

	_, err := database.IDB(ctx, r.writer).NewInsert().Model(&releases).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// Update persists a release in place.
func (r *Repository) Update(ctx context.Context, release *entity.ProductionRelease) error {
	if release == nil {
		return errors.New("nil production release")
	}
	ctx, span := repoTracer.Start(ctx, "ReleaseRepository.Update", trace.WithAttributes(attribute.Int64("release.id", release.ID)))
	defer span.End()

	res, err := database.IDB(ctx, r.writer).NewUpdate().Model(release).WherePK().Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a release row.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	ctx, span := repoTracer.Start(ctx, "ReleaseRepository.Delete", trace.WithAttributes(attribute.Int64("release.id", id)))
	defer span.End()

	_, err := database.IDB(ctx, r.writer).NewDelete().
		Model((*entity.ProductionRelease)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
	}
	return err
}

// CountInspections reports how many inspection records hang off a release.
func (r *Repository) CountInspections(ctx context.Context, releaseID int64) (int, error) {
	ctx, span := repoTracer.Start(ctx, "ReleaseRepository.CountInspections", trace.WithAttributes(attribute.Int64("release.id", releaseID)))
	defer span.End()

	count, err := database.IDB(ctx, r.reader).NewSelect().
		Model((*entity.Inspection)(nil)).
		Where("production_release_id = ?", releaseID).
		Count(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "count failed")
		return 0, err
	}
	return count, nil
}

// CountByItemIDs reports how many releases reference any of the given
// job-order items. Used to block wholesale item replacement while consumers
// still point at the old items.
func (r *Repository) CountByItemIDs(ctx context.Context, itemIDs []int64) (int, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}
	ctx, span := repoTracer.Start(ctx, "ReleaseRepository.CountByItemIDs", trace.WithAttributes(attribute.Int("item.count", len(itemIDs))))
	defer span.End()

	count, err := database.IDB(ctx, r.reader).NewSelect().
		Model((*entity.ProductionRelease)(nil)).
		Where("pr.job_order_item_id IN (?)", bun.In(itemIDs)).
		Count(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "count failed")
		return 0, err
	}
	return count, nil
}
