package joborder

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

var repoTracer = otel.Tracer("github.com/fabworks/foundry/repository/joborder")

// ErrNotFound is returned when a job order or job-order item is missing.
var ErrNotFound = errors.New("job order not found")

// Repository encapsulates read/write access for job orders, their items and
// edit history. Writes resolve the ambient transaction from the context when
// one is open.
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

// Create persists a job order together with its items.
func (r *Repository) Create(ctx context.Context, order *entity.JobOrder) error {
	if order == nil {
		return errors.New("nil job order")
	}
	ctx, span := repoTracer.Start(ctx, "JobOrderRepository.Create", trace.WithAttributes(attribute.String("job_order.number", order.JobNumber)))
	defer span.End()

	db := database.IDB(ctx, r.writer)
	if _, err := db.NewInsert().Model(order).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return err
	}
	return r.insertItems(ctx, db, order.ID, order.Items)
}

// GetByID fetches a job order with its items, soft-deleted or not.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.JobOrder, error) {
	ctx, span := repoTracer.Start(ctx, "JobOrderRepository.GetByID", trace.WithAttributes(attribute.Int64("job_order.id", id)))
	defer span.End()

	order := new(entity.JobOrder)
	err := database.IDB(ctx, r.reader).NewSelect().Model(order).
		Relation("Items").
		Where("jo.id = ?", id).
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
	return order, nil
}

// FindActiveByNumber returns the single non-deleted job order carrying the
// number, or ErrNotFound.
func (r *Repository) FindActiveByNumber(ctx context.Context, jobNumber string) (*entity.JobOrder, error) {
	return r.findByNumber(ctx, jobNumber, false)
}

// FindDeletedByNumber returns the most recently soft-deleted job order
// carrying the number, or ErrNotFound.
func (r *Repository) FindDeletedByNumber(ctx context.Context, jobNumber string) (*entity.JobOrder, error) {
	return r.findByNumber(ctx, jobNumber, true)
}

func (r *Repository) findByNumber(ctx context.Context, jobNumber string, deleted bool) (*entity.JobOrder, error) {
	ctx, span := repoTracer.Start(ctx, "JobOrderRepository.FindByNumber", trace.WithAttributes(
		attribute.String("job_order.number", jobNumber),
		attribute.Bool("job_order.deleted", deleted),
	))
	defer span.End()

	order := new(entity.JobOrder)
	q := database.IDB(ctx, r.reader).NewSelect().Model(order).
		Relation("Items").
		Where("jo.job_number = ?", jobNumber).
		Where("jo.is_deleted = ?", deleted)
	if deleted {
		q = q.Order("jo.deleted_at DESC").Limit(1)
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}

// List returns job orders with items, optionally including soft-deleted ones.
func (r *Repository) List(ctx context.Context, includeDeleted bool) ([]*entity.JobOrder, error) {
	ctx, span := repoTracer.Start(ctx, "JobOrderRepository.List")
	defer span.End()

	var orders []*entity.JobOrder
	q := database.IDB(ctx, r.reader).NewSelect().Model(&orders).
		Relation("Items").
		Order("jo.created_at DESC")
	if !includeDeleted {
		q = q.Where("jo.is_deleted = ?", false)
	}
	if err := q.Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return orders, nil
}

// Update persists the scalar fields of a job order, including its soft-delete
// flags.
func (r *Repository) Update(ctx context.Context, order *entity.JobOrder) error {
	if order == nil {
		return errors.New("nil job order")
	}
	ctx, span := repoTracer.Start(ctx, "JobOrderRepository.Update", trace.WithAttributes(attribute.Int64("job_order.id", order.ID)))
	defer span.End()

	res, err := database.IDB(ctx, r.writer).NewUpdate().Model(order).WherePK().Exec(ctx)
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

// ReplaceItems deletes every item of the job order and recreates the supplied
// set. Callers run this inside a transaction together with the parent update.
func (r *Repository) ReplaceItems(ctx context.Context, jobOrderID int64, items []*entity.JobOrderItem) error {
	ctx, span := repoTracer.Start(ctx, "JobOrderRepository.ReplaceItems", trace.WithAttributes(
		attribute.Int64("job_order.id", jobOrderID),
		attribute.Int("job_order.items", len(items)),
	))
	defer span.End()

	db := database.IDB(ctx, r.writer)
	if _, err := db.NewDelete().Model((*entity.JobOrderItem)(nil)).
		Where("job_order_id = ?", jobOrderID).
		Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete items failed")
		return err
	}
	return r.insertItems(ctx, db, jobOrderID, items)
}

func (r *Repository) insertItems(ctx context.Context, db bun.IDB, jobOrderID int64, items []*entity.JobOrderItem) error {
	if len(items) == 0 {
		return nil
	}
	for _, item := range items {
		item.JobOrderID = jobOrderID
	}
	_, err := db.NewInsert().Model(&items).Exec(ctx)
	return err
}

// HardDelete removes the job order row and its items entirely. Only valid
// when nothing references the order.
func (r *Repository) HardDelete(ctx context.Context, id int64) error {
	ctx, span := repoTracer.Start(ctx, "JobOrderRepository.HardDelete", trace.WithAttributes(attribute.Int64("job_order.id", id)))
	defer span.End()

	db := database.IDB(ctx, r.writer)
	if _, err := db.NewDelete().Model((*entity.JobOrderItem)(nil)).
		Where("job_order_id = ?", id).
		Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete items failed")
		return err
	}
	if _, err := db.NewDelete().Model((*entity.JobOrder)(nil)).
		Where("id = ?", id).
		Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return err
	}
	return nil
}

// InsertEditHistory appends one edit-history record.
func (r *Repository) InsertEditHistory(ctx context.Context, h *entity.JobOrderEditHistory) error {
	ctx, span := repoTracer.Start(ctx, "JobOrderRepository.InsertEditHistory", trace.WithAttributes(attribute.Int64("job_order.id", h.JobOrderID)))
	defer span.End()

	_, err := database.IDB(ctx, r.writer).NewInsert().Model(h).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// GetItem fetches a single job-order item by primary key.
func (r *Repository) GetItem(ctx context.Context, itemID int64) (*entity.JobOrderItem, error) {
	ctx, span := repoTracer.Start(ctx, "JobOrderRepository.GetItem", trace.WithAttributes(attribute.Int64("job_order_item.id", itemID)))
	defer span.End()

	item := new(entity.JobOrderItem)
	err := database.IDB(ctx, r.reader).NewSelect().Model(item).Where("id = ?", itemID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return item, nil
}
