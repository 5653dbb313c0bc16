package material

import (
	"context"
	"errors"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fabworks/foundry/internal/database"
	"github.com/fabworks/foundry/internal/entity"
)

var repoTracer = otel.Tracer("github.com/fabworks/foundry/repository/material")

// Repository reads the procurement chain hanging off a job order and appends
// the audit records the cascade annotator produces. It never changes
// operational statuses.
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

// CountRequestsByJobOrder reports how many material requests reference the
// job order; zero means the order may be hard-deleted.
func (r *Repository) CountRequestsByJobOrder(ctx context.Context, jobOrderID int64) (int, error) {
	ctx, span := repoTracer.Start(ctx, "MaterialRepository.CountRequestsByJobOrder", trace.WithAttributes(attribute.Int64("job_order.id", jobOrderID)))
	defer span.End()

	count, err := database.IDB(ctx, r.reader).NewSelect().
		Model((*entity.MaterialRequest)(nil)).
		Where("mr.job_order_id = ?", jobOrderID).
		Count(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "count failed")
		return 0, err
	}
	return count, nil
}

// ListRequestsByJobOrder returns every material request of the job order.
func (r *Repository) ListRequestsByJobOrder(ctx context.Context, jobOrderID int64) ([]*entity.MaterialRequest, error) {
	ctx, span := repoTracer.Start(ctx, "MaterialRepository.ListRequestsByJobOrder", trace.WithAttributes(attribute.Int64("job_order.id", jobOrderID)))
	defer span.End()

	var requests []*entity.MaterialRequest
	err := database.IDB(ctx, r.reader).NewSelect().
		Model(&requests).
		Where("mr.job_order_id = ?", jobOrderID).
		Order("mr.id ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return requests, nil
}

// ListReceiptsByJobOrder returns every material receipt reachable via
// purchase_order_item -> material_request -> job_order_id.
func (r *Repository) ListReceiptsByJobOrder(ctx context.Context, jobOrderID int64) ([]*entity.MaterialReceipt, error) {
	ctx, span := repoTracer.Start(ctx, "MaterialRepository.ListReceiptsByJobOrder", trace.WithAttributes(attribute.Int64("job_order.id", jobOrderID)))
	defer span.End()

	var receipts []*entity.MaterialReceipt
	err := database.IDB(ctx, r.reader).NewSelect().
		Model(&receipts).
		Join("JOIN purchase_order_items AS poi ON poi.id = mrc.purchase_order_item_id").
		Join("JOIN material_requests AS mr ON mr.id = poi.material_request_id").
		Where("mr.job_order_id = ?", jobOrderID).
		Order("mrc.id ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return receipts, nil
}

// UpdateReceiptNotes persists the (extended) notes of a receipt without
// touching any other column.
func (r *Repository) UpdateReceiptNotes(ctx context.Context, receipt *entity.MaterialReceipt) error {
	if receipt == nil {
		return errors.New("nil material receipt")
	}
	ctx, span := repoTracer.Start(ctx, "MaterialRepository.UpdateReceiptNotes", trace.WithAttributes(attribute.Int64("material_receipt.id", receipt.ID)))
	defer span.End()

	_, err := database.IDB(ctx, r.writer).NewUpdate().
		Model(receipt).
		Column("notes").
		WherePK().
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
	}
	return err
}

// InsertStatusHistory appends one audit row to a material request's trail.
func (r *Repository) InsertStatusHistory(ctx context.Context, h *entity.MaterialRequestStatusHistory) error {
	if h == nil {
		return errors.New("nil status history")
	}
	ctx, span := repoTracer.Start(ctx, "MaterialRepository.InsertStatusHistory", trace.WithAttributes(attribute.Int64("material_request.id", h.MaterialRequestID)))
	defer span.End()

	_, err := database.IDB(ctx, r.writer).NewInsert().Model(h).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}
