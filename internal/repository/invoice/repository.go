package invoice

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

var repoTracer = otel.Tracer("github.com/fabworks/foundry/repository/invoice")

// ErrNotFound is returned when an invoice is missing.
var ErrNotFound = errors.New("invoice not found")

// Repository encapsulates read/write access for invoices and their items.
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

// GetByID fetches an invoice with its items.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.Invoice, error) {
	ctx, span := repoTracer.Start(ctx, "InvoiceRepository.GetByID", trace.WithAttributes(attribute.Int64("invoice.id", id)))
	defer span.End()

	inv := new(entity.Invoice)
	err := database.IDB(ctx, r.reader).NewSelect().Model(inv).
		Relation("Items").
		Where("inv.id = ?", id).
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
	return inv, nil
}

// FindByNumber returns the invoice carrying the number, or ErrNotFound.
func (r *Repository) FindByNumber(ctx context.Context, invoiceNumber string) (*entity.Invoice, error) {
	ctx, span := repoTracer.Start(ctx, "InvoiceRepository.FindByNumber", trace.WithAttributes(attribute.String("invoice.number", invoiceNumber)))
	defer span.End()

	inv := new(entity.Invoice)
	err := database.IDB(ctx, r.reader).NewSelect().Model(inv).
		Where("inv.invoice_number = ?", invoiceNumber).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return inv, nil
}

// Create persists an invoice together with its line items.
func (r *Repository) Create(ctx context.Context, inv *entity.Invoice) error {
	if inv == nil {
		return errors.New("nil invoice")
	}
	ctx, span := repoTracer.Start(ctx, "InvoiceRepository.Create", trace.WithAttributes(attribute.String("invoice.number", inv.InvoiceNumber)))
	defer span.End()

	db := database.IDB(ctx, r.writer)
	if _, err := db.NewInsert().Model(inv).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return err
	}
	return r.insertItems(ctx, db, inv.ID, inv.Items)
}

// Update persists the invoice's scalar fields.
func (r *Repository) Update(ctx context.Context, inv *entity.Invoice) error {
	if inv == nil {
		return errors.New("nil invoice")
	}
	ctx, span := repoTracer.Start(ctx, "InvoiceRepository.Update", trace.WithAttributes(attribute.Int64("invoice.id", inv.ID)))
	defer span.End()

	res, err := database.IDB(ctx, r.writer).NewUpdate().Model(inv).WherePK().Exec(ctx)
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

// ReplaceItems deletes every line of the invoice and recreates the supplied
// set, inside the caller's transaction.
func (r *Repository) ReplaceItems(ctx context.Context, invoiceID int64, items []*entity.InvoiceItem) error {
	ctx, span := repoTracer.Start(ctx, "InvoiceRepository.ReplaceItems", trace.WithAttributes(
		attribute.Int64("invoice.id", invoiceID),
		attribute.Int("invoice.items", len(items)),
	))
	defer span.End()

	db := database.IDB(ctx, r.writer)
	if _, err := db.NewDelete().Model((*entity.InvoiceItem)(nil)).
		Where("invoice_id = ?", invoiceID).
		Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete items failed")
		return err
	}
	return r.insertItems(ctx, db, invoiceID, items)
}

func (r *Repository) insertItems(ctx context.Context, db bun.IDB, invoiceID int64, items []*entity.InvoiceItem) error {
	if len(items) == 0 {
		return nil
	}
	for _, item := range items {
		item.InvoiceID = invoiceID
	}
	_, err := db.NewInsert().Model(&items).Exec(ctx)
	return err
}

// ListItemsForJobOrderItem returns every line of a non-cancelled invoice that
// consumes the given job-order item.
func (r *Repository) ListItemsForJobOrderItem(ctx context.Context, jobOrderItemID int64) ([]*entity.InvoiceItem, error) {
	ctx, span := repoTracer.Start(ctx, "InvoiceRepository.ListItemsForJobOrderItem", trace.WithAttributes(attribute.Int64("job_order_item.id", jobOrderItemID)))
	defer span.End()

	var items []*entity.InvoiceItem
	err := database.IDB(ctx, r.reader).NewSelect().Model(&items).
		Join("JOIN invoices AS inv ON inv.id = ii.invoice_id").
		Where("ii.job_order_item_id = ?", jobOrderItemID).
		Where("inv.status != ?", entity.InvoiceStatusCancelled).
		Order("ii.id ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return items, nil
}

// CountItemsByJobOrderItems reports how many non-cancelled invoice lines
// reference any of the given job-order items.
func (r *Repository) CountItemsByJobOrderItems(ctx context.Context, itemIDs []int64) (int, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}
	ctx, span := repoTracer.Start(ctx, "InvoiceRepository.CountItemsByJobOrderItems", trace.WithAttributes(attribute.Int("item.count", len(itemIDs))))
	defer span.End()

	count, err := database.IDB(ctx, r.reader).NewSelect().
		Model((*entity.InvoiceItem)(nil)).
		Join("JOIN invoices AS inv ON inv.id = ii.invoice_id").
		Where("ii.job_order_item_id IN (?)", bun.In(itemIDs)).
		Where("inv.status != ?", entity.InvoiceStatusCancelled).
		Count(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "count failed")
		return 0, err
	}
	return count, nil
}
