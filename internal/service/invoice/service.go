package invoice

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fabworks/foundry/internal/config"
	"github.com/fabworks/foundry/internal/database"
	"github.com/fabworks/foundry/internal/entity"
	"github.com/fabworks/foundry/internal/ledger"
	"github.com/fabworks/foundry/internal/messaging"
	invoicerepo "github.com/fabworks/foundry/internal/repository/invoice"
	joborderrepo "github.com/fabworks/foundry/internal/repository/joborder"
	"github.com/fabworks/foundry/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/fabworks/foundry/service/invoice")

// Repository is the invoice persistence surface the service needs.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*entity.Invoice, error)
	FindByNumber(ctx context.Context, invoiceNumber string) (*entity.Invoice, error)
	Create(ctx context.Context, inv *entity.Invoice) error
	Update(ctx context.Context, inv *entity.Invoice) error
	ReplaceItems(ctx context.Context, invoiceID int64, items []*entity.InvoiceItem) error
	ListItemsForJobOrderItem(ctx context.Context, jobOrderItemID int64) ([]*entity.InvoiceItem, error)
}

// JobOrderStore resolves the job order an invoice bills against.
type JobOrderStore interface {
	GetByID(ctx context.Context, id int64) (*entity.JobOrder, error)
}

// Service guards invoice allocation against job-order items and keeps the
// derived totals consistent with the line items.
type Service struct {
	invoices  Repository
	orders    JobOrderStore
	tx        database.TxRunner
	logger    *zap.Logger
	publisher messaging.Client
	publish   bool
	now       func() time.Time
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Invoices    *invoicerepo.Repository
	Orders      *joborderrepo.Repository
	Connections *database.Connections
	Config      config.Config
	Logger      *zap.Logger
	Publisher   messaging.Client
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		invoices:  p.Invoices,
		orders:    p.Orders,
		tx:        p.Connections,
		logger:    p.Logger,
		publisher: p.Publisher,
		publish:   p.Config.Messaging.Enabled,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// LineInput is one invoice line in a create/update payload.
type LineInput struct {
	JobOrderItemID *int64
	Description    string
	Quantity       decimal.Decimal
	UnitPrice      decimal.Decimal
}

// CreateInput is the payload for creating an invoice.
type CreateInput struct {
	InvoiceNumber string
	JobOrderID    *int64
	ClientID      int64
	Items         []LineInput
	TaxRate       decimal.Decimal
	Discount      decimal.Decimal
	PaidAmount    decimal.Decimal
}

// UpdateInput is the payload for updating an invoice. A nil Items keeps the
// existing lines; a non-nil Items replaces them and totals are recomputed
// either way.
type UpdateInput struct {
	Status     string
	Items      *[]LineInput
	TaxRate    decimal.Decimal
	Discount   decimal.Decimal
	PaidAmount decimal.Decimal
}

// Create validates every job-order-linked line against previously invoiced
// quantity and the item's ordered value, then persists the invoice with
// recomputed totals, all in one transaction.
func (s *Service) Create(ctx context.Context, in CreateInput) (*entity.Invoice, error) {
	ctx, span := serviceTracer.Start(ctx, "InvoiceService.Create", trace.WithAttributes(attribute.String("invoice.number", in.InvoiceNumber)))
	defer span.End()

	if in.InvoiceNumber == "" {
		return nil, errorbank.BadRequest("invoice number is required")
	}
	if in.ClientID == 0 {
		return nil, errorbank.BadRequest("client id is required")
	}
	if len(in.Items) == 0 {
		return nil, errorbank.BadRequest("at least one invoice item is required")
	}

	var inv *entity.Invoice
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.invoices.FindByNumber(ctx, in.InvoiceNumber); err == nil {
			return errorbank.Conflict("invoice number " + in.InvoiceNumber + " already exists")
		} else if !errors.Is(err, invoicerepo.ErrNotFound) {
			return errorbank.Internal("failed to check invoice number", errorbank.WithCause(err))
		}

		items, err := s.buildLines(ctx, in.JobOrderID, in.Items)
		if err != nil {
			return err
		}

		inv = &entity.Invoice{
			InvoiceNumber: in.InvoiceNumber,
			JobOrderID:    in.JobOrderID,
			ClientID:      in.ClientID,
			Status:        entity.InvoiceStatusDraft,
			TaxRate:       in.TaxRate,
			Discount:      in.Discount,
			PaidAmount:    in.PaidAmount,
			CreatedAt:     s.now(),
			UpdatedAt:     s.now(),
			Items:         items,
		}
		applyTotals(inv)
		if err := s.invoices.Create(ctx, inv); err != nil {
			return errorbank.Internal("failed to create invoice", errorbank.WithCause(err))
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, err
	}

	s.publishInvoiceCreated(ctx, inv)
	return inv, nil
}

// Update replaces line items when supplied and recomputes the derived totals
// identically to create. Quantity/value caps are not re-checked against
// sibling invoices on update; downstream totals stay correct regardless.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (*entity.Invoice, error) {
	ctx, span := serviceTracer.Start(ctx, "InvoiceService.Update", trace.WithAttributes(attribute.Int64("invoice.id", id)))
	defer span.End()

	if in.Status != "" && !validStatus(in.Status) {
		return nil, errorbank.BadRequest("unknown invoice status: " + in.Status)
	}

	var inv *entity.Invoice
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.invoices.GetByID(ctx, id)
		if errors.Is(err, invoicerepo.ErrNotFound) {
			return errorbank.NotFound("invoice not found")
		}
		if err != nil {
			return errorbank.Internal("failed to load invoice", errorbank.WithCause(err))
		}

		if in.Items != nil {
			items := make([]*entity.InvoiceItem, 0, len(*in.Items))
			for _, line := range *in.Items {
				items = append(items, &entity.InvoiceItem{
					JobOrderItemID: line.JobOrderItemID,
					Description:    line.Description,
					Quantity:       line.Quantity,
					UnitPrice:      line.UnitPrice,
					TotalPrice:     line.Quantity.Mul(line.UnitPrice),
				})
			}
			if err := s.invoices.ReplaceItems(ctx, inv.ID, items); err != nil {
				return errorbank.Internal("failed to replace invoice items", errorbank.WithCause(err))
			}
			inv.Items = items
		}

		if in.Status != "" {
			inv.Status = in.Status
		}
		inv.TaxRate = in.TaxRate
		inv.Discount = in.Discount
		inv.PaidAmount = in.PaidAmount
		inv.UpdatedAt = s.now()
		applyTotals(inv)
		if err := s.invoices.Update(ctx, inv); err != nil {
			return errorbank.Internal("failed to update invoice", errorbank.WithCause(err))
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return nil, err
	}
	return inv, nil
}

// Get retrieves an invoice with its items.
func (s *Service) Get(ctx context.Context, id int64) (*entity.Invoice, error) {
	ctx, span := serviceTracer.Start(ctx, "InvoiceService.Get", trace.WithAttributes(attribute.Int64("invoice.id", id)))
	defer span.End()

	inv, err := s.invoices.GetByID(ctx, id)
	if errors.Is(err, invoicerepo.ErrNotFound) {
		return nil, errorbank.NotFound("invoice not found")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load invoice", errorbank.WithCause(err))
	}
	return inv, nil
}

// buildLines resolves and validates every line of a create request. Lines
// referencing a job-order item are checked against the item's caps, with
// pending quantities from earlier lines of the same request counted in so the
// whole request is validated before anything persists.
func (s *Service) buildLines(ctx context.Context, jobOrderID *int64, lines []LineInput) ([]*entity.InvoiceItem, error) {
	var order *entity.JobOrder
	pending := make(map[int64]decimal.Decimal)

	items := make([]*entity.InvoiceItem, 0, len(lines))
	for _, line := range lines {
		item := &entity.InvoiceItem{
			JobOrderItemID: line.JobOrderItemID,
			Description:    line.Description,
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice,
			TotalPrice:     line.Quantity.Mul(line.UnitPrice),
		}

		if line.JobOrderItemID != nil {
			if jobOrderID == nil {
				return nil, errorbank.BadRequest("invoice items reference a job order item but no job order id was supplied")
			}
			if order == nil {
				var err error
				order, err = s.orders.GetByID(ctx, *jobOrderID)
				if errors.Is(err, joborderrepo.ErrNotFound) {
					return nil, errorbank.NotFound("job order not found")
				}
				if err != nil {
					return nil, errorbank.Internal("failed to load job order", errorbank.WithCause(err))
				}
			}

			ordered := findItem(order, *line.JobOrderItemID)
			if ordered == nil {
				return nil, errorbank.NotFound("job order item not found in job order " + order.JobNumber)
			}

			consumed, err := s.invoicedConsumption(ctx, ordered.ID)
			if err != nil {
				return nil, err
			}
			if carried, ok := pending[ordered.ID]; ok {
				consumed = append(consumed, ledger.Consumption{Qty: carried})
			}
			if err := ledger.Validate(ordered, consumed, 0, ledger.Proposed{
				Qty:   line.Quantity,
				Value: line.Quantity.Mul(line.UnitPrice),
			}); err != nil {
				return nil, asAllocationError(err)
			}
			pending[ordered.ID] = pending[ordered.ID].Add(line.Quantity)
		}

		items = append(items, item)
	}
	return items, nil
}

// invoicedConsumption sums previously invoiced quantity for a job-order item
// across non-cancelled invoices.
func (s *Service) invoicedConsumption(ctx context.Context, jobOrderItemID int64) ([]ledger.Consumption, error) {
	siblings, err := s.invoices.ListItemsForJobOrderItem(ctx, jobOrderItemID)
	if err != nil {
		return nil, errorbank.Internal("failed to list invoiced quantities", errorbank.WithCause(err))
	}
	consumed := make([]ledger.Consumption, 0, len(siblings))
	for _, sibling := range siblings {
		consumed = append(consumed, ledger.Consumption{
			ConsumerID: sibling.ID,
			Qty:        sibling.Quantity,
		})
	}
	return consumed, nil
}

func findItem(order *entity.JobOrder, itemID int64) *entity.JobOrderItem {
	for _, item := range order.Items {
		if item.ID == itemID {
			return item
		}
	}
	return nil
}

// applyTotals recomputes the derived amounts from the line items plus tax
// rate and discount. Deterministic: the same lines always produce the same
// totals.
func applyTotals(inv *entity.Invoice) {
	subtotal := decimal.Zero
	for _, item := range inv.Items {
		subtotal = subtotal.Add(item.TotalPrice)
	}
	discounted := subtotal.Sub(inv.Discount)
	taxAmount := discounted.Mul(inv.TaxRate).Div(decimal.NewFromInt(100))
	inv.Subtotal = subtotal
	inv.TaxAmount = taxAmount
	inv.TotalAmount = discounted.Add(taxAmount)
	inv.BalanceAmount = inv.TotalAmount.Sub(inv.PaidAmount)
}

func validStatus(status string) bool {
	switch status {
	case entity.InvoiceStatusDraft, entity.InvoiceStatusSent, entity.InvoiceStatusPaid,
		entity.InvoiceStatusOverdue, entity.InvoiceStatusCancelled:
		return true
	}
	return false
}

// asAllocationError maps ledger violations onto the boundary error shape.
func asAllocationError(err error) error {
	var exceeded *ledger.ExceededError
	if !errors.As(err, &exceeded) {
		return errorbank.Internal("allocation check failed", errorbank.WithCause(err))
	}
	details := errorbank.WithDetails(map[string]any{
		"requested": exceeded.Requested.String(),
		"available": exceeded.Available.String(),
	})
	if exceeded.Kind == ledger.KindValue {
		return errorbank.ValueExceeded(exceeded.Error(), details)
	}
	return errorbank.QuantityExceeded(exceeded.Error(), details)
}
