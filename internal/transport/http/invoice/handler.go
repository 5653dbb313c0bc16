package invoice

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fabworks/foundry/internal/dto"
	"github.com/fabworks/foundry/internal/entity"
	"github.com/fabworks/foundry/internal/presentation/http/response"
	service "github.com/fabworks/foundry/internal/service/invoice"
	"github.com/fabworks/foundry/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/fabworks/foundry/transport/http/invoice")

// Handler exposes invoice endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an invoice Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/invoices")
	g.POST("", h.create)
	g.GET("/:id", h.getByID)
	g.PUT("/:id", h.update)
}

type linePayload struct {
	JobOrderItemID *int64          `json:"job_order_item_id"`
	Description    string          `json:"description"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
}

type createPayload struct {
	InvoiceNumber string          `json:"invoice_number"`
	JobOrderID    *int64          `json:"job_order_id"`
	ClientID      int64           `json:"client_id"`
	Items         []linePayload   `json:"items"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	Discount      decimal.Decimal `json:"discount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
}

type updatePayload struct {
	Status     string          `json:"status"`
	Items      *[]linePayload  `json:"items"`
	TaxRate    decimal.Decimal `json:"tax_rate"`
	Discount   decimal.Decimal `json:"discount"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload createPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "invoices.create", trace.WithAttributes(
		attribute.String("invoice.number", payload.InvoiceNumber),
	))
	defer span.End()

	inv, err := h.svc.Create(ctx, service.CreateInput{
		InvoiceNumber: payload.InvoiceNumber,
		JobOrderID:    payload.JobOrderID,
		ClientID:      payload.ClientID,
		Items:         toLineInputs(payload.Items),
		TaxRate:       payload.TaxRate,
		Discount:      payload.Discount,
		PaidAmount:    payload.PaidAmount,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(toDTO(inv)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "invoices.getByID", trace.WithAttributes(attribute.Int64("invoice.id", id)))
	defer span.End()

	inv, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(toDTO(inv)).Build()
}

func (h *Handler) update(c echo.Context) error {
	b := response.New(c)

	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload updatePayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "invoices.update", trace.WithAttributes(attribute.Int64("invoice.id", id)))
	defer span.End()

	in := service.UpdateInput{
		Status:     payload.Status,
		TaxRate:    payload.TaxRate,
		Discount:   payload.Discount,
		PaidAmount: payload.PaidAmount,
	}
	if payload.Items != nil {
		items := toLineInputs(*payload.Items)
		in.Items = &items
	}

	inv, err := h.svc.Update(ctx, id, in)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(toDTO(inv)).Build()
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errorbank.BadRequest("invalid id", errorbank.WithCause(err))
	}
	return id, nil
}

func toLineInputs(payloads []linePayload) []service.LineInput {
	lines := make([]service.LineInput, 0, len(payloads))
	for _, p := range payloads {
		lines = append(lines, service.LineInput{
			JobOrderItemID: p.JobOrderItemID,
			Description:    p.Description,
			Quantity:       p.Quantity,
			UnitPrice:      p.UnitPrice,
		})
	}
	return lines
}

func toDTO(inv *entity.Invoice) dto.InvoiceResponse {
	items := make([]dto.InvoiceItemResponse, 0, len(inv.Items))
	for _, item := range inv.Items {
		items = append(items, dto.InvoiceItemResponse{
			ID:             item.ID,
			JobOrderItemID: item.JobOrderItemID,
			Description:    item.Description,
			Quantity:       item.Quantity.String(),
			UnitPrice:      item.UnitPrice.String(),
			TotalPrice:     item.TotalPrice.String(),
		})
	}
	return dto.InvoiceResponse{
		ID:            inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		JobOrderID:    inv.JobOrderID,
		ClientID:      inv.ClientID,
		Status:        inv.Status,
		TaxRate:       inv.TaxRate.String(),
		Discount:      inv.Discount.String(),
		Subtotal:      inv.Subtotal.String(),
		TaxAmount:     inv.TaxAmount.String(),
		TotalAmount:   inv.TotalAmount.String(),
		PaidAmount:    inv.PaidAmount.String(),
		BalanceAmount: inv.BalanceAmount.String(),
		CreatedAt:     inv.CreatedAt,
		UpdatedAt:     inv.UpdatedAt,
		Items:         items,
	}
}
