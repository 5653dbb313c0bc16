package joborder

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fabworks/foundry/internal/actor"
	"github.com/fabworks/foundry/internal/dto"
	"github.com/fabworks/foundry/internal/entity"
	"github.com/fabworks/foundry/internal/presentation/http/response"
	service "github.com/fabworks/foundry/internal/service/joborder"
	"github.com/fabworks/foundry/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/fabworks/foundry/transport/http/joborder")

// Handler exposes job order endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a job order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/job-orders")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.getByID)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.delete)
	g.POST("/bulk-delete", h.bulkDelete)
	g.POST("/:id/restore", h.restore)
}

type itemPayload struct {
	WorkDescription string           `json:"work_description"`
	Quantity        *decimal.Decimal `json:"quantity"`
	Unit            string           `json:"unit"`
	UnitPrice       decimal.Decimal  `json:"unit_price"`
	UnitWeight      *decimal.Decimal `json:"unit_weight"`
	TotalPrice      decimal.Decimal  `json:"total_price"`
}

type createPayload struct {
	JobNumber   string        `json:"job_number"`
	ClientName  string        `json:"client_name"`
	Description string        `json:"description"`
	StartDate   *time.Time    `json:"start_date"`
	DueDate     *time.Time    `json:"due_date"`
	Items       []itemPayload `json:"items"`
}

type updatePayload struct {
	ClientName  string         `json:"client_name"`
	Description string         `json:"description"`
	StartDate   *time.Time     `json:"start_date"`
	DueDate     *time.Time     `json:"due_date"`
	Items       *[]itemPayload `json:"items"`
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload createPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "jobOrders.create", trace.WithAttributes(
		attribute.String("job_order.number", payload.JobNumber),
	))
	defer span.End()

	order, err := h.svc.Create(ctx, service.CreateInput{
		JobNumber:   payload.JobNumber,
		ClientName:  payload.ClientName,
		Description: payload.Description,
		StartDate:   payload.StartDate,
		DueDate:     payload.DueDate,
		Items:       toItemInputs(payload.Items),
	}, currentActor(c))
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusCreated).WithData(toDTO(order)).Build()
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	includeDeleted, _ := strconv.ParseBool(c.QueryParam("include_deleted"))
	ctx, span := httpTracer.Start(c.Request().Context(), "jobOrders.list")
	defer span.End()

	orders, err := h.svc.List(ctx, includeDeleted)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := make([]dto.JobOrderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, toDTO(order))
	}
	return b.WithData(out).WithMeta("count", len(out)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "jobOrders.getByID", trace.WithAttributes(attribute.Int64("job_order.id", id)))
	defer span.End()

	order, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(toDTO(order)).Build()
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

	ctx, span := httpTracer.Start(c.Request().Context(), "jobOrders.update", trace.WithAttributes(attribute.Int64("job_order.id", id)))
	defer span.End()

	in := service.UpdateInput{
		ClientName:  payload.ClientName,
		Description: payload.Description,
		StartDate:   payload.StartDate,
		DueDate:     payload.DueDate,
	}
	if payload.Items != nil {
		items := toItemInputs(*payload.Items)
		in.Items = &items
	}

	order, err := h.svc.Update(ctx, id, in, currentActor(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(toDTO(order)).Build()
}

func (h *Handler) delete(c echo.Context) error {
	b := response.New(c)

	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "jobOrders.delete", trace.WithAttributes(attribute.Int64("job_order.id", id)))
	defer span.End()

	if err := h.svc.Delete(ctx, id, currentActor(c)); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(map[string]any{"deleted": true}).Build()
}

func (h *Handler) bulkDelete(c echo.Context) error {
	b := response.New(c)

	var payload struct {
		IDs []int64 `json:"ids"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "jobOrders.bulkDelete", trace.WithAttributes(attribute.Int("job_order.count", len(payload.IDs))))
	defer span.End()

	if err := h.svc.BulkDelete(ctx, payload.IDs, currentActor(c)); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(map[string]any{"deleted": len(payload.IDs)}).Build()
}

func (h *Handler) restore(c echo.Context) error {
	b := response.New(c)

	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "jobOrders.restore", trace.WithAttributes(attribute.Int64("job_order.id", id)))
	defer span.End()

	order, err := h.svc.Restore(ctx, id, currentActor(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(toDTO(order)).Build()
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errorbank.BadRequest("invalid id", errorbank.WithCause(err))
	}
	return id, nil
}

func currentActor(c echo.Context) actor.Actor {
	a, _ := actor.FromContext(c.Request().Context())
	return a
}

func toItemInputs(payloads []itemPayload) []service.ItemInput {
	items := make([]service.ItemInput, 0, len(payloads))
	for _, p := range payloads {
		items = append(items, service.ItemInput{
			WorkDescription: p.WorkDescription,
			Quantity:        p.Quantity,
			Unit:            p.Unit,
			UnitPrice:       p.UnitPrice,
			UnitWeight:      p.UnitWeight,
			TotalPrice:      p.TotalPrice,
		})
	}
	return items
}

func toDTO(order *entity.JobOrder) dto.JobOrderResponse {
	items := make([]dto.JobOrderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, ToItemDTO(item))
	}
	return dto.JobOrderResponse{
		ID:           order.ID,
		JobNumber:    order.JobNumber,
		ClientName:   order.ClientName,
		Description:  order.Description,
		StartDate:    order.StartDate,
		DueDate:      order.DueDate,
		IsDeleted:    order.IsDeleted,
		DeletedAt:    order.DeletedAt,
		DeletedBy:    order.DeletedBy,
		CreatedAt:    order.CreatedAt,
		LastEditedAt: order.LastEditedAt,
		LastEditedBy: order.LastEditedBy,
		Items:        items,
	}
}

// ToItemDTO converts a job-order item for transport; shared with the release
// handler's joined responses.
func ToItemDTO(item *entity.JobOrderItem) dto.JobOrderItemResponse {
	out := dto.JobOrderItemResponse{
		ID:              item.ID,
		WorkDescription: item.WorkDescription,
		Unit:            item.Unit,
		UnitPrice:       item.UnitPrice.String(),
		TotalPrice:      item.TotalPrice.String(),
	}
	if item.Quantity.Valid {
		q := item.Quantity.Decimal.String()
		out.Quantity = &q
	}
	if item.UnitWeight.Valid {
		w := item.UnitWeight.Decimal.String()
		out.UnitWeight = &w
	}
	return out
}
