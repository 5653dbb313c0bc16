package productionrelease

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
	"github.com/fabworks/foundry/internal/presentation/http/response"
	service "github.com/fabworks/foundry/internal/service/productionrelease"
	jobordertransport "github.com/fabworks/foundry/internal/transport/http/joborder"
	"github.com/fabworks/foundry/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/fabworks/foundry/transport/http/productionrelease")

// Handler exposes production release endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a production release Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/production-releases")
	g.POST("", h.create)
	g.GET("/:id", h.getByID)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.delete)
}

type linePayload struct {
	DrawingNumber string          `json:"drawing_number"`
	ReleaseQty    decimal.Decimal `json:"release_qty"`
}

type createPayload struct {
	JobOrderItemID       int64           `json:"job_order_item_id"`
	DrawingNumber        string          `json:"drawing_number"`
	ReleaseQty           decimal.Decimal `json:"release_qty"`
	Items                []linePayload   `json:"items"`
	ITPTemplateID        *int64          `json:"itp_template_id"`
	ProductionStartDate  *time.Time      `json:"production_start_date"`
	ProductionEndDate    *time.Time      `json:"production_end_date"`
	ActualCompletionDate *time.Time      `json:"actual_completion_date"`
}

type updatePayload struct {
	DrawingNumber        string          `json:"drawing_number"`
	ReleaseQty           decimal.Decimal `json:"release_qty"`
	Status               string          `json:"status"`
	ITPTemplateID        *int64          `json:"itp_template_id"`
	ProductionStartDate  *time.Time      `json:"production_start_date"`
	ProductionEndDate    *time.Time      `json:"production_end_date"`
	ActualCompletionDate *time.Time      `json:"actual_completion_date"`
}

// create accepts either a single drawing/quantity pair or an items list; a
// bare pair is treated as a one-line list.
func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload createPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "productionReleases.create", trace.WithAttributes(
		attribute.Int64("job_order_item.id", payload.JobOrderItemID),
	))
	defer span.End()

	lines := make([]service.Line, 0, len(payload.Items)+1)
	for _, item := range payload.Items {
		lines = append(lines, service.Line{DrawingNumber: item.DrawingNumber, ReleaseQty: item.ReleaseQty})
	}
	if len(lines) == 0 && !payload.ReleaseQty.IsZero() {
		lines = append(lines, service.Line{DrawingNumber: payload.DrawingNumber, ReleaseQty: payload.ReleaseQty})
	}

	act, _ := actor.FromContext(c.Request().Context())
	results, err := h.svc.Create(ctx, service.CreateInput{
		JobOrderItemID:       payload.JobOrderItemID,
		Lines:                lines,
		ITPTemplateID:        payload.ITPTemplateID,
		ProductionStartDate:  payload.ProductionStartDate,
		ProductionEndDate:    payload.ProductionEndDate,
		ActualCompletionDate: payload.ActualCompletionDate,
		CreatedBy:            act.Email,
	})
	if err != nil {
		return b.WithError(err).Build()
	}

	out := make([]dto.ProductionReleaseResponse, 0, len(results))
	for _, res := range results {
		out = append(out, toDTO(res))
	}
	return b.WithStatus(http.StatusCreated).WithData(out).WithMeta("count", len(out)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "productionReleases.getByID", trace.WithAttributes(attribute.Int64("release.id", id)))
	defer span.End()

	res, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(toDTO(*res)).Build()
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

	ctx, span := httpTracer.Start(c.Request().Context(), "productionReleases.update", trace.WithAttributes(attribute.Int64("release.id", id)))
	defer span.End()

	res, err := h.svc.Update(ctx, id, service.UpdateInput{
		DrawingNumber:        payload.DrawingNumber,
		ReleaseQty:           payload.ReleaseQty,
		Status:               payload.Status,
		ITPTemplateID:        payload.ITPTemplateID,
		ProductionStartDate:  payload.ProductionStartDate,
		ProductionEndDate:    payload.ProductionEndDate,
		ActualCompletionDate: payload.ActualCompletionDate,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(toDTO(*res)).Build()
}

func (h *Handler) delete(c echo.Context) error {
	b := response.New(c)

	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "productionReleases.delete", trace.WithAttributes(attribute.Int64("release.id", id)))
	defer span.End()

	if err := h.svc.Delete(ctx, id); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(map[string]any{"deleted": true}).Build()
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errorbank.BadRequest("invalid id", errorbank.WithCause(err))
	}
	return id, nil
}

func toDTO(res service.Result) dto.ProductionReleaseResponse {
	release := res.Release
	out := dto.ProductionReleaseResponse{
		ID:                   release.ID,
		JobOrderItemID:       release.JobOrderItemID,
		DrawingNumber:        release.DrawingNumber,
		ReleaseQty:           release.ReleaseQty.String(),
		Status:               release.Status,
		ITPTemplateID:        release.ITPTemplateID,
		ProductionStartDate:  release.ProductionStartDate,
		ProductionEndDate:    release.ProductionEndDate,
		ActualCompletionDate: release.ActualCompletionDate,
		CreatedBy:            release.CreatedBy,
		CreatedAt:            release.CreatedAt,
	}
	if release.ReleaseWeight.Valid {
		w := release.ReleaseWeight.Decimal.String()
		out.ReleaseWeight = &w
	}
	if res.Item != nil {
		item := jobordertransport.ToItemDTO(res.Item)
		out.Item = &item
	}
	if res.Order != nil {
		out.JobOrder = &dto.JobOrderSummary{
			ID:         res.Order.ID,
			JobNumber:  res.Order.JobNumber,
			ClientName: res.Order.ClientName,
		}
	}
	return out
}
