package joborder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fabworks/foundry/internal/actor"
	"github.com/fabworks/foundry/internal/cache"
	"github.com/fabworks/foundry/internal/config"
	"github.com/fabworks/foundry/internal/database"
	"github.com/fabworks/foundry/internal/entity"
	"github.com/fabworks/foundry/internal/messaging"
	"github.com/fabworks/foundry/internal/policy"
	invoicerepo "github.com/fabworks/foundry/internal/repository/invoice"
	joborderrepo "github.com/fabworks/foundry/internal/repository/joborder"
	materialrepo "github.com/fabworks/foundry/internal/repository/material"
	releaserepo "github.com/fabworks/foundry/internal/repository/productionrelease"
	"github.com/fabworks/foundry/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/fabworks/foundry/service/joborder")

// Repository is the job-order persistence surface the service needs.
type Repository interface {
	Create(ctx context.Context, order *entity.JobOrder) error
	GetByID(ctx context.Context, id int64) (*entity.JobOrder, error)
	FindActiveByNumber(ctx context.Context, jobNumber string) (*entity.JobOrder, error)
	FindDeletedByNumber(ctx context.Context, jobNumber string) (*entity.JobOrder, error)
	List(ctx context.Context, includeDeleted bool) ([]*entity.JobOrder, error)
	Update(ctx context.Context, order *entity.JobOrder) error
	ReplaceItems(ctx context.Context, jobOrderID int64, items []*entity.JobOrderItem) error
	HardDelete(ctx context.Context, id int64) error
	InsertEditHistory(ctx context.Context, h *entity.JobOrderEditHistory) error
}

// MaterialStore is the procurement chain surface used by the cascade
// annotator and the hard-delete check.
type MaterialStore interface {
	CountRequestsByJobOrder(ctx context.Context, jobOrderID int64) (int, error)
	ListRequestsByJobOrder(ctx context.Context, jobOrderID int64) ([]*entity.MaterialRequest, error)
	ListReceiptsByJobOrder(ctx context.Context, jobOrderID int64) ([]*entity.MaterialReceipt, error)
	UpdateReceiptNotes(ctx context.Context, receipt *entity.MaterialReceipt) error
	InsertStatusHistory(ctx context.Context, h *entity.MaterialRequestStatusHistory) error
}

// ReleaseCounter reports release references onto job-order items, used to
// block wholesale item replacement while consumers still point at them.
type ReleaseCounter interface {
	CountByItemIDs(ctx context.Context, itemIDs []int64) (int, error)
}

// InvoiceCounter reports non-cancelled invoice line references onto job-order
// items.
type InvoiceCounter interface {
	CountItemsByJobOrderItems(ctx context.Context, itemIDs []int64) (int, error)
}

// Service owns the job order lifecycle: create with implicit restore,
// update with wholesale item replace and edit history, soft/hard delete with
// cascade annotation, restore, and bulk delete.
type Service struct {
	orders    Repository
	materials MaterialStore
	releases  ReleaseCounter
	invoices  InvoiceCounter
	tx        database.TxRunner
	policy    policy.EditPolicy
	cache     cache.Store
	cacheTTL  time.Duration
	logger    *zap.Logger
	publisher messaging.Client
	publish   bool
	now       func() time.Time
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Orders      *joborderrepo.Repository
	Materials   *materialrepo.Repository
	Releases    *releaserepo.Repository
	Invoices    *invoicerepo.Repository
	Connections *database.Connections
	Cache       cache.Store
	Config      config.Config
	Logger      *zap.Logger
	Publisher   messaging.Client
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		orders:    p.Orders,
		materials: p.Materials,
		releases:  p.Releases,
		invoices:  p.Invoices,
		tx:        p.Connections,
		policy:    policy.New(p.Config.Policy.EditWindow),
		cache:     p.Cache,
		cacheTTL:  p.Config.Cache.DefaultTTL,
		logger:    p.Logger,
		publisher: p.Publisher,
		publish:   p.Config.Messaging.Enabled,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ItemInput describes one ordered line in a create/update payload. A nil
// Quantity means unlimited.
type ItemInput struct {
	WorkDescription string
	Quantity        *decimal.Decimal
	Unit            string
	UnitPrice       decimal.Decimal
	UnitWeight      *decimal.Decimal
	TotalPrice      decimal.Decimal
}

// CreateInput is the payload for creating a job order.
type CreateInput struct {
	JobNumber   string
	ClientName  string
	Description string
	StartDate   *time.Time
	DueDate     *time.Time
	Items       []ItemInput
}

// UpdateInput is the payload for updating a job order. A nil Items leaves the
// existing items untouched; a non-nil Items replaces them wholesale.
type UpdateInput struct {
	ClientName  string
	Description string
	StartDate   *time.Time
	DueDate     *time.Time
	Items       *[]ItemInput
}

// Create makes a new job order. An active record with the same number is a
// conflict; a soft-deleted one is implicitly restored with the new payload
// and returned as if newly created.
func (s *Service) Create(ctx context.Context, in CreateInput, act actor.Actor) (*entity.JobOrder, error) {
	ctx, span := serviceTracer.Start(ctx, "JobOrderService.Create", trace.WithAttributes(attribute.String("job_order.number", in.JobNumber)))
	defer span.End()

	if in.JobNumber == "" {
		return nil, errorbank.BadRequest("job number is required")
	}
	items, err := buildItems(in.Items)
	if err != nil {
		return nil, err
	}

	var order *entity.JobOrder
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.orders.FindActiveByNumber(ctx, in.JobNumber); err == nil {
			return errorbank.Conflict(fmt.Sprintf("job order %s already exists", in.JobNumber))
		} else if !errors.Is(err, joborderrepo.ErrNotFound) {
			return errorbank.Internal("failed to check job number", errorbank.WithCause(err))
		}

		if ghost, err := s.orders.FindDeletedByNumber(ctx, in.JobNumber); err == nil {
			// Implicit restore: revive the soft-deleted record under the new
			// payload instead of creating a duplicate number.
			ghost.ClientName = in.ClientName
			ghost.Description = in.Description
			ghost.StartDate = in.StartDate
			ghost.DueDate = in.DueDate
			ghost.IsDeleted = false
			ghost.DeletedAt = nil
			ghost.DeletedBy = ""
			now := s.now()
			ghost.LastEditedAt = &now
			ghost.LastEditedBy = act.Email
			if err := s.orders.Update(ctx, ghost); err != nil {
				return errorbank.Internal("failed to restore job order", errorbank.WithCause(err))
			}
			if err := s.orders.ReplaceItems(ctx, ghost.ID, items); err != nil {
				return errorbank.Internal("failed to replace job order items", errorbank.WithCause(err))
			}
			ghost.Items = items
			order = ghost
			return nil
		} else if !errors.Is(err, joborderrepo.ErrNotFound) {
			return errorbank.Internal("failed to check deleted job orders", errorbank.WithCause(err))
		}

		order = &entity.JobOrder{
			JobNumber:   in.JobNumber,
			ClientName:  in.ClientName,
			Description: in.Description,
			StartDate:   in.StartDate,
			DueDate:     in.DueDate,
			CreatedAt:   s.now(),
			Items:       items,
		}
		if err := s.orders.Create(ctx, order); err != nil {
			return errorbank.Internal("failed to create job order", errorbank.WithCause(err))
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, err
	}

	s.invalidateCache(ctx, order.ID)
	s.publishLifecycle(ctx, ActionCreated, order, act.Email)
	return order, nil
}

// Get retrieves a job order by id, consulting cache when available.
func (s *Service) Get(ctx context.Context, id int64) (*entity.JobOrder, error) {
	ctx, span := serviceTracer.Start(ctx, "JobOrderService.Get", trace.WithAttributes(attribute.Int64("job_order.id", id)))
	defer span.End()

	if order, err := s.getFromCache(ctx, id); err == nil {
		return order, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		if s.logger != nil {
			s.logger.Warn("job order cache read failed", zap.Int64("id", id), zap.Error(err))
		}
	}

	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, joborderrepo.ErrNotFound) {
			return nil, errorbank.NotFound("job order not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load job order", errorbank.WithCause(err))
	}

	if err := s.storeInCache(ctx, order); err != nil && s.logger != nil {
		s.logger.Warn("job order cache write failed", zap.Int64("id", id), zap.Error(err))
	}
	return order, nil
}

// List returns job orders, skipping soft-deleted ones unless asked.
func (s *Service) List(ctx context.Context, includeDeleted bool) ([]*entity.JobOrder, error) {
	ctx, span := serviceTracer.Start(ctx, "JobOrderService.List")
	defer span.End()

	orders, err := s.orders.List(ctx, includeDeleted)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to list job orders", errorbank.WithCause(err))
	}
	return orders, nil
}

// Update applies scalar field changes and, when supplied, replaces the item
// list wholesale. Each update appends one edit-history record with the
// field-level diff. Gated by the edit permission policy.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput, act actor.Actor) (*entity.JobOrder, error) {
	ctx, span := serviceTracer.Start(ctx, "JobOrderService.Update", trace.WithAttributes(attribute.Int64("job_order.id", id)))
	defer span.End()

	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.IsDeleted {
		return nil, errorbank.Conflict("job order is deleted; restore it before editing")
	}
	if !s.policy.CanMutate(order.CreatedAt, act.Role, s.now()) {
		return nil, errorbank.Forbidden(s.policy.Reason())
	}

	var items []*entity.JobOrderItem
	if in.Items != nil {
		if items, err = buildItems(*in.Items); err != nil {
			return nil, err
		}
		if err := s.ensureItemsUnconsumed(ctx, order); err != nil {
			return nil, err
		}
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		changes := diffScalarFields(order, in)
		order.ClientName = in.ClientName
		order.Description = in.Description
		order.StartDate = in.StartDate
		order.DueDate = in.DueDate
		now := s.now()
		order.LastEditedAt = &now
		order.LastEditedBy = act.Email
		if err := s.orders.Update(ctx, order); err != nil {
			return errorbank.Internal("failed to update job order", errorbank.WithCause(err))
		}

		if in.Items != nil {
			if err := s.orders.ReplaceItems(ctx, order.ID, items); err != nil {
				return errorbank.Internal("failed to replace job order items", errorbank.WithCause(err))
			}
			order.Items = items
		}

		history := &entity.JobOrderEditHistory{
			JobOrderID:    order.ID,
			Changes:       changes,
			ItemsReplaced: in.Items != nil,
			EditedBy:      act.Email,
			EditedAt:      now,
		}
		if err := s.orders.InsertEditHistory(ctx, history); err != nil {
			return errorbank.Internal("failed to record edit history", errorbank.WithCause(err))
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return nil, err
	}

	s.invalidateCache(ctx, order.ID)
	s.publishLifecycle(ctx, ActionUpdated, order, act.Email)
	return order, nil
}

// Delete removes a job order: hard when no material requests reference it,
// soft with cascade annotation otherwise. Deleting an already-soft-deleted
// order succeeds without annotating again.
func (s *Service) Delete(ctx context.Context, id int64, act actor.Actor) error {
	ctx, span := serviceTracer.Start(ctx, "JobOrderService.Delete", trace.WithAttributes(attribute.Int64("job_order.id", id)))
	defer span.End()

	order, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if order.IsDeleted {
		return nil
	}
	if !s.policy.CanMutate(order.CreatedAt, act.Role, s.now()) {
		return errorbank.Forbidden(s.policy.Reason())
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		return s.deleteLocked(ctx, order, act)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return err
	}

	s.invalidateCache(ctx, order.ID)
	s.publishLifecycle(ctx, ActionDeleted, order, act.Email)
	return nil
}

// BulkDelete applies the single-delete rule to every id in one batch. When
// any target fails the permission check the whole batch is rejected up front
// with the forbidden ids listed; no partial deletion happens.
func (s *Service) BulkDelete(ctx context.Context, ids []int64, act actor.Actor) error {
	ctx, span := serviceTracer.Start(ctx, "JobOrderService.BulkDelete", trace.WithAttributes(attribute.Int("job_order.count", len(ids))))
	defer span.End()

	if len(ids) == 0 {
		return errorbank.BadRequest("no job order ids supplied")
	}

	now := s.now()
	orders := make([]*entity.JobOrder, 0, len(ids))
	var forbidden []int64
	for _, id := range ids {
		order, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if !order.IsDeleted && !s.policy.CanMutate(order.CreatedAt, act.Role, now) {
			forbidden = append(forbidden, id)
		}
		orders = append(orders, order)
	}
	if len(forbidden) > 0 {
		return errorbank.Forbidden(s.policy.Reason(), errorbank.WithDetail("forbidden_ids", forbidden))
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		for _, order := range orders {
			if order.IsDeleted {
				continue
			}
			if err := s.deleteLocked(ctx, order, act); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bulk delete failed")
		return err
	}

	for _, order := range orders {
		s.invalidateCache(ctx, order.ID)
		s.publishLifecycle(ctx, ActionDeleted, order, act.Email)
	}
	return nil
}

// Restore clears the soft-delete fields of a deleted job order. Items are
// untouched and quantity caps are not re-validated.
func (s *Service) Restore(ctx context.Context, id int64, act actor.Actor) (*entity.JobOrder, error) {
	ctx, span := serviceTracer.Start(ctx, "JobOrderService.Restore", trace.WithAttributes(attribute.Int64("job_order.id", id)))
	defer span.End()

	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.IsDeleted {
		return nil, errorbank.Conflict("job order is not deleted")
	}
	if !s.policy.CanMutate(order.CreatedAt, act.Role, s.now()) {
		return nil, errorbank.Forbidden(s.policy.Reason())
	}

	order.IsDeleted = false
	order.DeletedAt = nil
	order.DeletedBy = ""
	now := s.now()
	order.LastEditedAt = &now
	order.LastEditedBy = act.Email
	if err := s.orders.Update(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return nil, errorbank.Internal("failed to restore job order", errorbank.WithCause(err))
	}

	s.invalidateCache(ctx, order.ID)
	s.publishLifecycle(ctx, ActionRestored, order, act.Email)
	return order, nil
}

// deleteLocked performs the hard-or-soft delete of one active order inside
// the ambient transaction.
func (s *Service) deleteLocked(ctx context.Context, order *entity.JobOrder, act actor.Actor) error {
	requests, err := s.materials.CountRequestsByJobOrder(ctx, order.ID)
	if err != nil {
		return errorbank.Internal("failed to count material requests", errorbank.WithCause(err))
	}
	if requests == 0 {
		if err := s.orders.HardDelete(ctx, order.ID); err != nil {
			return errorbank.Internal("failed to delete job order", errorbank.WithCause(err))
		}
		return nil
	}

	now := s.now()
	order.IsDeleted = true
	order.DeletedAt = &now
	order.DeletedBy = act.Email
	if err := s.orders.Update(ctx, order); err != nil {
		return errorbank.Internal("failed to soft delete job order", errorbank.WithCause(err))
	}
	return s.annotateCascade(ctx, order, now)
}

// annotateCascade appends traceability notes to every reachable material
// receipt and writes one same-status audit row per material request, without
// altering any operational status.
func (s *Service) annotateCascade(ctx context.Context, order *entity.JobOrder, deletedAt time.Time) error {
	note := cascadeNote(order.JobNumber, deletedAt)

	receipts, err := s.materials.ListReceiptsByJobOrder(ctx, order.ID)
	if err != nil {
		return errorbank.Internal("failed to list material receipts", errorbank.WithCause(err))
	}
	for _, receipt := range receipts {
		if receipt.Notes == "" {
			receipt.Notes = note
		} else {
			receipt.Notes = receipt.Notes + "\n" + note
		}
		if err := s.materials.UpdateReceiptNotes(ctx, receipt); err != nil {
			return errorbank.Internal("failed to annotate material receipt", errorbank.WithCause(err))
		}
	}

	requests, err := s.materials.ListRequestsByJobOrder(ctx, order.ID)
	if err != nil {
		return errorbank.Internal("failed to list material requests", errorbank.WithCause(err))
	}
	for _, request := range requests {
		h := &entity.MaterialRequestStatusHistory{
			MaterialRequestID: request.ID,
			OldStatus:         request.Status,
			NewStatus:         request.Status,
			Note:              note,
			ChangedBy:         actor.System,
			ChangedAt:         deletedAt,
		}
		if err := s.materials.InsertStatusHistory(ctx, h); err != nil {
			return errorbank.Internal("failed to record request audit", errorbank.WithCause(err))
		}
	}
	return nil
}

// ensureItemsUnconsumed blocks wholesale item replacement while any
// production release or invoice line still references an existing item.
func (s *Service) ensureItemsUnconsumed(ctx context.Context, order *entity.JobOrder) error {
	itemIDs := make([]int64, 0, len(order.Items))
	for _, item := range order.Items {
		itemIDs = append(itemIDs, item.ID)
	}
	if len(itemIDs) == 0 {
		return nil
	}

	releases, err := s.releases.CountByItemIDs(ctx, itemIDs)
	if err != nil {
		return errorbank.Internal("failed to count item releases", errorbank.WithCause(err))
	}
	if releases > 0 {
		return errorbank.Conflict("job order items are referenced by production releases and cannot be replaced")
	}

	lines, err := s.invoices.CountItemsByJobOrderItems(ctx, itemIDs)
	if err != nil {
		return errorbank.Internal("failed to count item invoice lines", errorbank.WithCause(err))
	}
	if lines > 0 {
		return errorbank.Conflict("job order items are referenced by invoices and cannot be replaced")
	}
	return nil
}

func (s *Service) load(ctx context.Context, id int64) (*entity.JobOrder, error) {
	order, err := s.orders.GetByID(ctx, id)
	if errors.Is(err, joborderrepo.ErrNotFound) {
		return nil, errorbank.NotFound("job order not found")
	}
	if err != nil {
		return nil, errorbank.Internal("failed to load job order", errorbank.WithCause(err))
	}
	return order, nil
}

func cascadeNote(jobNumber string, deletedAt time.Time) string {
	return fmt.Sprintf("Linked job order %s deleted on %s. Materials and requests remain for traceability.",
		jobNumber, deletedAt.UTC().Format(time.RFC3339))
}

func buildItems(inputs []ItemInput) ([]*entity.JobOrderItem, error) {
	items := make([]*entity.JobOrderItem, 0, len(inputs))
	for _, in := range inputs {
		if in.WorkDescription == "" {
			return nil, errorbank.BadRequest("work description is required for every item")
		}
		item := &entity.JobOrderItem{
			WorkDescription: in.WorkDescription,
			Unit:            in.Unit,
			UnitPrice:       in.UnitPrice,
			TotalPrice:      in.TotalPrice,
		}
		if in.Quantity != nil {
			item.Quantity = decimal.NewNullDecimal(*in.Quantity)
		}
		if in.UnitWeight != nil {
			item.UnitWeight = decimal.NewNullDecimal(*in.UnitWeight)
		}
		items = append(items, item)
	}
	return items, nil
}

// diffScalarFields records the before/after value of every scalar field the
// update changes.
func diffScalarFields(order *entity.JobOrder, in UpdateInput) map[string]entity.FieldChange {
	changes := make(map[string]entity.FieldChange)
	if order.ClientName != in.ClientName {
		changes["clientName"] = entity.FieldChange{From: order.ClientName, To: in.ClientName}
	}
	if order.Description != in.Description {
		changes["description"] = entity.FieldChange{From: order.Description, To: in.Description}
	}
	if !equalTimePtr(order.StartDate, in.StartDate) {
		changes["startDate"] = entity.FieldChange{From: formatTimePtr(order.StartDate), To: formatTimePtr(in.StartDate)}
	}
	if !equalTimePtr(order.DueDate, in.DueDate) {
		changes["dueDate"] = entity.FieldChange{From: formatTimePtr(order.DueDate), To: formatTimePtr(in.DueDate)}
	}
	return changes
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func (s *Service) cacheKey(id int64) string {
	return fmt.Sprintf("joborders:%d", id)
}

func (s *Service) getFromCache(ctx context.Context, id int64) (*entity.JobOrder, error) {
	if s.cache == nil {
		return nil, cache.ErrCacheMiss
	}
	bytes, err := s.cache.Get(ctx, s.cacheKey(id))
	if err != nil {
		return nil, err
	}
	var order entity.JobOrder
	if err := json.Unmarshal(bytes, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Service) storeInCache(ctx context.Context, order *entity.JobOrder) error {
	if s.cache == nil || order == nil {
		return nil
	}
	bytes, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, s.cacheKey(order.ID), bytes, s.cacheTTL)
}

func (s *Service) invalidateCache(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, s.cacheKey(id)); err != nil && s.logger != nil {
		s.logger.Warn("job order cache invalidation failed", zap.Int64("id", id), zap.Error(err))
	}
}
