package productionrelease

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
	joborderrepo "github.com/fabworks/foundry/internal/repository/joborder"
	releaserepo "github.com/fabworks/foundry/internal/repository/productionrelease"
	"github.com/fabworks/foundry/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/fabworks/foundry/service/productionrelease")

// Repository is the release persistence surface the service needs.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*entity.ProductionRelease, error)
	ListByItem(ctx context.Context, jobOrderItemID int64) ([]*entity.ProductionRelease, error)
	Insert(ctx context.Context, releases []*entity.ProductionRelease) error
	Update(ctx context.Context, release *entity.ProductionRelease) error
	Delete(ctx context.Context, id int64) error
	CountInspections(ctx context.Context, releaseID int64) (int, error)
}

// JobOrderStore resolves job-order items and their parent orders for
// validation and response joins.
type JobOrderStore interface {
	GetItem(ctx context.Context, itemID int64) (*entity.JobOrderItem, error)
	GetByID(ctx context.Context, id int64) (*entity.JobOrder, error)
}

// Service guards production-release allocation: every create or update is
// validated against the quantity ledger inside the same transaction as the
// write.
type Service struct {
	releases  Repository
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

	Releases    *releaserepo.Repository
	Orders      *joborderrepo.Repository
	Connections *database.Connections
	Config      config.Config
	Logger      *zap.Logger
	Publisher   messaging.Client
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		releases:  p.Releases,
		orders:    p.Orders,
		tx:        p.Connections,
		logger:    p.Logger,
		publisher: p.Publisher,
		publish:   p.Config.Messaging.Enabled,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Line is one drawing-numbered sub-release in a create request.
type Line struct {
	DrawingNumber string
	ReleaseQty    decimal.Decimal
}

// CreateInput is the payload for creating one or more releases under a single
// job-order item.
type CreateInput struct {
	JobOrderItemID       int64
	Lines                []Line
	ITPTemplateID        *int64
	ProductionStartDate  *time.Time
	ProductionEndDate    *time.Time
	ActualCompletionDate *time.Time
	CreatedBy            string
}

// UpdateInput is the payload for updating a release in place.
type UpdateInput struct {
	DrawingNumber        string
	ReleaseQty           decimal.Decimal
	Status               string
	ITPTemplateID        *int64
	ProductionStartDate  *time.Time
	ProductionEndDate    *time.Time
	ActualCompletionDate *time.Time
}

// Result is a release joined with its job-order item and parent order
// summary.
type Result struct {
	Release *entity.ProductionRelease
	Item    *entity.JobOrderItem
	Order   *entity.JobOrder
}

// Create validates the summed request against the item's remaining quantity
// and creates one PLANNING release per line; all lines commit or none do.
// Zero-or-negative line quantities are dropped before validation.
func (s *Service) Create(ctx context.Context, in CreateInput) ([]Result, error) {
	ctx, span := serviceTracer.Start(ctx, "ReleaseService.Create", trace.WithAttributes(attribute.Int64("job_order_item.id", in.JobOrderItemID)))
	defer span.End()

	if in.JobOrderItemID == 0 {
		return nil, errorbank.BadRequest("job order item id is required")
	}
	if len(in.Lines) == 0 {
		return nil, errorbank.BadRequest("at least one release item is required")
	}

	var created []*entity.ProductionRelease
	var item *entity.JobOrderItem
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		item, err = s.getItem(ctx, in.JobOrderItemID)
		if err != nil {
			return err
		}

		lines := make([]Line, 0, len(in.Lines))
		total := decimal.Zero
		for _, line := range in.Lines {
			if line.ReleaseQty.LessThanOrEqual(decimal.Zero) {
				continue
			}
			lines = append(lines, line)
			total = total.Add(line.ReleaseQty)
		}
		if total.LessThanOrEqual(decimal.Zero) {
			return errorbank.QuantityExceeded("total release quantity must be positive")
		}

		consumed, err := s.consumptions(ctx, item.ID)
		if err != nil {
			return err
		}
		if err := ledger.Validate(item, consumed, 0, ledger.Proposed{
			Qty:   total,
			Value: total.Mul(item.UnitPrice),
		}); err != nil {
			return asAllocationError(err)
		}

		now := s.now()
		created = make([]*entity.ProductionRelease, 0, len(lines))
		for _, line := range lines {
			created = append(created, &entity.ProductionRelease{
				JobOrderItemID:       item.ID,
				DrawingNumber:        line.DrawingNumber,
				ReleaseQty:           line.ReleaseQty,
				ReleaseWeight:        deriveWeight(line.ReleaseQty, item),
				Status:               entity.ReleaseStatusPlanning,
				ITPTemplateID:        in.ITPTemplateID,
				ProductionStartDate:  in.ProductionStartDate,
				ProductionEndDate:    in.ProductionEndDate,
				ActualCompletionDate: in.ActualCompletionDate,
				CreatedBy:            in.CreatedBy,
				CreatedAt:            now,
				UpdatedAt:            now,
			})
		}
		if err := s.releases.Insert(ctx, created); err != nil {
			return errorbank.Internal("failed to create production releases", errorbank.WithCause(err))
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, err
	}

	order, err := s.loadOrder(ctx, item.JobOrderID)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(created))
	for _, release := range created {
		s.publishReleaseCreated(ctx, release, item)
		results = append(results, Result{Release: release, Item: item, Order: order})
	}
	return results, nil
}

// Update revalidates the new quantity against the release's sibling
// consumers (excluding itself) before updating in place; the release weight
// is rederived.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (*Result, error) {
	ctx, span := serviceTracer.Start(ctx, "ReleaseService.Update", trace.WithAttributes(attribute.Int64("release.id", id)))
	defer span.End()

	if in.ReleaseQty.LessThanOrEqual(decimal.Zero) {
		return nil, errorbank.BadRequest("release quantity must be positive")
	}
	if in.Status != "" && !validStatus(in.Status) {
		return nil, errorbank.BadRequest("unknown release status: " + in.Status)
	}

	var release *entity.ProductionRelease
	var item *entity.JobOrderItem
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		release, err = s.getRelease(ctx, id)
		if err != nil {
			return err
		}
		item, err = s.getItem(ctx, release.JobOrderItemID)
		if err != nil {
			return err
		}

		consumed, err := s.consumptions(ctx, item.ID)
		if err != nil {
			return err
		}
		if err := ledger.Validate(item, consumed, release.ID, ledger.Proposed{
			Qty:   in.ReleaseQty,
			Value: in.ReleaseQty.Mul(item.UnitPrice),
		}); err != nil {
			return asAllocationError(err)
		}

		release.DrawingNumber = in.DrawingNumber
		release.ReleaseQty = in.ReleaseQty
		release.ReleaseWeight = deriveWeight(in.ReleaseQty, item)
		if in.Status != "" {
			release.Status = in.Status
		}
		release.ITPTemplateID = in.ITPTemplateID
		release.ProductionStartDate = in.ProductionStartDate
		release.ProductionEndDate = in.ProductionEndDate
		release.ActualCompletionDate = in.ActualCompletionDate
		release.UpdatedAt = s.now()
		if err := s.releases.Update(ctx, release); err != nil {
			return errorbank.Internal("failed to update production release", errorbank.WithCause(err))
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return nil, err
	}

	order, err := s.loadOrder(ctx, item.JobOrderID)
	if err != nil {
		return nil, err
	}
	return &Result{Release: release, Item: item, Order: order}, nil
}

// Delete removes a release unless inspection records depend on it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	ctx, span := serviceTracer.Start(ctx, "ReleaseService.Delete", trace.WithAttributes(attribute.Int64("release.id", id)))
	defer span.End()

	if _, err := s.getRelease(ctx, id); err != nil {
		return err
	}
	inspections, err := s.releases.CountInspections(ctx, id)
	if err != nil {
		return errorbank.Internal("failed to count inspections", errorbank.WithCause(err))
	}
	if inspections > 0 {
		return errorbank.HasDependents("production release has inspection records and cannot be deleted")
	}
	if err := s.releases.Delete(ctx, id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return errorbank.Internal("failed to delete production release", errorbank.WithCause(err))
	}
	return nil
}

// Get returns a release joined with its item and parent order.
func (s *Service) Get(ctx context.Context, id int64) (*Result, error) {
	ctx, span := serviceTracer.Start(ctx, "ReleaseService.Get", trace.WithAttributes(attribute.Int64("release.id", id)))
	defer span.End()

	release, err := s.getRelease(ctx, id)
	if err != nil {
		return nil, err
	}
	item := release.Item
	if item == nil {
		if item, err = s.getItem(ctx, release.JobOrderItemID); err != nil {
			return nil, err
		}
	}
	order, err := s.loadOrder(ctx, item.JobOrderID)
	if err != nil {
		return nil, err
	}
	return &Result{Release: release, Item: item, Order: order}, nil
}

// consumptions converts the item's current releases into ledger entries.
func (s *Service) consumptions(ctx context.Context, itemID int64) ([]ledger.Consumption, error) {
	siblings, err := s.releases.ListByItem(ctx, itemID)
	if err != nil {
		return nil, errorbank.Internal("failed to list sibling releases", errorbank.WithCause(err))
	}
	consumed := make([]ledger.Consumption, 0, len(siblings))
	for _, sibling := range siblings {
		consumed = append(consumed, ledger.Consumption{
			ConsumerID: sibling.ID,
			Qty:        sibling.ReleaseQty,
		})
	}
	return consumed, nil
}

func (s *Service) getRelease(ctx context.Context, id int64) (*entity.ProductionRelease, error) {
	release, err := s.releases.GetByID(ctx, id)
	if errors.Is(err, releaserepo.ErrNotFound) {
		return nil, errorbank.NotFound("production release not found")
	}
	if err != nil {
		return nil, errorbank.Internal("failed to load production release", errorbank.WithCause(err))
	}
	return release, nil
}

func (s *Service) getItem(ctx context.Context, itemID int64) (*entity.JobOrderItem, error) {
	item, err := s.orders.GetItem(ctx, itemID)
	if errors.Is(err, joborderrepo.ErrNotFound) {
		return nil, errorbank.NotFound("job order item not found")
	}
	if err != nil {
		return nil, errorbank.Internal("failed to load job order item", errorbank.WithCause(err))
	}
	return item, nil
}

func (s *Service) loadOrder(ctx context.Context, jobOrderID int64) (*entity.JobOrder, error) {
	order, err := s.orders.GetByID(ctx, jobOrderID)
	if errors.Is(err, joborderrepo.ErrNotFound) {
		return nil, errorbank.NotFound("job order not found")
	}
	if err != nil {
		return nil, errorbank.Internal("failed to load job order", errorbank.WithCause(err))
	}
	return order, nil
}

func deriveWeight(qty decimal.Decimal, item *entity.JobOrderItem) decimal.NullDecimal {
	if !item.UnitWeight.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(qty.Mul(item.UnitWeight.Decimal))
}

func validStatus(status string) bool {
	switch status {
	case entity.ReleaseStatusPlanning, entity.ReleaseStatusInProgress, entity.ReleaseStatusCompleted:
		return true
	}
	return false
}

// asAllocationError maps ledger violations onto the boundary error shape,
// carrying the numeric remainder so callers can act without a follow-up
// query.
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
