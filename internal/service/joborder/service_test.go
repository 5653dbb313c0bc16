package joborder

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fabworks/foundry/internal/actor"
	"github.com/fabworks/foundry/internal/entity"
	"github.com/fabworks/foundry/internal/policy"
	joborderrepo "github.com/fabworks/foundry/internal/repository/joborder"
	"github.com/fabworks/foundry/pkg/errorbank"
)

type mockOrders struct {
	mock.Mock
}

func (m *mockOrders) Create(ctx context.Context, order *entity.JobOrder) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *mockOrders) GetByID(ctx context.Context, id int64) (*entity.JobOrder, error) {
	args := m.Called(ctx, id)
	if order, ok := args.Get(0).(*entity.JobOrder); ok {
		return order, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOrders) FindActiveByNumber(ctx context.Context, jobNumber string) (*entity.JobOrder, error) {
	args := m.Called(ctx, jobNumber)
	if order, ok := args.Get(0).(*entity.JobOrder); ok {
		return order, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOrders) FindDeletedByNumber(ctx context.Context, jobNumber string) (*entity.JobOrder, error) {
	args := m.Called(ctx, jobNumber)
	if order, ok := args.Get(0).(*entity.JobOrder); ok {
		return order, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOrders) List(ctx context.Context, includeDeleted bool) ([]*entity.JobOrder, error) {
	args := m.Called(ctx, includeDeleted)
	if orders, ok := args.Get(0).([]*entity.JobOrder); ok {
		return orders, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOrders) Update(ctx context.Context, order *entity.JobOrder) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *mockOrders) ReplaceItems(ctx context.Context, jobOrderID int64, items []*entity.JobOrderItem) error {
	args := m.Called(ctx, jobOrderID, items)
	return args.Error(0)
}

func (m *mockOrders) HardDelete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockOrders) InsertEditHistory(ctx context.Context, h *entity.JobOrderEditHistory) error {
	args := m.Called(ctx, h)
	return args.Error(0)
}

type mockMaterials struct {
	mock.Mock
}

func (m *mockMaterials) CountRequestsByJobOrder(ctx context.Context, jobOrderID int64) (int, error) {
	args := m.Called(ctx, jobOrderID)
	return args.Int(0), args.Error(1)
}

func (m *mockMaterials) ListRequestsByJobOrder(ctx context.Context, jobOrderID int64) ([]*entity.MaterialRequest, error) {
	args := m.Called(ctx, jobOrderID)
	if requests, ok := args.Get(0).([]*entity.MaterialRequest); ok {
		return requests, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMaterials) ListReceiptsByJobOrder(ctx context.Context, jobOrderID int64) ([]*entity.MaterialReceipt, error) {
	args := m.Called(ctx, jobOrderID)
	if receipts, ok := args.Get(0).([]*entity.MaterialReceipt); ok {
		return receipts, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMaterials) UpdateReceiptNotes(ctx context.Context, receipt *entity.MaterialReceipt) error {
	args := m.Called(ctx, receipt)
	return args.Error(0)
}

func (m *mockMaterials) InsertStatusHistory(ctx context.Context, h *entity.MaterialRequestStatusHistory) error {
	args := m.Called(ctx, h)
	return args.Error(0)
}

type mockReleaseCounter struct {
	mock.Mock
}

func (m *mockReleaseCounter) CountByItemIDs(ctx context.Context, itemIDs []int64) (int, error) {
	args := m.Called(ctx, itemIDs)
	return args.Int(0), args.Error(1)
}

type mockInvoiceCounter struct {
	mock.Mock
}

func (m *mockInvoiceCounter) CountItemsByJobOrderItems(ctx context.Context, itemIDs []int64) (int, error) {
	args := m.Called(ctx, itemIDs)
	return args.Int(0), args.Error(1)
}

type passTx struct{}

func (passTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fixture struct {
	svc       *Service
	orders    *mockOrders
	materials *mockMaterials
	releases  *mockReleaseCounter
	invoices  *mockInvoiceCounter
	now       time.Time
}

func newFixture() *fixture {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	f := &fixture{
		orders:    new(mockOrders),
		materials: new(mockMaterials),
		releases:  new(mockReleaseCounter),
		invoices:  new(mockInvoiceCounter),
		now:       now,
	}
	f.svc = &Service{
		orders:    f.orders,
		materials: f.materials,
		releases:  f.releases,
		invoices:  f.invoices,
		tx:        passTx{},
		policy:    policy.New(policy.DefaultEditWindow),
		logger:    zap.NewNop(),
		now:       func() time.Time { return now },
	}
	return f
}

func editor() actor.Actor {
	return actor.Actor{Email: "planner@fabworks.test", Role: "USER"}
}

func itemInput(desc string, qty int64, price int64) ItemInput {
	q := decimal.NewFromInt(qty)
	return ItemInput{
		WorkDescription: desc,
		Quantity:        &q,
		Unit:            "EA",
		UnitPrice:       decimal.NewFromInt(price),
		TotalPrice:      decimal.NewFromInt(qty * price),
	}
}

func TestCreateRejectsDuplicateActiveNumber(t *testing.T) {
	f := newFixture()
	f.orders.On("FindActiveByNumber", mock.Anything, "JO-100").Return(&entity.JobOrder{ID: 1, JobNumber: "JO-100"}, nil)

	_, err := f.svc.Create(context.Background(), CreateInput{
		JobNumber: "JO-100",
		Items:     []ItemInput{itemInput("fabricate frame", 10, 50)},
	}, editor())

	require.Error(t, err)
	require.Equal(t, errorbank.KindConflict, errorbank.From(err).Kind())
	f.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateRevivesSoftDeletedNumber(t *testing.T) {
	f := newFixture()
	deletedAt := f.now.Add(-48 * time.Hour)
	ghost := &entity.JobOrder{
		ID:        7,
		JobNumber: "JO-200",
		IsDeleted: true,
		DeletedAt: &deletedAt,
		DeletedBy: "someone@fabworks.test",
		CreatedAt: f.now.Add(-72 * time.Hour),
	}
	f.orders.On("FindActiveByNumber", mock.Anything, "JO-200").Return(nil, joborderrepo.ErrNotFound)
	f.orders.On("FindDeletedByNumber", mock.Anything, "JO-200").Return(ghost, nil)
	f.orders.On("Update", mock.Anything, ghost).Return(nil)
	f.orders.On("ReplaceItems", mock.Anything, int64(7), mock.Anything).Return(nil)

	order, err := f.svc.Create(context.Background(), CreateInput{
		JobNumber:  "JO-200",
		ClientName: "Meridian",
		Items:      []ItemInput{itemInput("fabricate skid", 5, 900)},
	}, editor())

	require.NoError(t, err)
	require.Equal(t, int64(7), order.ID)
	require.False(t, order.IsDeleted)
	require.Nil(t, order.DeletedAt)
	require.Empty(t, order.DeletedBy)
	require.Equal(t, "Meridian", order.ClientName)
	require.Len(t, order.Items, 1)
	f.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.orders.AssertExpectations(t)
}

func TestUpdateBlockedOutsideEditWindow(t *testing.T) {
	f := newFixture()
	order := &entity.JobOrder{ID: 3, JobNumber: "JO-300", CreatedAt: f.now.Add(-4*24*time.Hour - time.Minute)}
	f.orders.On("GetByID", mock.Anything, int64(3)).Return(order, nil)

	_, err := f.svc.Update(context.Background(), 3, UpdateInput{ClientName: "new client"}, editor())

	require.Error(t, err)
	require.Equal(t, errorbank.KindForbidden, errorbank.From(err).Kind())
	f.orders.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestUpdateAllowedForAdminOutsideWindow(t *testing.T) {
	f := newFixture()
	order := &entity.JobOrder{ID: 3, JobNumber: "JO-300", ClientName: "old", CreatedAt: f.now.Add(-30 * 24 * time.Hour)}
	f.orders.On("GetByID", mock.Anything, int64(3)).Return(order, nil)
	f.orders.On("Update", mock.Anything, order).Return(nil)
	f.orders.On("InsertEditHistory", mock.Anything, mock.Anything).Return(nil)

	admin := actor.Actor{Email: "ops@fabworks.test", Role: policy.RoleAdmin}
	updated, err := f.svc.Update(context.Background(), 3, UpdateInput{ClientName: "new"}, admin)

	require.NoError(t, err)
	require.Equal(t, "new", updated.ClientName)
	f.orders.AssertExpectations(t)
}

func TestUpdateOnDeletedOrderConflicts(t *testing.T) {
	f := newFixture()
	order := &entity.JobOrder{ID: 4, IsDeleted: true, CreatedAt: f.now}
	f.orders.On("GetByID", mock.Anything, int64(4)).Return(order, nil)

	_, err := f.svc.Update(context.Background(), 4, UpdateInput{}, editor())

	require.Error(t, err)
	require.Equal(t, errorbank.KindConflict, errorbank.From(err).Kind())
}

func TestUpdateRecordsFieldDiffAndReplacesItems(t *testing.T) {
	f := newFixture()
	order := &entity.JobOrder{
		ID:         5,
		JobNumber:  "JO-500",
		ClientName: "Harbourline",
		CreatedAt:  f.now.Add(-time.Hour),
		Items:      []*entity.JobOrderItem{{ID: 41}, {ID: 42}},
	}
	f.orders.On("GetByID", mock.Anything, int64(5)).Return(order, nil)
	f.releases.On("CountByItemIDs", mock.Anything, []int64{41, 42}).Return(0, nil)
	f.invoices.On("CountItemsByJobOrderItems", mock.Anything, []int64{41, 42}).Return(0, nil)
	f.orders.On("Update", mock.Anything, order).Return(nil)
	f.orders.On("ReplaceItems", mock.Anything, int64(5), mock.Anything).Return(nil)

	var history *entity.JobOrderEditHistory
	f.orders.On("InsertEditHistory", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		history = args.Get(1).(*entity.JobOrderEditHistory)
	}).Return(nil)

	items := []ItemInput{itemInput("fabricate frame rev B", 10, 60)}
	_, err := f.svc.Update(context.Background(), 5, UpdateInput{
		ClientName: "Harbourline Marine",
		Items:      &items,
	}, editor())

	require.NoError(t, err)
	require.NotNil(t, history)
	require.True(t, history.ItemsReplaced)
	require.Contains(t, history.Changes, "clientName")
	require.Equal(t, "Harbourline", history.Changes["clientName"].From)
	require.Equal(t, "Harbourline Marine", history.Changes["clientName"].To)
	require.Equal(t, "planner@fabworks.test", history.EditedBy)
}

func TestUpdateBlocksItemReplaceWithConsumedItems(t *testing.T) {
	f := newFixture()
	order := &entity.JobOrder{
		ID:        6,
		CreatedAt: f.now.Add(-time.Hour),
		Items:     []*entity.JobOrderItem{{ID: 51}},
	}
	f.orders.On("GetByID", mock.Anything, int64(6)).Return(order, nil)
	f.releases.On("CountByItemIDs", mock.Anything, []int64{51}).Return(2, nil)

	items := []ItemInput{itemInput("replacement line", 3, 10)}
	_, err := f.svc.Update(context.Background(), 6, UpdateInput{Items: &items}, editor())

	require.Error(t, err)
	require.Equal(t, errorbank.KindConflict, errorbank.From(err).Kind())
	f.orders.AssertNotCalled(t, "ReplaceItems", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteHardWhenNoMaterialRequests(t *testing.T) {
	f := newFixture()
	order := &entity.JobOrder{ID: 8, JobNumber: "JO-800", CreatedAt: f.now.Add(-time.Hour)}
	f.orders.On("GetByID", mock.Anything, int64(8)).Return(order, nil)
	f.materials.On("CountRequestsByJobOrder", mock.Anything, int64(8)).Return(0, nil)
	f.orders.On("HardDelete", mock.Anything, int64(8)).Return(nil)

	require.NoError(t, f.svc.Delete(context.Background(), 8, editor()))

	f.orders.AssertExpectations(t)
	f.orders.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	f.materials.AssertNotCalled(t, "ListReceiptsByJobOrder", mock.Anything, mock.Anything)
}

func TestDeleteSoftAnnotatesCascadeWithoutMutatingStatuses(t *testing.T) {
	f := newFixture()
	order := &entity.JobOrder{ID: 9, JobNumber: "JO-900", CreatedAt: f.now.Add(-time.Hour)}
	f.orders.On("GetByID", mock.Anything, int64(9)).Return(order, nil)
	f.materials.On("CountRequestsByJobOrder", mock.Anything, int64(9)).Return(2, nil)
	f.orders.On("Update", mock.Anything, order).Return(nil)

	receipts := []*entity.MaterialReceipt{
		{ID: 1, Notes: ""},
		{ID: 2, Notes: "received short, 2 pieces backordered"},
		{ID: 3, Notes: ""},
	}
	f.materials.On("ListReceiptsByJobOrder", mock.Anything, int64(9)).Return(receipts, nil)
	var annotated []*entity.MaterialReceipt
	f.materials.On("UpdateReceiptNotes", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		annotated = append(annotated, args.Get(1).(*entity.MaterialReceipt))
	}).Return(nil)

	requests := []*entity.MaterialRequest{
		{ID: 11, Status: "APPROVED"},
		{ID: 12, Status: "ORDERED"},
	}
	f.materials.On("ListRequestsByJobOrder", mock.Anything, int64(9)).Return(requests, nil)
	var audits []*entity.MaterialRequestStatusHistory
	f.materials.On("InsertStatusHistory", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		audits = append(audits, args.Get(1).(*entity.MaterialRequestStatusHistory))
	}).Return(nil)

	require.NoError(t, f.svc.Delete(context.Background(), 9, editor()))

	require.True(t, order.IsDeleted)
	require.NotNil(t, order.DeletedAt)
	require.Equal(t, "planner@fabworks.test", order.DeletedBy)

	note := cascadeNote("JO-900", f.now)
	require.Len(t, annotated, 3)
	require.Equal(t, note, annotated[0].Notes)
	require.Equal(t, "received short, 2 pieces backordered\n"+note, annotated[1].Notes)

	require.Len(t, audits, 2)
	for _, audit := range audits {
		require.Equal(t, audit.OldStatus, audit.NewStatus)
		require.Equal(t, actor.System, audit.ChangedBy)
		require.Equal(t, note, audit.Note)
	}
	require.Equal(t, "APPROVED", audits[0].OldStatus)
	require.Equal(t, "ORDERED", audits[1].OldStatus)
}

func TestDeleteAlreadyDeletedIsIdempotent(t *testing.T) {
	f := newFixture()
	deletedAt := f.now.Add(-time.Hour)
	order := &entity.JobOrder{ID: 10, IsDeleted: true, DeletedAt: &deletedAt, CreatedAt: f.now.Add(-2 * time.Hour)}
	f.orders.On("GetByID", mock.Anything, int64(10)).Return(order, nil)

	require.NoError(t, f.svc.Delete(context.Background(), 10, editor()))

	f.materials.AssertNotCalled(t, "CountRequestsByJobOrder", mock.Anything, mock.Anything)
	f.materials.AssertNotCalled(t, "UpdateReceiptNotes", mock.Anything, mock.Anything)
	f.materials.AssertNotCalled(t, "InsertStatusHistory", mock.Anything, mock.Anything)
}

func TestBulkDeleteRejectsWholeBatchOnForbiddenTargets(t *testing.T) {
	f := newFixture()
	fresh := &entity.JobOrder{ID: 21, CreatedAt: f.now.Add(-time.Hour)}
	stale := &entity.JobOrder{ID: 22, CreatedAt: f.now.Add(-10 * 24 * time.Hour)}
	f.orders.On("GetByID", mock.Anything, int64(21)).Return(fresh, nil)
	f.orders.On("GetByID", mock.Anything, int64(22)).Return(stale, nil)

	err := f.svc.BulkDelete(context.Background(), []int64{21, 22}, editor())

	require.Error(t, err)
	appErr := errorbank.From(err)
	require.Equal(t, errorbank.KindForbidden, appErr.Kind())
	require.Equal(t, []int64{22}, appErr.Details()["forbidden_ids"])
	f.orders.AssertNotCalled(t, "HardDelete", mock.Anything, mock.Anything)
	f.orders.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestBulkDeleteSkipsAlreadyDeletedTargets(t *testing.T) {
	f := newFixture()
	active := &entity.JobOrder{ID: 31, JobNumber: "JO-310", CreatedAt: f.now.Add(-time.Hour)}
	gone := &entity.JobOrder{ID: 32, IsDeleted: true, CreatedAt: f.now.Add(-10 * 24 * time.Hour)}
	f.orders.On("GetByID", mock.Anything, int64(31)).Return(active, nil)
	f.orders.On("GetByID", mock.Anything, int64(32)).Return(gone, nil)
	f.materials.On("CountRequestsByJobOrder", mock.Anything, int64(31)).Return(0, nil)
	f.orders.On("HardDelete", mock.Anything, int64(31)).Return(nil)

	require.NoError(t, f.svc.BulkDelete(context.Background(), []int64{31, 32}, editor()))

	f.orders.AssertExpectations(t)
}

func TestRestoreClearsSoftDeleteFields(t *testing.T) {
	f := newFixture()
	deletedAt := f.now.Add(-time.Hour)
	order := &entity.JobOrder{
		ID:        41,
		IsDeleted: true,
		DeletedAt: &deletedAt,
		DeletedBy: "someone@fabworks.test",
		CreatedAt: f.now.Add(-2 * time.Hour),
	}
	f.orders.On("GetByID", mock.Anything, int64(41)).Return(order, nil)
	f.orders.On("Update", mock.Anything, order).Return(nil)

	restored, err := f.svc.Restore(context.Background(), 41, editor())

	require.NoError(t, err)
	require.False(t, restored.IsDeleted)
	require.Nil(t, restored.DeletedAt)
	require.Empty(t, restored.DeletedBy)
	require.Equal(t, "planner@fabworks.test", restored.LastEditedBy)
}

func TestRestoreOnActiveOrderConflicts(t *testing.T) {
	f := newFixture()
	order := &entity.JobOrder{ID: 42, CreatedAt: f.now}
	f.orders.On("GetByID", mock.Anything, int64(42)).Return(order, nil)

	_, err := f.svc.Restore(context.Background(), 42, editor())

	require.Error(t, err)
	require.Equal(t, errorbank.KindConflict, errorbank.From(err).Kind())
}

func TestCreateRequiresWorkDescription(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Create(context.Background(), CreateInput{
		JobNumber: "JO-600",
		Items:     []ItemInput{{Unit: "EA"}},
	}, editor())

	require.Error(t, err)
	require.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())
}
