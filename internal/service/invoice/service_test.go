package invoice

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fabworks/foundry/internal/entity"
	invoicerepo "github.com/fabworks/foundry/internal/repository/invoice"
	"github.com/fabworks/foundry/pkg/errorbank"
)

type mockInvoices struct {
	mock.Mock
}

func (m *mockInvoices) GetByID(ctx context.Context, id int64) (*entity.Invoice, error) {
	args := m.Called(ctx, id)
	if inv, ok := args.Get(0).(*entity.Invoice); ok {
		return inv, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockInvoices) FindByNumber(ctx context.Context, invoiceNumber string) (*entity.Invoice, error) {
	args := m.Called(ctx, invoiceNumber)
	if inv, ok := args.Get(0).(*entity.Invoice); ok {
		return inv, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockInvoices) Create(ctx context.Context, inv *entity.Invoice) error {
	args := m.Called(ctx, inv)
	return args.Error(0)
}

func (m *mockInvoices) Update(ctx context.Context, inv *entity.Invoice) error {
	args := m.Called(ctx, inv)
	return args.Error(0)
}

func (m *mockInvoices) ReplaceItems(ctx context.Context, invoiceID int64, items []*entity.InvoiceItem) error {
	args := m.Called(ctx, invoiceID, items)
	return args.Error(0)
}

func (m *mockInvoices) ListItemsForJobOrderItem(ctx context.Context, jobOrderItemID int64) ([]*entity.InvoiceItem, error) {
	args := m.Called(ctx, jobOrderItemID)
	if items, ok := args.Get(0).([]*entity.InvoiceItem); ok {
		return items, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockOrders struct {
	mock.Mock
}

func (m *mockOrders) GetByID(ctx context.Context, id int64) (*entity.JobOrder, error) {
	args := m.Called(ctx, id)
	if order, ok := args.Get(0).(*entity.JobOrder); ok {
		return order, args.Error(1)
	}
	return nil, args.Error(1)
}

type passTx struct{}

func (passTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fixture struct {
	svc      *Service
	invoices *mockInvoices
	orders   *mockOrders
}

func newFixture() *fixture {
	f := &fixture{
		invoices: new(mockInvoices),
		orders:   new(mockOrders),
	}
	f.svc = &Service{
		invoices: f.invoices,
		orders:   f.orders,
		tx:       passTx{},
		logger:   zap.NewNop(),
		now:      func() time.Time { return time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC) },
	}
	return f
}

func orderWithItem(itemID int64, qty int64, price int64) *entity.JobOrder {
	return &entity.JobOrder{
		ID:        1,
		JobNumber: "JO-100",
		Items: []*entity.JobOrderItem{
			{
				ID:         itemID,
				JobOrderID: 1,
				Quantity:   decimal.NewNullDecimal(decimal.NewFromInt(qty)),
				UnitPrice:  decimal.NewFromInt(price),
			},
		},
	}
}

func invoiced(qtys ...int64) []*entity.InvoiceItem {
	out := make([]*entity.InvoiceItem, 0, len(qtys))
	for i, qty := range qtys {
		out = append(out, &entity.InvoiceItem{ID: int64(i + 1), Quantity: decimal.NewFromInt(qty)})
	}
	return out
}

func ptr(v int64) *int64 { return &v }

func TestCreateComputesTotals(t *testing.T) {
	f := newFixture()
	f.invoices.On("FindByNumber", mock.Anything, "INV-100").Return(nil, invoicerepo.ErrNotFound)
	f.invoices.On("Create", mock.Anything, mock.Anything).Return(nil)

	inv, err := f.svc.Create(context.Background(), CreateInput{
		InvoiceNumber: "INV-100",
		ClientID:      5,
		TaxRate:       decimal.NewFromInt(10),
		Discount:      decimal.NewFromInt(50),
		PaidAmount:    decimal.NewFromInt(100),
		Items: []LineInput{
			{Description: "crane hire", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(300)},
			{Description: "freight", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(150)},
		},
	})

	require.NoError(t, err)
	require.Equal(t, entity.InvoiceStatusDraft, inv.Status)
	require.Equal(t, "750", inv.Subtotal.String())
	require.Equal(t, "70", inv.TaxAmount.String())
	require.Equal(t, "770", inv.TotalAmount.String())
	require.Equal(t, "670", inv.BalanceAmount.String())
}

func TestCreateTotalsAreDeterministic(t *testing.T) {
	f := newFixture()
	f.invoices.On("FindByNumber", mock.Anything, mock.Anything).Return(nil, invoicerepo.ErrNotFound)
	f.invoices.On("Create", mock.Anything, mock.Anything).Return(nil)

	in := CreateInput{
		ClientID: 5,
		TaxRate:  decimal.NewFromFloat(7.5),
		Items: []LineInput{
			{Description: "machining", Quantity: decimal.NewFromInt(3), UnitPrice: decimal.NewFromFloat(19.99)},
		},
	}

	in.InvoiceNumber = "INV-101"
	first, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)
	in.InvoiceNumber = "INV-102"
	second, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)

	require.True(t, first.Subtotal.Equal(second.Subtotal))
	require.True(t, first.TaxAmount.Equal(second.TaxAmount))
	require.True(t, first.TotalAmount.Equal(second.TotalAmount))
}

func TestCreateRejectsDuplicateNumber(t *testing.T) {
	f := newFixture()
	f.invoices.On("FindByNumber", mock.Anything, "INV-100").Return(&entity.Invoice{ID: 1}, nil)

	_, err := f.svc.Create(context.Background(), CreateInput{
		InvoiceNumber: "INV-100",
		ClientID:      5,
		Items:         []LineInput{{Description: "freight", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(10)}},
	})

	require.Error(t, err)
	require.Equal(t, errorbank.KindConflict, errorbank.From(err).Kind())
	f.invoices.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateRejectsQuantityBeyondInvoicedSiblings(t *testing.T) {
	f := newFixture()
	f.invoices.On("FindByNumber", mock.Anything, "INV-200").Return(nil, invoicerepo.ErrNotFound)
	f.orders.On("GetByID", mock.Anything, int64(1)).Return(orderWithItem(10, 100, 25), nil)
	f.invoices.On("ListItemsForJobOrderItem", mock.Anything, int64(10)).Return(invoiced(80), nil)

	_, err := f.svc.Create(context.Background(), CreateInput{
		InvoiceNumber: "INV-200",
		JobOrderID:    ptr(1),
		ClientID:      5,
		Items: []LineInput{
			{JobOrderItemID: ptr(10), Description: "frames", Quantity: decimal.NewFromInt(30), UnitPrice: decimal.NewFromInt(25)},
		},
	})

	require.Error(t, err)
	appErr := errorbank.From(err)
	require.Equal(t, errorbank.KindQuantityExceeded, appErr.Kind())
	require.Equal(t, "30", appErr.Details()["requested"])
	require.Equal(t, "20", appErr.Details()["available"])
	f.invoices.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateRejectsLineValueBeyondOrderedValue(t *testing.T) {
	f := newFixture()
	f.invoices.On("FindByNumber", mock.Anything, "INV-201").Return(nil, invoicerepo.ErrNotFound)
	// Ordered value is 10 * 25 = 250; quantity fits but the line price pushes
	// the line value to 251.
	f.orders.On("GetByID", mock.Anything, int64(1)).Return(orderWithItem(10, 10, 25), nil)
	f.invoices.On("ListItemsForJobOrderItem", mock.Anything, int64(10)).Return(invoiced(), nil)

	_, err := f.svc.Create(context.Background(), CreateInput{
		InvoiceNumber: "INV-201",
		JobOrderID:    ptr(1),
		ClientID:      5,
		Items: []LineInput{
			{JobOrderItemID: ptr(10), Description: "frames", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(251)},
		},
	})

	require.Error(t, err)
	require.Equal(t, errorbank.KindValueExceeded, errorbank.From(err).Kind())
}

func TestCreateSumsLinesOfSameRequestBeforePersist(t *testing.T) {
	f := newFixture()
	f.invoices.On("FindByNumber", mock.Anything, "INV-202").Return(nil, invoicerepo.ErrNotFound)
	f.orders.On("GetByID", mock.Anything, int64(1)).Return(orderWithItem(10, 100, 25), nil)
	f.invoices.On("ListItemsForJobOrderItem", mock.Anything, int64(10)).Return(invoiced(60), nil)

	_, err := f.svc.Create(context.Background(), CreateInput{
		InvoiceNumber: "INV-202",
		JobOrderID:    ptr(1),
		ClientID:      5,
		Items: []LineInput{
			{JobOrderItemID: ptr(10), Description: "frames, lot 1", Quantity: decimal.NewFromInt(25), UnitPrice: decimal.NewFromInt(25)},
			{JobOrderItemID: ptr(10), Description: "frames, lot 2", Quantity: decimal.NewFromInt(25), UnitPrice: decimal.NewFromInt(25)},
		},
	})

	require.Error(t, err)
	require.Equal(t, errorbank.KindQuantityExceeded, errorbank.From(err).Kind())
	f.invoices.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateRequiresJobOrderForLinkedLines(t *testing.T) {
	f := newFixture()
	f.invoices.On("FindByNumber", mock.Anything, "INV-203").Return(nil, invoicerepo.ErrNotFound)

	_, err := f.svc.Create(context.Background(), CreateInput{
		InvoiceNumber: "INV-203",
		ClientID:      5,
		Items: []LineInput{
			{JobOrderItemID: ptr(10), Description: "frames", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(25)},
		},
	})

	require.Error(t, err)
	require.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())
}

func TestCreateRejectsItemOutsideJobOrder(t *testing.T) {
	f := newFixture()
	f.invoices.On("FindByNumber", mock.Anything, "INV-204").Return(nil, invoicerepo.ErrNotFound)
	f.orders.On("GetByID", mock.Anything, int64(1)).Return(orderWithItem(10, 100, 25), nil)

	_, err := f.svc.Create(context.Background(), CreateInput{
		InvoiceNumber: "INV-204",
		JobOrderID:    ptr(1),
		ClientID:      5,
		Items: []LineInput{
			{JobOrderItemID: ptr(99), Description: "frames", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(25)},
		},
	})

	require.Error(t, err)
	require.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}

func TestUpdateRecomputesTotalsWithoutCapRecheck(t *testing.T) {
	f := newFixture()
	existing := &entity.Invoice{
		ID:            3,
		InvoiceNumber: "INV-300",
		Status:        entity.InvoiceStatusDraft,
		Items: []*entity.InvoiceItem{
			{ID: 1, JobOrderItemID: ptr(10), Quantity: decimal.NewFromInt(5), UnitPrice: decimal.NewFromInt(25), TotalPrice: decimal.NewFromInt(125)},
		},
	}
	f.invoices.On("GetByID", mock.Anything, int64(3)).Return(existing, nil)
	f.invoices.On("ReplaceItems", mock.Anything, int64(3), mock.Anything).Return(nil)
	f.invoices.On("Update", mock.Anything, existing).Return(nil)

	items := []LineInput{
		{JobOrderItemID: ptr(10), Description: "frames", Quantity: decimal.NewFromInt(9000), UnitPrice: decimal.NewFromInt(25)},
	}
	inv, err := f.svc.Update(context.Background(), 3, UpdateInput{
		Status: entity.InvoiceStatusSent,
		Items:  &items,
	})

	require.NoError(t, err)
	require.Equal(t, entity.InvoiceStatusSent, inv.Status)
	require.Equal(t, "225000", inv.Subtotal.String())
	f.invoices.AssertNotCalled(t, "ListItemsForJobOrderItem", mock.Anything, mock.Anything)
	f.orders.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestUpdateRejectsUnknownStatus(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Update(context.Background(), 3, UpdateInput{Status: "VOID"})

	require.Error(t, err)
	require.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())
}

func TestGetUnknownInvoice(t *testing.T) {
	f := newFixture()
	f.invoices.On("GetByID", mock.Anything, int64(404)).Return(nil, invoicerepo.ErrNotFound)

	_, err := f.svc.Get(context.Background(), 404)

	require.Error(t, err)
	require.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}
