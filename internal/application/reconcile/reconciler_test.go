package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/domain/erp"
	"github.com/storefront/backend/internal/domain/shared"
	domainsync "github.com/storefront/backend/internal/domain/sync"
)

// MockProductRepository is a mock implementation of catalog.ProductRepository
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockProductRepository) FindByExternalID(ctx context.Context, externalID string) (*catalog.Product, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockProductRepository) Save(ctx context.Context, product *catalog.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

// MockCustomerRepository is a mock implementation of catalog.CustomerRepository
type MockCustomerRepository struct {
	mock.Mock
}

func (m *MockCustomerRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Customer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Customer), args.Error(1)
}

func (m *MockCustomerRepository) FindByExternalID(ctx context.Context, externalID string) (*catalog.Customer, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Customer), args.Error(1)
}

func (m *MockCustomerRepository) FindByEmail(ctx context.Context, email string) (*catalog.Customer, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Customer), args.Error(1)
}

func (m *MockCustomerRepository) Save(ctx context.Context, customer *catalog.Customer) error {
	args := m.Called(ctx, customer)
	return args.Error(0)
}

// MockRunRepository is a mock implementation of sync.RunRepository
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) Save(ctx context.Context, run *domainsync.SyncRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunRepository) Update(ctx context.Context, run *domainsync.SyncRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*domainsync.SyncRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domainsync.SyncRun), args.Error(1)
}

func (m *MockRunRepository) List(ctx context.Context, page, pageSize int) ([]*domainsync.SyncRun, int64, error) {
	args := m.Called(ctx, page, pageSize)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*domainsync.SyncRun), args.Get(1).(int64), args.Error(2)
}

func (m *MockRunRepository) LastCompleted(ctx context.Context, kind erp.RecordKind) (*domainsync.SyncRun, error) {
	args := m.Called(ctx, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domainsync.SyncRun), args.Error(1)
}

// fakeGateway serves a scripted sequence of pages or errors
type fakeGateway struct {
	responses []fakeResponse
	calls     int
}

type fakeResponse struct {
	page erp.Page
	err  error
}

func (g *fakeGateway) FetchPage(_ context.Context, _ erp.RecordKind, _ erp.PageRequest) (erp.Page, error) {
	if g.calls >= len(g.responses) {
		return erp.Page{}, fmt.Errorf("unexpected fetch call %d", g.calls)
	}
	resp := g.responses[g.calls]
	g.calls++
	return resp.page, resp.err
}

func (g *fakeGateway) PushRecord(context.Context, erp.RecordKind, any, string) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (g *fakeGateway) TestConnection(context.Context) error { return nil }

func itemRecord(externalID string, price float64) erp.ExternalRecord {
	return erp.ExternalRecord{
		ExternalID: externalID,
		Kind:       erp.KindItem,
		ModifiedAt: time.Now(),
		Item: &erp.ItemFields{
			Code:     "CODE-" + externalID,
			Name:     "Widget " + externalID,
			Price:    decimal.NewFromFloat(price),
			Stock:    decimal.NewFromInt(10),
			Category: "Fasteners",
		},
	}
}

func newTestReconciler(gateway erp.Gateway, products *MockProductRepository, customers *MockCustomerRepository, runs *MockRunRepository) *Reconciler {
	cfg := DefaultConfig()
	cfg.RateLimitBackoff = time.Millisecond
	return NewReconciler(gateway, products, customers, runs, cfg, zap.NewNop())
}

func TestReconcileCreatesNewProducts(t *testing.T) {
	products := new(MockProductRepository)
	customers := new(MockCustomerRepository)
	runs := new(MockRunRepository)
	gateway := &fakeGateway{responses: []fakeResponse{
		{page: erp.Page{Records: []erp.ExternalRecord{itemRecord("ITEM-1", 9.50)}}},
	}}

	runs.On("Save", mock.Anything, mock.Anything).Return(nil)
	runs.On("Update", mock.Anything, mock.Anything).Return(nil)
	products.On("FindByExternalID", mock.Anything, "ITEM-1").Return(nil, shared.ErrNotFound)
	products.On("Save", mock.Anything, mock.AnythingOfType("*catalog.Product")).Return(nil)

	r := newTestReconciler(gateway, products, customers, runs)
	run, err := r.Reconcile(context.Background(), erp.KindItem, Options{Trigger: domainsync.TriggerManual})

	require.NoError(t, err)
	assert.Equal(t, domainsync.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, run.Created)
	assert.Equal(t, 0, run.Updated)
	products.AssertExpectations(t)
}

func TestReconcileIdempotentMerge(t *testing.T) {
	record := itemRecord("ITEM-1", 9.50)
	existing := catalog.NewProductFromRemote("ITEM-1", *record.Item, false, time.Now())

	products := new(MockProductRepository)
	customers := new(MockCustomerRepository)
	runs := new(MockRunRepository)
	gateway := &fakeGateway{responses: []fakeResponse{
		{page: erp.Page{Records: []erp.ExternalRecord{record}}},
	}}

	runs.On("Save", mock.Anything, mock.Anything).Return(nil)
	runs.On("Update", mock.Anything, mock.Anything).Return(nil)
	products.On("FindByExternalID", mock.Anything, "ITEM-1").Return(existing, nil)

	r := newTestReconciler(gateway, products, customers, runs)
	run, err := r.Reconcile(context.Background(), erp.KindItem, Options{Trigger: domainsync.TriggerScheduler})

	require.NoError(t, err)
	assert.Equal(t, 0, run.Created)
	assert.Equal(t, 0, run.Updated)
	assert.Equal(t, 1, run.Skipped)
	products.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestReconcilePreservesLocalFields(t *testing.T) {
	record := itemRecord("ITEM-1", 9.50)
	existing := catalog.NewProductFromRemote("ITEM-1", *record.Item, false, time.Now())
	existing.Featured = true
	existing.Highlight = "staff pick"

	changed := itemRecord("ITEM-1", 12.00)

	products := new(MockProductRepository)
	customers := new(MockCustomerRepository)
	runs := new(MockRunRepository)
	gateway := &fakeGateway{responses: []fakeResponse{
		{page: erp.Page{Records: []erp.ExternalRecord{changed}}},
	}}

	runs.On("Save", mock.Anything, mock.Anything).Return(nil)
	runs.On("Update", mock.Anything, mock.Anything).Return(nil)
	products.On("FindByExternalID", mock.Anything, "ITEM-1").Return(existing, nil)

	var saved *catalog.Product
	products.On("Save", mock.Anything, mock.AnythingOfType("*catalog.Product")).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*catalog.Product) }).
		Return(nil)

	r := newTestReconciler(gateway, products, customers, runs)
	run, err := r.Reconcile(context.Background(), erp.KindItem, Options{Trigger: domainsync.TriggerScheduler})

	require.NoError(t, err)
	assert.Equal(t, 1, run.Updated)
	require.NotNil(t, saved)
	assert.True(t, saved.Price.Equal(decimal.NewFromFloat(12.00)))
	assert.True(t, saved.Featured, "local-owned flag must survive the merge")
	assert.Equal(t, "staff pick", saved.Highlight)
}

func TestReconcileDelistsInactiveRecords(t *testing.T) {
	record := itemRecord("ITEM-1", 9.50)
	existing := catalog.NewProductFromRemote("ITEM-1", *record.Item, false, time.Now())

	inactive := itemRecord("ITEM-1", 9.50)
	inactive.Inactive = true

	products := new(MockProductRepository)
	customers := new(MockCustomerRepository)
	runs := new(MockRunRepository)
	gateway := &fakeGateway{responses: []fakeResponse{
		{page: erp.Page{Records: []erp.ExternalRecord{inactive}}},
	}}

	runs.On("Save", mock.Anything, mock.Anything).Return(nil)
	runs.On("Update", mock.Anything, mock.Anything).Return(nil)
	products.On("FindByExternalID", mock.Anything, "ITEM-1").Return(existing, nil)

	var saved *catalog.Product
	products.On("Save", mock.Anything, mock.AnythingOfType("*catalog.Product")).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*catalog.Product) }).
		Return(nil)

	r := newTestReconciler(gateway, products, customers, runs)
	run, err := r.Reconcile(context.Background(), erp.KindItem, Options{Trigger: domainsync.TriggerScheduler})

	require.NoError(t, err)
	assert.Equal(t, 1, run.Updated, "delisting counts as an update, never a delete")
	require.NotNil(t, saved)
	assert.True(t, saved.Delisted)
}

func TestReconcilePartialFailure(t *testing.T) {
	records := make([]erp.ExternalRecord, 0, 100)
	for i := 0; i < 99; i++ {
		records = append(records, itemRecord(fmt.Sprintf("ITEM-%d", i), 1.0))
	}
	// One malformed record in the middle: no item payload
	records = append(records[:50], append([]erp.ExternalRecord{{ExternalID: "ITEM-BAD", Kind: erp.KindItem}}, records[50:]...)...)

	products := new(MockProductRepository)
	customers := new(MockCustomerRepository)
	runs := new(MockRunRepository)
	gateway := &fakeGateway{responses: []fakeResponse{
		{page: erp.Page{Records: records}},
	}}

	runs.On("Save", mock.Anything, mock.Anything).Return(nil)
	runs.On("Update", mock.Anything, mock.Anything).Return(nil)
	products.On("FindByExternalID", mock.Anything, mock.AnythingOfType("string")).Return(nil, shared.ErrNotFound)
	products.On("Save", mock.Anything, mock.AnythingOfType("*catalog.Product")).Return(nil)

	r := newTestReconciler(gateway, products, customers, runs)
	run, err := r.Reconcile(context.Background(), erp.KindItem, Options{Trigger: domainsync.TriggerScheduler})

	require.NoError(t, err, "one malformed record must not abort the run")
	assert.Equal(t, domainsync.RunStatusCompleted, run.Status)
	assert.Equal(t, 99, run.Created)
	assert.Equal(t, 1, run.Errored)
	require.Len(t, run.Errors, 1)
	assert.Equal(t, "ITEM-BAD", run.Errors[0].ExternalID)
}

func TestReconcileAbortsOnAuthFailure(t *testing.T) {
	products := new(MockProductRepository)
	customers := new(MockCustomerRepository)
	runs := new(MockRunRepository)
	gateway := &fakeGateway{responses: []fakeResponse{
		{err: erp.ErrAuth},
	}}

	runs.On("Save", mock.Anything, mock.Anything).Return(nil)
	runs.On("Update", mock.Anything, mock.Anything).Return(nil)

	r := newTestReconciler(gateway, products, customers, runs)
	run, err := r.Reconcile(context.Background(), erp.KindItem, Options{Trigger: domainsync.TriggerScheduler})

	require.Error(t, err)
	assert.True(t, erp.IsAuth(err))
	require.NotNil(t, run)
	assert.Equal(t, domainsync.RunStatusFailed, run.Status)
	assert.NotEmpty(t, run.FailureReason)
}

func TestReconcileRetriesAfterRateLimit(t *testing.T) {
	products := new(MockProductRepository)
	customers := new(MockCustomerRepository)
	runs := new(MockRunRepository)
	gateway := &fakeGateway{responses: []fakeResponse{
		{err: &erp.RateLimitError{RetryAfter: time.Millisecond}},
		{page: erp.Page{Records: []erp.ExternalRecord{itemRecord("ITEM-1", 2.0)}}},
	}}

	runs.On("Save", mock.Anything, mock.Anything).Return(nil)
	runs.On("Update", mock.Anything, mock.Anything).Return(nil)
	products.On("FindByExternalID", mock.Anything, "ITEM-1").Return(nil, shared.ErrNotFound)
	products.On("Save", mock.Anything, mock.Anything).Return(nil)

	r := newTestReconciler(gateway, products, customers, runs)
	run, err := r.Reconcile(context.Background(), erp.KindItem, Options{Trigger: domainsync.TriggerScheduler})

	require.NoError(t, err)
	assert.Equal(t, 1, run.Created)
	assert.Equal(t, 2, gateway.calls)
}

func TestReconcileRateLimitBudgetExhausted(t *testing.T) {
	responses := make([]fakeResponse, 0, 5)
	for i := 0; i < 5; i++ {
		responses = append(responses, fakeResponse{err: &erp.RateLimitError{RetryAfter: time.Millisecond}})
	}

	products := new(MockProductRepository)
	customers := new(MockCustomerRepository)
	runs := new(MockRunRepository)
	gateway := &fakeGateway{responses: responses}

	runs.On("Save", mock.Anything, mock.Anything).Return(nil)
	runs.On("Update", mock.Anything, mock.Anything).Return(nil)

	r := newTestReconciler(gateway, products, customers, runs)
	run, err := r.Reconcile(context.Background(), erp.KindItem, Options{Trigger: domainsync.TriggerScheduler})

	require.Error(t, err)
	assert.Equal(t, domainsync.RunStatusFailed, run.Status)
}

func TestReconcileSameKindMutualExclusion(t *testing.T) {
	products := new(MockProductRepository)
	customers := new(MockCustomerRepository)
	runs := new(MockRunRepository)
	r := newTestReconciler(&fakeGateway{}, products, customers, runs)

	require.True(t, r.tryAcquire(erp.KindItem))
	defer r.release(erp.KindItem)

	_, err := r.Reconcile(context.Background(), erp.KindItem, Options{Trigger: domainsync.TriggerManual})
	assert.ErrorIs(t, err, shared.ErrRunInProgress)

	// A different kind is not blocked
	gateway := &fakeGateway{responses: []fakeResponse{{page: erp.Page{}}}}
	r2 := newTestReconciler(gateway, products, customers, runs)
	runs.On("Save", mock.Anything, mock.Anything).Return(nil)
	runs.On("Update", mock.Anything, mock.Anything).Return(nil)
	require.True(t, r2.tryAcquire(erp.KindItem))
	_, err = r2.Reconcile(context.Background(), erp.KindContact, Options{Trigger: domainsync.TriggerManual})
	assert.NoError(t, err)
}

func TestReconcileBindsUnlinkedCustomerByEmail(t *testing.T) {
	local := catalog.NewCustomer("Acme Fasteners", "orders@acme.test", "555-0100")
	local.Approved = true

	record := erp.ExternalRecord{
		ExternalID: "CONT-7",
		Kind:       erp.KindContact,
		Contact: &erp.ContactFields{
			CompanyName: "Acme Fasteners Pty Ltd",
			Email:       "orders@acme.test",
			PriceListID: "WHOLESALE",
		},
	}

	products := new(MockProductRepository)
	customers := new(MockCustomerRepository)
	runs := new(MockRunRepository)
	gateway := &fakeGateway{responses: []fakeResponse{
		{page: erp.Page{Records: []erp.ExternalRecord{record}}},
	}}

	runs.On("Save", mock.Anything, mock.Anything).Return(nil)
	runs.On("Update", mock.Anything, mock.Anything).Return(nil)
	customers.On("FindByExternalID", mock.Anything, "CONT-7").Return(nil, shared.ErrNotFound)
	customers.On("FindByEmail", mock.Anything, "orders@acme.test").Return(local, nil)

	var saved *catalog.Customer
	customers.On("Save", mock.Anything, mock.AnythingOfType("*catalog.Customer")).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*catalog.Customer) }).
		Return(nil)

	r := newTestReconciler(gateway, products, customers, runs)
	run, err := r.Reconcile(context.Background(), erp.KindContact, Options{Trigger: domainsync.TriggerScheduler})

	require.NoError(t, err)
	assert.Equal(t, 1, run.Updated)
	assert.Equal(t, 0, run.Created, "email match binds instead of duplicating")
	require.NotNil(t, saved)
	require.NotNil(t, saved.ExternalID)
	assert.Equal(t, "CONT-7", *saved.ExternalID)
	assert.True(t, saved.Approved, "local approval survives the bind")
	assert.Equal(t, "WHOLESALE", saved.PriceListID)
}

func TestReconcileRejectsInvoiceKind(t *testing.T) {
	r := newTestReconciler(&fakeGateway{}, new(MockProductRepository), new(MockCustomerRepository), new(MockRunRepository))
	_, err := r.Reconcile(context.Background(), erp.KindInvoice, Options{})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}
