package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	stdsync "sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/application/reconcile"
	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/domain/erp"
	"github.com/storefront/backend/internal/domain/shared"
	domainsync "github.com/storefront/backend/internal/domain/sync"
	"github.com/storefront/backend/internal/interfaces/http/dto"
)

type stubGateway struct {
	records []erp.ExternalRecord
}

func (s *stubGateway) FetchPage(context.Context, erp.RecordKind, erp.PageRequest) (erp.Page, error) {
	return erp.Page{Records: s.records}, nil
}

func (s *stubGateway) PushRecord(context.Context, erp.RecordKind, any, string) (string, error) {
	return "", shared.ErrInvalidState
}

func (s *stubGateway) TestConnection(context.Context) error { return nil }

type stubProductRepo struct {
	saved []*catalog.Product
}

func (s *stubProductRepo) FindByID(context.Context, uuid.UUID) (*catalog.Product, error) {
	return nil, shared.ErrNotFound
}
func (s *stubProductRepo) FindByExternalID(context.Context, string) (*catalog.Product, error) {
	return nil, shared.ErrNotFound
}
func (s *stubProductRepo) Save(_ context.Context, p *catalog.Product) error {
	s.saved = append(s.saved, p)
	return nil
}

type stubCustomerRepo struct{}

func (stubCustomerRepo) FindByID(context.Context, uuid.UUID) (*catalog.Customer, error) {
	return nil, shared.ErrNotFound
}
func (stubCustomerRepo) FindByExternalID(context.Context, string) (*catalog.Customer, error) {
	return nil, shared.ErrNotFound
}
func (stubCustomerRepo) FindByEmail(context.Context, string) (*catalog.Customer, error) {
	return nil, shared.ErrNotFound
}
func (stubCustomerRepo) Save(context.Context, *catalog.Customer) error { return nil }

type recordingRunRepo struct {
	stubRunRepo
	runs []*domainsync.SyncRun
}

func (r *recordingRunRepo) Save(_ context.Context, run *domainsync.SyncRun) error {
	r.runs = append(r.runs, run)
	return nil
}

func (r *recordingRunRepo) List(context.Context, int, int) ([]*domainsync.SyncRun, int64, error) {
	return r.runs, int64(len(r.runs)), nil
}

func newSyncTestServer(t *testing.T, gateway erp.Gateway) (*gin.Engine, *reconcile.Reconciler, *recordingRunRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	runs := &recordingRunRepo{}
	rec := reconcile.NewReconciler(gateway, &stubProductRepo{}, stubCustomerRepo{}, runs,
		reconcile.DefaultConfig(), zap.NewNop())

	engine := gin.New()
	h := NewSyncHandler(rec, runs, zap.NewNop())
	h.RegisterRoutes(engine.Group("/api/v1"))
	return engine, rec, runs
}

func itemRecord(id string) erp.ExternalRecord {
	return erp.ExternalRecord{
		ExternalID: id,
		Kind:       erp.KindItem,
		ModifiedAt: time.Now(),
		Item: &erp.ItemFields{
			Code:     "SKU-" + id,
			Name:     "Item " + id,
			Price:    decimal.NewFromInt(10),
			Stock:    decimal.NewFromInt(5),
			Category: "default",
		},
	}
}

func TestSyncHandler_TriggerSync(t *testing.T) {
	t.Run("runs a manual item sync and returns the summary", func(t *testing.T) {
		gateway := &stubGateway{records: []erp.ExternalRecord{itemRecord("A"), itemRecord("B")}}
		engine, _, _ := newSyncTestServer(t, gateway)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/items", nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.True(t, resp.Success)

		data, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		var run SyncRunResponse
		require.NoError(t, json.Unmarshal(data, &run))

		assert.Equal(t, "ITEM", run.Kind)
		assert.Equal(t, string(domainsync.RunStatusCompleted), run.Status)
		assert.Equal(t, string(domainsync.TriggerManual), run.Trigger)
		assert.Equal(t, 2, run.Created)
	})

	t.Run("unknown kind is 400", func(t *testing.T) {
		engine, _, _ := newSyncTestServer(t, &stubGateway{})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/payroll", nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("concurrent run of the same kind is 409", func(t *testing.T) {
		blocker := make(chan struct{})
		gateway := &blockingGateway{
			fetching: make(chan struct{}),
			release:  blocker,
		}
		engine, _, _ := newSyncTestServer(t, gateway)

		started := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/items", nil)
			w := httptest.NewRecorder()
			close(started)
			engine.ServeHTTP(w, req)
		}()

		<-started
		<-gateway.fetching

		req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/items", nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusConflict, w.Code)

		close(blocker)
		<-done
	})
}

type blockingGateway struct {
	stubGateway
	fetchOnce stdsync.Once
	fetching  chan struct{}
	release   chan struct{}
}

func (b *blockingGateway) FetchPage(ctx context.Context, kind erp.RecordKind, req erp.PageRequest) (erp.Page, error) {
	b.fetchOnce.Do(func() {
		close(b.fetching)
	})
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return erp.Page{}, nil
}

func TestSyncHandler_ListRuns(t *testing.T) {
	gateway := &stubGateway{records: []erp.ExternalRecord{itemRecord("A")}}
	engine, _, runs := newSyncTestServer(t, gateway)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/items", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, runs.runs, 1)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/sync/runs", nil)
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(1), resp.Meta.Total)
}
