package scheduler

import (
	"context"
	stdsync "sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/application/reconcile"
	"github.com/storefront/backend/internal/domain/erp"
	"github.com/storefront/backend/internal/domain/shared"
	domainsync "github.com/storefront/backend/internal/domain/sync"
	"github.com/storefront/backend/internal/infrastructure/config"
)

type reconcileCall struct {
	kind erp.RecordKind
	opts reconcile.Options
}

type fakeReconciler struct {
	mu    stdsync.Mutex
	calls []reconcileCall
	err   error
}

func (f *fakeReconciler) Reconcile(_ context.Context, kind erp.RecordKind, opts reconcile.Options) (*domainsync.SyncRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, reconcileCall{kind: kind, opts: opts})
	if f.err != nil {
		return nil, f.err
	}
	run := domainsync.NewSyncRun(kind, opts.Trigger)
	run.Complete()
	return run, nil
}

func (f *fakeReconciler) recorded() []reconcileCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]reconcileCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type fakeDrainer struct {
	mu      stdsync.Mutex
	drains  int
	cleaned int
}

func (f *fakeDrainer) Drain(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drains++
	return 0, nil
}

func (f *fakeDrainer) CleanupCompleted(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned++
	return 0, nil
}

type fakeRunRepo struct {
	lastByKind map[erp.RecordKind]*domainsync.SyncRun
}

func (f *fakeRunRepo) Save(context.Context, *domainsync.SyncRun) error   { return nil }
func (f *fakeRunRepo) Update(context.Context, *domainsync.SyncRun) error { return nil }
func (f *fakeRunRepo) FindByID(context.Context, uuid.UUID) (*domainsync.SyncRun, error) {
	return nil, shared.ErrNotFound
}
func (f *fakeRunRepo) List(context.Context, int, int) ([]*domainsync.SyncRun, int64, error) {
	return nil, 0, nil
}
func (f *fakeRunRepo) LastCompleted(_ context.Context, kind erp.RecordKind) (*domainsync.SyncRun, error) {
	if run, ok := f.lastByKind[kind]; ok {
		return run, nil
	}
	return nil, shared.ErrNotFound
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		Mode:                  ModePolling,
		BusinessHoursInterval: 15 * time.Minute,
		OffHoursInterval:      2 * time.Hour,
		BusinessHoursStart:    7,
		BusinessHoursEnd:      18,
		FullSyncInterval:      7 * 24 * time.Hour,
		RunTimeout:            10 * time.Minute,
	}
}

func testJobsConfig() config.JobsConfig {
	return config.JobsConfig{
		DrainInterval:      time.Minute,
		BatchSize:          20,
		AttemptTimeout:     30 * time.Second,
		CleanupInterval:    time.Hour,
		CompletedRetention: 7 * 24 * time.Hour,
	}
}

func newTestOrchestrator(rec Reconciler, runs domainsync.RunRepository, syncCfg config.SyncConfig) *Orchestrator {
	return NewOrchestrator(rec, &fakeDrainer{}, runs, syncCfg, testJobsConfig(), zap.NewNop())
}

func TestOrchestrator_IntervalFor(t *testing.T) {
	o := newTestOrchestrator(&fakeReconciler{}, &fakeRunRepo{}, testSyncConfig())

	t.Run("weekday business hours", func(t *testing.T) {
		// Tuesday 10:00
		now := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
		assert.Equal(t, 15*time.Minute, o.IntervalFor(now))
	})

	t.Run("weekday evening", func(t *testing.T) {
		now := time.Date(2026, 3, 3, 21, 0, 0, 0, time.UTC)
		assert.Equal(t, 2*time.Hour, o.IntervalFor(now))
	})

	t.Run("weekday before opening", func(t *testing.T) {
		now := time.Date(2026, 3, 3, 6, 30, 0, 0, time.UTC)
		assert.Equal(t, 2*time.Hour, o.IntervalFor(now))
	})

	t.Run("weekend daytime", func(t *testing.T) {
		// Saturday 10:00
		now := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
		assert.Equal(t, 2*time.Hour, o.IntervalFor(now))
	})
}

func TestOrchestrator_Tick(t *testing.T) {
	t.Run("due sync runs incrementally from last completed run", func(t *testing.T) {
		lastRun := domainsync.NewSyncRun(erp.KindItem, domainsync.TriggerScheduler)
		lastRun.Complete()
		runs := &fakeRunRepo{lastByKind: map[erp.RecordKind]*domainsync.SyncRun{
			erp.KindItem: lastRun,
		}}
		rec := &fakeReconciler{}

		now := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
		o := newTestOrchestrator(rec, runs, testSyncConfig()).
			WithClock(func() time.Time { return now })

		o.nextSyncAt = now.Add(-time.Second)
		o.nextFullSyncAt = now.Add(24 * time.Hour)

		o.tick(context.Background())

		calls := rec.recorded()
		require.Len(t, calls, 2)
		assert.Equal(t, erp.KindItem, calls[0].kind)
		assert.Equal(t, erp.KindContact, calls[1].kind)
		assert.Equal(t, domainsync.TriggerScheduler, calls[0].opts.Trigger)

		require.NotNil(t, calls[0].opts.Since)
		assert.True(t, calls[0].opts.Since.Equal(lastRun.StartedAt))
		// contact kind has never completed a run, so it gets a full pass
		assert.Nil(t, calls[1].opts.Since)

		// next sync rescheduled on the business-hours cadence
		assert.True(t, o.nextSyncAt.Equal(now.Add(15*time.Minute)))
	})

	t.Run("not due does nothing", func(t *testing.T) {
		rec := &fakeReconciler{}
		now := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
		o := newTestOrchestrator(rec, &fakeRunRepo{}, testSyncConfig()).
			WithClock(func() time.Time { return now })
		o.nextSyncAt = now.Add(time.Minute)
		o.nextFullSyncAt = now.Add(24 * time.Hour)

		o.tick(context.Background())

		assert.Empty(t, rec.recorded())
	})

	t.Run("webhook mode skips periodic sync but keeps full backstop", func(t *testing.T) {
		cfg := testSyncConfig()
		cfg.Mode = ModeWebhook
		rec := &fakeReconciler{}
		now := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
		o := newTestOrchestrator(rec, &fakeRunRepo{}, cfg).
			WithClock(func() time.Time { return now })

		o.nextSyncAt = now.Add(-time.Second)
		o.nextFullSyncAt = now.Add(24 * time.Hour)
		o.tick(context.Background())
		assert.Empty(t, rec.recorded())

		o.nextFullSyncAt = now.Add(-time.Second)
		o.tick(context.Background())

		calls := rec.recorded()
		require.Len(t, calls, 2)
		// backstop is always a full pass
		assert.Nil(t, calls[0].opts.Since)
		assert.Nil(t, calls[1].opts.Since)
	})

	t.Run("run in progress is tolerated", func(t *testing.T) {
		rec := &fakeReconciler{err: shared.ErrRunInProgress}
		now := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
		o := newTestOrchestrator(rec, &fakeRunRepo{}, testSyncConfig()).
			WithClock(func() time.Time { return now })
		o.nextSyncAt = now.Add(-time.Second)
		o.nextFullSyncAt = now.Add(24 * time.Hour)

		o.tick(context.Background())

		assert.Len(t, rec.recorded(), 2)
	})
}

func TestOrchestrator_StartupSync(t *testing.T) {
	cfg := testSyncConfig()
	cfg.SyncOnStartup = true
	rec := &fakeReconciler{}
	o := newTestOrchestrator(rec, &fakeRunRepo{}, cfg)

	require.NoError(t, o.Start(context.Background()))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, o.Stop(ctx))
	}()

	calls := rec.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, domainsync.TriggerStartup, calls[0].opts.Trigger)

	status := o.Status()
	assert.True(t, status.Running)
	assert.Equal(t, ModePolling, status.Mode)
	require.NotNil(t, status.NextSyncAt)
	assert.Contains(t, status.Kinds, erp.KindItem.String())
	assert.Equal(t, string(domainsync.RunStatusCompleted), status.Kinds[erp.KindItem.String()].LastStatus)
}
