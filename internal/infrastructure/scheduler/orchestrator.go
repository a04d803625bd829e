// Package scheduler drives the periodic reconciliation passes and the
// job-queue drain cycles.
package scheduler

import (
	"context"
	"errors"
	stdsync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/storefront/backend/internal/application/reconcile"
	"github.com/storefront/backend/internal/domain/erp"
	"github.com/storefront/backend/internal/domain/shared"
	domainsync "github.com/storefront/backend/internal/domain/sync"
	"github.com/storefront/backend/internal/infrastructure/config"
)

// Sync modes. In polling mode the orchestrator runs incremental passes on
// the business-hours cadence; in webhook mode inbound notifications drive
// incremental passes and only the full-sync backstop stays on a timer.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// checkInterval is how often the run loop re-evaluates the schedule
const checkInterval = 30 * time.Second

// Reconciler runs one reconciliation pass for a record kind
type Reconciler interface {
	Reconcile(ctx context.Context, kind erp.RecordKind, opts reconcile.Options) (*domainsync.SyncRun, error)
}

// JobDrainer drains the push-job queue and prunes old completed jobs
type JobDrainer interface {
	Drain(ctx context.Context) (int, error)
	CleanupCompleted(ctx context.Context) (int64, error)
}

// KindStatus is the per-kind slice of the orchestrator status snapshot
type KindStatus struct {
	LastRunID     string     `json:"last_run_id,omitempty"`
	LastStatus    string     `json:"last_status,omitempty"`
	LastStartedAt *time.Time `json:"last_started_at,omitempty"`
	Created       int        `json:"created"`
	Updated       int        `json:"updated"`
	Skipped       int        `json:"skipped"`
	Errored       int        `json:"errored"`
}

// Status is a point-in-time view of the orchestrator for the status endpoint
type Status struct {
	Mode           string                `json:"mode"`
	Running        bool                  `json:"running"`
	NextSyncAt     *time.Time            `json:"next_sync_at,omitempty"`
	NextFullSyncAt time.Time             `json:"next_full_sync_at"`
	Kinds          map[string]KindStatus `json:"kinds"`
}

// Orchestrator owns the sync and drain timers. All reconciliation passes it
// starts go through the Reconciler, which serializes runs per kind.
type Orchestrator struct {
	reconciler Reconciler
	drainer    JobDrainer
	runs       domainsync.RunRepository
	syncCfg    config.SyncConfig
	jobsCfg    config.JobsConfig
	clock      shared.Clock
	logger     *zap.Logger

	cancel    context.CancelFunc
	wg        stdsync.WaitGroup
	mu        stdsync.Mutex
	isRunning bool

	nextSyncAt     time.Time
	nextFullSyncAt time.Time
	lastRuns       map[erp.RecordKind]*domainsync.SyncRun
}

// NewOrchestrator creates an orchestrator; Start must be called to begin
func NewOrchestrator(
	reconciler Reconciler,
	drainer JobDrainer,
	runs domainsync.RunRepository,
	syncCfg config.SyncConfig,
	jobsCfg config.JobsConfig,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		reconciler: reconciler,
		drainer:    drainer,
		runs:       runs,
		syncCfg:    syncCfg,
		jobsCfg:    jobsCfg,
		clock:      shared.SystemClock,
		logger:     logger,
		lastRuns:   make(map[erp.RecordKind]*domainsync.SyncRun),
	}
}

// WithClock overrides the time source, used by tests
func (o *Orchestrator) WithClock(clock shared.Clock) *Orchestrator {
	o.clock = clock
	return o
}

// IntervalFor returns the polling interval in effect at the given time.
// Weekends always use the off-hours interval.
func (o *Orchestrator) IntervalFor(now time.Time) time.Duration {
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return o.syncCfg.OffHoursInterval
	}
	hour := now.Hour()
	if hour >= o.syncCfg.BusinessHoursStart && hour < o.syncCfg.BusinessHoursEnd {
		return o.syncCfg.BusinessHoursInterval
	}
	return o.syncCfg.OffHoursInterval
}

// Start launches the schedule, drain, and cleanup loops
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.isRunning {
		o.mu.Unlock()
		return nil
	}
	o.isRunning = true

	now := o.clock()
	o.nextSyncAt = now.Add(o.IntervalFor(now))
	o.nextFullSyncAt = now.Add(o.syncCfg.FullSyncInterval)
	o.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	if o.syncCfg.SyncOnStartup {
		o.runIncremental(ctx, domainsync.TriggerStartup)
	}

	o.wg.Add(2)
	go o.scheduleLoop(ctx)
	go o.drainLoop(ctx)

	if o.jobsCfg.CleanupEnabled {
		o.wg.Add(1)
		go o.cleanupLoop(ctx)
	}

	o.logger.Info("Sync orchestrator started",
		zap.String("mode", o.syncCfg.Mode),
		zap.Duration("business_hours_interval", o.syncCfg.BusinessHoursInterval),
		zap.Duration("off_hours_interval", o.syncCfg.OffHoursInterval),
		zap.Duration("drain_interval", o.jobsCfg.DrainInterval),
	)
	return nil
}

// Stop halts all loops and waits for in-flight work to finish
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.isRunning {
		o.mu.Unlock()
		return nil
	}
	o.isRunning = false
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.logger.Info("Sync orchestrator stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot for the operator status endpoint
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	status := Status{
		Mode:           o.syncCfg.Mode,
		Running:        o.isRunning,
		NextFullSyncAt: o.nextFullSyncAt,
		Kinds:          make(map[string]KindStatus, len(o.lastRuns)),
	}
	if o.syncCfg.Mode == ModePolling {
		next := o.nextSyncAt
		status.NextSyncAt = &next
	}
	for kind, run := range o.lastRuns {
		started := run.StartedAt
		status.Kinds[kind.String()] = KindStatus{
			LastRunID:     run.ID.String(),
			LastStatus:    string(run.Status),
			LastStartedAt: &started,
			Created:       run.Created,
			Updated:       run.Updated,
			Skipped:       run.Skipped,
			Errored:       run.Errored,
		}
	}
	return status
}

func (o *Orchestrator) scheduleLoop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

func (o *Orchestrator) tick(ctx context.Context) {
	now := o.clock()

	o.mu.Lock()
	fullDue := !now.Before(o.nextFullSyncAt)
	syncDue := o.syncCfg.Mode == ModePolling && !now.Before(o.nextSyncAt)
	if fullDue {
		o.nextFullSyncAt = now.Add(o.syncCfg.FullSyncInterval)
	}
	if syncDue || fullDue {
		o.nextSyncAt = now.Add(o.IntervalFor(now))
	}
	o.mu.Unlock()

	if fullDue {
		o.runFull(ctx)
		return
	}
	if syncDue {
		o.runIncremental(ctx, domainsync.TriggerScheduler)
	}
}

// runIncremental reconciles each kind from its last completed run forward.
// A kind that has never completed a run gets a full pass.
func (o *Orchestrator) runIncremental(ctx context.Context, trigger domainsync.TriggerSource) {
	for _, kind := range reconcile.ReconcilableKinds() {
		opts := reconcile.Options{Trigger: trigger}
		if last, err := o.runs.LastCompleted(ctx, kind); err == nil {
			since := last.StartedAt
			opts.Since = &since
		} else if !errors.Is(err, shared.ErrNotFound) {
			o.logger.Error("Failed to load last completed run",
				zap.String("kind", kind.String()), zap.Error(err))
		}
		o.reconcileKind(ctx, kind, opts)
	}
}

// runFull reconciles each kind with no modification cutoff, catching any
// records the incremental passes missed.
func (o *Orchestrator) runFull(ctx context.Context) {
	o.logger.Info("Starting full sync backstop")
	for _, kind := range reconcile.ReconcilableKinds() {
		o.reconcileKind(ctx, kind, reconcile.Options{Trigger: domainsync.TriggerScheduler})
	}
}

func (o *Orchestrator) reconcileKind(ctx context.Context, kind erp.RecordKind, opts reconcile.Options) {
	run, err := o.reconciler.Reconcile(ctx, kind, opts)
	if err != nil {
		if errors.Is(err, shared.ErrRunInProgress) {
			o.logger.Debug("Skipping sync, run already in progress",
				zap.String("kind", kind.String()))
			return
		}
		o.logger.Error("Reconciliation pass failed",
			zap.String("kind", kind.String()), zap.Error(err))
	}
	if run != nil {
		o.mu.Lock()
		o.lastRuns[kind] = run
		o.mu.Unlock()
	}
}

func (o *Orchestrator) drainLoop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.jobsCfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			processed, err := o.drainer.Drain(ctx)
			if err != nil {
				o.logger.Error("Job drain cycle failed", zap.Error(err))
				continue
			}
			if processed > 0 {
				o.logger.Info("Job drain cycle finished", zap.Int("processed", processed))
			}
		}
	}
}

func (o *Orchestrator) cleanupLoop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.jobsCfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := o.drainer.CleanupCompleted(ctx)
			if err != nil {
				o.logger.Error("Completed-job cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				o.logger.Info("Pruned completed jobs", zap.Int64("removed", removed))
			}
		}
	}
}
