package webhook

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/storefront/backend/internal/application/reconcile"
	"github.com/storefront/backend/internal/domain/erp"
	"github.com/storefront/backend/internal/domain/shared"
	domainsync "github.com/storefront/backend/internal/domain/sync"
)

// Reconciler is the slice of the reconciliation engine the ingestor needs
type Reconciler interface {
	Reconcile(ctx context.Context, kind erp.RecordKind, opts reconcile.Options) (*domainsync.SyncRun, error)
}

// Subsystem names accepted on the webhook surface
const (
	SubsystemItems     = "items"
	SubsystemCustomers = "customers"
	SubsystemInvoices  = "invoices"
)

// DefaultMaxConcurrent bounds simultaneous webhook-triggered reconciliations
const DefaultMaxConcurrent = 4

// Ingestor converts validated webhook notifications into reconciliation
// work. Item and customer changes trigger a scoped incremental reconcile in
// the background; invoice events only feed the sales event stream. Every
// notification, valid or not, lands in the event log.
type Ingestor struct {
	reconciler Reconciler
	runs       domainsync.RunRepository
	log        *EventLog
	stats      *CallStats
	clock      shared.Clock
	logger     *zap.Logger

	sem chan struct{}
	wg  stdsync.WaitGroup
}

// NewIngestor creates an ingestor
func NewIngestor(
	reconciler Reconciler,
	runs domainsync.RunRepository,
	log *EventLog,
	stats *CallStats,
	maxConcurrent int,
	logger *zap.Logger,
) *Ingestor {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Ingestor{
		reconciler: reconciler,
		runs:       runs,
		log:        log,
		stats:      stats,
		clock:      shared.SystemClock,
		logger:     logger,
		sem:        make(chan struct{}, maxConcurrent),
	}
}

// Handle processes one signature-validated notification. It queues the
// downstream work and returns immediately; the caller acks without waiting
// for reconciliation.
func (i *Ingestor) Handle(ctx context.Context, subsystem, action string) error {
	switch subsystem {
	case SubsystemItems:
		i.record(subsystem, action, true, "incremental item sync queued")
		i.triggerReconcile(erp.KindItem)
	case SubsystemCustomers:
		i.record(subsystem, action, true, "incremental customer sync queued")
		i.triggerReconcile(erp.KindContact)
	case SubsystemInvoices:
		// Invoices feed sales aggregation, not the catalog merge
		i.record(subsystem, action, true, "sales event recorded")
	default:
		i.record(subsystem, action, false, "unknown subsystem")
		return fmt.Errorf("%w: unknown subsystem %q", shared.ErrInvalidInput, subsystem)
	}
	return nil
}

// RecordRejected logs a notification that failed signature validation
func (i *Ingestor) RecordRejected(subsystem, action, detail string) {
	i.record(subsystem, action, false, detail)
}

func (i *Ingestor) record(subsystem, action string, success bool, detail string) {
	i.log.Append(Event{
		Subsystem:  subsystem,
		Action:     action,
		Success:    success,
		Detail:     detail,
		ReceivedAt: i.clock(),
	})
	i.stats.Record(success)
}

// triggerReconcile starts a bounded background incremental reconcile. When
// all slots are busy the notification is dropped: the scheduled backstop
// sync covers anything missed.
func (i *Ingestor) triggerReconcile(kind erp.RecordKind) {
	select {
	case i.sem <- struct{}{}:
	default:
		i.logger.Warn("webhook reconcile slots exhausted, relying on scheduled sync",
			zap.String("kind", kind.String()))
		return
	}

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		defer func() { <-i.sem }()

		ctx := context.Background()
		since := i.lastCompletedAt(ctx, kind)
		_, err := i.reconciler.Reconcile(ctx, kind, reconcile.Options{
			Since:   since,
			Trigger: domainsync.TriggerWebhook,
		})
		if errors.Is(err, shared.ErrRunInProgress) {
			// The in-flight run will pick up the change
			return
		}
		if err != nil {
			i.logger.Error("webhook-triggered reconcile failed",
				zap.String("kind", kind.String()),
				zap.Error(err))
		}
	}()
}

// lastCompletedAt scopes the incremental read to changes since the last
// completed run; nil (a full pass) when the kind has never completed one.
func (i *Ingestor) lastCompletedAt(ctx context.Context, kind erp.RecordKind) *time.Time {
	last, err := i.runs.LastCompleted(ctx, kind)
	if err != nil {
		return nil
	}
	// Overlap by the run's own duration to avoid missing records modified
	// while it was running.
	since := last.StartedAt
	return &since
}

// Wait blocks until in-flight background reconciliations finish. Used on
// shutdown.
func (i *Ingestor) Wait() {
	i.wg.Wait()
}
