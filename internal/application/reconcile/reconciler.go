// Package reconcile implements the merge of external ERP records into the
// local catalog: paginated reads through the gateway, create/update/delist
// decisions keyed on the external identifier, and the SyncRun audit trail.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/domain/erp"
	"github.com/storefront/backend/internal/domain/shared"
	domainsync "github.com/storefront/backend/internal/domain/sync"
)

// Config holds the reconciler's tunables
type Config struct {
	// PageSize is the page size requested from the gateway
	PageSize int

	// RunTimeout is the wall-clock budget for one run
	RunTimeout time.Duration

	// RateLimitRetries is how many 429 responses a single run absorbs
	// before aborting.
	RateLimitRetries int

	// RateLimitBackoff is the sleep after a 429 without a Retry-After hint
	RateLimitBackoff time.Duration

	// ContactEmailFallback enables matching an unlinked local customer by
	// the remote record's contact-person emails when the primary email does
	// not match. Off by default: a contact-person email is weak proof of
	// identity and can bind the wrong company.
	ContactEmailFallback bool
}

// DefaultConfig returns the default reconciler configuration
func DefaultConfig() Config {
	return Config{
		PageSize:         100,
		RunTimeout:       10 * time.Minute,
		RateLimitRetries: 3,
		RateLimitBackoff: 5 * time.Second,
	}
}

// Options selects the scope and provenance of one run
type Options struct {
	// Since restricts the read to records modified after the instant;
	// nil requests a full pass.
	Since *time.Time

	Trigger domainsync.TriggerSource
}

// Reconciler merges ERP records into the local catalog. Runs of the same
// kind are mutually exclusive so a slow full pass cannot race an incremental
// one and apply stale data over fresh.
type Reconciler struct {
	gateway   erp.Gateway
	products  catalog.ProductRepository
	customers catalog.CustomerRepository
	runs      domainsync.RunRepository
	config    Config
	clock     shared.Clock
	logger    *zap.Logger

	mu       stdsync.Mutex
	inFlight map[erp.RecordKind]bool
}

// NewReconciler creates a reconciler
func NewReconciler(
	gateway erp.Gateway,
	products catalog.ProductRepository,
	customers catalog.CustomerRepository,
	runs domainsync.RunRepository,
	config Config,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		gateway:   gateway,
		products:  products,
		customers: customers,
		runs:      runs,
		config:    config,
		clock:     shared.SystemClock,
		logger:    logger,
		inFlight:  make(map[erp.RecordKind]bool),
	}
}

// WithClock overrides the wall clock, for tests
func (r *Reconciler) WithClock(clock shared.Clock) *Reconciler {
	r.clock = clock
	return r
}

// ReconcilableKinds returns the kinds the catalog merge handles. Invoices
// feed the sales event stream, not the merge.
func ReconcilableKinds() []erp.RecordKind {
	return []erp.RecordKind{erp.KindItem, erp.KindContact}
}

// Reconcile executes one merge pass for the given kind. It returns the
// completed (or failed) SyncRun; the error is non-nil only for run-level
// failures, including shared.ErrRunInProgress when a run of the same kind is
// already in flight. Record-level errors are absorbed into the run's error
// list.
func (r *Reconciler) Reconcile(ctx context.Context, kind erp.RecordKind, opts Options) (*domainsync.SyncRun, error) {
	if kind != erp.KindItem && kind != erp.KindContact {
		return nil, shared.ErrInvalidInput
	}
	if !r.tryAcquire(kind) {
		return nil, shared.ErrRunInProgress
	}
	defer r.release(kind)

	ctx, cancel := context.WithTimeout(ctx, r.config.RunTimeout)
	defer cancel()

	run := domainsync.NewSyncRun(kind, opts.Trigger)
	if err := r.runs.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("save sync run: %w", err)
	}

	r.logger.Info("reconciliation started",
		zap.String("run_id", run.ID.String()),
		zap.String("kind", kind.String()),
		zap.String("trigger", string(opts.Trigger)),
		zap.Bool("incremental", opts.Since != nil))

	if err := r.pageLoop(ctx, kind, opts, run); err != nil {
		run.Fail(err.Error())
		if updateErr := r.runs.Update(context.WithoutCancel(ctx), run); updateErr != nil {
			r.logger.Error("failed to persist failed run", zap.Error(updateErr))
		}
		r.logger.Error("reconciliation failed",
			zap.String("run_id", run.ID.String()),
			zap.String("kind", kind.String()),
			zap.Error(err))
		return run, err
	}

	run.Complete()
	if err := r.runs.Update(ctx, run); err != nil {
		return run, fmt.Errorf("persist completed run: %w", err)
	}

	r.logger.Info("reconciliation completed",
		zap.String("run_id", run.ID.String()),
		zap.String("kind", kind.String()),
		zap.Int("created", run.Created),
		zap.Int("updated", run.Updated),
		zap.Int("skipped", run.Skipped),
		zap.Int("errored", run.Errored))
	return run, nil
}

func (r *Reconciler) pageLoop(ctx context.Context, kind erp.RecordKind, opts Options, run *domainsync.SyncRun) error {
	page := 1
	rateLimitHits := 0
	for {
		result, err := r.gateway.FetchPage(ctx, kind, erp.PageRequest{
			Page:     page,
			PageSize: r.config.PageSize,
			Since:    opts.Since,
		})
		if err != nil {
			if hint, ok := erp.IsRateLimited(err); ok {
				rateLimitHits++
				if rateLimitHits > r.config.RateLimitRetries {
					return fmt.Errorf("rate limit budget exhausted after %d hits: %w", rateLimitHits, err)
				}
				if sleepErr := r.sleepFor(ctx, hint); sleepErr != nil {
					return sleepErr
				}
				continue
			}
			return fmt.Errorf("fetch page %d: %w", page, err)
		}

		for i := range result.Records {
			if mergeErr := r.applyRecord(ctx, kind, &result.Records[i], run); mergeErr != nil {
				run.RecordError(result.Records[i].ExternalID, mergeErr.Error())
			}
		}

		if !result.HasMore {
			return nil
		}
		page++
	}
}

// sleepFor backs off after a 429, honoring the remote's hint when present
func (r *Reconciler) sleepFor(ctx context.Context, hint time.Duration) error {
	if hint <= 0 {
		hint = r.config.RateLimitBackoff
	}
	timer := time.NewTimer(hint)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Reconciler) applyRecord(ctx context.Context, kind erp.RecordKind, record *erp.ExternalRecord, run *domainsync.SyncRun) error {
	if record.ExternalID == "" {
		return fmt.Errorf("%w: missing external id", erp.ErrValidation)
	}
	switch kind {
	case erp.KindItem:
		return r.mergeItem(ctx, record, run)
	case erp.KindContact:
		return r.mergeContact(ctx, record, run)
	default:
		return shared.ErrInvalidInput
	}
}

func (r *Reconciler) mergeItem(ctx context.Context, record *erp.ExternalRecord, run *domainsync.SyncRun) error {
	if record.Item == nil {
		return fmt.Errorf("%w: item record without item payload", erp.ErrValidation)
	}
	now := r.clock()

	product, err := r.products.FindByExternalID(ctx, record.ExternalID)
	if errors.Is(err, shared.ErrNotFound) {
		product = catalog.NewProductFromRemote(record.ExternalID, *record.Item, record.Inactive, now)
		if err := r.products.Save(ctx, product); err != nil {
			return fmt.Errorf("create product: %w", err)
		}
		run.RecordCreated()
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup product: %w", err)
	}

	if product.MatchesRemote(*record.Item, record.Inactive) {
		run.RecordSkipped()
		return nil
	}
	product.ApplyRemote(*record.Item, record.Inactive, now)
	if err := r.products.Save(ctx, product); err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	run.RecordUpdated()
	return nil
}

func (r *Reconciler) mergeContact(ctx context.Context, record *erp.ExternalRecord, run *domainsync.SyncRun) error {
	if record.Contact == nil {
		return fmt.Errorf("%w: contact record without contact payload", erp.ErrValidation)
	}
	now := r.clock()

	customer, err := r.customers.FindByExternalID(ctx, record.ExternalID)
	if errors.Is(err, shared.ErrNotFound) {
		customer, err = r.matchUnlinkedCustomer(ctx, record)
		if err != nil {
			return err
		}
	} else if err != nil {
		return fmt.Errorf("lookup customer: %w", err)
	}

	if customer == nil {
		customer = catalog.NewCustomerFromRemote(record.ExternalID, *record.Contact, record.Inactive, now)
		if err := r.customers.Save(ctx, customer); err != nil {
			return fmt.Errorf("create customer: %w", err)
		}
		run.RecordCreated()
		return nil
	}

	if !customer.IsLinked() {
		// A locally-originated account matched by email: bind it to the
		// remote record instead of creating a duplicate.
		customer.BindExternal(record.ExternalID, now)
	} else if customer.MatchesRemote(*record.Contact, record.Inactive) {
		run.RecordSkipped()
		return nil
	}

	customer.ApplyRemote(*record.Contact, record.Inactive, now)
	if err := r.customers.Save(ctx, customer); err != nil {
		return fmt.Errorf("update customer: %w", err)
	}
	run.RecordUpdated()
	return nil
}

// matchUnlinkedCustomer looks for a locally-originated customer that the
// remote contact corresponds to, by primary email and optionally by the
// contact persons' emails. Returns nil when no match exists.
func (r *Reconciler) matchUnlinkedCustomer(ctx context.Context, record *erp.ExternalRecord) (*catalog.Customer, error) {
	if record.Contact.Email != "" {
		customer, err := r.customers.FindByEmail(ctx, record.Contact.Email)
		if err == nil && !customer.IsLinked() {
			return customer, nil
		}
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("lookup customer by email: %w", err)
		}
	}

	if !r.config.ContactEmailFallback {
		return nil, nil
	}
	for _, email := range record.Contact.ContactEmails {
		if email == "" {
			continue
		}
		customer, err := r.customers.FindByEmail(ctx, email)
		if errors.Is(err, shared.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lookup customer by contact email: %w", err)
		}
		if !customer.IsLinked() {
			r.logger.Warn("matched customer by contact-person email",
				zap.String("external_id", record.ExternalID),
				zap.String("matched_email", email))
			return customer, nil
		}
	}
	return nil, nil
}

func (r *Reconciler) tryAcquire(kind erp.RecordKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight[kind] {
		return false
	}
	r.inFlight[kind] = true
	return true
}

func (r *Reconciler) release(kind erp.RecordKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, kind)
}
