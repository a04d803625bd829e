// Package jobs implements the outbound push queue: durable jobs created
// alongside local mutations, drained in batches against the ERP gateway with
// idempotency keys, bounded retries, and operator requeue of dead jobs.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/domain/erp"
	"github.com/storefront/backend/internal/domain/shared"
	domainsync "github.com/storefront/backend/internal/domain/sync"
)

// Config holds the job service tunables
type Config struct {
	// BatchSize is how many jobs one drain cycle claims
	BatchSize int

	// AttemptTimeout is the wall-clock budget for one push attempt
	AttemptTimeout time.Duration

	// CompletedRetention is how long completed jobs are kept before cleanup
	CompletedRetention time.Duration
}

// DefaultConfig returns the default job service configuration
func DefaultConfig() Config {
	return Config{
		BatchSize:          20,
		AttemptTimeout:     30 * time.Second,
		CompletedRetention: 7 * 24 * time.Hour,
	}
}

// Service owns the job ledger. It is the only component that transitions job
// status, and it guarantees at most one in-flight attempt per job via the
// repository's exclusive claim.
type Service struct {
	jobs        domainsync.JobRepository
	customers   catalog.CustomerRepository
	orders      catalog.OrderRepository
	gateway     erp.Gateway
	idempotency shared.IdempotencyStore
	idemConfig  shared.IdempotencyConfig
	config      Config
	clock       shared.Clock
	logger      *zap.Logger
}

// NewService creates a job service
func NewService(
	jobs domainsync.JobRepository,
	customers catalog.CustomerRepository,
	orders catalog.OrderRepository,
	gateway erp.Gateway,
	idempotency shared.IdempotencyStore,
	idemConfig shared.IdempotencyConfig,
	config Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		jobs:        jobs,
		customers:   customers,
		orders:      orders,
		gateway:     gateway,
		idempotency: idempotency,
		idemConfig:  idemConfig,
		config:      config,
		clock:       shared.SystemClock,
		logger:      logger,
	}
}

// WithClock overrides the wall clock, for tests
func (s *Service) WithClock(clock shared.Clock) *Service {
	s.clock = clock
	return s
}

// EnqueueCustomerCreate queues a push creating the customer upstream. Called
// in the same transaction as the approval that makes the customer pushable.
func (s *Service) EnqueueCustomerCreate(ctx context.Context, customer *catalog.Customer) (*domainsync.Job, error) {
	payload, err := json.Marshal(erp.CustomerPush{
		CompanyName: customer.CompanyName,
		Email:       customer.Email,
		Phone:       customer.Phone,
		PriceListID: customer.PriceListID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal customer payload: %w", err)
	}
	job := domainsync.NewJob(domainsync.JobTypeCreateCustomer, customer.ID, payload)
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}
	s.logger.Info("job enqueued",
		zap.String("job_id", job.ID.String()),
		zap.String("type", string(job.Type)),
		zap.String("entity_id", customer.ID.String()))
	return job, nil
}

// EnqueueOrderPush queues a push of an approved order upstream
func (s *Service) EnqueueOrderPush(ctx context.Context, order *catalog.Order, push erp.OrderPush) (*domainsync.Job, error) {
	payload, err := json.Marshal(push)
	if err != nil {
		return nil, fmt.Errorf("marshal order payload: %w", err)
	}
	job := domainsync.NewJob(domainsync.JobTypePushOrder, order.ID, payload)
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}
	s.logger.Info("job enqueued",
		zap.String("job_id", job.ID.String()),
		zap.String("type", string(job.Type)),
		zap.String("entity_id", order.ID.String()))
	return job, nil
}

// Drain claims one batch of due jobs and processes them sequentially. It
// returns the number of jobs that reached a terminal state this cycle. A
// rate-limited push releases the job unattempted and ends the cycle; an auth
// failure ends the cycle without burning the job's attempts, since no push
// can succeed until credentials are fixed.
func (s *Service) Drain(ctx context.Context) (int, error) {
	claimed, err := s.jobs.ClaimPending(ctx, s.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim pending jobs: %w", err)
	}
	if len(claimed) == 0 {
		return 0, nil
	}

	processed := 0
	for i, job := range claimed {
		err := s.processJob(ctx, job)
		switch {
		case err == nil:
			processed++
		case erp.IsAuth(err):
			s.logger.Error("drain aborted: authentication failed, operator intervention required",
				zap.String("job_id", job.ID.String()),
				zap.Error(err))
			s.releaseJobs(ctx, claimed[i:])
			return processed, err
		default:
			if hint, ok := erp.IsRateLimited(err); ok {
				s.logger.Warn("drain paused: rate limited",
					zap.Duration("retry_after", hint))
				s.releaseJobs(ctx, claimed[i:])
				return processed, nil
			}
			// processJob already recorded the failure on the job
			processed++
		}
	}
	return processed, nil
}

// releaseJobs returns unattempted claims to the pending set
func (s *Service) releaseJobs(ctx context.Context, batch []*domainsync.Job) {
	for _, job := range batch {
		if job.Status != domainsync.JobStatusProcessing {
			continue
		}
		job.Release()
		if err := s.jobs.Update(ctx, job); err != nil {
			s.logger.Error("failed to release job",
				zap.String("job_id", job.ID.String()),
				zap.Error(err))
		}
	}
}

// processJob runs one attempt. Returns nil when the job reached COMPLETED,
// FAILED, or DEAD; returns the raw error for conditions that should stop the
// whole cycle (auth, rate limit).
func (s *Service) processJob(ctx context.Context, job *domainsync.Job) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.AttemptTimeout)
	defer cancel()

	pushErr := s.push(ctx, job)
	if pushErr == nil {
		job.MarkCompleted()
		if err := s.jobs.Update(ctx, job); err != nil {
			return fmt.Errorf("persist completed job: %w", err)
		}
		s.logger.Info("job completed",
			zap.String("job_id", job.ID.String()),
			zap.String("type", string(job.Type)),
			zap.Int("attempts", job.Attempts+1))
		return nil
	}

	if erp.IsAuth(pushErr) {
		return pushErr
	}
	if _, ok := erp.IsRateLimited(pushErr); ok {
		return pushErr
	}

	if erp.Retryable(pushErr) || errors.Is(pushErr, context.DeadlineExceeded) {
		job.MarkFailed(pushErr.Error())
	} else {
		job.MarkDead(pushErr.Error())
	}
	if err := s.jobs.Update(context.WithoutCancel(ctx), job); err != nil {
		return fmt.Errorf("persist failed job: %w", err)
	}

	if job.IsDead() {
		s.logger.Error("job dead, operator action required",
			zap.String("job_id", job.ID.String()),
			zap.String("type", string(job.Type)),
			zap.Int("attempts", job.Attempts),
			zap.String("last_error", job.LastError))
	} else {
		s.logger.Warn("job attempt failed",
			zap.String("job_id", job.ID.String()),
			zap.Int("attempts", job.Attempts),
			zap.Timep("next_retry_at", job.NextRetryAt),
			zap.String("error", pushErr.Error()))
	}
	return nil
}

// push performs the remote call for a job and binds the resulting external
// identifier to the owning entity. A key already accepted remotely with the
// entity already bound completes without a second remote create.
func (s *Service) push(ctx context.Context, job *domainsync.Job) error {
	switch job.Type {
	case domainsync.JobTypeCreateCustomer:
		return s.pushCustomer(ctx, job)
	case domainsync.JobTypePushOrder:
		return s.pushOrder(ctx, job)
	default:
		return fmt.Errorf("%w: unknown job type %q", erp.ErrPermanent, job.Type)
	}
}

func (s *Service) pushCustomer(ctx context.Context, job *domainsync.Job) error {
	customer, err := s.customers.FindByID(ctx, job.EntityID)
	if err != nil {
		return fmt.Errorf("%w: load customer: %v", erp.ErrPermanent, err)
	}
	if customer.IsLinked() {
		// A previous attempt succeeded upstream before the job completion
		// was persisted.
		return nil
	}

	// Key accepted but entity unbound: a crash landed between the remote
	// accept and the bind. The push proceeds; the key header makes the
	// remote return the existing record instead of creating a duplicate.
	if s.alreadyAccepted(ctx, job) {
		s.logger.Warn("idempotency key already accepted, expecting remote dedup",
			zap.String("key", job.IdempotencyKey))
	}

	var payload erp.CustomerPush
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("%w: decode customer payload: %v", erp.ErrPermanent, err)
	}

	externalID, err := s.gateway.PushRecord(ctx, erp.KindContact, payload, job.IdempotencyKey)
	if err != nil {
		return err
	}

	customer.BindExternal(externalID, s.clock())
	if err := s.customers.Save(ctx, customer); err != nil {
		return fmt.Errorf("bind customer external id: %w", err)
	}
	s.markAccepted(ctx, job)
	return nil
}

func (s *Service) pushOrder(ctx context.Context, job *domainsync.Job) error {
	order, err := s.orders.FindByID(ctx, job.EntityID)
	if err != nil {
		return fmt.Errorf("%w: load order: %v", erp.ErrPermanent, err)
	}
	if order.IsPushed() {
		return nil
	}

	if s.alreadyAccepted(ctx, job) {
		s.logger.Warn("idempotency key already accepted, expecting remote dedup",
			zap.String("key", job.IdempotencyKey))
	}

	var payload erp.OrderPush
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("%w: decode order payload: %v", erp.ErrPermanent, err)
	}

	externalID, err := s.gateway.PushRecord(ctx, erp.KindInvoice, payload, job.IdempotencyKey)
	if err != nil {
		return err
	}

	order.BindExternal(externalID, s.clock())
	if err := s.orders.Save(ctx, order); err != nil {
		return fmt.Errorf("bind order external id: %w", err)
	}
	s.markAccepted(ctx, job)
	return nil
}

// alreadyAccepted consults the shared idempotency store. A store failure is
// not fatal: the remote dedups on the key header as well, so the push
// proceeds.
func (s *Service) alreadyAccepted(ctx context.Context, job *domainsync.Job) bool {
	if !s.idemConfig.Enabled || s.idempotency == nil {
		return false
	}
	accepted, err := s.idempotency.IsProcessed(ctx, job.IdempotencyKey)
	if err != nil {
		s.logger.Warn("idempotency store check failed",
			zap.String("key", job.IdempotencyKey),
			zap.Error(err))
		return false
	}
	return accepted
}

func (s *Service) markAccepted(ctx context.Context, job *domainsync.Job) {
	if !s.idemConfig.Enabled || s.idempotency == nil {
		return
	}
	if _, err := s.idempotency.MarkProcessed(ctx, job.IdempotencyKey, s.idemConfig.TTL); err != nil {
		s.logger.Warn("idempotency store mark failed",
			zap.String("key", job.IdempotencyKey),
			zap.Error(err))
	}
}

// Retry requeues a dead or crash-wedged processing job after operator
// intervention, resetting its attempt budget.
func (s *Service) Retry(ctx context.Context, jobID uuid.UUID) (*domainsync.Job, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := job.ResetForRetry(); err != nil {
		return nil, shared.ErrInvalidState
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("persist retried job: %w", err)
	}
	s.logger.Info("job requeued by operator", zap.String("job_id", job.ID.String()))
	return job, nil
}

// RetryAllDead requeues every dead job, returning how many were requeued
func (s *Service) RetryAllDead(ctx context.Context) (int, error) {
	requeued := 0
	for {
		dead, _, err := s.jobs.FindDead(ctx, 1, 100)
		if err != nil {
			return requeued, fmt.Errorf("list dead jobs: %w", err)
		}
		if len(dead) == 0 {
			return requeued, nil
		}
		for _, job := range dead {
			if err := job.ResetForRetry(); err != nil {
				continue
			}
			if err := s.jobs.Update(ctx, job); err != nil {
				return requeued, fmt.Errorf("persist retried job: %w", err)
			}
			requeued++
		}
	}
}

// List returns jobs in a status for the operator board
func (s *Service) List(ctx context.Context, status domainsync.JobStatus, page, pageSize int) ([]*domainsync.Job, int64, error) {
	return s.jobs.FindByStatus(ctx, status, page, pageSize)
}

// CountByStatus returns job counts per status for the status surface
func (s *Service) CountByStatus(ctx context.Context) (map[domainsync.JobStatus]int64, error) {
	return s.jobs.CountByStatus(ctx)
}

// CleanupCompleted deletes completed jobs older than the retention window
func (s *Service) CleanupCompleted(ctx context.Context) (int64, error) {
	cutoff := s.clock().Add(-s.config.CompletedRetention)
	deleted, err := s.jobs.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup completed jobs: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("cleaned up completed jobs", zap.Int64("deleted", deleted))
	}
	return deleted, nil
}
