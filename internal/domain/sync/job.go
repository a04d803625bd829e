package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobType identifies the outbound mutation a job carries
type JobType string

const (
	JobTypeCreateCustomer JobType = "CREATE_CUSTOMER"
	JobTypePushOrder      JobType = "PUSH_ORDER"
)

// IsValid returns true if the job type is known
func (t JobType) IsValid() bool {
	switch t {
	case JobTypeCreateCustomer, JobTypePushOrder:
		return true
	default:
		return false
	}
}

// JobStatus is the lifecycle of a queued job
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusDead       JobStatus = "DEAD"
)

// Default retry configuration
const (
	DefaultMaxAttempts = 5
	DefaultBaseBackoff = 30 * time.Second
	maxBackoff         = 30 * time.Minute
)

// Job is a durable work item for a local-to-external mutation. It is created
// in the same transaction as the triggering local mutation, claimed
// exclusively by a drain cycle, and never silently dropped: after the
// attempt budget is exhausted it parks in the DEAD status until an operator
// requeues it.
type Job struct {
	ID       uuid.UUID
	Type     JobType
	EntityID uuid.UUID
	Payload  []byte

	// IdempotencyKey is a stable function of the job's identity, submitted
	// with every push so a retried job cannot create a duplicate remote
	// record.
	IdempotencyKey string

	Status      JobStatus
	Attempts    int
	MaxAttempts int
	LastError   string

	NextRetryAt   *time.Time
	LastAttemptAt *time.Time
	CompletedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewJob creates a pending job for the given entity
func NewJob(jobType JobType, entityID uuid.UUID, payload []byte) *Job {
	now := time.Now()
	return &Job{
		ID:             uuid.New(),
		Type:           jobType,
		EntityID:       entityID,
		Payload:        payload,
		IdempotencyKey: IdempotencyKey(jobType, entityID),
		Status:         JobStatusPending,
		MaxAttempts:    DefaultMaxAttempts,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// IdempotencyKey derives the stable dedup token for a job from the owning
// entity's identity, so re-enqueueing the same mutation yields the same key.
func IdempotencyKey(jobType JobType, entityID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", jobType, entityID)
}

// MarkProcessing transitions the job into the exclusive in-flight state.
// Only pending and retry-due failed jobs may be claimed.
func (j *Job) MarkProcessing() error {
	if j.Status != JobStatusPending && j.Status != JobStatusFailed {
		return errors.New("can only mark pending or failed jobs as processing")
	}
	now := time.Now()
	j.Status = JobStatusProcessing
	j.LastAttemptAt = &now
	j.UpdatedAt = now
	return nil
}

// MarkCompleted marks the job successfully pushed
func (j *Job) MarkCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// MarkFailed records a recoverable failure, increments the attempt count,
// and computes the next retry time with exponential backoff. Once attempts
// reach the budget the job transitions to DEAD.
func (j *Job) MarkFailed(errMsg string) {
	j.Attempts++
	j.LastError = errMsg
	j.UpdatedAt = time.Now()

	if j.Attempts >= j.MaxAttempts {
		j.Status = JobStatusDead
		j.NextRetryAt = nil
		return
	}

	j.Status = JobStatusFailed
	backoff := DefaultBaseBackoff * time.Duration(1<<uint(j.Attempts-1))
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	next := time.Now().Add(backoff)
	j.NextRetryAt = &next
}

// MarkDead parks the job immediately, bypassing remaining attempts. Used for
// non-retryable failures (permanent rejections, auth failures).
func (j *Job) MarkDead(errMsg string) {
	j.Attempts++
	j.LastError = errMsg
	j.Status = JobStatusDead
	j.NextRetryAt = nil
	j.UpdatedAt = time.Now()
}

// Release returns a rate-limited job to the pending set without consuming an
// attempt; the drain cycle backs off instead of the job.
func (j *Job) Release() {
	j.Status = JobStatusPending
	j.UpdatedAt = time.Now()
}

// ResetForRetry requeues a job after operator intervention. Accepts dead
// jobs and jobs wedged in PROCESSING by a crash mid-drain.
func (j *Job) ResetForRetry() error {
	if j.Status != JobStatusDead && j.Status != JobStatusProcessing {
		return errors.New("can only retry dead or stuck processing jobs")
	}
	j.Status = JobStatusPending
	j.Attempts = 0
	j.LastError = ""
	j.NextRetryAt = nil
	j.UpdatedAt = time.Now()
	return nil
}

// IsDead returns true if the job is terminally failed
func (j *Job) IsDead() bool {
	return j.Status == JobStatusDead
}

// JobRepository defines the persistence interface for the job ledger
type JobRepository interface {
	Save(ctx context.Context, jobs ...*Job) error
	Update(ctx context.Context, job *Job) error
	FindByID(ctx context.Context, id uuid.UUID) (*Job, error)

	// ClaimPending atomically claims up to limit due jobs (pending, plus
	// failed jobs whose NextRetryAt has passed) and marks them PROCESSING.
	// Claims are exclusive across concurrent drain cycles, FIFO by creation
	// time, and skip any job whose owning entity has an earlier unfinished
	// job, preserving per-entity ordering.
	ClaimPending(ctx context.Context, limit int) ([]*Job, error)

	// FindByStatus returns jobs in the given status, newest first
	FindByStatus(ctx context.Context, status JobStatus, page, pageSize int) ([]*Job, int64, error)

	// FindDead returns terminally failed jobs for the operator board
	FindDead(ctx context.Context, page, pageSize int) ([]*Job, int64, error)

	// CountByStatus returns job counts per status
	CountByStatus(ctx context.Context) (map[JobStatus]int64, error)

	// DeleteCompletedBefore removes completed jobs older than the cutoff
	DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error)
}
