// Package sync holds the reconciliation subsystem's own entities: the
// SyncRun audit record and the durable Job ledger for outbound pushes.
package sync

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/storefront/backend/internal/domain/erp"
)

// RunStatus is the lifecycle of a reconciliation run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// TriggerSource records what started a run
type TriggerSource string

const (
	TriggerScheduler TriggerSource = "SCHEDULER"
	TriggerManual    TriggerSource = "MANUAL"
	TriggerWebhook   TriggerSource = "WEBHOOK"
	TriggerStartup   TriggerSource = "STARTUP"
)

// MaxRecordedErrors caps the per-run error list; further record-level errors
// still increment the Errored counter.
const MaxRecordedErrors = 25

// RunError is one record-level failure captured during a run
type RunError struct {
	ExternalID string `json:"external_id"`
	Message    string `json:"message"`
}

// SyncRun is the audit record of one reconciliation pass for one record
// kind. It is immutable once completed; only the component that owns the run
// mutates it while it is running.
type SyncRun struct {
	ID      uuid.UUID
	Kind    erp.RecordKind
	Status  RunStatus
	Trigger TriggerSource

	Created int
	Updated int
	Skipped int
	Errored int
	Errors  []RunError

	FailureReason string

	StartedAt   time.Time
	CompletedAt *time.Time
}

// NewSyncRun creates a run in the running state
func NewSyncRun(kind erp.RecordKind, trigger TriggerSource) *SyncRun {
	return &SyncRun{
		ID:        uuid.New(),
		Kind:      kind,
		Status:    RunStatusRunning,
		Trigger:   trigger,
		Errors:    make([]RunError, 0),
		StartedAt: time.Now(),
	}
}

// RecordCreated counts a newly created local entity
func (r *SyncRun) RecordCreated() { r.Created++ }

// RecordUpdated counts an updated (or delisted) local entity
func (r *SyncRun) RecordUpdated() { r.Updated++ }

// RecordSkipped counts a record that required no local change
func (r *SyncRun) RecordSkipped() { r.Skipped++ }

// RecordError counts a record-level error without aborting the run
func (r *SyncRun) RecordError(externalID, msg string) {
	r.Errored++
	if len(r.Errors) < MaxRecordedErrors {
		r.Errors = append(r.Errors, RunError{ExternalID: externalID, Message: msg})
	}
}

// Complete marks the run completed
func (r *SyncRun) Complete() {
	now := time.Now()
	r.Status = RunStatusCompleted
	r.CompletedAt = &now
}

// Fail marks the run failed with a run-level error. The counts reflect work
// applied before the failure; no partial page is committed past it.
func (r *SyncRun) Fail(reason string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.FailureReason = reason
	r.CompletedAt = &now
}

// RunRepository defines the persistence interface for sync runs
type RunRepository interface {
	Save(ctx context.Context, run *SyncRun) error
	Update(ctx context.Context, run *SyncRun) error
	FindByID(ctx context.Context, id uuid.UUID) (*SyncRun, error)
	// List returns runs newest first
	List(ctx context.Context, page, pageSize int) ([]*SyncRun, int64, error)
	// LastCompleted returns the most recent completed run for a kind, or
	// shared.ErrNotFound when the kind has never completed a run.
	LastCompleted(ctx context.Context, kind erp.RecordKind) (*SyncRun, error)
}
