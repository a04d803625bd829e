package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/storefront/backend/internal/domain/erp"
	"github.com/storefront/backend/internal/domain/sync"
)

// SyncRunModel is the persistence model for the SyncRun audit record
type SyncRunModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key"`
	Kind          string    `gorm:"type:varchar(20);not null;index:idx_sync_runs_kind_status"`
	Status        string    `gorm:"type:varchar(20);not null;index:idx_sync_runs_kind_status"`
	Trigger       string    `gorm:"type:varchar(20);not null;column:trigger_source"`
	Created       int       `gorm:"not null;default:0"`
	Updated       int       `gorm:"not null;default:0"`
	Skipped       int       `gorm:"not null;default:0"`
	Errored       int       `gorm:"not null;default:0"`
	ErrorsJSON    string    `gorm:"type:jsonb;column:errors"`
	FailureReason string    `gorm:"type:text"`
	StartedAt     time.Time `gorm:"not null;index"`
	CompletedAt   *time.Time
}

// TableName returns the table name for GORM
func (SyncRunModel) TableName() string {
	return "sync_runs"
}

// ToDomain converts the persistence model to a domain SyncRun
func (m *SyncRunModel) ToDomain() *sync.SyncRun {
	run := &sync.SyncRun{
		ID:            m.ID,
		Kind:          erp.RecordKind(m.Kind),
		Status:        sync.RunStatus(m.Status),
		Trigger:       sync.TriggerSource(m.Trigger),
		Created:       m.Created,
		Updated:       m.Updated,
		Skipped:       m.Skipped,
		Errored:       m.Errored,
		Errors:        make([]sync.RunError, 0),
		FailureReason: m.FailureReason,
		StartedAt:     m.StartedAt,
		CompletedAt:   m.CompletedAt,
	}
	if m.ErrorsJSON != "" {
		var errs []sync.RunError
		if err := json.Unmarshal([]byte(m.ErrorsJSON), &errs); err == nil {
			run.Errors = errs
		}
	}
	return run
}

// FromDomain populates the persistence model from a domain SyncRun
func (m *SyncRunModel) FromDomain(run *sync.SyncRun) {
	m.ID = run.ID
	m.Kind = run.Kind.String()
	m.Status = string(run.Status)
	m.Trigger = string(run.Trigger)
	m.Created = run.Created
	m.Updated = run.Updated
	m.Skipped = run.Skipped
	m.Errored = run.Errored
	m.FailureReason = run.FailureReason
	m.StartedAt = run.StartedAt
	m.CompletedAt = run.CompletedAt

	if len(run.Errors) > 0 {
		if data, err := json.Marshal(run.Errors); err == nil {
			m.ErrorsJSON = string(data)
		}
	} else {
		m.ErrorsJSON = "[]"
	}
}

// SyncJobModel is the persistence model for the durable push Job
type SyncJobModel struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key"`
	Type           string     `gorm:"type:varchar(30);not null"`
	EntityID       uuid.UUID  `gorm:"type:uuid;not null;index"`
	Payload        []byte     `gorm:"type:jsonb"`
	IdempotencyKey string     `gorm:"type:varchar(100);not null;index"`
	Status         string     `gorm:"type:varchar(20);not null;index:idx_sync_jobs_status_retry"`
	Attempts       int        `gorm:"not null;default:0"`
	MaxAttempts    int        `gorm:"not null"`
	LastError      string     `gorm:"type:text"`
	NextRetryAt    *time.Time `gorm:"index:idx_sync_jobs_status_retry"`
	LastAttemptAt  *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time `gorm:"not null;index"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncJobModel) TableName() string {
	return "sync_jobs"
}

// ToDomain converts the persistence model to a domain Job
func (m *SyncJobModel) ToDomain() *sync.Job {
	return &sync.Job{
		ID:             m.ID,
		Type:           sync.JobType(m.Type),
		EntityID:       m.EntityID,
		Payload:        m.Payload,
		IdempotencyKey: m.IdempotencyKey,
		Status:         sync.JobStatus(m.Status),
		Attempts:       m.Attempts,
		MaxAttempts:    m.MaxAttempts,
		LastError:      m.LastError,
		NextRetryAt:    m.NextRetryAt,
		LastAttemptAt:  m.LastAttemptAt,
		CompletedAt:    m.CompletedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Job
func (m *SyncJobModel) FromDomain(job *sync.Job) {
	m.ID = job.ID
	m.Type = string(job.Type)
	m.EntityID = job.EntityID
	m.Payload = job.Payload
	m.IdempotencyKey = job.IdempotencyKey
	m.Status = string(job.Status)
	m.Attempts = job.Attempts
	m.MaxAttempts = job.MaxAttempts
	m.LastError = job.LastError
	m.NextRetryAt = job.NextRetryAt
	m.LastAttemptAt = job.LastAttemptAt
	m.CompletedAt = job.CompletedAt
	m.CreatedAt = job.CreatedAt
	m.UpdatedAt = job.UpdatedAt
}
