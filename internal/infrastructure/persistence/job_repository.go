package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/storefront/backend/internal/domain/shared"
	domainsync "github.com/storefront/backend/internal/domain/sync"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
)

// GormJobRepository implements sync.JobRepository using GORM
type GormJobRepository struct {
	db *gorm.DB
}

// NewGormJobRepository creates a new GormJobRepository
func NewGormJobRepository(db *gorm.DB) *GormJobRepository {
	return &GormJobRepository{db: db}
}

// Save inserts one or more jobs
func (r *GormJobRepository) Save(ctx context.Context, jobs ...*domainsync.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	rows := make([]models.SyncJobModel, len(jobs))
	for i, job := range jobs {
		rows[i].FromDomain(job)
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// Update persists the current state of a job
func (r *GormJobRepository) Update(ctx context.Context, job *domainsync.Job) error {
	var model models.SyncJobModel
	model.FromDomain(job)
	return r.db.WithContext(ctx).Save(&model).Error
}

// FindByID finds a job by its ID
func (r *GormJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*domainsync.Job, error) {
	var model models.SyncJobModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ClaimPending claims up to limit due jobs and marks them PROCESSING. The
// row locks make claims exclusive across concurrent drain cycles; the
// correlated NOT EXISTS keeps per-entity FIFO order by skipping any job
// whose entity still has an earlier unfinished job.
func (r *GormJobRepository) ClaimPending(ctx context.Context, limit int) ([]*domainsync.Job, error) {
	if limit < 1 {
		limit = 1
	}

	var claimed []models.SyncJobModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		due := tx.Where(
			"status = ? OR (status = ? AND next_retry_at <= ?)",
			string(domainsync.JobStatusPending),
			string(domainsync.JobStatusFailed),
			now,
		)

		if err := tx.
			Clauses(clause.Locking{
				Strength: "UPDATE",
				Options:  "SKIP LOCKED",
			}).
			Where(due).
			Where(`NOT EXISTS (
				SELECT 1 FROM sync_jobs earlier
				WHERE earlier.entity_id = sync_jobs.entity_id
				  AND earlier.created_at < sync_jobs.created_at
				  AND earlier.status NOT IN ?
			)`, []string{
				string(domainsync.JobStatusCompleted),
				string(domainsync.JobStatusDead),
			}).
			Order("created_at ASC").
			Limit(limit).
			Find(&claimed).Error; err != nil {
			return err
		}

		if len(claimed) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(claimed))
		for i, row := range claimed {
			ids[i] = row.ID
		}

		if err := tx.Model(&models.SyncJobModel{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":          string(domainsync.JobStatusProcessing),
				"last_attempt_at": now,
				"updated_at":      now,
			}).Error; err != nil {
			return err
		}

		for i := range claimed {
			claimed[i].Status = string(domainsync.JobStatusProcessing)
			claimed[i].LastAttemptAt = &now
			claimed[i].UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	jobs := make([]*domainsync.Job, len(claimed))
	for i := range claimed {
		jobs[i] = claimed[i].ToDomain()
	}
	return jobs, nil
}

// FindByStatus returns jobs in the given status, newest first
func (r *GormJobRepository) FindByStatus(ctx context.Context, status domainsync.JobStatus, page, pageSize int) ([]*domainsync.Job, int64, error) {
	return r.findPaged(ctx, page, pageSize, "status = ?", string(status))
}

// FindDead returns terminally failed jobs, newest first
func (r *GormJobRepository) FindDead(ctx context.Context, page, pageSize int) ([]*domainsync.Job, int64, error) {
	return r.findPaged(ctx, page, pageSize, "status = ?", string(domainsync.JobStatusDead))
}

func (r *GormJobRepository) findPaged(ctx context.Context, page, pageSize int, query string, args ...interface{}) ([]*domainsync.Job, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.SyncJobModel{}).
		Where(query, args...).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.SyncJobModel
	if err := r.db.WithContext(ctx).
		Where(query, args...).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	jobs := make([]*domainsync.Job, len(rows))
	for i := range rows {
		jobs[i] = rows[i].ToDomain()
	}
	return jobs, total, nil
}

// CountByStatus returns job counts grouped by status
func (r *GormJobRepository) CountByStatus(ctx context.Context) (map[domainsync.JobStatus]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}
	var rows []statusCount
	if err := r.db.WithContext(ctx).Model(&models.SyncJobModel{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[domainsync.JobStatus]int64, len(rows))
	for _, row := range rows {
		counts[domainsync.JobStatus(row.Status)] = row.Count
	}
	return counts, nil
}

// DeleteCompletedBefore removes completed jobs older than the cutoff
func (r *GormJobRepository) DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND completed_at < ?", string(domainsync.JobStatusCompleted), before).
		Delete(&models.SyncJobModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
