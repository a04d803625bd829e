package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storefront/backend/internal/domain/erp"
	"github.com/storefront/backend/internal/domain/shared"
	domainsync "github.com/storefront/backend/internal/domain/sync"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
)

// GormRunRepository implements sync.RunRepository using GORM
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a new GormRunRepository
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

// Save inserts a new sync run
func (r *GormRunRepository) Save(ctx context.Context, run *domainsync.SyncRun) error {
	var model models.SyncRunModel
	model.FromDomain(run)
	return r.db.WithContext(ctx).Create(&model).Error
}

// Update persists the current state of a sync run
func (r *GormRunRepository) Update(ctx context.Context, run *domainsync.SyncRun) error {
	var model models.SyncRunModel
	model.FromDomain(run)
	return r.db.WithContext(ctx).Save(&model).Error
}

// FindByID finds a sync run by its ID
func (r *GormRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*domainsync.SyncRun, error) {
	var model models.SyncRunModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns sync runs newest first
func (r *GormRunRepository) List(ctx context.Context, page, pageSize int) ([]*domainsync.SyncRun, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.SyncRunModel{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.SyncRunModel
	if err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	runs := make([]*domainsync.SyncRun, len(rows))
	for i := range rows {
		runs[i] = rows[i].ToDomain()
	}
	return runs, total, nil
}

// LastCompleted returns the most recent completed run for a kind
func (r *GormRunRepository) LastCompleted(ctx context.Context, kind erp.RecordKind) (*domainsync.SyncRun, error) {
	var model models.SyncRunModel
	if err := r.db.WithContext(ctx).
		Where("kind = ? AND status = ?", kind.String(), string(domainsync.RunStatusCompleted)).
		Order("started_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}
