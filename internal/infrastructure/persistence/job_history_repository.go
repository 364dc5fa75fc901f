package persistence

import (
	"context"
	"time"

	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/erp/vendorsync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// DefaultHistoryLimit caps history queries without an explicit limit
const DefaultHistoryLimit = 100

// GormJobHistoryRepository implements vendorsync.JobHistoryRepository
type GormJobHistoryRepository struct {
	db *gorm.DB
}

// NewGormJobHistoryRepository creates a new GormJobHistoryRepository
func NewGormJobHistoryRepository(db *gorm.DB) *GormJobHistoryRepository {
	return &GormJobHistoryRepository{db: db}
}

// Archive stores (or refreshes) the snapshot of a job
func (r *GormJobHistoryRepository) Archive(ctx context.Context, job *vendorsync.SyncJob) error {
	return r.db.WithContext(ctx).Save(models.JobHistoryModelFromDomain(job, time.Now())).Error
}

// ListByVendor returns the newest archived jobs of a vendor first
func (r *GormJobHistoryRepository) ListByVendor(ctx context.Context, vendorID string, limit int) ([]*vendorsync.SyncJob, error) {
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}
	var rows []models.JobHistoryModel
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	jobs := make([]*vendorsync.SyncJob, len(rows))
	for i := range rows {
		jobs[i] = rows[i].ToDomain()
	}
	return jobs, nil
}

var _ vendorsync.JobHistoryRepository = (*GormJobHistoryRepository)(nil)
