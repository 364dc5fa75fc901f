package persistence

import (
	"context"

	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/erp/vendorsync/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormAuditRepository implements vendorsync.AuditRepository
type GormAuditRepository struct {
	db *gorm.DB
}

// NewGormAuditRepository creates a new GormAuditRepository
func NewGormAuditRepository(db *gorm.DB) *GormAuditRepository {
	return &GormAuditRepository{db: db}
}

// Append inserts an entry; a redelivered event id is ignored
func (r *GormAuditRepository) Append(ctx context.Context, entry *vendorsync.AuditEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(models.AuditEntryModelFromDomain(entry)).Error
}

// ListByJob returns a job's audit trail in occurrence order
func (r *GormAuditRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*vendorsync.AuditEntry, error) {
	var rows []models.AuditEntryModel
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("occurred_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]*vendorsync.AuditEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries, nil
}

var _ vendorsync.AuditRepository = (*GormAuditRepository)(nil)
