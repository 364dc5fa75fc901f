package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/vendorsync/internal/domain/shared"
	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/erp/vendorsync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormRecordStore implements vendorsync.RecordStore using GORM
type GormRecordStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormRecordStore creates a new GormRecordStore
func NewGormRecordStore(db *gorm.DB) *GormRecordStore {
	return &GormRecordStore{db: db, now: time.Now}
}

// Find returns the internal record for (domain, vendor, business key)
func (s *GormRecordStore) Find(ctx context.Context, domain vendorsync.SyncType, vendorID, businessKey string) (*vendorsync.VendorRecord, error) {
	var model models.RecordModel
	err := s.db.WithContext(ctx).
		Where("domain = ? AND vendor_id = ? AND business_key = ?", string(domain), vendorID, businessKey).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: record %s/%s/%s", shared.ErrNotFound, domain, vendorID, businessKey)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save upserts by business key. The stored row keeps its identity and
// creation time; the returned record is the internal copy.
func (s *GormRecordStore) Save(ctx context.Context, record vendorsync.VendorRecord) (*vendorsync.VendorRecord, error) {
	if record.BusinessKey == "" || record.VendorID == "" || !record.Domain.IsValid() {
		return nil, fmt.Errorf("%w: record needs domain, vendor and business key", shared.ErrInvalidInput)
	}

	var saved *models.RecordModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := models.RecordModelFromDomain(record)

		var existing models.RecordModel
		err := tx.Where("domain = ? AND vendor_id = ? AND business_key = ?",
			model.Domain, model.VendorID, model.BusinessKey).First(&existing).Error
		switch {
		case err == nil:
			model.ID = existing.ID
			model.CreatedAt = existing.CreatedAt
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		now := s.now()
		if model.CreatedAt.IsZero() {
			model.CreatedAt = now
		}
		if model.UpdatedAt.IsZero() {
			model.UpdatedAt = now
		}
		if err := tx.Save(model).Error; err != nil {
			return err
		}
		saved = model
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save record %s: %w", record.BusinessKey, err)
	}
	return saved.ToDomain(), nil
}

var _ vendorsync.RecordStore = (*GormRecordStore)(nil)
