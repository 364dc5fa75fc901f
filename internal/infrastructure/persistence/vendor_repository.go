package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/erp/vendorsync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormVendorRepository implements vendorsync.VendorRepository using GORM
type GormVendorRepository struct {
	db *gorm.DB
}

// NewGormVendorRepository creates a new GormVendorRepository
func NewGormVendorRepository(db *gorm.DB) *GormVendorRepository {
	return &GormVendorRepository{db: db}
}

// FindByID finds a vendor by its ID
func (r *GormVendorRepository) FindByID(ctx context.Context, id string) (*vendorsync.Vendor, error) {
	var model models.VendorModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", vendorsync.ErrVendorNotFound, id)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListActive returns all active vendors ordered by ID
func (r *GormVendorRepository) ListActive(ctx context.Context) ([]*vendorsync.Vendor, error) {
	var rows []models.VendorModel
	if err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	vendors := make([]*vendorsync.Vendor, len(rows))
	for i := range rows {
		vendors[i] = rows[i].ToDomain()
	}
	return vendors, nil
}

// Save creates or updates a vendor after validating its adapter config
func (r *GormVendorRepository) Save(ctx context.Context, vendor *vendorsync.Vendor) error {
	if vendor.ID == "" {
		return vendorsync.NewValidationError("id", "is required")
	}
	if err := vendor.AdapterConfig.Validate(); err != nil {
		return err
	}
	now := time.Now()
	if vendor.CreatedAt.IsZero() {
		vendor.CreatedAt = now
	}
	vendor.UpdatedAt = now
	return r.db.WithContext(ctx).Save(models.VendorModelFromDomain(vendor)).Error
}

var _ vendorsync.VendorRepository = (*GormVendorRepository)(nil)
