package persistence

import (
	"context"
	"time"

	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/erp/vendorsync/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormConflictReviewRepository implements vendorsync.ConflictReviewRepository
type GormConflictReviewRepository struct {
	db *gorm.DB
}

// NewGormConflictReviewRepository creates a new GormConflictReviewRepository
func NewGormConflictReviewRepository(db *gorm.DB) *GormConflictReviewRepository {
	return &GormConflictReviewRepository{db: db}
}

// Save stores a review, assigning an id and open status when missing
func (r *GormConflictReviewRepository) Save(ctx context.Context, review *vendorsync.ConflictReview) error {
	if review.ID == uuid.Nil {
		review.ID = uuid.New()
	}
	if review.Status == "" {
		review.Status = vendorsync.ReviewStatusOpen
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now()
	}
	return r.db.WithContext(ctx).Save(models.ConflictReviewModelFromDomain(review)).Error
}

// ListOpen returns open reviews, oldest first; an empty vendorID lists all vendors
func (r *GormConflictReviewRepository) ListOpen(ctx context.Context, vendorID string, limit int) ([]*vendorsync.ConflictReview, error) {
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}
	q := r.db.WithContext(ctx).Where("status = ?", string(vendorsync.ReviewStatusOpen))
	if vendorID != "" {
		q = q.Where("vendor_id = ?", vendorID)
	}

	var rows []models.ConflictReviewModel
	if err := q.Order("created_at ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	reviews := make([]*vendorsync.ConflictReview, len(rows))
	for i := range rows {
		reviews[i] = rows[i].ToDomain()
	}
	return reviews, nil
}

var _ vendorsync.ConflictReviewRepository = (*GormConflictReviewRepository)(nil)
