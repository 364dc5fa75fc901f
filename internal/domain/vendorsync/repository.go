package vendorsync

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// VendorRepository reads vendor definitions
type VendorRepository interface {
	FindByID(ctx context.Context, id string) (*Vendor, error)
	ListActive(ctx context.Context) ([]*Vendor, error)
	Save(ctx context.Context, vendor *Vendor) error
}

// RecordStore holds the internal system-of-record copy of each synced entity,
// keyed by (domain, vendor, business key).
type RecordStore interface {
	// Find returns the internal record or an error wrapping shared.ErrNotFound
	Find(ctx context.Context, domain SyncType, vendorID, businessKey string) (*VendorRecord, error)
	// Save upserts a record and returns the stored version
	Save(ctx context.Context, record VendorRecord) (*VendorRecord, error)
}

// ReviewStatus is the state of a flagged conflict
type ReviewStatus string

const (
	ReviewStatusOpen     ReviewStatus = "open"
	ReviewStatusResolved ReviewStatus = "resolved"
)

// ConflictReview is a conflict waiting for an operator
type ConflictReview struct {
	ID        uuid.UUID
	JobID     uuid.UUID
	Envelope  ConflictEnvelope
	Status    ReviewStatus
	CreatedAt time.Time
}

// ConflictReviewRepository stores manual-review envelopes
type ConflictReviewRepository interface {
	Save(ctx context.Context, review *ConflictReview) error
	ListOpen(ctx context.Context, vendorID string, limit int) ([]*ConflictReview, error)
}

// JobHistoryRepository archives job snapshots for status and history queries
type JobHistoryRepository interface {
	Archive(ctx context.Context, job *SyncJob) error
	ListByVendor(ctx context.Context, vendorID string, limit int) ([]*SyncJob, error)
}

// AuditEntry is one immutable record of a job state transition
type AuditEntry struct {
	ID         uuid.UUID
	EventID    uuid.UUID
	EventType  string
	JobID      uuid.UUID
	VendorID   string
	Payload    []byte
	OccurredAt time.Time
}

// AuditRepository appends audit entries
type AuditRepository interface {
	Append(ctx context.Context, entry *AuditEntry) error
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*AuditEntry, error)
}
