package models

import (
	"time"

	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VendorModel is the persistence model for vendors
type VendorModel struct {
	ID            string                   `gorm:"primaryKey;size:64"`
	Name          string                   `gorm:"size:255;not null"`
	Active        bool                     `gorm:"not null;default:true;index"`
	AdapterConfig vendorsync.AdapterConfig `gorm:"type:text;serializer:json;not null"`
	Cadences      []vendorsync.Cadence     `gorm:"type:text;serializer:json"`
	CreatedAt     time.Time                `gorm:"not null"`
	UpdatedAt     time.Time                `gorm:"not null"`
}

// TableName returns the table name for GORM
func (VendorModel) TableName() string {
	return "vendors"
}

// ToDomain converts the model to a domain vendor
func (m *VendorModel) ToDomain() *vendorsync.Vendor {
	return &vendorsync.Vendor{
		ID:            m.ID,
		Name:          m.Name,
		Active:        m.Active,
		AdapterConfig: m.AdapterConfig,
		Cadences:      m.Cadences,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// VendorModelFromDomain converts a domain vendor to its model
func VendorModelFromDomain(v *vendorsync.Vendor) *VendorModel {
	return &VendorModel{
		ID:            v.ID,
		Name:          v.Name,
		Active:        v.Active,
		AdapterConfig: v.AdapterConfig,
		Cadences:      v.Cadences,
		CreatedAt:     v.CreatedAt,
		UpdatedAt:     v.UpdatedAt,
	}
}

// RecordModel is the internal system-of-record copy of a synced entity.
// Timestamps are the record's own and are never rewritten by GORM.
type RecordModel struct {
	ID          uuid.UUID           `gorm:"type:uuid;primaryKey"`
	Domain      string              `gorm:"size:16;not null;uniqueIndex:idx_records_key,priority:1"`
	VendorID    string              `gorm:"size:64;not null;uniqueIndex:idx_records_key,priority:2"`
	BusinessKey string              `gorm:"size:128;not null;uniqueIndex:idx_records_key,priority:3"`
	Name        string              `gorm:"size:255"`
	Quantity    decimal.NullDecimal `gorm:"type:decimal(20,6)"`
	Price       decimal.NullDecimal `gorm:"type:decimal(20,6)"`
	Currency    string              `gorm:"size:3"`
	Status      string              `gorm:"size:32"`
	Version     int64               `gorm:"not null;default:0"`
	Attributes  map[string]string   `gorm:"type:text;serializer:json"`
	CreatedAt   time.Time           `gorm:"not null;autoCreateTime:false"`
	UpdatedAt   time.Time           `gorm:"not null;autoUpdateTime:false"`
}

// TableName returns the table name for GORM
func (RecordModel) TableName() string {
	return "sync_records"
}

// ToDomain converts the model to an internal-source record
func (m *RecordModel) ToDomain() *vendorsync.VendorRecord {
	r := &vendorsync.VendorRecord{
		ID:          m.ID.String(),
		BusinessKey: m.BusinessKey,
		VendorID:    m.VendorID,
		Domain:      vendorsync.SyncType(m.Domain),
		Source:      vendorsync.SourceInternal,
		Name:        m.Name,
		Currency:    m.Currency,
		Status:      m.Status,
		Version:     m.Version,
		Attributes:  m.Attributes,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.Quantity.Valid {
		r.Quantity = vendorsync.DecimalPtr(m.Quantity.Decimal)
	}
	if m.Price.Valid {
		r.Price = vendorsync.DecimalPtr(m.Price.Decimal)
	}
	return r
}

// RecordModelFromDomain converts a record to its model. An empty or
// non-UUID id gets a fresh one.
func RecordModelFromDomain(r vendorsync.VendorRecord) *RecordModel {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		id = uuid.New()
	}
	m := &RecordModel{
		ID:          id,
		Domain:      string(r.Domain),
		VendorID:    r.VendorID,
		BusinessKey: r.BusinessKey,
		Name:        r.Name,
		Currency:    r.Currency,
		Status:      r.Status,
		Version:     r.Version,
		Attributes:  r.Attributes,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.Quantity != nil {
		m.Quantity = decimal.NewNullDecimal(*r.Quantity)
	}
	if r.Price != nil {
		m.Price = decimal.NewNullDecimal(*r.Price)
	}
	return m
}

// JobHistoryModel is an archived snapshot of a sync job
type JobHistoryModel struct {
	ID          uuid.UUID              `gorm:"type:uuid;primaryKey"`
	VendorID    string                 `gorm:"size:64;not null;index:idx_job_history_vendor,priority:1"`
	SyncType    string                 `gorm:"size:16;not null"`
	Priority    int                    `gorm:"not null"`
	Status      string                 `gorm:"size:16;not null;index"`
	Trigger     string                 `gorm:"column:trigger_source;size:16;not null"`
	RetryCount  int                    `gorm:"not null;default:0"`
	MaxRetries  int                    `gorm:"not null;default:0"`
	LastError   string                 `gorm:"type:text"`
	Result      *vendorsync.SyncResult `gorm:"type:text;serializer:json"`
	CreatedAt   time.Time              `gorm:"not null;autoCreateTime:false;index:idx_job_history_vendor,priority:2,sort:desc"`
	StartedAt   *time.Time
	CompletedAt *time.Time
	ArchivedAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (JobHistoryModel) TableName() string {
	return "sync_job_history"
}

// ToDomain converts the model to a job snapshot. Inline payloads are not archived.
func (m *JobHistoryModel) ToDomain() *vendorsync.SyncJob {
	return &vendorsync.SyncJob{
		ID:          m.ID,
		VendorID:    m.VendorID,
		SyncType:    vendorsync.SyncType(m.SyncType),
		Priority:    m.Priority,
		Status:      vendorsync.JobStatus(m.Status),
		Trigger:     vendorsync.TriggerSource(m.Trigger),
		RetryCount:  m.RetryCount,
		MaxRetries:  m.MaxRetries,
		LastError:   m.LastError,
		Result:      m.Result,
		CreatedAt:   m.CreatedAt,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
	}
}

// JobHistoryModelFromDomain converts a job to its archive model
func JobHistoryModelFromDomain(j *vendorsync.SyncJob, archivedAt time.Time) *JobHistoryModel {
	return &JobHistoryModel{
		ID:          j.ID,
		VendorID:    j.VendorID,
		SyncType:    string(j.SyncType),
		Priority:    j.Priority,
		Status:      string(j.Status),
		Trigger:     string(j.Trigger),
		RetryCount:  j.RetryCount,
		MaxRetries:  j.MaxRetries,
		LastError:   j.LastError,
		Result:      j.Result,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		ArchivedAt:  archivedAt,
	}
}

// ConflictReviewModel stores a manual-review envelope
type ConflictReviewModel struct {
	ID          uuid.UUID                   `gorm:"type:uuid;primaryKey"`
	JobID       uuid.UUID                   `gorm:"type:uuid;not null;index"`
	VendorID    string                      `gorm:"size:64;not null;index:idx_reviews_open,priority:1"`
	Domain      string                      `gorm:"size:16;not null"`
	BusinessKey string                      `gorm:"size:128;not null"`
	Type        string                      `gorm:"size:16;not null"`
	Envelope    vendorsync.ConflictEnvelope `gorm:"type:text;serializer:json;not null"`
	Status      string                      `gorm:"size:16;not null;index:idx_reviews_open,priority:2"`
	CreatedAt   time.Time                   `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ConflictReviewModel) TableName() string {
	return "conflict_reviews"
}

// ToDomain converts the model to a domain review
func (m *ConflictReviewModel) ToDomain() *vendorsync.ConflictReview {
	return &vendorsync.ConflictReview{
		ID:        m.ID,
		JobID:     m.JobID,
		Envelope:  m.Envelope,
		Status:    vendorsync.ReviewStatus(m.Status),
		CreatedAt: m.CreatedAt,
	}
}

// ConflictReviewModelFromDomain converts a review to its model
func ConflictReviewModelFromDomain(r *vendorsync.ConflictReview) *ConflictReviewModel {
	return &ConflictReviewModel{
		ID:          r.ID,
		JobID:       r.JobID,
		VendorID:    r.Envelope.VendorValue.VendorID,
		Domain:      string(r.Envelope.VendorValue.Domain),
		BusinessKey: r.Envelope.VendorValue.BusinessKey,
		Type:        string(r.Envelope.Type),
		Envelope:    r.Envelope,
		Status:      string(r.Status),
		CreatedAt:   r.CreatedAt,
	}
}

// AuditEntryModel is one row of the sync audit trail
type AuditEntryModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	EventID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	EventType  string    `gorm:"size:64;not null;index"`
	JobID      uuid.UUID `gorm:"type:uuid;not null;index"`
	VendorID   string    `gorm:"size:64;index"`
	Payload    string    `gorm:"type:text"`
	OccurredAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AuditEntryModel) TableName() string {
	return "sync_audit_entries"
}

// ToDomain converts the model to a domain audit entry
func (m *AuditEntryModel) ToDomain() *vendorsync.AuditEntry {
	return &vendorsync.AuditEntry{
		ID:         m.ID,
		EventID:    m.EventID,
		EventType:  m.EventType,
		JobID:      m.JobID,
		VendorID:   m.VendorID,
		Payload:    []byte(m.Payload),
		OccurredAt: m.OccurredAt,
	}
}

// AuditEntryModelFromDomain converts an audit entry to its model
func AuditEntryModelFromDomain(e *vendorsync.AuditEntry) *AuditEntryModel {
	return &AuditEntryModel{
		ID:         e.ID,
		EventID:    e.EventID,
		EventType:  e.EventType,
		JobID:      e.JobID,
		VendorID:   e.VendorID,
		Payload:    string(e.Payload),
		OccurredAt: e.OccurredAt,
	}
}

// AllModels lists every model for AutoMigrate
func AllModels() []any {
	return []any{
		&VendorModel{},
		&RecordModel{},
		&JobHistoryModel{},
		&ConflictReviewModel{},
		&AuditEntryModel{},
	}
}
