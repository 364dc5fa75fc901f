package vendorsync

import (
	"github.com/erp/vendorsync/internal/domain/shared"
	"github.com/google/uuid"
)

// Event types published on job state transitions
const (
	EventTypeSyncStarted     = "sync.started"
	EventTypeSyncCompleted   = "sync.completed"
	EventTypeSyncFailed      = "sync.failed"
	EventTypeConflictFlagged = "conflict.flagged"
)

// AggregateTypeSyncJob is the aggregate type of sync job events
const AggregateTypeSyncJob = "SyncJob"

// SyncStartedEvent is published when a job starts running
type SyncStartedEvent struct {
	shared.BaseDomainEvent
	VendorID   string   `json:"vendor_id"`
	SyncType   SyncType `json:"sync_type"`
	Priority   int      `json:"priority"`
	RetryCount int      `json:"retry_count"`
}

// NewSyncStartedEvent creates a sync.started event
func NewSyncStartedEvent(job *SyncJob) *SyncStartedEvent {
	return &SyncStartedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSyncStarted, AggregateTypeSyncJob, job.ID),
		VendorID:        job.VendorID,
		SyncType:        job.SyncType,
		Priority:        job.Priority,
		RetryCount:      job.RetryCount,
	}
}

// Fields implements shared.FieldEvent
func (e *SyncStartedEvent) Fields() shared.Fields {
	return shared.Fields{
		"type":        e.Type,
		"job_id":      e.AggID.String(),
		"vendor_id":   e.VendorID,
		"sync_type":   string(e.SyncType),
		"priority":    e.Priority,
		"retry_count": e.RetryCount,
	}
}

// SyncCompletedEvent is published when a job completes
type SyncCompletedEvent struct {
	shared.BaseDomainEvent
	VendorID   string      `json:"vendor_id"`
	SyncType   SyncType    `json:"sync_type"`
	Result     BatchReport `json:"totals"`
	DurationMs int64       `json:"duration_ms"`
}

// NewSyncCompletedEvent creates a sync.completed event
func NewSyncCompletedEvent(job *SyncJob) *SyncCompletedEvent {
	return &SyncCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSyncCompleted, AggregateTypeSyncJob, job.ID),
		VendorID:        job.VendorID,
		SyncType:        job.SyncType,
		Result:          job.Result.Totals(),
		DurationMs:      job.Duration().Milliseconds(),
	}
}

// Fields implements shared.FieldEvent
func (e *SyncCompletedEvent) Fields() shared.Fields {
	return shared.Fields{
		"type":        e.Type,
		"job_id":      e.AggID.String(),
		"vendor_id":   e.VendorID,
		"sync_type":   string(e.SyncType),
		"processed":   e.Result.Processed,
		"succeeded":   e.Result.Succeeded,
		"failed":      e.Result.Failed,
		"flagged":     e.Result.Flagged,
		"duration_ms": e.DurationMs,
	}
}

// SyncFailedEvent is published when a job fails. Terminal is true when no
// retry follows.
type SyncFailedEvent struct {
	shared.BaseDomainEvent
	VendorID   string   `json:"vendor_id"`
	SyncType   SyncType `json:"sync_type"`
	Error      string   `json:"error"`
	RetryCount int      `json:"retry_count"`
	MaxRetries int      `json:"max_retries"`
	Terminal   bool     `json:"terminal"`
}

// NewSyncFailedEvent creates a sync.failed event
func NewSyncFailedEvent(job *SyncJob, terminal bool) *SyncFailedEvent {
	return &SyncFailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSyncFailed, AggregateTypeSyncJob, job.ID),
		VendorID:        job.VendorID,
		SyncType:        job.SyncType,
		Error:           job.LastError,
		RetryCount:      job.RetryCount,
		MaxRetries:      job.MaxRetries,
		Terminal:        terminal,
	}
}

// Fields implements shared.FieldEvent
func (e *SyncFailedEvent) Fields() shared.Fields {
	return shared.Fields{
		"type":        e.Type,
		"job_id":      e.AggID.String(),
		"vendor_id":   e.VendorID,
		"sync_type":   string(e.SyncType),
		"error":       e.Error,
		"retry_count": e.RetryCount,
		"max_retries": e.MaxRetries,
		"terminal":    e.Terminal,
	}
}

// ConflictFlaggedEvent is published when a record is parked for review
type ConflictFlaggedEvent struct {
	shared.BaseDomainEvent
	VendorID    string           `json:"vendor_id"`
	Domain      SyncType         `json:"domain"`
	BusinessKey string           `json:"business_key"`
	Envelope    ConflictEnvelope `json:"envelope"`
}

// NewConflictFlaggedEvent creates a conflict.flagged event
func NewConflictFlaggedEvent(jobID uuid.UUID, envelope ConflictEnvelope) *ConflictFlaggedEvent {
	return &ConflictFlaggedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeConflictFlagged, AggregateTypeSyncJob, jobID),
		VendorID:        envelope.VendorValue.VendorID,
		Domain:          envelope.VendorValue.Domain,
		BusinessKey:     envelope.VendorValue.BusinessKey,
		Envelope:        envelope,
	}
}

// Fields implements shared.FieldEvent
func (e *ConflictFlaggedEvent) Fields() shared.Fields {
	return shared.Fields{
		"type":          e.Type,
		"job_id":        e.AggID.String(),
		"vendor_id":     e.VendorID,
		"domain":        string(e.Domain),
		"business_key":  e.BusinessKey,
		"conflict_type": string(e.Envelope.Type),
	}
}

var (
	_ shared.FieldEvent = (*SyncStartedEvent)(nil)
	_ shared.FieldEvent = (*SyncCompletedEvent)(nil)
	_ shared.FieldEvent = (*SyncFailedEvent)(nil)
	_ shared.FieldEvent = (*ConflictFlaggedEvent)(nil)
)
