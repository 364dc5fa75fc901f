package event

import (
	"context"
	"fmt"

	"github.com/erp/vendorsync/internal/domain/shared"
	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/google/uuid"
)

// AuditRecorder persists every sync event as an immutable audit entry.
// Appends are keyed by event id, so redelivery is harmless.
type AuditRecorder struct {
	repo       vendorsync.AuditRepository
	serializer *EventSerializer
}

// NewAuditRecorder creates an audit subscriber
func NewAuditRecorder(repo vendorsync.AuditRepository, serializer *EventSerializer) *AuditRecorder {
	if serializer == nil {
		serializer = NewSyncEventSerializer()
	}
	return &AuditRecorder{repo: repo, serializer: serializer}
}

// EventTypes returns the sync job and conflict events
func (r *AuditRecorder) EventTypes() []string {
	return []string{
		vendorsync.EventTypeSyncStarted,
		vendorsync.EventTypeSyncCompleted,
		vendorsync.EventTypeSyncFailed,
		vendorsync.EventTypeConflictFlagged,
	}
}

// Handle appends the event to the audit log
func (r *AuditRecorder) Handle(ctx context.Context, event shared.DomainEvent) error {
	payload, err := r.serializer.Serialize(event)
	if err != nil {
		return err
	}

	entry := &vendorsync.AuditEntry{
		ID:         uuid.New(),
		EventID:    event.EventID(),
		EventType:  event.EventType(),
		JobID:      event.AggregateID(),
		Payload:    payload,
		OccurredAt: event.OccurredAt(),
	}
	if fe, ok := event.(shared.FieldEvent); ok {
		if v, ok := fe.Fields()["vendor_id"].(string); ok {
			entry.VendorID = v
		}
	}

	if err := r.repo.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry for %s: %w", event.EventType(), err)
	}
	return nil
}

var _ shared.EventHandler = (*AuditRecorder)(nil)
