package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*vendorsync.AuditEntry
	err     error
}

func (r *fakeAuditRepo) Append(ctx context.Context, entry *vendorsync.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeAuditRepo) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*vendorsync.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*vendorsync.AuditEntry
	for _, e := range r.entries {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestAuditRecorder_RecordsJobLifecycle(t *testing.T) {
	repo := &fakeAuditRepo{}
	serializer := NewSyncEventSerializer()
	bus := NewInMemoryEventBus(zap.NewNop())
	bus.Subscribe(NewAuditRecorder(repo, serializer))

	job := newJob(t, "acme", vendorsync.SyncTypePricing)
	job.LastError = "vendor unavailable"
	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx,
		vendorsync.NewSyncStartedEvent(job),
		vendorsync.NewSyncFailedEvent(job, true),
	))

	entries, err := repo.ListByJob(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, vendorsync.EventTypeSyncStarted, entries[0].EventType)
	assert.Equal(t, "acme", entries[1].VendorID)

	decoded, err := serializer.Deserialize(entries[1].EventType, entries[1].Payload)
	require.NoError(t, err)
	failed, ok := decoded.(*vendorsync.SyncFailedEvent)
	require.True(t, ok)
	assert.True(t, failed.Terminal)
	assert.Equal(t, "vendor unavailable", failed.Error)
	assert.Equal(t, entries[1].EventID, failed.EventID())
}

func TestAuditRecorder_PropagatesRepositoryErrors(t *testing.T) {
	repo := &fakeAuditRepo{err: errors.New("disk full")}
	rec := NewAuditRecorder(repo, nil)

	err := rec.Handle(context.Background(), vendorsync.NewSyncStartedEvent(newJob(t, "v1", vendorsync.SyncTypeOrder)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestEventSerializer(t *testing.T) {
	s := NewSyncEventSerializer()
	assert.Equal(t, []string{
		vendorsync.EventTypeConflictFlagged,
		vendorsync.EventTypeSyncCompleted,
		vendorsync.EventTypeSyncFailed,
		vendorsync.EventTypeSyncStarted,
	}, s.RegisteredTypes())

	_, err := s.Deserialize("unknown.event", []byte(`{}`))
	assert.Error(t, err)
	_, err = s.Deserialize(vendorsync.EventTypeSyncStarted, []byte(`{`))
	assert.Error(t, err)
}
