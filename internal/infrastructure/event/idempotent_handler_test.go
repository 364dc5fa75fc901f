package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/vendorsync/internal/domain/shared"
	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/erp/vendorsync/internal/infrastructure/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStore(t *testing.T) *cache.InMemoryIdempotencyStore {
	t.Helper()
	store := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestIdempotentHandler_SkipsRedelivery(t *testing.T) {
	store := newStore(t)
	inner := newTestHandler(vendorsync.EventTypeSyncStarted)
	h := NewIdempotentHandler("audit", inner, store, zap.NewNop())
	ctx := context.Background()

	event := vendorsync.NewSyncStartedEvent(newJob(t, "v1", vendorsync.SyncTypeInventory))
	require.NoError(t, h.Handle(ctx, event))
	require.NoError(t, h.Handle(ctx, event))

	assert.Equal(t, 1, inner.count())
	assert.Equal(t, IdempotencyStats{Processed: 1, Duplicate: 1}, h.Stats())
	assert.Equal(t, inner.EventTypes(), h.EventTypes())
}

func TestIdempotentHandler_KeysAreScopedBySubscriber(t *testing.T) {
	store := newStore(t)
	a := newTestHandler()
	b := newTestHandler()
	ha := NewIdempotentHandler("a", a, store, nil)
	hb := NewIdempotentHandler("b", b, store, nil)

	event := vendorsync.NewSyncStartedEvent(newJob(t, "v1", vendorsync.SyncTypeInventory))
	require.NoError(t, ha.Handle(context.Background(), event))
	require.NoError(t, hb.Handle(context.Background(), event))

	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
}

func TestIdempotentHandler_FailureReleasesClaim(t *testing.T) {
	store := newStore(t)
	inner := newTestHandler()
	inner.err = errors.New("database unavailable")
	h := NewIdempotentHandler("audit", inner, store, zap.NewNop())
	ctx := context.Background()
	event := vendorsync.NewSyncStartedEvent(newJob(t, "v1", vendorsync.SyncTypeInventory))

	require.Error(t, h.Handle(ctx, event))

	inner.err = nil
	require.NoError(t, h.Handle(ctx, event))
	assert.Equal(t, 2, inner.count())
	assert.Equal(t, IdempotencyStats{Processed: 1, Failed: 1}, h.Stats())
}

func TestIdempotentHandler_Disabled(t *testing.T) {
	inner := newTestHandler()
	h := NewIdempotentHandler("audit", inner, newStore(t), zap.NewNop(),
		WithIdempotencyConfig(shared.IdempotencyConfig{TTL: time.Minute, Enabled: false}))

	event := vendorsync.NewSyncStartedEvent(newJob(t, "v1", vendorsync.SyncTypeInventory))
	require.NoError(t, h.Handle(context.Background(), event))
	require.NoError(t, h.Handle(context.Background(), event))
	assert.Equal(t, 2, inner.count())
}
