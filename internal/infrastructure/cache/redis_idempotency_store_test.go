package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisIdempotencyStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisIdempotencyStore(client, "")
	ctx := context.Background()

	isNew, err := store.MarkProcessed(ctx, "acme:dlv-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.True(t, mr.Exists(defaultIdempotencyPrefix+"acme:dlv-1"))

	isNew, err = store.MarkProcessed(ctx, "acme:dlv-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, isNew)

	mr.FastForward(2 * time.Minute)
	processed, err := store.IsProcessed(ctx, "acme:dlv-1")
	require.NoError(t, err)
	assert.False(t, processed)

	_, err = store.MarkProcessed(ctx, "acme:dlv-2", time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Forget(ctx, "acme:dlv-2"))
	processed, err = store.IsProcessed(ctx, "acme:dlv-2")
	require.NoError(t, err)
	assert.False(t, processed)

	assert.NoError(t, store.Close())
}

func TestRedisIdempotencyStore_ConnectionError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	store := NewRedisIdempotencyStore(client, "x:")
	_, err := store.MarkProcessed(context.Background(), "k", time.Minute)
	assert.Error(t, err)
}
