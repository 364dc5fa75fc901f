package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFileStore(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewLocalFileStore(root)

	t.Run("read missing file returns ErrFileNotFound", func(t *testing.T) {
		_, err := store.Read(ctx, "inbound/v1_inventory.json")
		assert.ErrorIs(t, err, ErrFileNotFound)
	})

	t.Run("write creates directories and read returns content", func(t *testing.T) {
		require.NoError(t, store.Write(ctx, "outbound/nested/order.json", []byte(`{"a":1}`)))

		data, err := store.Read(ctx, "outbound/nested/order.json")
		require.NoError(t, err)
		assert.Equal(t, `{"a":1}`, string(data))

		entries, err := os.ReadDir(filepath.Join(root, "outbound", "nested"))
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temp file should not be left behind")
	})

	t.Run("absolute paths bypass root", func(t *testing.T) {
		abs := filepath.Join(t.TempDir(), "abs.csv")
		require.NoError(t, store.Write(ctx, abs, []byte("sku\n")))

		data, err := os.ReadFile(abs)
		require.NoError(t, err)
		assert.Equal(t, "sku\n", string(data))
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := store.Read(cctx, "x")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "in/v1_inventory.json", Join("in", "v1_inventory.json"))
	assert.Equal(t, "s3://drops/in/v1.csv", Join("s3://drops/in", "v1.csv"))
	assert.Equal(t, "s3://drops/v1.csv", Join("s3://drops/", "v1.csv"))
}

type memStore struct {
	files map[string][]byte
}

func (m *memStore) Read(_ context.Context, location string) ([]byte, error) {
	data, ok := m.files[location]
	if !ok {
		return nil, ErrFileNotFound
	}
	return data, nil
}

func (m *memStore) Write(_ context.Context, location string, data []byte) error {
	m.files[location] = data
	return nil
}

func TestRoutedFileStore(t *testing.T) {
	ctx := context.Background()
	local := &memStore{files: map[string][]byte{}}
	object := &memStore{files: map[string][]byte{}}
	routed := NewRoutedFileStore(local, object)

	require.NoError(t, routed.Write(ctx, "s3://bucket/a.json", []byte("obj")))
	require.NoError(t, routed.Write(ctx, "/data/a.json", []byte("local")))

	assert.Contains(t, object.files, "s3://bucket/a.json")
	assert.Contains(t, local.files, "/data/a.json")

	t.Run("object location without object store", func(t *testing.T) {
		r := NewRoutedFileStore(local, nil)
		_, err := r.Read(ctx, "s3://bucket/a.json")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "object storage is not configured")
	})
}
