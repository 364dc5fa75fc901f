// Package storage provides the file stores used by file-drop vendor
// adapters: a local directory store and an S3-compatible object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrFileNotFound is returned when the requested file does not exist
var ErrFileNotFound = errors.New("storage: file not found")

// s3Scheme prefixes object storage locations ("s3://bucket/key")
const s3Scheme = "s3://"

// FileStore reads and writes whole files by location
type FileStore interface {
	Read(ctx context.Context, location string) ([]byte, error)
	Write(ctx context.Context, location string, data []byte) error
}

// Join appends name to a directory or s3 prefix location
func Join(dir, name string) string {
	if strings.HasPrefix(dir, s3Scheme) {
		return s3Scheme + path.Join(strings.TrimPrefix(dir, s3Scheme), name)
	}
	return path.Join(dir, name)
}

// IsObjectLocation reports whether location points at object storage
func IsObjectLocation(location string) bool {
	return strings.HasPrefix(location, s3Scheme)
}

// splitObjectLocation turns "s3://bucket/key" into bucket and key
func splitObjectLocation(location string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(location, s3Scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("storage: invalid object location %q", location)
	}
	return bucket, key, nil
}

// RoutedFileStore dispatches "s3://" locations to the object store and
// everything else to the local store.
type RoutedFileStore struct {
	local  FileStore
	object FileStore
}

// NewRoutedFileStore creates a router; object may be nil when object storage
// is not configured.
func NewRoutedFileStore(local, object FileStore) *RoutedFileStore {
	return &RoutedFileStore{local: local, object: object}
}

func (r *RoutedFileStore) pick(location string) (FileStore, error) {
	if IsObjectLocation(location) {
		if r.object == nil {
			return nil, fmt.Errorf("storage: object storage is not configured for %q", location)
		}
		return r.object, nil
	}
	return r.local, nil
}

// Read implements FileStore
func (r *RoutedFileStore) Read(ctx context.Context, location string) ([]byte, error) {
	store, err := r.pick(location)
	if err != nil {
		return nil, err
	}
	return store.Read(ctx, location)
}

// Write implements FileStore
func (r *RoutedFileStore) Write(ctx context.Context, location string, data []byte) error {
	store, err := r.pick(location)
	if err != nil {
		return err
	}
	return store.Write(ctx, location, data)
}

var _ FileStore = (*RoutedFileStore)(nil)
