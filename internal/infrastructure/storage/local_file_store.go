package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalFileStore reads and writes files on the local filesystem, optionally
// confined to a root directory.
type LocalFileStore struct {
	root string
}

// NewLocalFileStore creates a store. Relative locations resolve against root
// when root is non-empty.
func NewLocalFileStore(root string) *LocalFileStore {
	return &LocalFileStore{root: root}
}

func (s *LocalFileStore) resolve(location string) string {
	if s.root == "" || filepath.IsAbs(location) {
		return filepath.Clean(location)
	}
	return filepath.Join(s.root, location)
}

// Read implements FileStore
func (s *LocalFileStore) Read(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.resolve(location))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, location)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", location, err)
	}
	return data, nil
}

// Write implements FileStore. The file appears atomically via rename.
func (s *LocalFileStore) Write(ctx context.Context, location string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := s.resolve(location)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", location, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", location, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", location, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", location, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("failed to publish %s: %w", location, err)
	}
	return nil
}

var _ FileStore = (*LocalFileStore)(nil)
