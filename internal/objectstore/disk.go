package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DiskStore writes blobs to a local directory. It exists for development and
// tests; the returned URL is a file path, not an HTTP URL.
type DiskStore struct {
	dir string
}

// NewDiskStore creates dir if needed and returns a store rooted there.
func NewDiskStore(dir string) (*DiskStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("disk store: create directory: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

// Upload writes data under filename, ignoring contentType.
func (s *DiskStore) Upload(ctx context.Context, filename string, data []byte, contentType string) (string, error) {
	path := filepath.Join(s.dir, filepath.Base(filename))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("disk store: write %s: %w", filename, err)
	}
	return "file://" + path, nil
}
