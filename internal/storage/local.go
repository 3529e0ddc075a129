// Package storage provides the upload destination for raw video files and
// the optional S3-compatible archive target.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrStorageUnavailable indicates a storage backend is not configured.
var ErrStorageUnavailable = errors.New("storage unavailable")

// UploadStore persists incoming video files and returns their location.
type UploadStore interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// LocalStore writes uploads to a directory on the local filesystem. The
// transcoding pipeline expects local paths, so uploads always land here.
type LocalStore struct {
	dir string
}

// NewLocalStore constructs a store rooted at the provided directory.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

// Save writes the reader's content to a new file and returns its absolute
// path. Existing files are never overwritten; callers supply unique names.
func (s *LocalStore) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	if s == nil || strings.TrimSpace(s.dir) == "" {
		return "", fmt.Errorf("local store: %w", ErrStorageUnavailable)
	}

	base := filepath.Base(name)
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "", fmt.Errorf("local store: invalid name %q", name)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("local store: create upload dir: %w", err)
	}

	path := filepath.Join(s.dir, base)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("local store: create %s: %w", base, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("local store: write %s: %w", base, err)
	}

	if err := f.Close(); err != nil {
		return "", fmt.Errorf("local store: close %s: %w", base, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}

	return abs, nil
}

var _ UploadStore = (*LocalStore)(nil)
