package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// Compile-time interface implementation check.
var _ Store = (*DirStore)(nil)

// DirStore maps object keys onto files under a root directory. It backs
// local development and tests, and deployments where the bucket is
// mounted as a filesystem.
type DirStore struct {
	root string
}

// NewDirStore creates a store rooted at root, creating it if needed.
func NewDirStore(root string) (*DirStore, error) {
	if root == "" {
		return nil, fmt.Errorf("dir store root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create dir store root: %w", err)
	}
	return &DirStore{root: root}, nil
}

// Root returns the store's root directory.
func (s *DirStore) Root() string { return s.root }

// pathFor validates key and resolves it under the root. Keys that are
// absolute or walk out of the root are rejected.
func (s *DirStore) pathFor(key string) (string, error) {
	if key == "" || !filepath.IsLocal(filepath.FromSlash(key)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

// Size reports the file size for key.
func (s *DirStore) Size(_ context.Context, key string) (int64, error) {
	p, err := s.pathFor(key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return 0, fmt.Errorf("size %s: %w", key, err)
	}
	return info.Size(), nil
}

// Download copies the whole object into localPath.
func (s *DirStore) Download(_ context.Context, key, localPath string) error {
	p, err := s.pathFor(key)
	if err != nil {
		return err
	}
	src, err := os.Open(p) // #nosec G304 -- path is validated against the store root
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("download %s: %w", key, err)
	}
	defer func() { _ = src.Close() }()

	return writeBody(localPath, src, key)
}

// DownloadRange copies bytes [start, end] of the object into localPath.
func (s *DirStore) DownloadRange(_ context.Context, key, localPath string, start, end int64) error {
	if start < 0 || end < start {
		return fmt.Errorf("download range %s: invalid range %d-%d", key, start, end)
	}
	p, err := s.pathFor(key)
	if err != nil {
		return err
	}
	src, err := os.Open(p) // #nosec G304 -- path is validated against the store root
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("download range %s: %w", key, err)
	}
	defer func() { _ = src.Close() }()

	// end is clamped to the file tail the same way an HTTP range response
	// would be.
	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("download range %s: %w", key, err)
	}
	if start >= info.Size() {
		return fmt.Errorf("%w: %s rejected the requested range", ErrRangeUnsupported, key)
	}
	if end >= info.Size() {
		end = info.Size() - 1
	}

	return writeBody(localPath, io.NewSectionReader(src, start, end-start+1), key)
}

// Upload stores the file at localPath under key. The write is atomic so a
// crashed run never leaves a half-written segment where the downstream
// transcription step would pick it up.
func (s *DirStore) Upload(_ context.Context, localPath, key string) error {
	p, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	src, err := os.Open(localPath) // #nosec G304 -- paths come from the run scratch dir
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	defer func() { _ = src.Close() }()

	// renameio handles: temp file creation, fsync, atomic rename, cleanup on error
	pending, err := renameio.NewPendingFile(p)
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := io.Copy(pending, src); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}
