// Package storage is the object store boundary for source audio and
// produced segments. The engine only ever needs four operations, so the
// interface stays narrow enough to fake in tests without a real backend.
package storage

import (
	"context"
	"errors"
)

// Store reads source objects and writes segment objects, addressed by key.
type Store interface {
	// Size reports the byte size of the object at key.
	Size(ctx context.Context, key string) (int64, error)

	// Download copies the whole object at key into localPath.
	Download(ctx context.Context, key, localPath string) error

	// DownloadRange copies bytes [start, end] of the object at key into
	// localPath. Both offsets are inclusive.
	DownloadRange(ctx context.Context, key, localPath string, start, end int64) error

	// Upload stores the file at localPath under key.
	Upload(ctx context.Context, localPath, key string) error
}

var (
	// ErrNotFound indicates no object exists at the requested key.
	ErrNotFound = errors.New("object not found")

	// ErrSizeUnknown indicates the backend cannot report the object size.
	ErrSizeUnknown = errors.New("object size unknown")

	// ErrRangeUnsupported indicates the backend answered a byte-range
	// request with the whole object. Treated as a hard error rather than
	// silently accepting a full download per segment.
	ErrRangeUnsupported = errors.New("store does not serve byte ranges")
)
