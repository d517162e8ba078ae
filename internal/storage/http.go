package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Compile-time interface implementation check.
var _ Store = (*HTTPStore)(nil)

// defaultRequestTimeout bounds a single store request when the caller's
// context carries no deadline of its own.
const defaultRequestTimeout = 2 * time.Minute

// contentTypes maps output extensions to upload content types.
var contentTypes = map[string]string{
	".m4a":  "audio/mp4",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".txt":  "text/plain; charset=utf-8",
	".json": "application/json",
}

// HTTPStore talks to an HTTP object store: GET for downloads, GET with a
// Range header for byte windows, HEAD for sizes, PUT for uploads.
// Timeouts are enforced via context.WithTimeout; http.Client.Timeout is
// left unset.
type HTTPStore struct {
	base    *url.URL
	client  *http.Client
	timeout time.Duration
}

// HTTPStoreOption configures an HTTPStore.
type HTTPStoreOption func(*HTTPStore)

// WithHTTPClient sets the HTTP client (for testing).
func WithHTTPClient(c *http.Client) HTTPStoreOption {
	return func(s *HTTPStore) { s.client = c }
}

// WithRequestTimeout bounds each individual request.
func WithRequestTimeout(d time.Duration) HTTPStoreOption {
	return func(s *HTTPStore) { s.timeout = d }
}

// NewHTTPStore creates a store rooted at baseURL.
func NewHTTPStore(baseURL string, opts ...HTTPStoreOption) (*HTTPStore, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse store url %q: %w", baseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("store url %q: scheme must be http or https", baseURL)
	}

	s := &HTTPStore{
		base:    base,
		client:  &http.Client{},
		timeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// urlFor joins key onto the base URL, escaping each path element.
func (s *HTTPStore) urlFor(key string) string {
	return s.base.JoinPath(strings.Split(key, "/")...).String()
}

func (s *HTTPStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

// Size issues a HEAD request for the object.
func (s *HTTPStore) Size(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.urlFor(key), nil)
	if err != nil {
		return 0, fmt.Errorf("size %s: %w", key, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("size %s: %w", key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp, key, http.StatusOK); err != nil {
		return 0, err
	}
	if resp.ContentLength < 0 {
		return 0, fmt.Errorf("%w: %s has no Content-Length", ErrSizeUnknown, key)
	}
	return resp.ContentLength, nil
}

// Download fetches the whole object into localPath.
func (s *HTTPStore) Download(ctx context.Context, key, localPath string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.urlFor(key), nil)
	if err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp, key, http.StatusOK); err != nil {
		return err
	}
	return writeBody(localPath, resp.Body, key)
}

// DownloadRange fetches bytes [start, end] of the object into localPath.
// A 200 answer to a Range request means the backend ignored the header;
// that is surfaced as ErrRangeUnsupported so the caller can rethink its
// strategy instead of pulling the full file once per segment.
func (s *HTTPStore) DownloadRange(ctx context.Context, key, localPath string, start, end int64) error {
	if start < 0 || end < start {
		return fmt.Errorf("download range %s: invalid range %d-%d", key, start, end)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.urlFor(key), nil)
	if err != nil {
		return fmt.Errorf("download range %s: %w", key, err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("download range %s: %w", key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK {
		return fmt.Errorf("%w: %s answered 200 to a range request", ErrRangeUnsupported, key)
	}
	if err := checkStatus(resp, key, http.StatusPartialContent); err != nil {
		return err
	}
	return writeBody(localPath, resp.Body, key)
}

// Upload stores the file at localPath under key with a PUT.
func (s *HTTPStore) Upload(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath) // #nosec G304 -- paths come from the run scratch dir
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.urlFor(key), f)
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	req.ContentLength = info.Size()
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(key))]; ok {
		req.Header.Set("Content-Type", ct)
	} else {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upload %s: unexpected status %s", key, resp.Status)
	}
	return nil
}

// checkStatus maps a response status onto the package sentinels.
func checkStatus(resp *http.Response, key string, want int) error {
	switch {
	case resp.StatusCode == want:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		return fmt.Errorf("%w: %s rejected the requested range", ErrRangeUnsupported, key)
	default:
		return fmt.Errorf("%s: unexpected status %s", key, resp.Status)
	}
}

// writeBody streams r into localPath. Scratch files are private to one
// worker, so a plain create-and-copy is enough; the partial file is
// removed on error.
func writeBody(localPath string, r io.Reader, key string) error {
	f, err := os.Create(localPath) // #nosec G304 -- paths come from the run scratch dir
	if err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(localPath)
		return fmt.Errorf("download %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(localPath)
		return fmt.Errorf("download %s: %w", key, err)
	}
	return nil
}
