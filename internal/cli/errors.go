package cli

import "errors"

// CLI-specific sentinel errors.
// These are setup/usage errors that don't belong to domain packages.

var (
	// ErrStoreURLMissing indicates SEGMENTER_STORE_URL is not set.
	ErrStoreURLMissing = errors.New("store URL not configured")

	// ErrAPIKeyMissing indicates OPENAI_API_KEY environment variable is not set.
	ErrAPIKeyMissing = errors.New("OPENAI_API_KEY environment variable not set")

	// ErrFileNotFound indicates the specified event file does not exist.
	ErrFileNotFound = errors.New("file not found")
)
