package apierr_test

// Coverage Notes:
// - Retry tests verify attempt counts, shouldRetry filtering, context
//   cancellation, and config normalization; exact backoff timing is an
//   implementation detail and is not asserted.

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lorekeeper/segmenter/internal/apierr"
)

// ---------------------------------------------------------------------------
// TestRetryWithBackoff - Generic retry utility
// ---------------------------------------------------------------------------

func TestRetryWithBackoff(t *testing.T) {
	t.Parallel()

	t.Run("success on first try returns immediately", func(t *testing.T) {
		t.Parallel()

		calls := 0
		result, err := apierr.RetryWithBackoff(
			context.Background(),
			apierr.RetryConfig{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: time.Minute},
			func() (string, error) {
				calls++
				return "immediate", nil
			},
			func(error) bool { return true },
		)

		if err != nil {
			t.Errorf("RetryWithBackoff() unexpected error: %v", err)
		}
		if result != "immediate" {
			t.Errorf("got %q, want %q", result, "immediate")
		}
		if calls != 1 {
			t.Errorf("call count = %d, want 1", calls)
		}
	})

	t.Run("shouldRetry false stops immediately", func(t *testing.T) {
		t.Parallel()

		calls := 0
		permanent := errors.New("permanent")
		_, err := apierr.RetryWithBackoff(
			context.Background(),
			apierr.RetryConfig{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
			func() (string, error) {
				calls++
				return "", permanent
			},
			func(error) bool { return false },
		)

		if !errors.Is(err, permanent) {
			t.Fatalf("expected permanent error, got %v", err)
		}
		if calls != 1 {
			t.Errorf("call count = %d, want 1 (no retry)", calls)
		}
	})

	t.Run("MaxRetries 0 means single attempt", func(t *testing.T) {
		t.Parallel()

		calls := 0
		_, err := apierr.RetryWithBackoff(
			context.Background(),
			apierr.RetryConfig{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
			func() (string, error) {
				calls++
				return "", errors.New("always fails")
			},
			func(error) bool { return true },
		)

		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if calls != 1 {
			t.Errorf("call count = %d, want 1", calls)
		}
	})

	t.Run("retries then succeeds", func(t *testing.T) {
		t.Parallel()

		calls := 0
		result, err := apierr.RetryWithBackoff(
			context.Background(),
			apierr.RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
			func() (string, error) {
				calls++
				if calls < 3 {
					return "", errors.New("transient")
				}
				return "success", nil
			},
			func(error) bool { return true },
		)

		if err != nil {
			t.Errorf("RetryWithBackoff() unexpected error: %v", err)
		}
		if result != "success" {
			t.Errorf("got %q, want %q", result, "success")
		}
		if calls != 3 {
			t.Errorf("call count = %d, want 3", calls)
		}
	})

	t.Run("exhausted retries wraps last error", func(t *testing.T) {
		t.Parallel()

		transient := errors.New("transient")
		_, err := apierr.RetryWithBackoff(
			context.Background(),
			apierr.RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
			func() (string, error) { return "", transient },
			func(error) bool { return true },
		)

		if !errors.Is(err, transient) {
			t.Errorf("exhausted error should wrap last error, got %v", err)
		}
	})

	t.Run("context cancellation aborts between attempts", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		_, err := apierr.RetryWithBackoff(
			ctx,
			apierr.RetryConfig{MaxRetries: 10, BaseDelay: time.Hour, MaxDelay: time.Hour},
			func() (string, error) {
				calls++
				cancel()
				return "", errors.New("transient")
			},
			func(error) bool { return true },
		)

		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if calls != 1 {
			t.Errorf("call count = %d, want 1 (canceled before second attempt)", calls)
		}
	})

	t.Run("negative config values are normalized", func(t *testing.T) {
		t.Parallel()

		calls := 0
		_, err := apierr.RetryWithBackoff(
			context.Background(),
			apierr.RetryConfig{MaxRetries: -1, BaseDelay: -time.Second, MaxDelay: -time.Second},
			func() (string, error) {
				calls++
				return "", errors.New("fails")
			},
			func(error) bool { return true },
		)

		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if calls != 1 {
			t.Errorf("call count = %d, want 1 (MaxRetries normalized to 0)", calls)
		}
	})
}
