package apierr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/lorekeeper/segmenter/internal/apierr"
)

// ---------------------------------------------------------------------------
// TestSentinelErrorWrapping - wrapped errors still match with errors.Is
// ---------------------------------------------------------------------------

func TestSentinelErrorWrapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		sentinel error
	}{
		{"wrapped ErrRateLimit", apierr.ErrRateLimit},
		{"wrapped ErrQuotaExceeded", apierr.ErrQuotaExceeded},
		{"wrapped ErrTimeout", apierr.ErrTimeout},
		{"wrapped ErrAuthFailed", apierr.ErrAuthFailed},
		{"wrapped ErrUnavailable", apierr.ErrUnavailable},
		{"wrapped ErrBadRequest", apierr.ErrBadRequest},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			wrapped := fmt.Errorf("some context: %w", tt.sentinel)

			if !errors.Is(wrapped, tt.sentinel) {
				t.Errorf("errors.Is(wrapped, %v) = false, want true", tt.sentinel)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestSentinelErrorDistinct - sentinels are distinct from each other
// ---------------------------------------------------------------------------

func TestSentinelErrorDistinct(t *testing.T) {
	t.Parallel()

	sentinels := []error{
		apierr.ErrRateLimit,
		apierr.ErrQuotaExceeded,
		apierr.ErrTimeout,
		apierr.ErrAuthFailed,
		apierr.ErrUnavailable,
		apierr.ErrBadRequest,
	}

	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			a, b := a, b
			t.Run(fmt.Sprintf("%v_is_not_%v", a, b), func(t *testing.T) {
				t.Parallel()

				if errors.Is(a, b) {
					t.Errorf("errors.Is(%v, %v) = true, want false", a, b)
				}
			})
		}
	}
}

// ---------------------------------------------------------------------------
// TestFromStatusCode - HTTP status classification onto sentinels
// ---------------------------------------------------------------------------

func TestFromStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		code     int
		msg      string
		sentinel error
	}{
		{"429 maps to rate limit", http.StatusTooManyRequests, "slow down", apierr.ErrRateLimit},
		{"429 quota message maps to quota", http.StatusTooManyRequests, "quota exceeded for project", apierr.ErrQuotaExceeded},
		{"429 billing message maps to quota", http.StatusTooManyRequests, "billing hard limit reached", apierr.ErrQuotaExceeded},
		{"401 maps to auth", http.StatusUnauthorized, "bad key", apierr.ErrAuthFailed},
		{"403 maps to auth", http.StatusForbidden, "forbidden", apierr.ErrAuthFailed},
		{"408 maps to timeout", http.StatusRequestTimeout, "client timeout", apierr.ErrTimeout},
		{"504 maps to timeout", http.StatusGatewayTimeout, "upstream timeout", apierr.ErrTimeout},
		{"500 maps to unavailable", http.StatusInternalServerError, "boom", apierr.ErrUnavailable},
		{"503 maps to unavailable", http.StatusServiceUnavailable, "maintenance", apierr.ErrUnavailable},
		{"400 maps to bad request", http.StatusBadRequest, "malformed", apierr.ErrBadRequest},
		{"404 maps to bad request", http.StatusNotFound, "missing", apierr.ErrBadRequest},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := apierr.FromStatusCode(tt.code, tt.msg)
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("FromStatusCode(%d, %q) = %v, want errors.Is(_, %v)", tt.code, tt.msg, err, tt.sentinel)
			}
		})
	}
}

func TestFromStatusCodeSuccessIsNil(t *testing.T) {
	t.Parallel()

	if err := apierr.FromStatusCode(http.StatusOK, ""); err != nil {
		t.Errorf("FromStatusCode(200, _) = %v, want nil", err)
	}
	if err := apierr.FromStatusCode(http.StatusPartialContent, ""); err != nil {
		t.Errorf("FromStatusCode(206, _) = %v, want nil", err)
	}
}

// ---------------------------------------------------------------------------
// TestRetryable - transient failures retry, permanent ones do not
// ---------------------------------------------------------------------------

func TestRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit retries", apierr.ErrRateLimit, true},
		{"timeout retries", apierr.ErrTimeout, true},
		{"unavailable retries", apierr.ErrUnavailable, true},
		{"wrapped timeout retries", fmt.Errorf("request: %w", apierr.ErrTimeout), true},
		{"quota does not retry", apierr.ErrQuotaExceeded, false},
		{"auth does not retry", apierr.ErrAuthFailed, false},
		{"bad request does not retry", apierr.ErrBadRequest, false},
		{"nil does not retry", nil, false},
		{"unknown error does not retry", errors.New("weird"), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := apierr.Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
