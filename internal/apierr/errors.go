// Package apierr provides shared error sentinels, HTTP status classification,
// and retry infrastructure for the remote APIs this service talks to (object
// store, status store, transcription API). Clients wrap these sentinels with
// fmt.Errorf("...: %w", sentinel); callers branch with errors.Is.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for remote API failures.
var (
	// ErrRateLimit indicates a rate limit was hit (temporary, retryable).
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrQuotaExceeded indicates an account quota/billing problem (not retryable).
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrTimeout indicates a request timed out (retryable).
	ErrTimeout = errors.New("request timeout")

	// ErrAuthFailed indicates authentication was rejected (not retryable).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrUnavailable indicates a server-side failure (5xx, retryable).
	ErrUnavailable = errors.New("service unavailable")

	// ErrBadRequest indicates a client error (4xx) not otherwise classified.
	ErrBadRequest = errors.New("bad request")
)

// FromStatusCode maps an HTTP status code and response message onto a
// sentinel-wrapped error. A 2xx code returns nil.
func FromStatusCode(code int, msg string) error {
	if code >= 200 && code < 300 {
		return nil
	}
	if msg == "" {
		msg = http.StatusText(code)
	}

	switch code {
	case http.StatusTooManyRequests:
		// A 429 mentioning quota or billing needs user action, not a retry.
		if strings.Contains(msg, "quota") || strings.Contains(msg, "billing") {
			return fmt.Errorf("%s: %w", msg, ErrQuotaExceeded)
		}
		return fmt.Errorf("%s: %w", msg, ErrRateLimit)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %w", msg, ErrAuthFailed)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return fmt.Errorf("%s: %w", msg, ErrTimeout)
	}

	if code >= 500 {
		return fmt.Errorf("HTTP %d: %s: %w", code, msg, ErrUnavailable)
	}
	return fmt.Errorf("HTTP %d: %s: %w", code, msg, ErrBadRequest)
}

// Retryable reports whether an error is transient and worth retrying.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrRateLimit), errors.Is(err, ErrTimeout), errors.Is(err, ErrUnavailable):
		return true
	default:
		return false
	}
}
