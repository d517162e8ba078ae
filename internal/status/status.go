// Package status writes transcription progress to the session status
// store that the rest of the pipeline (and the player-facing UI) reads.
// Every write here is best-effort: a session page showing a stale status
// is annoying, a segmentation run failed by a status write is worse, so
// implementations log failures and never return them.
package status

import "context"

// Transcription status values understood by the session store.
const (
	StatusProcessing = "PROCESSING"
	StatusError      = "ERROR"
)

// Reporter marks a work item's transcription status.
type Reporter interface {
	// MarkProcessing records that segmentation has started.
	MarkProcessing(ctx context.Context, sessionID string)

	// MarkError records a terminal failure. msg is for the logs only;
	// the store itself carries just the status value.
	MarkError(ctx context.Context, sessionID, msg string)
}

// Compile-time interface implementation check.
var _ Reporter = NopReporter{}

// NopReporter is used when no status store is configured.
type NopReporter struct{}

func (NopReporter) MarkProcessing(context.Context, string) {}

func (NopReporter) MarkError(context.Context, string, string) {}
