package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lorekeeper/segmenter/internal/log"
	"github.com/lorekeeper/segmenter/internal/metrics"
	"github.com/lorekeeper/segmenter/internal/storage"
)

// MaxRecommendedParallel is the recommended upper limit for concurrent API
// requests. Higher values may trigger rate limiting.
const MaxRecommendedParallel = 10

// Runner fans a batch of segment keys out to a Transcriber and uploads
// one text object per segment.
type Runner struct {
	store       storage.Store
	transcriber Transcriber
	scratchDir  string
	parallel    int
	logger      zerolog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithParallel sets the number of concurrent transcriptions, clamped to
// [1, MaxRecommendedParallel].
func WithParallel(n int) RunnerOption {
	return func(r *Runner) {
		if n >= 1 {
			r.parallel = min(n, MaxRecommendedParallel)
		}
	}
}

// NewRunner creates a Runner writing its working files under scratchDir.
func NewRunner(store storage.Store, transcriber Transcriber, scratchDir string, opts ...RunnerOption) (*Runner, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if transcriber == nil {
		return nil, errors.New("transcriber cannot be nil")
	}
	if scratchDir == "" {
		return nil, errors.New("scratch directory cannot be empty")
	}

	r := &Runner{
		store:       store,
		transcriber: transcriber,
		scratchDir:  scratchDir,
		parallel:    MaxRecommendedParallel,
		logger:      log.WithComponent("transcribe"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// TextKey returns the object key for the transcript of the segment at
// key: the same key with the audio extension replaced by .txt, so
// ordered names like session_02_of_04.m4a stay ordered as text.
func TextKey(key string) string {
	return strings.TrimSuffix(key, path.Ext(key)) + ".txt"
}

// Run downloads each segment, transcribes it, and uploads the text under
// TextKey(key). Text keys come back in input order. Any failure aborts
// the whole batch.
func (r *Runner) Run(ctx context.Context, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	runDir := filepath.Join(r.scratchDir, "transcribe_"+uuid.NewString())
	if err := os.MkdirAll(runDir, 0o750); err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(runDir); err != nil {
			r.logger.Warn().Err(err).Str("dir", runDir).Msg("scratch cleanup failed")
		}
	}()

	r.logger.Info().Int("segments", len(keys)).Int("parallel", r.parallel).Msg("transcribing segment batch")

	results := make([]string, len(keys))
	// Semaphore channel for concurrency control.
	sem := make(chan struct{}, r.parallel)

	g, ctx := errgroup.WithContext(ctx)

	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			// Acquire semaphore slot.
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			defer func() { <-sem }()

			textKey, err := r.transcribeOne(ctx, runDir, i, key)
			if err != nil {
				metrics.IncTranscription(metrics.OutcomeFailure)
				r.logger.Error().Err(err).Str("key", key).Msg("segment transcription failed")
				return fmt.Errorf("segment %s: %w", key, err)
			}
			metrics.IncTranscription(metrics.OutcomeSuccess)
			results[i] = textKey
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Runner) transcribeOne(ctx context.Context, runDir string, index int, key string) (string, error) {
	local := filepath.Join(runDir, fmt.Sprintf("audio_%03d%s", index, path.Ext(key)))
	textPath := filepath.Join(runDir, fmt.Sprintf("text_%03d.txt", index))
	defer func() {
		_ = os.Remove(local)
		_ = os.Remove(textPath)
	}()

	if err := r.store.Download(ctx, key, local); err != nil {
		return "", fmt.Errorf("download: %w", err)
	}

	text, err := r.transcriber.Transcribe(ctx, local)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(textPath, []byte(text), 0o600); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}

	textKey := TextKey(key)
	if err := r.store.Upload(ctx, textPath, textKey); err != nil {
		return "", fmt.Errorf("upload %s: %w", textKey, err)
	}
	return textKey, nil
}
