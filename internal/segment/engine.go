// Package segment turns one stored audio object into an ordered set of
// bounded-length transcoded segments. The pipeline is probe, strategy
// selection, range planning, bounded worker fan-out, and all-or-nothing
// aggregation of the per-segment results.
package segment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lorekeeper/segmenter/internal/ffmpeg"
	"github.com/lorekeeper/segmenter/internal/log"
	"github.com/lorekeeper/segmenter/internal/metrics"
	"github.com/lorekeeper/segmenter/internal/probe"
	"github.com/lorekeeper/segmenter/internal/status"
	"github.com/lorekeeper/segmenter/internal/storage"
)

// transcoder is the external tool boundary. *ffmpeg.Tool in production.
type transcoder interface {
	DurationOf(ctx context.Context, path string) (time.Duration, error)
	ExtractSegment(ctx context.Context, src, dst string, start, end time.Duration) error
	Transcode(ctx context.Context, src, dst string) error
}

var _ transcoder = (*ffmpeg.Tool)(nil)

// Report is the outcome of a successful run.
type Report struct {
	SourceKey string
	Strategy  Strategy
	Estimate  probe.Estimate

	// Plans in index order, one per produced segment.
	Plans []Plan

	// Keys are the output object keys, ordered by segment index. For an
	// unsegmented source this is the source key alone.
	Keys []string
}

// Engine runs the full segmentation pipeline for one source object.
type Engine struct {
	store      storage.Store
	tool       transcoder
	reporter   status.Reporter
	scratchDir string
	planner    *Planner
	probeOpts  []probe.Option
	poolOpts   []PoolOption
	logger     zerolog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithReporter sets the status store written at entry and on terminal
// failure. Defaults to a no-op.
func WithReporter(r status.Reporter) EngineOption {
	return func(e *Engine) { e.reporter = r }
}

// WithPlanner replaces the default segment planner.
func WithPlanner(p *Planner) EngineOption {
	return func(e *Engine) { e.planner = p }
}

// WithProbeOptions passes options through to the duration prober.
func WithProbeOptions(opts ...probe.Option) EngineOption {
	return func(e *Engine) { e.probeOpts = opts }
}

// WithPoolOptions passes options through to the worker pool.
func WithPoolOptions(opts ...PoolOption) EngineOption {
	return func(e *Engine) { e.poolOpts = opts }
}

// NewEngine builds an Engine over a store and a transcoding tool.
// scratchDir is the root under which each run keeps its private scratch
// directory.
func NewEngine(store storage.Store, tool transcoder, scratchDir string, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if tool == nil {
		return nil, errors.New("transcoder cannot be nil")
	}
	if scratchDir == "" {
		return nil, errors.New("scratch directory cannot be empty")
	}

	e := &Engine{
		store:      store,
		tool:       tool,
		reporter:   status.NopReporter{},
		scratchDir: scratchDir,
		planner:    NewPlanner(),
		logger:     log.WithComponent("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run segments the object at sourceKey and returns the ordered output
// keys. The work item is marked processing at entry and error on
// terminal failure; both marks are best-effort. All scratch created by
// the run is removed before Run returns, whether it succeeds or fails.
func (e *Engine) Run(ctx context.Context, sourceKey, sessionID string) (*Report, error) {
	started := time.Now()
	runID := uuid.NewString()
	logger := e.logger.With().
		Str("run_id", runID).
		Str("source", sourceKey).
		Logger()

	e.reporter.MarkProcessing(ctx, sessionID)

	report, err := e.run(ctx, logger, runID, sourceKey)
	elapsed := time.Since(started)
	if err != nil {
		metrics.RecordRun(metrics.OutcomeFailure, elapsed.Seconds())
		e.reporter.MarkError(ctx, sessionID, err.Error())
		logger.Error().Err(err).Dur("elapsed", elapsed).Msg("segmentation run failed")
		return nil, err
	}

	metrics.RecordRun(metrics.OutcomeSuccess, elapsed.Seconds())
	logger.Info().
		Int("segments", len(report.Keys)).
		Dur("elapsed", elapsed).
		Msg("segmentation run complete")
	return report, nil
}

func (e *Engine) run(ctx context.Context, logger zerolog.Logger, runID, sourceKey string) (*Report, error) {
	if sourceKey == "" {
		return nil, errors.New("source key cannot be empty")
	}

	runDir := filepath.Join(e.scratchDir, "run_"+runID)
	if err := os.MkdirAll(runDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(runDir); err != nil {
			logger.Warn().Err(err).Str("dir", runDir).Msg("failed to remove scratch directory")
		}
	}()

	prober, err := probe.NewProber(e.store, e.tool, runDir, e.probeOpts...)
	if err != nil {
		return nil, err
	}
	est, err := prober.Probe(ctx, sourceKey)
	if err != nil {
		return nil, err
	}

	strategy := SelectStrategy(est)
	metrics.IncStrategy(string(strategy))
	logger.Info().
		Str("strategy", string(strategy)).
		Str("probe_tier", string(est.Tier)).
		Dur("duration", est.Duration).
		Int64("size_bytes", est.SourceSize).
		Msg("source probed")

	plans := e.planner.Plans(sourceKey, est.Duration, strategy, est.SourceSize)
	report := &Report{
		SourceKey: sourceKey,
		Strategy:  strategy,
		Estimate:  est,
		Plans:     plans,
	}

	if len(plans) == 1 && plans[0].Whole {
		logger.Info().Msg("source fits in one segment, returning it untouched")
		report.Keys = []string{plans[0].OutputKey}
		return report, nil
	}

	var work WorkFunc
	switch strategy {
	case StrategyStreaming:
		work = e.streamingWorker(runDir, sourceKey)
	default:
		localSource := est.FullLocalPath
		if localSource == "" {
			localSource = filepath.Join(runDir, "source"+path.Ext(sourceKey))
			if err := e.store.Download(ctx, sourceKey, localSource); err != nil {
				return nil, fmt.Errorf("failed to download source: %w", err)
			}
		}
		work = e.traditionalWorker(localSource)
	}

	pool := NewPool(strategy, e.poolOpts...)
	results, err := pool.Run(ctx, plans, est.SourceSize, work)
	if err != nil {
		return nil, err
	}

	keys, err := Aggregate(results)
	if err != nil {
		return nil, err
	}
	report.Keys = keys
	return report, nil
}

// streamingWorker fetches each plan's byte window into a private scratch
// file, trims the segment out of it, and uploads the result. When the
// precise trim fails, typically because the window did not start on a
// clean frame boundary, the whole fetched window is transcoded once
// without the trim, an explicit and logged loss of precision.
func (e *Engine) streamingWorker(runDir, sourceKey string) WorkFunc {
	ext := path.Ext(sourceKey)
	return func(ctx context.Context, plan Plan) (string, error) {
		window := filepath.Join(runDir, fmt.Sprintf("window_%03d%s", plan.Index, ext))
		out := filepath.Join(runDir, fmt.Sprintf("segment_%03d.m4a", plan.Index))
		defer func() {
			// Worker scratch goes away no matter how the segment ended.
			_ = os.Remove(window)
			_ = os.Remove(out)
		}()

		if err := e.store.DownloadRange(ctx, sourceKey, window, plan.Window.Start, plan.Window.End); err != nil {
			return "", fmt.Errorf("failed to fetch byte window: %w", err)
		}

		if err := e.tool.ExtractSegment(ctx, window, out, plan.TrimStart, plan.TrimStart+plan.Length); err != nil {
			e.logger.Warn().Err(err).
				Int("segment", plan.Index).
				Msg("precise trim failed, transcoding whole window")
			metrics.IncTranscodeFallback()
			if err := e.tool.Transcode(ctx, window, out); err != nil {
				return "", err
			}
		}

		if err := e.store.Upload(ctx, out, plan.OutputKey); err != nil {
			return "", fmt.Errorf("failed to upload segment: %w", err)
		}
		return plan.OutputKey, nil
	}
}

// traditionalWorker trims each segment from the fully downloaded local
// source. The whole file is present, so the trim uses absolute offsets
// and needs no byte-window fallback.
func (e *Engine) traditionalWorker(localSource string) WorkFunc {
	return func(ctx context.Context, plan Plan) (string, error) {
		out := filepath.Join(filepath.Dir(localSource), fmt.Sprintf("segment_%03d.m4a", plan.Index))
		defer func() { _ = os.Remove(out) }()

		if err := e.tool.ExtractSegment(ctx, localSource, out, plan.Start, plan.End()); err != nil {
			return "", err
		}

		if err := e.store.Upload(ctx, out, plan.OutputKey); err != nil {
			return "", fmt.Errorf("failed to upload segment: %w", err)
		}
		return plan.OutputKey, nil
	}
}
