package segment

import (
	"context"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"golang.org/x/sync/errgroup"

	"github.com/lorekeeper/segmenter/internal/log"
	"github.com/lorekeeper/segmenter/internal/metrics"
)

const (
	// Worker ceilings per strategy. Streaming workers each hold one byte
	// window, so more of them fit in memory than traditional workers,
	// which all read the same full local file.
	minWorkers               = 2
	streamingWorkerCeiling   = 16
	traditionalWorkerCeiling = 4

	// deratedWorkers applies when available memory cannot hold two
	// copies of the source alongside the scratch files.
	deratedWorkers = 2
)

// systemInfo reports host capacity. gopsutil in production, a fake in
// tests.
type systemInfo interface {
	Cores(ctx context.Context) (int, error)
	AvailableBytes(ctx context.Context) (uint64, error)
}

type gopsutilInfo struct{}

var _ systemInfo = gopsutilInfo{}

func (gopsutilInfo) Cores(ctx context.Context) (int, error) {
	return cpu.CountsWithContext(ctx, true)
}

func (gopsutilInfo) AvailableBytes(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// WorkFunc produces one segment and returns its output key.
type WorkFunc func(ctx context.Context, plan Plan) (string, error)

// Pool fans segment plans out to a bounded set of workers. Workers are
// independent by construction: each writes only its own result slot, so
// the fan-in join needs no locking.
type Pool struct {
	strategy Strategy
	sys      systemInfo
	logger   zerolog.Logger
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithSystemInfo replaces the host capacity source.
func WithSystemInfo(sys systemInfo) PoolOption {
	return func(p *Pool) { p.sys = sys }
}

// NewPool builds a worker pool for one run under the given strategy.
func NewPool(strategy Strategy, opts ...PoolOption) *Pool {
	p := &Pool{
		strategy: strategy,
		sys:      gopsutilInfo{},
		logger:   log.WithComponent("pool"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Width computes the worker count for the given plan count and source
// size: twice the core count, clamped between minWorkers and the
// strategy ceiling, derated under memory pressure, and never more than
// the number of plans.
func (p *Pool) Width(ctx context.Context, plans int, sourceSize int64) int {
	cores, err := p.sys.Cores(ctx)
	if err != nil || cores < 1 {
		cores = runtime.NumCPU()
	}

	ceiling := streamingWorkerCeiling
	if p.strategy == StrategyTraditional {
		ceiling = traditionalWorkerCeiling
	}

	width := 2 * cores
	if width < minWorkers {
		width = minWorkers
	}
	if width > ceiling {
		width = ceiling
	}

	if sourceSize > 0 && width > deratedWorkers {
		avail, err := p.sys.AvailableBytes(ctx)
		if err == nil && avail < 2*uint64(sourceSize) {
			p.logger.Warn().
				Uint64("available_bytes", avail).
				Int64("source_bytes", sourceSize).
				Int("workers", deratedWorkers).
				Msg("low memory, derating worker count")
			width = deratedWorkers
		}
	}

	if width > plans {
		width = plans
	}
	if width < 1 {
		width = 1
	}
	return width
}

// Run executes work for every plan and returns one Result per plan, in
// plan order. A worker failure is recorded in its result slot rather
// than aborting the siblings; the only error Run itself returns is
// context cancellation, which abandons the whole run.
func (p *Pool) Run(ctx context.Context, plans []Plan, sourceSize int64, work WorkFunc) ([]Result, error) {
	if len(plans) == 0 {
		return nil, nil
	}

	width := p.Width(ctx, len(plans), sourceSize)
	metrics.RecordPoolWorkers(width)
	p.logger.Info().
		Int("segments", len(plans)).
		Int("workers", width).
		Str("strategy", string(p.strategy)).
		Msg("starting segment workers")

	results := make([]Result, len(plans))
	// Semaphore channel for concurrency control.
	sem := make(chan struct{}, width)

	g, ctx := errgroup.WithContext(ctx)
	for i, plan := range plans {
		i, plan := i, plan
		g.Go(func() error {
			// Acquire semaphore slot.
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			defer func() { <-sem }()

			key, err := work(ctx, plan)
			if err != nil {
				metrics.IncSegment(metrics.OutcomeFailure)
				p.logger.Error().Err(err).Int("segment", plan.Index).Msg("segment failed")
			} else {
				metrics.IncSegment(metrics.OutcomeSuccess)
			}
			results[i] = Result{Index: plan.Index, OutputKey: key, Err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
