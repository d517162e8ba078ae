package segment

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// fakeSystemInfo reports fixed host capacity.
type fakeSystemInfo struct {
	cores     int
	coresErr  error
	available uint64
	availErr  error
}

func (f fakeSystemInfo) Cores(context.Context) (int, error) {
	return f.cores, f.coresErr
}

func (f fakeSystemInfo) AvailableBytes(context.Context) (uint64, error) {
	return f.available, f.availErr
}

const plentyOfMemory = uint64(64) << 30

// ---------------------------------------------------------------------------
// Width
// ---------------------------------------------------------------------------

func TestPoolWidth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		strategy   Strategy
		sys        fakeSystemInfo
		plans      int
		sourceSize int64
		want       int
	}{
		{
			name:       "streaming doubles the core count",
			strategy:   StrategyStreaming,
			sys:        fakeSystemInfo{cores: 4, available: plentyOfMemory},
			plans:      100,
			sourceSize: 24_000_000,
			want:       8,
		},
		{
			name:       "streaming ceiling",
			strategy:   StrategyStreaming,
			sys:        fakeSystemInfo{cores: 12, available: plentyOfMemory},
			plans:      100,
			sourceSize: 24_000_000,
			want:       16,
		},
		{
			name:       "traditional ceiling",
			strategy:   StrategyTraditional,
			sys:        fakeSystemInfo{cores: 12, available: plentyOfMemory},
			plans:      100,
			sourceSize: 24_000_000,
			want:       4,
		},
		{
			name:       "single core still gets the floor",
			strategy:   StrategyStreaming,
			sys:        fakeSystemInfo{cores: 1, available: plentyOfMemory},
			plans:      100,
			sourceSize: 24_000_000,
			want:       2,
		},
		{
			name:       "never more workers than plans",
			strategy:   StrategyStreaming,
			sys:        fakeSystemInfo{cores: 4, available: plentyOfMemory},
			plans:      3,
			sourceSize: 24_000_000,
			want:       3,
		},
		{
			name:       "low memory derates",
			strategy:   StrategyStreaming,
			sys:        fakeSystemInfo{cores: 8, available: 1 << 30},
			plans:      100,
			sourceSize: 2 << 30,
			want:       2,
		},
		{
			name:       "memory probe failure keeps full width",
			strategy:   StrategyStreaming,
			sys:        fakeSystemInfo{cores: 4, availErr: errors.New("no meminfo")},
			plans:      100,
			sourceSize: 24_000_000,
			want:       8,
		},
		{
			name:       "unknown size skips the memory check",
			strategy:   StrategyStreaming,
			sys:        fakeSystemInfo{cores: 4, available: 1},
			plans:      100,
			sourceSize: -1,
			want:       8,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := NewPool(tt.strategy, WithSystemInfo(tt.sys))
			if got := p.Width(context.Background(), tt.plans, tt.sourceSize); got != tt.want {
				t.Errorf("Width() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPoolWidthCoreProbeFallsBackToRuntime(t *testing.T) {
	t.Parallel()

	p := NewPool(StrategyStreaming, WithSystemInfo(fakeSystemInfo{
		coresErr:  errors.New("no cpuinfo"),
		available: plentyOfMemory,
	}))

	want := 2 * runtime.NumCPU()
	if want < minWorkers {
		want = minWorkers
	}
	if want > streamingWorkerCeiling {
		want = streamingWorkerCeiling
	}
	if got := p.Width(context.Background(), 100, 24_000_000); got != want {
		t.Errorf("Width() = %d, want %d", got, want)
	}
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

func testPlans(n int) []Plan {
	plans := make([]Plan, 0, n)
	for i := 0; i < n; i++ {
		plans = append(plans, Plan{
			Index:     i + 1,
			Start:     time.Duration(i) * 300 * time.Second,
			Length:    300 * time.Second,
			OutputKey: fmt.Sprintf("out/audio_%02d_of_%02d.m4a", i+1, n),
		})
	}
	return plans
}

func TestPoolRunRecordsEveryResult(t *testing.T) {
	t.Parallel()
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	plans := testPlans(4)
	p := NewPool(StrategyStreaming, WithSystemInfo(fakeSystemInfo{cores: 2, available: plentyOfMemory}))

	work := func(_ context.Context, plan Plan) (string, error) {
		if plan.Index == 2 {
			return "", errors.New("window unreadable")
		}
		return plan.OutputKey, nil
	}

	results, err := p.Run(context.Background(), plans, 24_000_000, work)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	for i, r := range results {
		if r.Index != i+1 {
			t.Errorf("result %d: index = %d, want %d", i, r.Index, i+1)
		}
	}
	if results[1].Err == nil {
		t.Error("failed segment recorded no error")
	}
	if results[0].Err != nil || results[2].Err != nil || results[3].Err != nil {
		t.Error("sibling segments should finish despite one failure")
	}
}

func TestPoolRunKeepsIndexOrderWithSlowWorker(t *testing.T) {
	t.Parallel()
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	plans := testPlans(4)
	p := NewPool(StrategyStreaming, WithSystemInfo(fakeSystemInfo{cores: 4, available: plentyOfMemory}))

	// The first segment finishes last; results must still come back in
	// index order.
	work := func(_ context.Context, plan Plan) (string, error) {
		if plan.Index == 1 {
			time.Sleep(50 * time.Millisecond)
		}
		return plan.OutputKey, nil
	}

	results, err := p.Run(context.Background(), plans, 24_000_000, work)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for i, r := range results {
		if r.Index != i+1 {
			t.Errorf("result %d: index = %d, want %d", i, r.Index, i+1)
		}
		if r.OutputKey != plans[i].OutputKey {
			t.Errorf("result %d: key = %q, want %q", i, r.OutputKey, plans[i].OutputKey)
		}
	}
}

func TestPoolRunBoundsConcurrency(t *testing.T) {
	t.Parallel()
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	plans := testPlans(12)
	p := NewPool(StrategyTraditional, WithSystemInfo(fakeSystemInfo{cores: 8, available: plentyOfMemory}))

	var mu sync.Mutex
	running, peak := 0, 0

	work := func(_ context.Context, plan Plan) (string, error) {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()
		return plan.OutputKey, nil
	}

	if _, err := p.Run(context.Background(), plans, 24_000_000, work); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if peak > traditionalWorkerCeiling {
		t.Errorf("peak concurrency = %d, above ceiling %d", peak, traditionalWorkerCeiling)
	}
	if peak < 2 {
		t.Errorf("peak concurrency = %d, workers never overlapped", peak)
	}
}

func TestPoolRunCancellation(t *testing.T) {
	t.Parallel()
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	plans := testPlans(4)
	p := NewPool(StrategyStreaming, WithSystemInfo(fakeSystemInfo{cores: 1, available: plentyOfMemory}))

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{}, len(plans))
	release := make(chan struct{})

	work := func(_ context.Context, plan Plan) (string, error) {
		started <- struct{}{}
		<-release
		return plan.OutputKey, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(ctx, plans, 24_000_000, work)
		done <- err
	}()

	// Two workers hold the pool; the rest park waiting for a slot.
	<-started
	<-started
	cancel()
	// The in-flight workers still hold both slots, so the queued
	// workers can only observe the cancellation. Give them time to.
	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}
}

func TestPoolRunEmptyPlans(t *testing.T) {
	t.Parallel()

	p := NewPool(StrategyStreaming, WithSystemInfo(fakeSystemInfo{cores: 2, available: plentyOfMemory}))
	results, err := p.Run(context.Background(), nil, 0, func(context.Context, Plan) (string, error) {
		t.Error("work called with no plans")
		return "", nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if results != nil {
		t.Errorf("got results %v, want none", results)
	}
}
