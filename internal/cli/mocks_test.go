package cli

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lorekeeper/segmenter/internal/config"
	"github.com/lorekeeper/segmenter/internal/probe"
	"github.com/lorekeeper/segmenter/internal/segment"
	"github.com/lorekeeper/segmenter/internal/status"
	"github.com/lorekeeper/segmenter/internal/storage"
)

// ---------------------------------------------------------------------------
// stubStore - a Store value for factories to hand out; commands never touch
// it directly, the mocked domain objects do
// ---------------------------------------------------------------------------

type stubStore struct {
	bucket string
}

var _ storage.Store = (*stubStore)(nil)

func (*stubStore) Size(context.Context, string) (int64, error) {
	return 0, errors.New("stub store")
}

func (*stubStore) Download(context.Context, string, string) error {
	return errors.New("stub store")
}

func (*stubStore) DownloadRange(context.Context, string, string, int64, int64) error {
	return errors.New("stub store")
}

func (*stubStore) Upload(context.Context, string, string) error {
	return errors.New("stub store")
}

// ---------------------------------------------------------------------------
// Mock ConfigLoader
// ---------------------------------------------------------------------------

type mockConfigLoader struct {
	LoadFunc func() (config.Config, error)

	mu        sync.Mutex
	loadCalls int
}

func (m *mockConfigLoader) Load() (config.Config, error) {
	m.mu.Lock()
	m.loadCalls++
	m.mu.Unlock()

	if m.LoadFunc != nil {
		return m.LoadFunc()
	}
	return config.Config{
		StoreURL:       "https://store.test",
		SegmentSeconds: 300,
		HeaderBytes:    512 * 1024,
		OpenAIKey:      "sk-test",
	}, nil
}

// ---------------------------------------------------------------------------
// Mock FFmpegResolver
// ---------------------------------------------------------------------------

type mockFFmpegResolver struct {
	ResolveFunc func(custom string) (string, error)

	mu           sync.Mutex
	resolveCalls []string
}

func (m *mockFFmpegResolver) Resolve(custom string) (string, error) {
	m.mu.Lock()
	m.resolveCalls = append(m.resolveCalls, custom)
	m.mu.Unlock()

	if m.ResolveFunc != nil {
		return m.ResolveFunc(custom)
	}
	return "/usr/bin/ffmpeg", nil
}

// ---------------------------------------------------------------------------
// Mock StoreFactory
// ---------------------------------------------------------------------------

type mockStoreFactory struct {
	NewStoreFunc func(cfg config.Config, bucket string) (storage.Store, error)

	mu      sync.Mutex
	buckets []string
}

func (m *mockStoreFactory) NewStore(cfg config.Config, bucket string) (storage.Store, error) {
	m.mu.Lock()
	m.buckets = append(m.buckets, bucket)
	m.mu.Unlock()

	if m.NewStoreFunc != nil {
		return m.NewStoreFunc(cfg, bucket)
	}
	return &stubStore{bucket: bucket}, nil
}

func (m *mockStoreFactory) Buckets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.buckets...)
}

// ---------------------------------------------------------------------------
// Mock ReporterFactory
// ---------------------------------------------------------------------------

type mockReporterFactory struct {
	NewReporterFunc func(cfg config.Config) (status.Reporter, error)
}

func (m *mockReporterFactory) NewReporter(cfg config.Config) (status.Reporter, error) {
	if m.NewReporterFunc != nil {
		return m.NewReporterFunc(cfg)
	}
	return status.NopReporter{}, nil
}

// ---------------------------------------------------------------------------
// Mock SegmenterFactory + Segmenter
// ---------------------------------------------------------------------------

type mockSegmenterFactory struct {
	NewSegmenterFunc func(cfg config.Config, ffmpegPath string, store storage.Store, reporter status.Reporter) (Segmenter, error)

	segmenter *mockSegmenter
}

func (m *mockSegmenterFactory) NewSegmenter(cfg config.Config, ffmpegPath string, store storage.Store, reporter status.Reporter) (Segmenter, error) {
	if m.NewSegmenterFunc != nil {
		return m.NewSegmenterFunc(cfg, ffmpegPath, store, reporter)
	}
	return m.segmenter, nil
}

type segmenterCall struct {
	SourceKey string
	SessionID string
}

type mockSegmenter struct {
	RunFunc func(ctx context.Context, sourceKey, sessionID string) (*segment.Report, error)

	mu       sync.Mutex
	runCalls []segmenterCall
}

func (m *mockSegmenter) Run(ctx context.Context, sourceKey, sessionID string) (*segment.Report, error) {
	m.mu.Lock()
	m.runCalls = append(m.runCalls, segmenterCall{SourceKey: sourceKey, SessionID: sessionID})
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx, sourceKey, sessionID)
	}
	return sampleReport(sourceKey), nil
}

func (m *mockSegmenter) RunCalls() []segmenterCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]segmenterCall(nil), m.runCalls...)
}

// sampleReport is the default two-segment outcome the mock engine returns.
func sampleReport(sourceKey string) *segment.Report {
	return &segment.Report{
		SourceKey: sourceKey,
		Strategy:  segment.StrategyStreaming,
		Estimate: probe.Estimate{
			Duration:   472 * time.Second,
			Tier:       probe.TierHeader,
			SourceSize: 7_500_000,
		},
		Plans: []segment.Plan{
			{Index: 1, Start: 0, Length: 300 * time.Second, OutputKey: "seg/night3_01_of_02.m4a"},
			{Index: 2, Start: 300 * time.Second, Length: 172 * time.Second, OutputKey: "seg/night3_02_of_02.m4a"},
		},
		Keys: []string{"seg/night3_01_of_02.m4a", "seg/night3_02_of_02.m4a"},
	}
}

// ---------------------------------------------------------------------------
// Mock ProberFactory + DurationProber
// ---------------------------------------------------------------------------

type mockProberFactory struct {
	NewProberFunc func(cfg config.Config, ffmpegPath string, store storage.Store, scratchDir string) (DurationProber, error)

	prober *mockProber
}

func (m *mockProberFactory) NewProber(cfg config.Config, ffmpegPath string, store storage.Store, scratchDir string) (DurationProber, error) {
	if m.NewProberFunc != nil {
		return m.NewProberFunc(cfg, ffmpegPath, store, scratchDir)
	}
	return m.prober, nil
}

type mockProber struct {
	ProbeFunc func(ctx context.Context, key string) (probe.Estimate, error)

	mu         sync.Mutex
	probeCalls []string
}

func (m *mockProber) Probe(ctx context.Context, key string) (probe.Estimate, error) {
	m.mu.Lock()
	m.probeCalls = append(m.probeCalls, key)
	m.mu.Unlock()

	if m.ProbeFunc != nil {
		return m.ProbeFunc(ctx, key)
	}
	return probe.Estimate{
		Duration:   1200 * time.Second,
		Tier:       probe.TierHeader,
		SourceSize: 18_000_000,
	}, nil
}

func (m *mockProber) ProbeCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.probeCalls...)
}

// ---------------------------------------------------------------------------
// Mock TranscriberFactory + BatchTranscriber
// ---------------------------------------------------------------------------

type batchTranscriberCall struct {
	Parallel int
	Language string
	Prompt   string
}

type mockTranscriberFactory struct {
	NewBatchTranscriberFunc func(cfg config.Config, store storage.Store, parallel int, language, prompt string) (BatchTranscriber, error)

	transcriber *mockBatchTranscriber

	mu    sync.Mutex
	calls []batchTranscriberCall
}

func (m *mockTranscriberFactory) NewBatchTranscriber(cfg config.Config, store storage.Store, parallel int, language, prompt string) (BatchTranscriber, error) {
	m.mu.Lock()
	m.calls = append(m.calls, batchTranscriberCall{Parallel: parallel, Language: language, Prompt: prompt})
	m.mu.Unlock()

	if m.NewBatchTranscriberFunc != nil {
		return m.NewBatchTranscriberFunc(cfg, store, parallel, language, prompt)
	}
	return m.transcriber, nil
}

func (m *mockTranscriberFactory) Calls() []batchTranscriberCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]batchTranscriberCall(nil), m.calls...)
}

type mockBatchTranscriber struct {
	RunFunc func(ctx context.Context, keys []string) ([]string, error)

	mu      sync.Mutex
	batches [][]string
}

func (m *mockBatchTranscriber) Run(ctx context.Context, keys []string) ([]string, error) {
	m.mu.Lock()
	m.batches = append(m.batches, append([]string(nil), keys...))
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx, keys)
	}
	texts := make([]string, len(keys))
	for i, key := range keys {
		texts[i] = key + ".txt"
	}
	return texts, nil
}

func (m *mockBatchTranscriber) Batches() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.batches...)
}
