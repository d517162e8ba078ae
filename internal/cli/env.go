// Package cli wires the segmenter's commands: parsing trigger events,
// running the segmentation engine, serving it over HTTP, and handing
// finished segments to the transcription stage.
package cli

import (
	"context"
	"io"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lorekeeper/segmenter/internal/config"
	"github.com/lorekeeper/segmenter/internal/ffmpeg"
	"github.com/lorekeeper/segmenter/internal/log"
	"github.com/lorekeeper/segmenter/internal/probe"
	"github.com/lorekeeper/segmenter/internal/segment"
	"github.com/lorekeeper/segmenter/internal/status"
	"github.com/lorekeeper/segmenter/internal/storage"
	"github.com/lorekeeper/segmenter/internal/transcribe"
)

// Env holds injectable dependencies for CLI commands.
// This is the central injection point for testing CLI commands in isolation.
//
// All fields have production defaults via DefaultEnv(). Tests override
// specific fields using the With* options.
//
// Env must not be nil when passed to command functions. Use DefaultEnv()
// or NewEnv() to create a valid instance.
type Env struct {
	// I/O
	Stdout io.Writer
	Stderr io.Writer

	// Factories for domain objects
	ConfigLoader       ConfigLoader
	FFmpegResolver     FFmpegResolver
	StoreFactory       StoreFactory
	ReporterFactory    ReporterFactory
	SegmenterFactory   SegmenterFactory
	ProberFactory      ProberFactory
	TranscriberFactory TranscriberFactory
}

// ConfigLoader loads the runtime configuration.
type ConfigLoader interface {
	Load() (config.Config, error)
}

// FFmpegResolver locates the ffmpeg binary, honoring a configured override.
type FFmpegResolver interface {
	Resolve(custom string) (string, error)
}

// StoreFactory builds the object store a command reads and writes.
// bucket narrows the store to one key namespace; empty means the store
// root itself.
type StoreFactory interface {
	NewStore(cfg config.Config, bucket string) (storage.Store, error)
}

// ReporterFactory builds the session status reporter.
type ReporterFactory interface {
	NewReporter(cfg config.Config) (status.Reporter, error)
}

// Segmenter runs one segmentation pass over a stored source object.
// *segment.Engine implements it.
type Segmenter interface {
	Run(ctx context.Context, sourceKey, sessionID string) (*segment.Report, error)
}

// SegmenterFactory builds the segmentation engine.
type SegmenterFactory interface {
	NewSegmenter(cfg config.Config, ffmpegPath string, store storage.Store, reporter status.Reporter) (Segmenter, error)
}

// DurationProber measures a stored audio object. *probe.Prober implements it.
type DurationProber interface {
	Probe(ctx context.Context, key string) (probe.Estimate, error)
}

// ProberFactory builds the duration prober used by the probe command.
type ProberFactory interface {
	NewProber(cfg config.Config, ffmpegPath string, store storage.Store, scratchDir string) (DurationProber, error)
}

// BatchTranscriber transcribes a batch of stored segments.
// *transcribe.Runner implements it.
type BatchTranscriber interface {
	Run(ctx context.Context, keys []string) ([]string, error)
}

// TranscriberFactory builds the batch transcriber for the transcribe command.
type TranscriberFactory interface {
	NewBatchTranscriber(cfg config.Config, store storage.Store, parallel int, language, prompt string) (BatchTranscriber, error)
}

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithStdout sets the stdout writer.
func WithStdout(w io.Writer) EnvOption {
	return func(e *Env) { e.Stdout = w }
}

// WithStderr sets the stderr writer.
func WithStderr(w io.Writer) EnvOption {
	return func(e *Env) { e.Stderr = w }
}

// WithConfigLoader sets the config loader.
func WithConfigLoader(l ConfigLoader) EnvOption {
	return func(e *Env) { e.ConfigLoader = l }
}

// WithFFmpegResolver sets the ffmpeg resolver.
func WithFFmpegResolver(r FFmpegResolver) EnvOption {
	return func(e *Env) { e.FFmpegResolver = r }
}

// WithStoreFactory sets the object store factory.
func WithStoreFactory(f StoreFactory) EnvOption {
	return func(e *Env) { e.StoreFactory = f }
}

// WithReporterFactory sets the status reporter factory.
func WithReporterFactory(f ReporterFactory) EnvOption {
	return func(e *Env) { e.ReporterFactory = f }
}

// WithSegmenterFactory sets the segmentation engine factory.
func WithSegmenterFactory(f SegmenterFactory) EnvOption {
	return func(e *Env) { e.SegmenterFactory = f }
}

// WithProberFactory sets the duration prober factory.
func WithProberFactory(f ProberFactory) EnvOption {
	return func(e *Env) { e.ProberFactory = f }
}

// WithTranscriberFactory sets the batch transcriber factory.
func WithTranscriberFactory(f TranscriberFactory) EnvOption {
	return func(e *Env) { e.TranscriberFactory = f }
}

// DefaultEnv returns an Env with production defaults.
func DefaultEnv() *Env {
	return &Env{
		Stdout:             os.Stdout,
		Stderr:             os.Stderr,
		ConfigLoader:       &defaultConfigLoader{},
		FFmpegResolver:     &defaultFFmpegResolver{},
		StoreFactory:       &defaultStoreFactory{},
		ReporterFactory:    &defaultReporterFactory{},
		SegmenterFactory:   &defaultSegmenterFactory{},
		ProberFactory:      &defaultProberFactory{},
		TranscriberFactory: &defaultTranscriberFactory{},
	}
}

// NewEnv creates an Env with the given options applied to defaults.
func NewEnv(opts ...EnvOption) *Env {
	env := DefaultEnv()
	for _, opt := range opts {
		opt(env)
	}
	return env
}

// scratchRoot is where commands place per-run scratch directories.
func scratchRoot(cfg config.Config) string {
	if cfg.ScratchDir != "" {
		return cfg.ScratchDir
	}
	return os.TempDir()
}

// ---------------------------------------------------------------------------
// Default implementations - delegate to real packages
// ---------------------------------------------------------------------------

// defaultConfigLoader reads configuration from the process environment.
type defaultConfigLoader struct{}

func (defaultConfigLoader) Load() (config.Config, error) {
	return config.FromOSEnv()
}

// defaultFFmpegResolver implements FFmpegResolver using the ffmpeg package.
type defaultFFmpegResolver struct{}

func (defaultFFmpegResolver) Resolve(custom string) (string, error) {
	path, err := ffmpeg.NewResolver().Resolve(custom)
	if err != nil {
		return "", err
	}
	logFFmpegVersion(path)
	return path, nil
}

// logFFmpegVersion records which ffmpeg build a run will use. The sniff
// spawns a process, so it only happens when debug logging is on.
func logFFmpegVersion(path string) {
	logger := log.WithComponent("ffmpeg")
	e := logger.Debug()
	if !e.Enabled() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tool, err := ffmpeg.NewTool(path)
	if err != nil {
		e.Err(err).Str("path", path).Msg("ffmpeg version probe failed")
		return
	}
	version, err := tool.Version(ctx)
	if err != nil {
		e.Err(err).Str("path", path).Msg("ffmpeg version probe failed")
		return
	}
	e.Str("path", path).Str("version", version).Msg("resolved ffmpeg")
}

// defaultStoreFactory dispatches on the store URL scheme.
type defaultStoreFactory struct{}

func (defaultStoreFactory) NewStore(cfg config.Config, bucket string) (storage.Store, error) {
	return openStore(cfg, bucket)
}

// defaultReporterFactory builds a GraphQL reporter when the session store
// is configured, a no-op otherwise.
type defaultReporterFactory struct{}

func (defaultReporterFactory) NewReporter(cfg config.Config) (status.Reporter, error) {
	if cfg.AppSyncURL == "" && cfg.AppSyncAPIKey == "" {
		return status.NopReporter{}, nil
	}
	return status.NewGraphQLReporter(cfg.AppSyncURL, cfg.AppSyncAPIKey)
}

// defaultSegmenterFactory assembles the production engine.
type defaultSegmenterFactory struct{}

func (defaultSegmenterFactory) NewSegmenter(cfg config.Config, ffmpegPath string, store storage.Store, reporter status.Reporter) (Segmenter, error) {
	tool, err := ffmpeg.NewTool(ffmpegPath)
	if err != nil {
		return nil, err
	}
	planner := segment.NewPlanner(
		segment.WithSegmentLength(time.Duration(cfg.SegmentSeconds)*time.Second),
		segment.WithOutputPrefix(cfg.OutputPrefix),
	)
	return segment.NewEngine(store, tool, scratchRoot(cfg),
		segment.WithReporter(reporter),
		segment.WithPlanner(planner),
		segment.WithProbeOptions(probe.WithHeaderBytes(cfg.HeaderBytes)),
	)
}

// defaultProberFactory assembles the production prober.
type defaultProberFactory struct{}

func (defaultProberFactory) NewProber(cfg config.Config, ffmpegPath string, store storage.Store, scratchDir string) (DurationProber, error) {
	tool, err := ffmpeg.NewTool(ffmpegPath)
	if err != nil {
		return nil, err
	}
	return probe.NewProber(store, tool, scratchDir, probe.WithHeaderBytes(cfg.HeaderBytes))
}

// defaultTranscriberFactory assembles the OpenAI batch transcriber.
type defaultTranscriberFactory struct{}

func (defaultTranscriberFactory) NewBatchTranscriber(cfg config.Config, store storage.Store, parallel int, language, prompt string) (BatchTranscriber, error) {
	client := openai.NewClient(cfg.OpenAIKey)
	transcriber, err := transcribe.NewOpenAITranscriber(client,
		transcribe.WithLanguage(language),
		transcribe.WithPrompt(prompt),
	)
	if err != nil {
		return nil, err
	}
	return transcribe.NewRunner(store, transcriber, scratchRoot(cfg),
		transcribe.WithParallel(parallel))
}

// Compile-time interface verification.
var (
	_ ConfigLoader       = (*defaultConfigLoader)(nil)
	_ FFmpegResolver     = (*defaultFFmpegResolver)(nil)
	_ StoreFactory       = (*defaultStoreFactory)(nil)
	_ ReporterFactory    = (*defaultReporterFactory)(nil)
	_ SegmenterFactory   = (*defaultSegmenterFactory)(nil)
	_ ProberFactory      = (*defaultProberFactory)(nil)
	_ TranscriberFactory = (*defaultTranscriberFactory)(nil)
	_ Segmenter          = (*segment.Engine)(nil)
	_ DurationProber     = (*probe.Prober)(nil)
	_ BatchTranscriber   = (*transcribe.Runner)(nil)
)
