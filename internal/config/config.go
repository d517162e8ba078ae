package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment variable names.
const (
	EnvStoreURL       = "SEGMENTER_STORE_URL"
	EnvBucket         = "SEGMENTER_BUCKET"
	EnvOutputPrefix   = "SEGMENTER_OUTPUT_PREFIX"
	EnvSegmentSeconds = "SEGMENTER_SEGMENT_SECONDS"
	EnvHeaderBytes    = "SEGMENTER_HEADER_PROBE_BYTES"
	EnvScratchDir     = "SEGMENTER_SCRATCH_DIR"
	EnvListenAddr     = "SEGMENTER_LISTEN_ADDR"
	EnvAppSyncURL     = "SEGMENTER_APPSYNC_URL"
	EnvAppSyncAPIKey  = "SEGMENTER_APPSYNC_API_KEY"
	EnvFFmpeg         = "SEGMENTER_FFMPEG"
	EnvOpenAIKey      = "OPENAI_API_KEY"
	EnvHTTPTimeout    = "SEGMENTER_HTTP_TIMEOUT"
)

// Defaults applied when the corresponding variable is unset or empty.
const (
	DefaultSegmentSeconds = 300
	DefaultHeaderBytes    = 512 * 1024
	DefaultListenAddr     = ":8080"
	DefaultHTTPTimeout    = 2 * time.Minute
)

// Config holds all runtime settings for the segmenter.
// Values come from environment variables; unset numeric and address
// settings fall back to the defaults above.
type Config struct {
	// StoreURL is the base URL of the audio object store. When it uses
	// the file:// scheme (or is a bare path), segments are read from and
	// written to the local filesystem instead of HTTP.
	StoreURL string

	// Bucket narrows StoreURL to a single key namespace. Optional.
	Bucket string

	// OutputPrefix is prepended to every segment object key.
	OutputPrefix string

	// SegmentSeconds is the target duration of each audio segment.
	SegmentSeconds int

	// HeaderBytes is how much of the file head to fetch for the
	// metadata-only duration probe.
	HeaderBytes int64

	// ScratchDir is where per-run working directories are created.
	// Empty means the system temp directory.
	ScratchDir string

	// ListenAddr is the HTTP bind address for serve mode.
	ListenAddr string

	// AppSyncURL and AppSyncAPIKey configure session status reporting.
	// Both empty disables reporting.
	AppSyncURL    string
	AppSyncAPIKey string

	// FFmpegPath overrides PATH lookup for the ffmpeg binary.
	FFmpegPath string

	// OpenAIKey authenticates the optional transcription hand-off.
	OpenAIKey string

	// HTTPTimeout bounds individual store and status requests.
	HTTPTimeout time.Duration
}

// LookupFunc reads one environment variable, reporting whether it was set.
// os.LookupEnv satisfies this.
type LookupFunc func(key string) (string, bool)

// FromEnv builds a Config from environment variables read through lookup.
// Invalid numeric or duration values are errors rather than silent defaults
// so that a typo in deployment config fails fast.
func FromEnv(lookup LookupFunc) (Config, error) {
	cfg := Config{
		StoreURL:      getString(lookup, EnvStoreURL, ""),
		Bucket:        getString(lookup, EnvBucket, ""),
		OutputPrefix:  getString(lookup, EnvOutputPrefix, ""),
		ScratchDir:    getString(lookup, EnvScratchDir, ""),
		ListenAddr:    getString(lookup, EnvListenAddr, DefaultListenAddr),
		AppSyncURL:    getString(lookup, EnvAppSyncURL, ""),
		AppSyncAPIKey: getString(lookup, EnvAppSyncAPIKey, ""),
		FFmpegPath:    getString(lookup, EnvFFmpeg, ""),
		OpenAIKey:     getString(lookup, EnvOpenAIKey, ""),
	}

	seconds, err := getInt(lookup, EnvSegmentSeconds, DefaultSegmentSeconds)
	if err != nil {
		return Config{}, err
	}
	if seconds <= 0 {
		return Config{}, fmt.Errorf("%s must be positive, got %d", EnvSegmentSeconds, seconds)
	}
	cfg.SegmentSeconds = seconds

	headerBytes, err := getInt64(lookup, EnvHeaderBytes, DefaultHeaderBytes)
	if err != nil {
		return Config{}, err
	}
	if headerBytes <= 0 {
		return Config{}, fmt.Errorf("%s must be positive, got %d", EnvHeaderBytes, headerBytes)
	}
	cfg.HeaderBytes = headerBytes

	timeout, err := getDuration(lookup, EnvHTTPTimeout, DefaultHTTPTimeout)
	if err != nil {
		return Config{}, err
	}
	if timeout <= 0 {
		return Config{}, fmt.Errorf("%s must be positive, got %s", EnvHTTPTimeout, timeout)
	}
	cfg.HTTPTimeout = timeout

	return cfg, nil
}

// FromOSEnv is FromEnv over the process environment.
func FromOSEnv() (Config, error) {
	return FromEnv(os.LookupEnv)
}

func getString(lookup LookupFunc, key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(lookup LookupFunc, key string, fallback int) (int, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, v, err)
	}
	return n, nil
}

func getInt64(lookup LookupFunc, key string, fallback int64) (int64, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, v, err)
	}
	return n, nil
}

func getDuration(lookup LookupFunc, key string, fallback time.Duration) (time.Duration, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, v, err)
	}
	return d, nil
}
