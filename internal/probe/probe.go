// Package probe measures the duration of a stored audio object without
// assuming anything about how cooperative the object is. Well-formed
// uploads answer from a small header fetch; files with trailing metadata
// need the whole object; badly truncated ones fall back to a size-based
// guess. Each tier is strictly cheaper in accuracy and dearer in I/O than
// the one after it.
package probe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/lorekeeper/segmenter/internal/log"
	"github.com/lorekeeper/segmenter/internal/metrics"
	"github.com/lorekeeper/segmenter/internal/storage"
)

// Tier identifies which probe tier produced a duration.
type Tier string

const (
	// TierHeader read the duration from container metadata in the file head.
	TierHeader Tier = "header"

	// TierFullDownload read the duration from the fully downloaded file.
	TierFullDownload Tier = "full_download"

	// TierSizeEstimate derived the duration from the object size alone.
	TierSizeEstimate Tier = "size_estimate"
)

// Defaults.
const (
	// DefaultHeaderBytes covers WAV/MP3/M4A headers with head-positioned
	// metadata. M4A files with a trailing moov atom will miss and fall
	// through to the next tier.
	DefaultHeaderBytes = 512 * 1024

	// DefaultBytesPerMinute approximates the upload bitrates seen from
	// session recordings. Only the last-resort tier uses it.
	DefaultBytesPerMinute = 1024 * 1024
)

// SizeUnknown marks an Estimate whose source size could not be read.
const SizeUnknown int64 = -1

// durationReader reads a local audio file's duration. *ffmpeg.Tool
// satisfies this.
type durationReader interface {
	DurationOf(ctx context.Context, path string) (time.Duration, error)
}

// Estimate is a duration measurement with its provenance.
type Estimate struct {
	// Duration of the source audio. Exact for the header and full
	// download tiers, approximate for the size estimate tier.
	Duration time.Duration

	// Tier that produced the duration.
	Tier Tier

	// SourceSize is the object size in bytes, or SizeUnknown.
	SourceSize int64

	// FullLocalPath is set when the full download tier materialized the
	// source locally, so the caller can reuse it instead of fetching the
	// object again. Empty otherwise.
	FullLocalPath string
}

// Exact reports whether the duration was read from the audio itself
// rather than guessed from the size.
func (e Estimate) Exact() bool {
	return e.Tier == TierHeader || e.Tier == TierFullDownload
}

// Prober measures stored audio objects.
type Prober struct {
	store          storage.Store
	reader         durationReader
	scratchDir     string
	headerBytes    int64
	bytesPerMinute int64
	logger         zerolog.Logger
}

// Option configures a Prober.
type Option func(*Prober)

// WithHeaderBytes sets how much of the file head the first tier fetches.
func WithHeaderBytes(n int64) Option {
	return func(p *Prober) { p.headerBytes = n }
}

// WithBytesPerMinute sets the size-to-duration ratio of the last tier.
func WithBytesPerMinute(n int64) Option {
	return func(p *Prober) { p.bytesPerMinute = n }
}

// NewProber creates a Prober that fetches scratch data into scratchDir.
func NewProber(store storage.Store, reader durationReader, scratchDir string, opts ...Option) (*Prober, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if reader == nil {
		return nil, fmt.Errorf("duration reader cannot be nil")
	}
	if scratchDir == "" {
		return nil, fmt.Errorf("scratch dir cannot be empty")
	}

	p := &Prober{
		store:          store,
		reader:         reader,
		scratchDir:     scratchDir,
		headerBytes:    DefaultHeaderBytes,
		bytesPerMinute: DefaultBytesPerMinute,
		logger:         log.WithComponent("probe"),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.headerBytes <= 0 {
		return nil, fmt.Errorf("header bytes must be positive, got %d", p.headerBytes)
	}
	if p.bytesPerMinute <= 0 {
		return nil, fmt.Errorf("bytes per minute must be positive, got %d", p.bytesPerMinute)
	}
	return p, nil
}

// Probe measures the object at key. Tier failures are recovered
// internally; the returned error is non-nil only when every tier is
// exhausted, which requires both download tiers to fail and the size to
// be unreadable.
func (p *Prober) Probe(ctx context.Context, key string) (Estimate, error) {
	size, err := p.store.Size(ctx, key)
	if err != nil {
		p.logger.Debug().Err(err).Str("key", key).Msg("source size unavailable")
		size = SizeUnknown
	}

	d, headerErr := p.probeHeader(ctx, key, size)
	if headerErr == nil {
		p.logger.Info().
			Str("key", key).
			Dur("duration", d).
			Int64("size", size).
			Msg("duration read from header")
		metrics.IncProbeTier(string(TierHeader))
		return Estimate{Duration: d, Tier: TierHeader, SourceSize: size}, nil
	}
	p.logger.Warn().Err(headerErr).Str("key", key).Msg("header probe failed, downloading full file")

	d, localPath, fullErr := p.probeFull(ctx, key)
	if fullErr == nil {
		p.logger.Info().
			Str("key", key).
			Dur("duration", d).
			Str("local_path", localPath).
			Msg("duration read from full download")
		metrics.IncProbeTier(string(TierFullDownload))
		return Estimate{Duration: d, Tier: TierFullDownload, SourceSize: size, FullLocalPath: localPath}, nil
	}
	p.logger.Warn().Err(fullErr).Str("key", key).Msg("full download probe failed")

	if size == SizeUnknown {
		return Estimate{}, fmt.Errorf("all probe tiers failed for %s: %w", key, fullErr)
	}

	d = p.estimateFromSize(size)
	p.logger.Warn().
		Str("key", key).
		Int64("size", size).
		Dur("duration", d).
		Msg("falling back to size-based duration estimate")
	metrics.IncProbeTier(string(TierSizeEstimate))
	return Estimate{Duration: d, Tier: TierSizeEstimate, SourceSize: size}, nil
}

// probeHeader fetches the file head and reads duration from container
// metadata. The scratch file is removed before returning: on the success
// path nothing else needs it, and on failure the next tier starts clean.
func (p *Prober) probeHeader(ctx context.Context, key string, size int64) (time.Duration, error) {
	end := p.headerBytes - 1
	if size != SizeUnknown && size-1 < end {
		end = size - 1
	}
	if end < 0 {
		return 0, fmt.Errorf("object %s is empty", key)
	}

	headerPath := filepath.Join(p.scratchDir, "probe_header"+filepath.Ext(key))
	if err := p.store.DownloadRange(ctx, key, headerPath, 0, end); err != nil {
		return 0, fmt.Errorf("fetch header: %w", err)
	}
	defer func() { _ = os.Remove(headerPath) }()

	d, err := p.reader.DurationOf(ctx, headerPath)
	if err != nil {
		return 0, fmt.Errorf("read header duration: %w", err)
	}
	return d, nil
}

// probeFull downloads the whole object and reads its duration. The local
// copy is kept on success so the caller can reuse it.
func (p *Prober) probeFull(ctx context.Context, key string) (time.Duration, string, error) {
	localPath := filepath.Join(p.scratchDir, "source"+filepath.Ext(key))
	if err := p.store.Download(ctx, key, localPath); err != nil {
		return 0, "", fmt.Errorf("download source: %w", err)
	}

	d, err := p.reader.DurationOf(ctx, localPath)
	if err != nil {
		_ = os.Remove(localPath)
		return 0, "", fmt.Errorf("read source duration: %w", err)
	}
	return d, localPath, nil
}

// estimateFromSize converts an object size to an approximate duration.
func (p *Prober) estimateFromSize(size int64) time.Duration {
	minutes := float64(size) / float64(p.bytesPerMinute)
	return time.Duration(minutes * float64(time.Minute))
}
