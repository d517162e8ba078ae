package ffmpeg

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lorekeeper/segmenter/internal/format"
)

// Transcription profile: AAC in an .m4a container, mono, 16 kHz, 48 kbps.
// Speech models downsample to 16 kHz mono anyway, so encoding anything
// richer only inflates upload size.
func encodeArgs() []string {
	return []string{
		"-c:a", "aac",
		"-ar", "16000",
		"-ac", "1",
		"-b:a", "48k",
		"-vn",
	}
}

// Tool invokes a resolved ffmpeg binary.
type Tool struct {
	path string
	cmd  commandRunner
}

// ToolOption configures a Tool.
type ToolOption func(*Tool)

// WithCommandRunner sets the command runner (for testing).
func WithCommandRunner(r commandRunner) ToolOption {
	return func(t *Tool) { t.cmd = r }
}

// NewTool creates a Tool for the binary at path.
func NewTool(path string, opts ...ToolOption) (*Tool, error) {
	if path == "" {
		return nil, fmt.Errorf("ffmpeg path cannot be empty: %w", ErrNotFound)
	}
	t := &Tool{
		path: path,
		cmd:  osCommandRunner{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Path returns the binary location the tool was built with.
func (t *Tool) Path() string { return t.path }

// Version reports the first line of `ffmpeg -version` output, which names
// the build and how it was configured.
func (t *Tool) Version(ctx context.Context) (string, error) {
	output, err := t.cmd.CombinedOutput(ctx, t.path, []string{"-version"})
	if err != nil {
		return "", fmt.Errorf("ffmpeg -version: %w", err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(output)), "\n")
	return strings.TrimSpace(line), nil
}

// DurationOf reads the duration of an audio file from ffmpeg's metadata
// banner. Running with an input and no output exits non-zero but still
// prints the banner, so the exit status is ignored whenever there is
// output to parse. This works on truncated files too, as long as the
// container header is intact.
func (t *Tool) DurationOf(ctx context.Context, audioPath string) (time.Duration, error) {
	args := []string{"-i", audioPath}
	output, err := t.cmd.CombinedOutput(ctx, t.path, args)
	if err != nil && len(output) == 0 {
		return 0, fmt.Errorf("probe %s: %w", audioPath, err)
	}
	return ParseDuration(string(output))
}

// ExtractSegment re-encodes the [start, end) slice of src into dst using
// the transcription profile. start and end are relative to src.
func (t *Tool) ExtractSegment(ctx context.Context, src, dst string, start, end time.Duration) error {
	args := []string{
		"-y",
		"-i", src,
		"-ss", format.FFmpegTime(start),
		"-to", format.FFmpegTime(end),
	}
	args = append(args, encodeArgs()...)
	args = append(args, dst)

	output, err := t.cmd.CombinedOutput(ctx, t.path, args)
	if err != nil {
		return fmt.Errorf("%w: extract %s [%s-%s]: %v\nOutput: %s",
			ErrTranscodeFailed, dst, format.Duration(start), format.Duration(end), err, string(output))
	}
	return nil
}

// Transcode re-encodes all of src into dst using the transcription
// profile, with no time trim. Used as the degraded fallback when a
// byte-window scratch file will not seek cleanly.
func (t *Tool) Transcode(ctx context.Context, src, dst string) error {
	args := []string{"-y", "-i", src}
	args = append(args, encodeArgs()...)
	args = append(args, dst)

	output, err := t.cmd.CombinedOutput(ctx, t.path, args)
	if err != nil {
		return fmt.Errorf("%w: transcode %s: %v\nOutput: %s",
			ErrTranscodeFailed, dst, err, string(output))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Duration parsing - ffmpeg writes metadata to stderr
// ---------------------------------------------------------------------------

var (
	// Pattern: Duration: 00:05:23.45
	durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)\.(\d+)`)

	// Fallback pattern: time=00:05:23.45 (from progress output)
	timeRe = regexp.MustCompile(`time=(\d+):(\d+):(\d+)\.(\d+)`)
)

// ParseDuration extracts a duration from ffmpeg stderr output.
// Prefers the metadata "Duration:" line; falls back to the last
// progress "time=" stamp.
func ParseDuration(output string) (time.Duration, error) {
	if matches := durationRe.FindStringSubmatch(output); matches != nil {
		return parseTimeComponents(matches[1], matches[2], matches[3], matches[4]), nil
	}

	allMatches := timeRe.FindAllStringSubmatch(output, -1)
	if len(allMatches) > 0 {
		matches := allMatches[len(allMatches)-1]
		return parseTimeComponents(matches[1], matches[2], matches[3], matches[4]), nil
	}

	return 0, ErrProbeFailed
}

// parseTimeComponents converts HH:MM:SS.frac strings to a Duration.
func parseTimeComponents(hours, minutes, seconds, fractional string) time.Duration {
	h, _ := strconv.Atoi(hours)
	m, _ := strconv.Atoi(minutes)
	s, _ := strconv.Atoi(seconds)

	// Normalize the fractional part to milliseconds. ffmpeg emits anywhere
	// from one to six digits (e.g. ".4", ".45", ".456789").
	frac, _ := strconv.Atoi(fractional)
	ms := frac
	switch n := len(fractional); {
	case n == 1:
		ms = frac * 100
	case n == 2:
		ms = frac * 10
	case n == 3:
		// Already milliseconds.
	case n > 3:
		for i := n; i > 3; i-- {
			ms /= 10
		}
	}

	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(ms)*time.Millisecond
}
