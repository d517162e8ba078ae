package segment

import (
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultSegmentLength is the target length of one transcoded segment.
	DefaultSegmentLength = 5 * time.Minute

	// DefaultPadLow and DefaultPadHigh widen a streaming byte window
	// below and above the naive constant-bitrate estimate. Duration and
	// bitrate are only estimates; the surplus bytes overlap neighboring
	// windows and are discarded by the time-accurate trim.
	DefaultPadLow  = 0.85
	DefaultPadHigh = 1.15
)

// ByteWindow is an inclusive byte range of the source object.
type ByteWindow struct {
	Start int64
	End   int64
}

// Plan describes one segment to produce.
type Plan struct {
	Index  int           // 1-based, dense.
	Start  time.Duration // Offset of the segment in the source audio.
	Length time.Duration // Segment length; the last one may be shorter.

	// Window is the byte range to fetch under the streaming strategy.
	// Nil under the traditional strategy.
	Window *ByteWindow

	// TrimStart is the segment's start relative to the fetched window,
	// meaningful only when Window is set.
	TrimStart time.Duration

	// OutputKey is where the finished segment is stored. For a
	// whole-source plan it is the source key itself.
	OutputKey string

	// Whole marks the degenerate single-segment case: the source fits in
	// one segment and is returned untouched, with no transcode at all.
	Whole bool
}

// End returns the segment's end offset in the source audio.
func (p Plan) End() time.Duration {
	return p.Start + p.Length
}

// Planner computes the ordered segment plans for a probed source.
type Planner struct {
	segmentLength time.Duration
	padLow        float64
	padHigh       float64
	outputPrefix  string
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithSegmentLength overrides the target segment length.
func WithSegmentLength(l time.Duration) PlannerOption {
	return func(p *Planner) { p.segmentLength = l }
}

// WithBytePadding overrides the padding factors applied to streaming
// byte windows. The factors are empirical; tune them against
// representative variable-bitrate inputs.
func WithBytePadding(low, high float64) PlannerOption {
	return func(p *Planner) {
		p.padLow = low
		p.padHigh = high
	}
}

// WithOutputPrefix sets the key prefix for produced segment objects.
func WithOutputPrefix(prefix string) PlannerOption {
	return func(p *Planner) { p.outputPrefix = prefix }
}

// NewPlanner builds a Planner. Invalid option values fall back to the
// defaults.
func NewPlanner(opts ...PlannerOption) *Planner {
	p := &Planner{
		segmentLength: DefaultSegmentLength,
		padLow:        DefaultPadLow,
		padHigh:       DefaultPadHigh,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.segmentLength <= 0 {
		p.segmentLength = DefaultSegmentLength
	}
	if p.padLow <= 0 || p.padLow > 1 {
		p.padLow = DefaultPadLow
	}
	if p.padHigh < 1 {
		p.padHigh = DefaultPadHigh
	}
	return p
}

// Plans partitions the source into contiguous, non-overlapping time
// windows covering exactly [0, duration). The plan list is in index
// order. When the source fits in a single segment it is returned as one
// whole-source plan. Byte windows are computed only under the streaming
// strategy, for which sourceSize must be known.
func (p *Planner) Plans(sourceKey string, duration time.Duration, strategy Strategy, sourceSize int64) []Plan {
	if duration <= p.segmentLength {
		return []Plan{{
			Index:     1,
			Start:     0,
			Length:    duration,
			OutputKey: sourceKey,
			Whole:     true,
		}}
	}

	count := int((duration + p.segmentLength - 1) / p.segmentLength)

	var bytesPerSecond float64
	if strategy == StrategyStreaming {
		bytesPerSecond = float64(sourceSize) / duration.Seconds()
	}

	plans := make([]Plan, 0, count)
	for i := 0; i < count; i++ {
		start := time.Duration(i) * p.segmentLength
		end := min(start+p.segmentLength, duration)

		plan := Plan{
			Index:     i + 1,
			Start:     start,
			Length:    end - start,
			OutputKey: p.outputKey(sourceKey, i+1, count),
		}
		if strategy == StrategyStreaming {
			plan.Window, plan.TrimStart = p.byteWindow(start, end, bytesPerSecond, sourceSize)
		}
		plans = append(plans, plan)
	}
	return plans
}

// byteWindow estimates the byte range holding [start, end) assuming
// constant bitrate, widened by the padding factors and clamped to the
// object. The returned trim offset locates start within the window.
func (p *Planner) byteWindow(start, end time.Duration, bytesPerSecond float64, size int64) (*ByteWindow, time.Duration) {
	lo := int64(math.Floor(start.Seconds() * bytesPerSecond * p.padLow))
	if lo < 0 {
		lo = 0
	}
	hi := int64(math.Ceil(end.Seconds() * bytesPerSecond * p.padHigh))
	if hi > size-1 {
		hi = size - 1
	}

	trim := start - time.Duration(float64(lo)/bytesPerSecond*float64(time.Second))
	if trim < 0 {
		trim = 0
	}
	return &ByteWindow{Start: lo, End: hi}, trim
}

// outputKey derives the deterministic segment key from the source base
// name, the 1-based index, and the total count, so rerunning the same
// source yields the same names.
func (p *Planner) outputKey(sourceKey string, index, count int) string {
	base := path.Base(sourceKey)
	base = strings.TrimSuffix(base, path.Ext(base))
	width := numberWidth(count)
	return fmt.Sprintf("%s%s_%0*d_of_%0*d.m4a", p.outputPrefix, base, width, index, width, count)
}

// numberWidth is the zero-padding width for segment numbering: at least
// two digits, widening when the count needs more so names keep sorting
// in index order.
func numberWidth(count int) int {
	if w := len(strconv.Itoa(count)); w > 2 {
		return w
	}
	return 2
}
