package segment

import "github.com/lorekeeper/segmenter/internal/probe"

// Strategy selects how segment bytes reach the transcoder.
type Strategy string

const (
	// StrategyStreaming fetches each segment's estimated byte window
	// instead of the whole file. Lower peak memory, higher concurrency.
	StrategyStreaming Strategy = "streaming"

	// StrategyTraditional downloads the source once and cuts every
	// segment from the local copy.
	StrategyTraditional Strategy = "traditional"
)

// SelectStrategy picks the fetch strategy for a probed source. Streaming
// requires a duration read from the file header and a known object size;
// anything less falls back to the whole-file path.
func SelectStrategy(est probe.Estimate) Strategy {
	if est.Tier == probe.TierHeader && est.SourceSize != probe.SizeUnknown {
		return StrategyStreaming
	}
	return StrategyTraditional
}
