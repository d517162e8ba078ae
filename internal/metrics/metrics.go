// Package metrics exposes Prometheus counters for segmentation runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segmenter_runs_total",
		Help: "Segmentation runs by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	runDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "segmenter_run_duration_seconds",
		Help:    "Wall-clock time of one segmentation run",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
	})

	segmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segmenter_segments_total",
		Help: "Individual segment outcomes across all runs",
	}, []string{"outcome"}) // outcome=success|failure

	probeTierTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segmenter_probe_tier_total",
		Help: "Which duration probe tier finally answered",
	}, []string{"tier"}) // tier=header|full_download|size_estimate

	strategyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segmenter_strategy_total",
		Help: "Chosen segmentation strategy per run",
	}, []string{"strategy"}) // strategy=streaming|traditional|single

	transcodeFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "segmenter_transcode_fallback_total",
		Help: "Segments where the precise trim failed and the whole window was re-encoded",
	})

	poolWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "segmenter_pool_workers",
		Help: "Worker count of the most recent run",
	})

	transcriptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segmenter_transcriptions_total",
		Help: "Segment transcription outcomes across all batches",
	}, []string{"outcome"}) // outcome=success|failure
)

func RecordRun(outcome string, seconds float64) {
	runsTotal.WithLabelValues(outcome).Inc()
	runDurationSeconds.Observe(seconds)
}

func IncSegment(outcome string)   { segmentsTotal.WithLabelValues(outcome).Inc() }
func IncProbeTier(tier string)    { probeTierTotal.WithLabelValues(tier).Inc() }
func IncStrategy(strategy string) { strategyTotal.WithLabelValues(strategy).Inc() }
func IncTranscodeFallback()       { transcodeFallbackTotal.Inc() }
func RecordPoolWorkers(n int)     { poolWorkers.Set(float64(n)) }
func IncTranscription(outcome string) {
	transcriptionsTotal.WithLabelValues(outcome).Inc()
}
