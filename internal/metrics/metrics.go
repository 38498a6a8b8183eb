// Package metrics exposes the engine's Prometheus counters, gauges, and
// histograms.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ci_engine"

// Pipeline counters, incremented by the stage workers and the scheduler.
var (
	RecordingsProcessedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recordings_processed_total",
		Help:      "Recordings taken through the pipeline.",
	})

	StageOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stage_outcomes_total",
		Help:      "Per-stage success/failure outcomes.",
	}, []string{"stage", "outcome"})

	DailyRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "daily_runs_total",
		Help:      "Completed daily processing runs.",
	})

	LayerOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "layer_outcomes_total",
		Help:      "Per-analysis-layer success/failure outcomes.",
	}, []string{"layer", "outcome"})

	EmbeddingsIngestedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "embeddings_ingested_total",
		Help:      "Transcripts embedded and indexed.",
	})
)

// Histograms for stage and end-to-end latency plus quality signals.
var (
	StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Per-stage processing duration.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s → ~256s
	}, []string{"stage"})

	RecordingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "recording_duration_seconds",
		Help:      "End-to-end per-recording processing duration.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	DailyRunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "daily_run_duration_seconds",
		Help:      "Daily pass duration.",
		Buckets:   prometheus.ExponentialBuckets(10, 2, 12),
	})

	ProviderLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_latency_seconds",
		Help:      "Upstream provider call latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider"})

	TranscriptConfidence = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "transcript_confidence",
		Help:      "Distribution of transcript confidence scores.",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
	})
)

func init() {
	prometheus.MustRegister(
		RecordingsProcessedTotal,
		StageOutcomesTotal,
		DailyRunsTotal,
		LayerOutcomesTotal,
		EmbeddingsIngestedTotal,
		StageDuration,
		RecordingDuration,
		DailyRunDuration,
		ProviderLatency,
		TranscriptConfidence,
	)
}

// ObserveStage records one stage outcome with its duration.
func ObserveStage(stage string, seconds float64, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	StageOutcomesTotal.WithLabelValues(stage, outcome).Inc()
	StageDuration.WithLabelValues(stage).Observe(seconds)
}
