// Package metrics holds the Prometheus collectors shared by the API, worker
// and stats binaries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SourceReadFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tsiken_log_source_failures_total",
			Help: "Log collection reads that failed and contributed no entries",
		},
		[]string{"collection"},
	)

	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tsiken_log_aggregation_duration_seconds",
			Help:    "Time spent reading and merging all log collections",
			Buckets: prometheus.DefBuckets,
		},
	)

	TimestampFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tsiken_log_timestamp_fallbacks_total",
			Help: "Log records whose timestamp could not be parsed and fell back to the epoch",
		},
		[]string{"collection"},
	)

	ReportsExported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tsiken_reports_exported_total",
			Help: "PDF exports by outcome",
		},
		[]string{"outcome"},
	)

	DetectionsCaptured = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tsiken_predator_detections_total",
			Help: "Predator detections captured, by detected class",
		},
		[]string{"class"},
	)
)
