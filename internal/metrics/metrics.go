// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics provides Prometheus instrumentation for the ingestion
// pipeline, the event store, the HTTP API, and the text-simplification
// collaborator.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	IngestBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cognito_ingest_batches_total",
			Help: "Total number of ingestion batches by outcome",
		},
		[]string{"status"}, // "accepted", "rejected", "failed"
	)

	IngestEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cognito_ingest_events_total",
			Help: "Total number of events accepted for persistence",
		},
	)

	SessionsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cognito_sessions_created_total",
			Help: "Total number of new session headers inserted",
		},
	)

	// Event store metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cognito_db_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cognito_db_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation"},
	)

	// API metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cognito_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cognito_api_active_requests",
			Help: "Number of API requests currently being processed",
		},
	)

	// Pipeline metrics
	PipelinePublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cognito_pipeline_published_total",
			Help: "Total number of event envelopes published to the pipeline",
		},
	)

	PipelineConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cognito_pipeline_consumed_total",
			Help: "Total number of pipeline messages consumed by outcome",
		},
		[]string{"status"}, // "processed", "parse_error"
	)

	AppenderFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cognito_appender_flush_duration_seconds",
			Help:    "Duration of appender flushes to the event store",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Text-simplification collaborator metrics
	SimplifyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cognito_simplify_requests_total",
			Help: "Total completion-service calls by outcome",
		},
		[]string{"status"}, // "ok", "error", "fallback"
	)
)

// RecordDBQuery observes one store operation's duration, recording an error
// when err is non-nil.
func RecordDBQuery(operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordAPIRequest observes one completed HTTP request.
func RecordAPIRequest(method, path, status string, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(start bool) {
	if start {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
