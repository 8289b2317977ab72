// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus Metrics Integration for Production Observability
// This package provides instrumentation for:
// - Archive query performance (DuckDB)
// - API endpoint latency and throughput
// - OPC UA historian reads and circuit breaker state
// - Report generation and scheduler runs
// - WebSocket connections

var (
	// Archive Metrics
	ArchiveQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archive_query_duration_seconds",
			Help:    "Duration of DuckDB archive queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	ArchiveQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_query_errors_total",
			Help: "Total number of DuckDB archive query errors",
		},
		[]string{"operation"},
	)

	ArchiveSamplesInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "archive_samples_inserted_total",
			Help: "Total number of samples written to the archive",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Historian Metrics
	HistorianReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "historian_reads_total",
			Help: "Total number of OPC UA history reads",
		},
		[]string{"endpoint_id", "result"}, // result: "success", "error", "breaker_open"
	)

	HistorianReadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "historian_read_duration_seconds",
			Help:    "Duration of OPC UA history reads in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint_id"},
	)

	HistorianSamplesRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "historian_samples_read_total",
			Help: "Total number of samples returned by history reads",
		},
		[]string{"endpoint_id"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "historian_breaker_state",
			Help: "Circuit breaker state per endpoint (0=closed, 1=half-open, 2=open)",
		},
		[]string{"endpoint_id"},
	)

	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "historian_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"endpoint_id", "from", "to"},
	)

	// Collector Metrics
	CollectorPollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_polls_total",
			Help: "Total number of collector polling cycles",
		},
		[]string{"endpoint_id", "result"},
	)

	// Report Metrics
	ReportGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "report_generation_duration_seconds",
			Help:    "End-to-end report generation duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"format"},
	)

	ReportsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reports_generated_total",
			Help: "Total number of reports generated",
		},
		[]string{"format", "result"},
	)

	SchedulerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_runs_total",
			Help: "Total number of scheduled report runs",
		},
		[]string{"result"}, // "ok", "failed", "skipped"
	)

	// WebSocket Metrics
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)
)

// TrackActiveRequest adjusts the active-request gauge.
func TrackActiveRequest(start bool) {
	if start {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordAPIRequest records one completed API request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordArchiveQuery records an archive query with its outcome.
func RecordArchiveQuery(operation string, duration time.Duration, err error) {
	ArchiveQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		ArchiveQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordHistorianRead records a history read with its outcome.
func RecordHistorianRead(endpointID, result string, duration time.Duration, samples int) {
	HistorianReadsTotal.WithLabelValues(endpointID, result).Inc()
	HistorianReadDuration.WithLabelValues(endpointID).Observe(duration.Seconds())
	if samples > 0 {
		HistorianSamplesRead.WithLabelValues(endpointID).Add(float64(samples))
	}
}

// RecordReportGeneration records one report generation attempt.
func RecordReportGeneration(format, result string, duration time.Duration) {
	ReportsGenerated.WithLabelValues(format, result).Inc()
	ReportGenerationDuration.WithLabelValues(format).Observe(duration.Seconds())
}
