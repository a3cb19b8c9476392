package metrics

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transport metrics
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "psarank_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by host",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"host", "status"},
	)

	httpRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "psarank_http_retries_total",
			Help: "Total number of HTTP request retries by failure class",
		},
		[]string{"host", "class"},
	)

	rateLimiterWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "psarank_rate_limiter_wait_duration_seconds",
			Help:    "Rate limiter wait duration in seconds by host",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		},
		[]string{"host"},
	)

	// Fetch metrics
	pagesFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "psarank_pages_fetched_total",
			Help: "Total number of pages fetched by source and outcome",
		},
		[]string{"source", "status"},
	)

	recordsValidatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "psarank_records_validated_total",
			Help: "Total number of records accepted by the schema validator",
		},
		[]string{"source"},
	)

	sourceSwitchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "psarank_source_switches_total",
			Help: "Total number of primary-to-fallback source switches",
		},
		[]string{"gender"},
	)

	// Checkpoint metrics
	checkpointWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "psarank_checkpoint_writes_total",
			Help: "Total number of checkpoint writes by outcome",
		},
		[]string{"gender", "status"},
	)
)

// Collector provides convenience methods for recording metrics
type Collector struct {
	logger *slog.Logger
}

// NewCollector creates a new metrics collector
func NewCollector(logger *slog.Logger) *Collector {
	return &Collector{
		logger: logger,
	}
}

// RecordHTTPRequest records the duration and status of one HTTP exchange
func (c *Collector) RecordHTTPRequest(host, status string, duration time.Duration) {
	httpRequestDuration.WithLabelValues(host, status).Observe(duration.Seconds())
}

// RecordHTTPRetry counts a retried request by failure class
func (c *Collector) RecordHTTPRetry(host, class string) {
	httpRetriesTotal.WithLabelValues(host, class).Inc()
}

// RecordRateLimiterWait records time spent waiting on the request pacer
func (c *Collector) RecordRateLimiterWait(host string, duration time.Duration) {
	rateLimiterWaitDuration.WithLabelValues(host).Observe(duration.Seconds())
}

// RecordPageFetch counts a fetched page by source and outcome
func (c *Collector) RecordPageFetch(source string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	pagesFetchedTotal.WithLabelValues(source, status).Inc()
}

// RecordValidatedRecords counts records that passed schema validation
func (c *Collector) RecordValidatedRecords(source string, count int) {
	recordsValidatedTotal.WithLabelValues(source).Add(float64(count))
}

// RecordSourceSwitch counts a primary-to-fallback switch
func (c *Collector) RecordSourceSwitch(gender string) {
	sourceSwitchesTotal.WithLabelValues(gender).Inc()
}

// RecordCheckpointWrite counts a checkpoint write by outcome
func (c *Collector) RecordCheckpointWrite(gender string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	checkpointWritesTotal.WithLabelValues(gender, status).Inc()
}
