package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the relay.
type Metrics struct {
	RequestTotal       *prometheus.CounterVec
	RequestDurationMs  *prometheus.HistogramVec
	UpstreamDurationMs *prometheus.HistogramVec
	CacheOpTotal       *prometheus.CounterVec
	LogRotationTotal   prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_request_total",
			Help: "Total number of requests processed by the relay.",
		}, []string{"outcome", "status"}),

		RequestDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_request_duration_ms",
			Help:    "Total request duration in milliseconds (including upstream latency).",
			Buckets: []float64{5, 25, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"outcome"}),

		UpstreamDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_upstream_duration_ms",
			Help:    "Upstream call duration in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"status"}),

		CacheOpTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_cache_op_total",
			Help: "Cache gateway operations by result.",
		}, []string{"op", "result"}),

		LogRotationTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_log_rotation_total",
			Help: "Number of audit log rotations.",
		}),
	}
}

// RecordRequest records the terminal outcome of one relayed request.
func (m *Metrics) RecordRequest(outcome, status string, durationMs float64) {
	m.RequestTotal.WithLabelValues(outcome, status).Inc()
	m.RequestDurationMs.WithLabelValues(outcome).Observe(durationMs)
}

// RecordCacheOp records a cache gateway operation (op: get/set,
// result: hit/miss/stored/error).
func (m *Metrics) RecordCacheOp(op, result string) {
	m.CacheOpTotal.WithLabelValues(op, result).Inc()
}

// RecordUpstream records an upstream call duration by status code.
func (m *Metrics) RecordUpstream(status string, durationMs float64) {
	m.UpstreamDurationMs.WithLabelValues(status).Observe(durationMs)
}
