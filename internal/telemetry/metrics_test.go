package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()

	if m.RequestTotal == nil {
		t.Error("RequestTotal should not be nil")
	}
	if m.RequestDurationMs == nil {
		t.Error("RequestDurationMs should not be nil")
	}
	if m.UpstreamDurationMs == nil {
		t.Error("UpstreamDurationMs should not be nil")
	}
	if m.CacheOpTotal == nil {
		t.Error("CacheOpTotal should not be nil")
	}
	if m.LogRotationTotal == nil {
		t.Error("LogRotationTotal should not be nil")
	}
}

func TestRecordRequest(t *testing.T) {
	// Use a fresh registry to avoid polluting the default one
	reg := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_relay_request_total",
		Help: "Test counter",
	}, []string{"outcome", "status"})

	durationMs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "test_relay_request_duration_ms",
		Help:    "Test histogram",
		Buckets: []float64{100, 500, 1000},
	}, []string{"outcome"})

	upstreamMs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "test_relay_upstream_duration_ms",
		Help:    "Test histogram",
		Buckets: []float64{100, 500, 1000},
	}, []string{"status"})

	cacheOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_relay_cache_op_total",
		Help: "Test counter",
	}, []string{"op", "result"})

	rotations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_relay_log_rotation_total",
		Help: "Test counter",
	})

	reg.MustRegister(requestTotal, durationMs, upstreamMs, cacheOps, rotations)

	m := &Metrics{
		RequestTotal:       requestTotal,
		RequestDurationMs:  durationMs,
		UpstreamDurationMs: upstreamMs,
		CacheOpTotal:       cacheOps,
		LogRotationTotal:   rotations,
	}

	m.RecordRequest("miss", "200", 42)
	m.RecordRequest("hit", "200", 3)
	m.RecordCacheOp("get", "hit")
	m.RecordUpstream("200", 40)

	var metric dto.Metric
	if err := requestTotal.WithLabelValues("miss", "200").Write(&metric); err != nil {
		t.Fatal(err)
	}
	if got := metric.GetCounter().GetValue(); got != 1 {
		t.Errorf("expected request counter 1, got %v", got)
	}

	if err := cacheOps.WithLabelValues("get", "hit").Write(&metric); err != nil {
		t.Fatal(err)
	}
	if got := metric.GetCounter().GetValue(); got != 1 {
		t.Errorf("expected cache op counter 1, got %v", got)
	}
}
