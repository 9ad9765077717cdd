package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestSyncMetricsClassificationLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewSyncMetrics(registry, Config{ServiceName: "promosync", Environment: "test"})

	m.IncClassification("LIVE", "")
	m.IncClassification("NOT_SUPPORTED", "bxgy")
	m.IncClassification("NOT_SUPPORTED", "bxgy")

	if got := testutil.ToFloat64(m.classifications.WithLabelValues("LIVE", "none")); got != 1 {
		t.Fatalf("expected LIVE/none = 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.classifications.WithLabelValues("NOT_SUPPORTED", "bxgy")); got != 2 {
		t.Fatalf("expected NOT_SUPPORTED/bxgy = 2, got %v", got)
	}
}

func TestSyncMetricsThrottleSleep(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewSyncMetrics(registry, Config{})

	m.ObserveThrottle(42)
	m.ObserveThrottleSleep(1500 * time.Millisecond)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var hist *dto.Histogram
	for _, mf := range families {
		if mf.GetName() == "promosync_upstream_throttle_sleep_seconds" {
			hist = mf.GetMetric()[0].GetHistogram()
		}
	}
	if hist == nil {
		t.Fatalf("throttle sleep histogram not registered")
	}
	if hist.GetSampleCount() != 1 || hist.GetSampleSum() != 1.5 {
		t.Fatalf("unexpected histogram sample count=%d sum=%v", hist.GetSampleCount(), hist.GetSampleSum())
	}
	if got := testutil.ToFloat64(m.throttleAvailable); got != 42 {
		t.Fatalf("expected available 42, got %v", got)
	}
}

func TestSyncMetricsNilSafe(t *testing.T) {
	var m *SyncMetrics
	m.IncClassification("LIVE", "")
	m.AddSwept(3)
	m.IncJobError("sweep_expired")
}
