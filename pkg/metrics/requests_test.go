package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRequestMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRequestMetrics(reg)

	m.IncSuccess("cart.fetch")
	m.IncSuccess("cart.fetch")
	m.IncFailure("orders.create")
	m.ObserveDuration("cart.fetch", 120*time.Millisecond)

	if got := testutil.ToFloat64(m.success.WithLabelValues("cart.fetch")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(m.failure.WithLabelValues("orders.create")); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
}

func TestRequestMetricsNilSafe(t *testing.T) {
	var m *RequestMetrics
	m.IncSuccess("x")
	m.IncFailure("x")
	m.ObserveDuration("x", time.Second)

	disabled := NewRequestMetrics(nil)
	disabled.IncSuccess("")
	disabled.ObserveDuration("", 0)
}
