package graph

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) *PrometheusMetrics {
	t.Helper()
	return NewPrometheusMetrics(prometheus.NewRegistry())
}

func TestPrometheusMetrics_GaugesAndHistogram(t *testing.T) {
	pm := newTestMetrics(t)

	pm.UpdateInflightNodes(3)
	if got := testutil.ToFloat64(pm.inflightNodes); got != 3 {
		t.Errorf("expected inflightNodes=3, got %v", got)
	}

	pm.UpdateQueueDepth(7)
	if got := testutil.ToFloat64(pm.queueDepth); got != 7 {
		t.Errorf("expected queueDepth=7, got %v", got)
	}

	pm.RecordStepLatency("run-1", "node-a", 42*time.Millisecond, "success")
	if got := testutil.CollectAndCount(pm.stepLatency); got == 0 {
		t.Error("expected the step latency histogram to record an observation")
	}
}

func TestPrometheusMetrics_Counters(t *testing.T) {
	pm := newTestMetrics(t)

	pm.IncrementRetries("run-1", "node-a", "timeout")
	if got := testutil.ToFloat64(pm.retries.WithLabelValues("run-1", "node-a", "timeout")); got != 1 {
		t.Errorf("expected retries=1, got %v", got)
	}

	pm.IncrementMergeConflicts("run-1", "reducer_error")
	if got := testutil.ToFloat64(pm.mergeConflicts.WithLabelValues("run-1", "reducer_error")); got != 1 {
		t.Errorf("expected mergeConflicts=1, got %v", got)
	}

	pm.IncrementBackpressure("run-1", "queue_full")
	if got := testutil.ToFloat64(pm.backpressure.WithLabelValues("run-1", "queue_full")); got != 1 {
		t.Errorf("expected backpressure=1, got %v", got)
	}

	pm.IncrementRollbacks("run-1")
	if got := testutil.ToFloat64(pm.rollbacks.WithLabelValues("run-1")); got != 1 {
		t.Errorf("expected rollbacks=1, got %v", got)
	}

	pm.IncrementBreakpointHits("node-a")
	if got := testutil.ToFloat64(pm.breakpointHits.WithLabelValues("node-a")); got != 1 {
		t.Errorf("expected breakpointHits=1, got %v", got)
	}

	pm.IncrementInterruptTimeouts("node-a")
	if got := testutil.ToFloat64(pm.interruptTimeouts.WithLabelValues("node-a")); got != 1 {
		t.Errorf("expected interruptTimeouts=1, got %v", got)
	}

	pm.RecordVersioningCacheLookup(true)
	pm.RecordVersioningCacheLookup(false)
	if got := testutil.ToFloat64(pm.versioningCache.WithLabelValues("hit")); got != 1 {
		t.Errorf("expected versioningCache hit=1, got %v", got)
	}
	if got := testutil.ToFloat64(pm.versioningCache.WithLabelValues("miss")); got != 1 {
		t.Errorf("expected versioningCache miss=1, got %v", got)
	}

	pm.SetCircuitState("node-a", CircuitOpen)
	if got := testutil.ToFloat64(pm.circuitState.WithLabelValues("node-a")); got != float64(CircuitOpen) {
		t.Errorf("expected circuitState=%v, got %v", CircuitOpen, got)
	}
}

func TestPrometheusMetrics_DisableSuppressesRecording(t *testing.T) {
	pm := newTestMetrics(t)
	pm.Disable()

	pm.UpdateInflightNodes(5)
	pm.IncrementRetries("run-1", "node-a", "error")

	if got := testutil.ToFloat64(pm.inflightNodes); got != 0 {
		t.Errorf("expected no gauge update while disabled, got %v", got)
	}
	if got := testutil.ToFloat64(pm.retries.WithLabelValues("run-1", "node-a", "error")); got != 0 {
		t.Errorf("expected no counter increment while disabled, got %v", got)
	}

	pm.Enable()
	pm.UpdateInflightNodes(5)
	if got := testutil.ToFloat64(pm.inflightNodes); got != 5 {
		t.Errorf("expected gauge update after Enable, got %v", got)
	}
}

func TestPrometheusMetrics_Reset(t *testing.T) {
	pm := newTestMetrics(t)
	pm.UpdateInflightNodes(9)
	pm.UpdateQueueDepth(4)

	pm.Reset()

	if got := testutil.ToFloat64(pm.inflightNodes); got != 0 {
		t.Errorf("expected inflightNodes reset to 0, got %v", got)
	}
	if got := testutil.ToFloat64(pm.queueDepth); got != 0 {
		t.Errorf("expected queueDepth reset to 0, got %v", got)
	}
}
