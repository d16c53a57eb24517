package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, m *Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		var total float64
		for _, metric := range f.Metric {
			if metric.Counter != nil {
				total += metric.Counter.GetValue()
			}
		}
		return total
	}
	return 0
}

func TestBusFlowIncrementsPipelineEventsAndDeadEvents(t *testing.T) {
	m := New("cdp_test_bus")
	m.BusFlow("in")
	m.BusFlow("dead")

	if v := counterValue(t, m, "cdp_test_bus_pipeline_events_total"); v != 2 {
		t.Fatalf("pipeline_events_total = %v, want 2", v)
	}
	if v := counterValue(t, m, "cdp_test_bus_dead_events"); v != 1 {
		t.Fatalf("dead_events = %v, want 1", v)
	}
}

func TestStepFlowIncrementsStepEvents(t *testing.T) {
	m := New("cdp_test_step")
	m.StepFlow("a", "out")
	m.StepFlow("a", "out")

	if v := counterValue(t, m, "cdp_test_step_step_events_total"); v != 2 {
		t.Fatalf("step_events_total = %v, want 2", v)
	}
}

func TestSetQueuedEventsAndBackpressureAreGauges(t *testing.T) {
	m := New("cdp_test_gauges")
	m.SetQueuedEvents(5)
	m.SetBackpressure(true)

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var sawQueued, sawBackpressure bool
	for _, f := range families {
		switch f.GetName() {
		case "cdp_test_gauges_queued_events":
			sawQueued = true
			assertGauge(t, f.Metric, 5)
		case "cdp_test_gauges_backpressure":
			sawBackpressure = true
			assertGauge(t, f.Metric, 1)
		}
	}
	if !sawQueued || !sawBackpressure {
		t.Fatal("expected both queued_events and backpressure gauges to be registered")
	}
}

func assertGauge(t *testing.T, metrics []*dto.Metric, want float64) {
	t.Helper()
	for _, m := range metrics {
		if m.Gauge != nil && m.Gauge.GetValue() == want {
			return
		}
	}
	t.Fatalf("no gauge metric with value %v found", want)
}
