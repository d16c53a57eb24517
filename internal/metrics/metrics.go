// Package metrics exposes the counters and gauges from spec.md §6
// "Metrics" using github.com/prometheus/client_golang's promauto
// registration helpers plus the default process collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every pipeline-level instrument from spec.md §6:
// `pipeline_events_total{flow}`, `step_events_total{step,flow}`,
// `queued_events`, `dead_events`, `backpressure`.
type Metrics struct {
	registry *prometheus.Registry

	pipelineEvents *prometheus.CounterVec
	stepEvents     *prometheus.CounterVec
	queuedEvents   prometheus.Gauge
	deadEvents     prometheus.Counter
	backpressure   prometheus.Gauge
}

// New registers every instrument under prefix (METRICS_NAME_PREFIX,
// default "cdp") on a fresh registry, plus Go/process default collectors.
func New(prefix string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		pipelineEvents: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: prefix,
			Name:      "pipeline_events_total",
			Help:      "Events observed at the pipeline bus, by flow.",
		}, []string{"flow"}),
		stepEvents: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: prefix,
			Name:      "step_events_total",
			Help:      "Events observed at a step, by step name and flow.",
		}, []string{"step", "flow"}),
		queuedEvents: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: prefix,
			Name:      "queued_events",
			Help:      "Sum of buffered events across all active queues.",
		}),
		deadEvents: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: prefix,
			Name:      "dead_events",
			Help:      "Events dropped because a downstream push was refused.",
		}),
		backpressure: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: prefix,
			Name:      "backpressure",
			Help:      "1 when the backpressure gate is raised, 0 otherwise.",
		}),
	}
	return m
}

// Registry exposes the underlying registry for promhttp.HandlerFor.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// BusFlow records one bus-level event observed by the DAG engine
// dispatcher ("in", "out", or "dead"), matching dag.Engine's MetricHook.
func (m *Metrics) BusFlow(flow string) {
	m.pipelineEvents.WithLabelValues(flow).Inc()
	if flow == "dead" {
		m.deadEvents.Inc()
	}
}

// StepFlow records one step-level event observed by a running step ("in",
// "out", or "dropped"), matching step.MetricHook.
func (m *Metrics) StepFlow(stepName, flow string) {
	m.stepEvents.WithLabelValues(stepName, flow).Inc()
}

// SetQueuedEvents reports the current total queue depth, typically
// sampled from queue.Registry.TotalDepth() on the same interval the
// backpressure supervisor samples.
func (m *Metrics) SetQueuedEvents(n int) {
	m.queuedEvents.Set(float64(n))
}

// SetBackpressure reports the current gate state.
func (m *Metrics) SetBackpressure(gated bool) {
	if gated {
		m.backpressure.Set(1)
	} else {
		m.backpressure.Set(0)
	}
}
