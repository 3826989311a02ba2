// Package metrics exposes run counters as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/metalagman/jota/internal/orchestrator"
)

// Metrics is an orchestrator.Observer backed by its own registry.
type Metrics struct {
	registry *prometheus.Registry

	runs       *prometheus.CounterVec
	steps      *prometheus.CounterVec
	replans    *prometheus.CounterVec
	narrations *prometheus.CounterVec
	stepTime   prometheus.Histogram
	active     prometheus.Gauge

	mu      sync.Mutex
	started map[string]stepStart
}

type stepStart struct {
	index int
	at    int64
}

var _ orchestrator.Observer = (*Metrics)(nil)

// New creates the collectors and registers them with a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jota",
			Name:      "runs_finished_total",
			Help:      "Runs that reached a terminal state.",
		}, []string{"state"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jota",
			Name:      "steps_total",
			Help:      "Executed steps by outcome.",
		}, []string{"outcome"}),
		replans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jota",
			Name:      "replan_decisions_total",
			Help:      "Replan evaluations by decision.",
		}, []string{"decision"}),
		narrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jota",
			Name:      "narrations_total",
			Help:      "Narrations by source.",
		}, []string{"source"}),
		stepTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "jota",
			Name:      "step_duration_seconds",
			Help:      "Wall time of one step.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "jota",
			Name:      "runs_active",
			Help:      "Runs currently in progress.",
		}),
		started: make(map[string]stepStart),
	}
	m.registry.MustRegister(
		m.runs, m.steps, m.replans, m.narrations, m.stepTime, m.active,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observe implements orchestrator.Observer.
func (m *Metrics) Observe(_ context.Context, ev orchestrator.Event) error {
	switch ev.Type {
	case orchestrator.EventRunStarted, orchestrator.EventRunRetried:
		m.active.Inc()
	case orchestrator.EventStepStarted:
		m.mu.Lock()
		m.started[ev.RunID] = stepStart{index: ev.StepIndex, at: ev.At.UnixNano()}
		m.mu.Unlock()
	case orchestrator.EventStepFinished:
		outcome := "completed"
		if ev.Err != "" {
			outcome = "failed"
		}
		m.steps.WithLabelValues(outcome).Inc()
		m.mu.Lock()
		s, ok := m.started[ev.RunID]
		delete(m.started, ev.RunID)
		m.mu.Unlock()
		if ok && s.index == ev.StepIndex {
			m.stepTime.Observe(float64(ev.At.UnixNano()-s.at) / 1e9)
		}
	case orchestrator.EventNarration:
		source := "llm"
		if ev.Narration != nil && ev.Narration.Fallback {
			source = "fallback"
		}
		m.narrations.WithLabelValues(source).Inc()
	case orchestrator.EventReplanAccepted:
		m.replans.WithLabelValues("accepted").Inc()
	case orchestrator.EventReplanRejected:
		m.replans.WithLabelValues("rejected").Inc()
	case orchestrator.EventReplanSkipped:
		m.replans.WithLabelValues("kept").Inc()
	case orchestrator.EventRunFinished:
		m.active.Dec()
		m.runs.WithLabelValues(string(ev.State)).Inc()
	}
	return nil
}
