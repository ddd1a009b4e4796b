// Package metrics exposes Prometheus instruments for optimisation runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "blackbox"

// Run statuses used as the status label.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Metrics holds the collectors for one registry.
type Metrics struct {
	registry *prometheus.Registry

	runs        *prometheus.CounterVec
	evaluations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	bestLoss    *prometheus.GaugeVec
	active      prometheus.Gauge
}

// New registers the optimisation collectors, plus the Go runtime and
// process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Optimisation runs by algorithm and final status.",
		}, []string{"algorithm", "status"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Objective evaluations recorded by algorithm.",
		}, []string{"algorithm"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of optimisation runs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"algorithm"}),
		bestLoss: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_loss",
			Help:      "Best loss of the most recent completed run.",
		}, []string{"algorithm", "objective"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Runs currently in progress.",
		}),
	}
	reg.MustRegister(
		m.runs, m.evaluations, m.duration, m.bestLoss, m.active,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Started marks a run as in progress and returns the function that ends it.
func (m *Metrics) Started() func() {
	if m == nil {
		return func() {}
	}
	m.active.Inc()
	return m.active.Dec
}

// Observe records a finished run.
func (m *Metrics) Observe(algorithm, objective, status string, evaluations int, bestLoss float64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(algorithm, status).Inc()
	m.evaluations.WithLabelValues(algorithm).Add(float64(evaluations))
	m.duration.WithLabelValues(algorithm).Observe(elapsed.Seconds())
	if status == StatusCompleted {
		m.bestLoss.WithLabelValues(algorithm, objective).Set(bestLoss)
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
