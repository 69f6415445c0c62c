package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics are the service's Prometheus collectors. Each server owns its own
// registry so tests can build servers side by side.
type Metrics struct {
	Registry *prometheus.Registry

	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	samples  prometheus.Histogram
	inflight prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "phytosim",
			Name:      "simulations_total",
			Help:      "Simulations served, by regime and outcome.",
		}, []string{"regime", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "phytosim",
			Name:      "simulation_duration_seconds",
			Help:      "Wall time spent integrating one request.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"regime"}),
		samples: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "phytosim",
			Name:      "trajectory_samples",
			Help:      "Samples per returned trajectory.",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 6),
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "phytosim",
			Name:      "simulations_in_flight",
			Help:      "Simulations currently running.",
		}),
	}
	reg.MustRegister(
		m.runs, m.duration, m.samples, m.inflight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) observe(regime, outcome string, seconds float64, samples int) {
	m.runs.WithLabelValues(regime, outcome).Inc()
	m.duration.WithLabelValues(regime).Observe(seconds)
	if samples > 0 {
		m.samples.Observe(float64(samples))
	}
}
