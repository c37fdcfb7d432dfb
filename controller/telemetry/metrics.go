// Package telemetry exports cycle outcomes as prometheus metrics and,
// optionally, publishes them to an MQTT broker.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "guardian"

// Metrics holds the collectors updated once per acquisition cycle.
type Metrics struct {
	cycles   *prometheus.CounterVec
	failures *prometheus.CounterVec
	verdicts *prometheus.CounterVec
	readings *prometheus.GaugeVec
	duration *prometheus.HistogramVec
	gatherer prometheus.Gatherer
}

// NewMetrics registers the collectors with reg. A nil reg uses a private
// registry.
func NewMetrics(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Acquisition cycles by mode and outcome.",
		}, []string{"mode", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Failed cycles by mode and failure kind.",
		}, []string{"mode", "kind"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Classifier votes and consensus labels.",
		}, []string{"model", "label"}),
		readings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reading",
			Help:      "Latest value of each soil field.",
		}, []string{"field"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time spent acquiring and classifying one reading.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"mode"}),
		gatherer: reg,
	}
	for _, c := range []prometheus.Collector{m.cycles, m.failures, m.verdicts, m.readings, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveCycle records a finished cycle. kind is empty on success.
func (m *Metrics) ObserveCycle(mode, kind string, d time.Duration) {
	outcome := "ok"
	if kind != "" {
		outcome = "failure"
		m.failures.WithLabelValues(mode, kind).Inc()
	}
	m.cycles.WithLabelValues(mode, outcome).Inc()
	m.duration.WithLabelValues(mode).Observe(d.Seconds())
}

func (m *Metrics) SetReading(field string, v float64) {
	m.readings.WithLabelValues(field).Set(v)
}

// ObserveVote counts one label cast by model. The consensus is recorded
// under the model name "consensus".
func (m *Metrics) ObserveVote(model, label string) {
	m.verdicts.WithLabelValues(model, label).Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
