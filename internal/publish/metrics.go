// SPDX-License-Identifier: AGPL-3.0-or-later

package publish

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bartekus/lockstep/internal/ecosystem"
)

// Metrics collects publish counters on a private registry so a run can be
// exported to a node-exporter textfile.
type Metrics struct {
	registry *prometheus.Registry

	published   *prometheus.CounterVec
	failed      *prometheus.CounterVec
	skipped     *prometheus.CounterVec
	propagation *prometheus.HistogramVec
	lastRun     prometheus.Gauge
}

// NewMetrics creates and registers the publish collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lockstep",
				Subsystem: "publish",
				Name:      "packages_published_total",
				Help:      "Packages published successfully.",
			},
			[]string{"ecosystem"},
		),
		failed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lockstep",
				Subsystem: "publish",
				Name:      "packages_failed_total",
				Help:      "Package publish attempts that failed.",
			},
			[]string{"ecosystem"},
		),
		skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lockstep",
				Subsystem: "publish",
				Name:      "ecosystems_skipped_total",
				Help:      "Ecosystems skipped without publishing.",
			},
			[]string{"ecosystem"},
		),
		propagation: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "lockstep",
				Subsystem: "publish",
				Name:      "propagation_wait_seconds",
				Help:      "Time spent waiting for a published version to become visible.",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"ecosystem", "result"},
		),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lockstep",
			Subsystem: "publish",
			Name:      "last_run_success",
			Help:      "1 if the last publish run succeeded, 0 otherwise.",
		}),
	}
	m.registry.MustRegister(m.published, m.failed, m.skipped, m.propagation, m.lastRun)
	return m
}

// Registry exposes the collectors for scraping or tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) recordOutcome(kind ecosystem.Kind, o ecosystem.PublishOutcome) {
	if m == nil {
		return
	}
	if o.Success {
		m.published.WithLabelValues(string(kind)).Inc()
	} else {
		m.failed.WithLabelValues(string(kind)).Inc()
	}
}

func (m *Metrics) recordSkip(kind ecosystem.Kind) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) recordWait(kind ecosystem.Kind, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "visible"
	if err != nil {
		result = "timeout"
	}
	m.propagation.WithLabelValues(string(kind), result).Observe(d.Seconds())
}

func (m *Metrics) recordRun(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.lastRun.Set(1)
	} else {
		m.lastRun.Set(0)
	}
}

// WriteTextfile writes the current values in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
