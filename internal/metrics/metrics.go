// Package metrics exposes lookup and reload statistics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TomasB/geolookup/internal/data"
)

const namespace = "geolookup"

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	lookups        *prometheus.CounterVec
	lookupDuration prometheus.Histogram
	reloads        *prometheus.CounterVec
	buildTime      prometheus.Gauge
}

// New registers the service collectors plus Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Lookups by outcome.",
		}, []string{"outcome"}),
		lookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lookup_duration_seconds",
			Help:      "Time spent decoding a single record.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_reloads_total",
			Help:      "Database (re)loads by result.",
		}, []string{"result"}),
		buildTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "database_build_timestamp_seconds",
			Help:      "Build time of the database being served.",
		}),
	}

	m.registry.MustRegister(
		m.lookups,
		m.lookupDuration,
		m.reloads,
		m.buildTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveLookup implements data.Observer.
func (m *Metrics) ObserveLookup(outcome data.Outcome, elapsed time.Duration) {
	m.lookups.WithLabelValues(string(outcome)).Inc()
	m.lookupDuration.Observe(elapsed.Seconds())
}

// ObserveReload implements data.Observer.
func (m *Metrics) ObserveReload(meta data.Metadata, err error) {
	if err != nil {
		m.reloads.WithLabelValues("error").Inc()
		return
	}
	m.reloads.WithLabelValues("success").Inc()
	m.buildTime.Set(float64(meta.BuildTime.Unix()))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

var _ data.Observer = (*Metrics)(nil)
