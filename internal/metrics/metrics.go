// Package metrics provides Prometheus metrics for pipeline runs and the web
// API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "oarpipe"

// Metrics groups the collectors of one process on its own registry. All
// methods are safe on a nil *Metrics and then do nothing.
type Metrics struct {
	registry *prometheus.Registry

	// PhaseDuration tracks pipeline phase duration in seconds
	PhaseDuration *prometheus.HistogramVec
	// RunsTotal tracks finished runs by status
	RunsTotal *prometheus.CounterVec
	// RecordsProcessed tracks raw records read
	RecordsProcessed prometheus.Counter
	// Entities reports table sizes of the last run
	Entities *prometheus.GaugeVec
	// IntegrityIssues reports validation issues of the last run by kind
	IntegrityIssues *prometheus.GaugeVec
	// DroppedLinks reports links dropped by reconciliation in the last run
	DroppedLinks prometheus.Gauge
	// HTTPRequestsTotal tracks API requests
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTPRequestDuration tracks API request duration
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PhaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "phase_duration_seconds",
				Help:      "Duration of pipeline phases in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"phase"},
		),
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Total number of pipeline runs by status",
			},
			[]string{"status"},
		),
		RecordsProcessed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "records_processed_total",
				Help:      "Total number of raw records read",
			},
		),
		Entities: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "entities",
				Help:      "Number of rows per table in the last run",
			},
			[]string{"table"},
		),
		IntegrityIssues: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "validation",
				Name:      "issues",
				Help:      "Relational integrity issues found in the last run by kind",
			},
			[]string{"kind"},
		),
		DroppedLinks: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "validation",
				Name:      "dropped_links",
				Help:      "Links dropped by reconciliation in the last run",
			},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of API requests",
			},
			[]string{"method", "route", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of API requests in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"method", "route"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObservePhase records the duration of a pipeline phase.
func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordRun counts a finished run.
func (m *Metrics) RecordRun(status string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
}

// RecordRecords adds n raw records to the processed total.
func (m *Metrics) RecordRecords(n int) {
	if m == nil {
		return
	}
	m.RecordsProcessed.Add(float64(n))
}

// SetTables reports the table sizes of the last run.
func (m *Metrics) SetTables(companies, facilities, links int) {
	if m == nil {
		return
	}
	m.Entities.WithLabelValues("companies").Set(float64(companies))
	m.Entities.WithLabelValues("facilities").Set(float64(facilities))
	m.Entities.WithLabelValues("links").Set(float64(links))
}

// SetIntegrity reports validation issue counts and dropped links.
func (m *Metrics) SetIntegrity(issues map[string]int, dropped int) {
	if m == nil {
		return
	}
	for kind, n := range issues {
		m.IntegrityIssues.WithLabelValues(kind).Set(float64(n))
	}
	m.DroppedLinks.Set(float64(dropped))
}

// RecordHTTPRequest counts one API request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
