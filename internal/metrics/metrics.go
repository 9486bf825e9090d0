// Package metrics exposes fetch and request counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusCache = "cache"
)

// Metrics owns a private registry so several instances can coexist in tests.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	fetchTotal    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	sourceEvents  *prometheus.GaugeVec
	skipped       *prometheus.CounterVec
	requests      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.fetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agenda",
		Name:      "source_fetch_total",
		Help:      "Upstream fetches by source and outcome",
	}, []string{"source", "status"})
	m.fetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agenda",
		Name:      "source_fetch_duration_seconds",
		Help:      "Time spent fetching and normalizing one source",
		Buckets:   prometheus.DefBuckets,
	}, []string{"source"})
	m.sourceEvents = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "agenda",
		Name:      "source_events",
		Help:      "Events returned by the last fetch of a source",
	}, []string{"source"})
	m.skipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agenda",
		Name:      "events_skipped_total",
		Help:      "Upstream records dropped during normalization",
	}, []string{"source", "reason"})
	m.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agenda",
		Name:      "http_requests_total",
		Help:      "HTTP requests served by route and status code",
	}, []string{"route", "code"})

	m.registry.MustRegister(
		m.fetchTotal, m.fetchDuration, m.sourceEvents, m.skipped, m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveFetch records one source fetch.
func (m *Metrics) ObserveFetch(source, status string, took time.Duration, events int) {
	if m == nil {
		return
	}
	m.fetchTotal.WithLabelValues(source, status).Inc()
	m.fetchDuration.WithLabelValues(source).Observe(took.Seconds())
	m.sourceEvents.WithLabelValues(source).Set(float64(events))
}

func (m *Metrics) Skipped(source, reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(source, reason).Inc()
}

func (m *Metrics) ObserveRequest(route string, code int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
