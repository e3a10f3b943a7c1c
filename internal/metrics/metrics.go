// Package metrics exposes the gate's Prometheus instruments. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry         *prometheus.Registry
	accessTotal      *prometheus.CounterVec
	callbackFailures prometheus.Counter
	historyQueries   *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
}

// New creates the instruments on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		accessTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entman_access_total",
			Help: "Access attempts by resulting status.",
		}, []string{"status"}),
		callbackFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "entman_callback_failures_total",
			Help: "Callbacks that failed after a granted access.",
		}),
		historyQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entman_history_queries_total",
			Help: "History queries by result.",
		}, []string{"result"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "entman_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.accessTotal,
		m.callbackFailures,
		m.historyQueries,
		m.requestDuration,
	)
	return m
}

func (m *Metrics) ObserveAccess(status string) {
	if m == nil {
		return
	}
	m.accessTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) CallbackFailed() {
	if m == nil {
		return
	}
	m.callbackFailures.Inc()
}

func (m *Metrics) ObserveHistoryQuery(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "unavailable"
	}
	m.historyQueries.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// Registry returns the underlying registry, or nil for a nil *Metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
