// Package metrics exposes the moniof Prometheus collectors. Each probe owns
// its registry so tests and embedding applications never fight over the
// default global one.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// latencyBuckets are Prometheus-default-ish latency buckets in seconds.
var latencyBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Set bundles all moniof collectors behind one registry.
type Set struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpInflight prometheus.Gauge
	httpDuration *prometheus.HistogramVec

	dbTotal    *prometheus.HistogramVec
	dbCommands *prometheus.HistogramVec
}

// NewSet creates and registers all collectors on a fresh registry.
func NewSet() *Set {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Set{
		registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "moniof_http_requests_total",
			Help: "HTTP requests total",
		}, []string{"method", "status"}),
		httpInflight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "moniof_http_inflight_requests",
			Help: "Inflight HTTP requests",
		}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "moniof_http_request_duration_seconds",
			Help:    "HTTP request duration (s)",
			Buckets: latencyBuckets,
		}, []string{"method"}),
		dbTotal: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "moniof_db_total_latency_seconds",
			Help:    "Cumulative DB latency per request (s)",
			Buckets: latencyBuckets,
		}, []string{"kind"}),
		dbCommands: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "moniof_db_command_duration_seconds",
			Help:    "Single DB command latency (s)",
			Buckets: latencyBuckets,
		}, []string{"kind", "key"}),
	}
}

// Handler serves the registry in Prometheus text exposition format.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for embedding applications that
// want to register their own collectors next to moniof's.
func (s *Set) Registry() *prometheus.Registry { return s.registry }

func (s *Set) IncInflight() { s.httpInflight.Inc() }
func (s *Set) DecInflight() { s.httpInflight.Dec() }

// ObserveRequest records one finished HTTP request.
func (s *Set) ObserveRequest(method string, status int, seconds float64) {
	s.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	s.httpDuration.WithLabelValues(method).Observe(seconds)
}

// ObserveDBTotal records the cumulative DB latency of one request for a
// driver kind.
func (s *Set) ObserveDBTotal(kind string, seconds float64) {
	s.dbTotal.WithLabelValues(kind).Observe(seconds)
}

// ObserveCommand records a single DB command latency.
func (s *Set) ObserveCommand(kind, key string, seconds float64) {
	s.dbCommands.WithLabelValues(kind, key).Observe(seconds)
}
