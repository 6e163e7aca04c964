// Package metrics exposes client-side Prometheus collectors. Every method is
// safe to call on a nil *Metrics so callers never need to check.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresh outcomes recorded by ObserveRefresh.
const (
	RefreshOK      = "ok"
	RefreshExpired = "expired"
	RefreshFailed  = "failed"
)

// Cache refresh outcomes recorded by ObserveCacheRefresh.
const (
	CacheFresh    = "fresh"
	CacheFallback = "fallback"
	CacheError    = "error"
)

// Metrics holds the collectors and the registry they are registered with.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	refreshes       *prometheus.CounterVec
	cacheRefreshes  *prometheus.CounterVec
	spins           prometheus.Counter
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rngenius_api_requests_total",
			Help: "REST calls made by the client, by endpoint and HTTP status (0 for transport failures).",
		}, []string{"endpoint", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rngenius_api_request_duration_seconds",
			Help:    "Latency of REST calls by endpoint.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rngenius_token_refresh_total",
			Help: "Access token refresh attempts by outcome.",
		}, []string{"outcome"}),
		cacheRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rngenius_cache_refresh_total",
			Help: "Cache refreshes by resource and outcome (fresh, fallback, error).",
		}, []string{"resource", "outcome"}),
		spins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rngenius_roulette_spins_total",
			Help: "Roulette pointer advances.",
		}),
	}
	m.registry.MustRegister(m.requests, m.requestDuration, m.refreshes, m.cacheRefreshes, m.spins)
	return m
}

// Registry returns the registry the collectors live in.
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
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one REST call. code is 0 when no response arrived.
func (m *Metrics) ObserveRequest(endpoint string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// ObserveRefresh records a token refresh attempt.
func (m *Metrics) ObserveRefresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

// ObserveCacheRefresh records how one resource of a cache refresh was served.
func (m *Metrics) ObserveCacheRefresh(resource, outcome string) {
	if m == nil {
		return
	}
	m.cacheRefreshes.WithLabelValues(resource, outcome).Inc()
}

// ObserveSpin records one roulette step.
func (m *Metrics) ObserveSpin() {
	if m == nil {
		return
	}
	m.spins.Inc()
}

// RefreshCount returns the counter for a refresh outcome. Used by tests.
func (m *Metrics) RefreshCount(outcome string) prometheus.Counter {
	return m.refreshes.WithLabelValues(outcome)
}

// CacheRefreshCount returns the counter for a resource/outcome pair. Used by tests.
func (m *Metrics) CacheRefreshCount(resource, outcome string) prometheus.Counter {
	return m.cacheRefreshes.WithLabelValues(resource, outcome)
}

// SpinCount returns the spin counter. Used by tests.
func (m *Metrics) SpinCount() prometheus.Counter {
	return m.spins
}
