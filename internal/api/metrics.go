package api

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the API. Each instance owns
// a private registry, so servers constructed side by side in tests do
// not collide on registration.
type Metrics struct {
	RequestCounter   *prometheus.CounterVec
	LatencyHistogram *prometheus.HistogramVec
	RateLimitHits    *prometheus.CounterVec
	DecisionCounter  *prometheus.CounterVec
	registry         *prometheus.Registry
}

// NewMetrics creates and registers all metrics on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartcdn_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		LatencyHistogram: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "smartcdn_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		RateLimitHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartcdn_rate_limit_hits_total",
				Help: "Total number of rate limit hits",
			},
			[]string{"client"},
		),
		DecisionCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartcdn_decisions_total",
				Help: "Total number of caching decisions issued",
			},
			[]string{"category"},
		),
		registry: registry,
	}

	registry.MustRegister(m.RequestCounter)
	registry.MustRegister(m.LatencyHistogram)
	registry.MustRegister(m.RateLimitHits)
	registry.MustRegister(m.DecisionCounter)

	return m
}

// IncrementRequest increments the request counter
func (m *Metrics) IncrementRequest(method, path string, status int) {
	m.RequestCounter.WithLabelValues(method, path, fmt.Sprintf("%d", status)).Inc()
}

// RecordLatency records request latency
func (m *Metrics) RecordLatency(method, path string, seconds float64) {
	m.LatencyHistogram.WithLabelValues(method, path).Observe(seconds)
}

// IncrementRateLimitHit increments rate limit hit counter
func (m *Metrics) IncrementRateLimitHit(client string) {
	m.RateLimitHits.WithLabelValues(client).Inc()
}

// RecordDecisions tallies the plan sizes of one decision cycle.
func (m *Metrics) RecordDecisions(prefetch, eviction, ttlUpdates int) {
	m.DecisionCounter.WithLabelValues("prefetch").Add(float64(prefetch))
	m.DecisionCounter.WithLabelValues("eviction").Add(float64(eviction))
	m.DecisionCounter.WithLabelValues("ttl_update").Add(float64(ttlUpdates))
}

// Handler returns the Prometheus metrics handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
