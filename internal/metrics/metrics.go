package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector registers and updates the gateway's Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	rateLimitedTotal *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec
	breakerChanges   *prometheus.CounterVec
	upstreamFailures *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry, so tests
// never trip over duplicate registration.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Requests dispatched, by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "End-to-end request latency.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"route"}),
		rateLimitedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}, []string{"route", "profile"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_circuit_breaker_state",
			Help: "Breaker position per route: 0 closed, 1 open, 2 half-open.",
		}, []string{"route"}),
		breakerChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_circuit_breaker_transitions_total",
			Help: "Breaker state transitions per route.",
		}, []string{"route", "to"}),
		upstreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_upstream_failures_total",
			Help: "Transport-level upstream failures per route.",
		}, []string{"route"}),
	}

	reg.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.rateLimitedTotal,
		c.breakerState,
		c.breakerChanges,
		c.upstreamFailures,
	)
	return c
}

// RecordRequest records a completed request.
func (c *Collector) RecordRequest(route, method string, status int, duration time.Duration) {
	c.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordRateLimited records a 429 rejection.
func (c *Collector) RecordRateLimited(route, profile string) {
	c.rateLimitedTotal.WithLabelValues(route, profile).Inc()
}

// RecordUpstreamFailure records a transport failure toward a route's upstream.
func (c *Collector) RecordUpstreamFailure(route string) {
	c.upstreamFailures.WithLabelValues(route).Inc()
}

// SetBreakerState updates the breaker gauge for a route.
func (c *Collector) SetBreakerState(route string, state int) {
	c.breakerState.WithLabelValues(route).Set(float64(state))
}

// RecordBreakerTransition counts a breaker state change.
func (c *Collector) RecordBreakerTransition(route, to string) {
	c.breakerChanges.WithLabelValues(route, to).Inc()
}

// Handler returns the scrape endpoint handler.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
