package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Decision metrics
	DecisionsTotal   *prometheus.CounterVec
	MemoLookupsTotal *prometheus.CounterVec
	MemoIdentities   prometheus.Gauge

	// Rule model metrics
	RulesLoaded prometheus.Gauge
	RolesLoaded prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatekeeper_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "route"},
		),

		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_decisions_total",
				Help: "Total number of permission decisions",
			},
			[]string{"operation", "outcome"},
		),
		MemoLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_memo_lookups_total",
				Help: "Total number of memoized decision lookups",
			},
			[]string{"result"},
		),
		MemoIdentities: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatekeeper_memo_identities",
				Help: "Number of user identities with memoized decisions",
			},
		),

		RulesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatekeeper_rules_loaded",
				Help: "Number of compiled rules in the active rule model",
			},
		),
		RolesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatekeeper_roles_loaded",
				Help: "Number of roles in the active rule model",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DecisionsTotal,
		m.MemoLookupsTotal,
		m.MemoIdentities,
		m.RulesLoaded,
		m.RolesLoaded,
	)

	return m
}

// RecordDecision counts a decision for an operation (single, any, all, actions)
func (m *Metrics) RecordDecision(operation string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	m.DecisionsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordMemoLookup counts a memo hit or miss
func (m *Metrics) RecordMemoLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.MemoLookupsTotal.WithLabelValues(result).Inc()
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RouteFunc names the route of a request for metric labels. Using the raw URL
// path would create one series per resource id.
type RouteFunc func(r *http.Request) string

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics, route RouteFunc) func(http.Handler) http.Handler {
	if route == nil {
		route = func(r *http.Request) string { return r.URL.Path }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			name := route(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
