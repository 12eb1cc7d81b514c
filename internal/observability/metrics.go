package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/piwi3910/taskforge/internal/config"
)

// Login attempt outcome labels.
const (
	loginStatusSuccess = "success"
	loginStatusFailure = "failure"
)

// Metrics holds all Prometheus metrics for the taskforge API.
//
// Each instance owns a private registry, so exporting is idempotent, tests
// can run in isolation, and the disabled mode never touches process-global
// state. All label sets are bounded: the endpoint label is always the route
// template (e.g. "/api/v1/tasks/:taskId"), never a raw path.
type Metrics struct {
	registry *prometheus.Registry
	enabled  bool

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestSizeBytes *prometheus.HistogramVec
	HTTPResponseSize     *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Business metrics
	UserRegistrationsTotal prometheus.Counter
	LoginAttemptsTotal     *prometheus.CounterVec
	APICallsTotal          *prometheus.CounterVec
	ErrorsTotal            *prometheus.CounterVec
	TaskDuration           *prometheus.HistogramVec

	// Infrastructure metrics
	DatabaseConnections prometheus.Gauge
	CacheHitsTotal      *prometheus.CounterVec
	CacheMissesTotal    *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics on a private
// registry. When cfg.Enabled is false the returned instance is a guaranteed
// no-op: every recording call returns after a boolean check and Export
// renders an empty body.
func NewMetrics(cfg config.MetricsConfig) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		enabled:  cfg.Enabled,
	}

	if !cfg.Enabled {
		return m
	}

	namespace := cfg.Namespace

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	m.HTTPRequestSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "endpoint"},
	)

	m.HTTPResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "endpoint"},
	)

	m.HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)

	m.UserRegistrationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "user_registrations_total",
			Help:      "Total number of user registrations",
		},
	)

	m.LoginAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Total number of login attempts",
		},
		[]string{"status"},
	)

	m.APICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_calls_total",
			Help:      "Total number of business API calls",
		},
		[]string{"service", "operation"},
	)

	m.ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of errors",
		},
		[]string{"error_type", "service"},
	)

	m.TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Named task execution duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"task_name"},
	)

	m.DatabaseConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "database_connections_active",
			Help:      "Number of active database connections",
		},
	)

	m.CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	m.CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSize,
		m.HTTPRequestsInFlight,
		m.UserRegistrationsTotal,
		m.LoginAttemptsTotal,
		m.APICallsTotal,
		m.ErrorsTotal,
		m.TaskDuration,
		m.DatabaseConnections,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	if cfg.EnableGoMetrics {
		m.registry.MustRegister(collectors.NewGoCollector())
	}

	return m
}

// Enabled reports whether metrics collection is active.
func (m *Metrics) Enabled() bool {
	return m.enabled
}

// RecordRequest records one sample per completed HTTP request.
// Size histograms are only observed for positive sizes.
func (m *Metrics) RecordRequest(method, endpoint string, statusCode int, duration time.Duration, requestSize, responseSize int) {
	if !m.enabled {
		return
	}

	status := strconv.Itoa(statusCode)
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())

	if requestSize > 0 {
		m.HTTPRequestSizeBytes.WithLabelValues(method, endpoint).Observe(float64(requestSize))
	}
	if responseSize > 0 {
		m.HTTPResponseSize.WithLabelValues(method, endpoint).Observe(float64(responseSize))
	}
}

// RecordUserRegistration records a successful user registration.
func (m *Metrics) RecordUserRegistration() {
	if m.enabled {
		m.UserRegistrationsTotal.Inc()
	}
}

// RecordLoginAttempt records a login attempt outcome.
func (m *Metrics) RecordLoginAttempt(success bool) {
	if !m.enabled {
		return
	}
	status := loginStatusFailure
	if success {
		status = loginStatusSuccess
	}
	m.LoginAttemptsTotal.WithLabelValues(status).Inc()
}

// RecordAPICall records a business-level API call.
func (m *Metrics) RecordAPICall(service, operation string) {
	if m.enabled {
		m.APICallsTotal.WithLabelValues(service, operation).Inc()
	}
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError(errorType, service string) {
	if m.enabled {
		m.ErrorsTotal.WithLabelValues(errorType, service).Inc()
	}
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit(cacheType string) {
	if m.enabled {
		m.CacheHitsTotal.WithLabelValues(cacheType).Inc()
	}
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss(cacheType string) {
	if m.enabled {
		m.CacheMissesTotal.WithLabelValues(cacheType).Inc()
	}
}

// ObserveTask records the duration of a named task.
func (m *Metrics) ObserveTask(taskName string, duration time.Duration) {
	if m.enabled {
		m.TaskDuration.WithLabelValues(taskName).Observe(duration.Seconds())
	}
}

// SetDatabaseConnections sets the number of active database connections.
func (m *Metrics) SetDatabaseConnections(count int) {
	if m.enabled {
		m.DatabaseConnections.Set(float64(count))
	}
}

// InFlightInc increments the in-flight HTTP request gauge.
func (m *Metrics) InFlightInc() {
	if m.enabled {
		m.HTTPRequestsInFlight.Inc()
	}
}

// InFlightDec decrements the in-flight HTTP request gauge.
func (m *Metrics) InFlightDec() {
	if m.enabled {
		m.HTTPRequestsInFlight.Dec()
	}
}

// Handler returns an HTTP handler that renders the private registry in the
// Prometheus text exposition format. Safe to call concurrently with any
// recording call.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the private registry for test assertions.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
