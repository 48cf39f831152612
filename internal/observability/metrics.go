package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UnmatchedRoute is the route label used for requests that do not match
// any configured route, keeping label cardinality bounded.
const UnmatchedRoute = "unmatched"

// Metrics holds all Prometheus metrics for the gateway.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	authFailures       *prometheus.CounterVec
	rateLimitDecisions *prometheus.CounterVec
	rateLimitFallbacks prometheus.Counter
	upstreamRetries    *prometheus.CounterVec
	registryInstances  *prometheus.GaugeVec
	registryRefreshes  *prometheus.CounterVec
	registryStale      prometheus.Gauge
	buildInfo          *prometheus.GaugeVec
	startTime          prometheus.Gauge
	registry           *prometheus.Registry
}

// NewMetrics creates a new Metrics instance backed by its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "edgegw"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of requests by route, pipeline outcome and status",
		},
		[]string{"route", "outcome", "status"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end request duration in seconds",
			Buckets: []float64{
				.001, .005, .01, .025, .05,
				.1, .25, .5, 1, 2.5, 5, 10,
			},
		},
		[]string{"route", "outcome"},
	)

	m.authFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Total number of rejected bearer tokens by reason",
		},
		[]string{"reason"},
	)

	m.rateLimitDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Total number of rate limit decisions by policy and result",
		},
		[]string{"policy", "result"},
	)

	m.rateLimitFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_store_fallbacks_total",
			Help:      "Total number of decisions served by the local fallback store",
		},
	)

	m.upstreamRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_retries_total",
			Help:      "Total number of idempotent requests retried on another instance",
		},
		[]string{"service"},
	)

	m.registryInstances = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_instances",
			Help:      "Number of known instances per service and health state",
		},
		[]string{"service", "state"},
	)

	m.registryRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_refreshes_total",
			Help:      "Total number of registry refreshes by source and status",
		},
		[]string{"source", "status"},
	)

	m.registryStale = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_stale",
			Help:      "Whether the registry view is stale (1) or fresh (0)",
		},
	)

	m.buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information for the gateway",
		},
		[]string{"version", "commit"},
	)

	m.startTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "start_time_seconds",
			Help:      "Start time of the gateway in unix seconds",
		},
	)

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.authFailures,
		m.rateLimitDecisions,
		m.rateLimitFallbacks,
		m.upstreamRetries,
		m.registryInstances,
		m.registryRefreshes,
		m.registryStale,
		m.buildInfo,
		m.startTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.startTime.SetToCurrentTime()

	return m
}

// RecordRequest records a completed request.
// The route parameter must be the matched rule prefix, never the raw path.
func (m *Metrics) RecordRequest(route, outcome string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, outcome, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, outcome).Observe(duration.Seconds())
}

// RecordAuthFailure records a rejected token.
func (m *Metrics) RecordAuthFailure(reason string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(reason).Inc()
}

// RecordRateLimit records a rate limit decision.
func (m *Metrics) RecordRateLimit(policy string, allowed bool) {
	if m == nil {
		return
	}
	result := "rejected"
	if allowed {
		result = "admitted"
	}
	m.rateLimitDecisions.WithLabelValues(policy, result).Inc()
}

// RecordRateLimitFallback records a decision served by the fallback store.
func (m *Metrics) RecordRateLimitFallback() {
	if m == nil {
		return
	}
	m.rateLimitFallbacks.Inc()
}

// RecordUpstreamRetry records a retry against a different instance.
func (m *Metrics) RecordUpstreamRetry(service string) {
	if m == nil {
		return
	}
	m.upstreamRetries.WithLabelValues(service).Inc()
}

// SetRegistryInstances sets the instance count of a service in a health state.
func (m *Metrics) SetRegistryInstances(service, state string, count int) {
	if m == nil {
		return
	}
	m.registryInstances.WithLabelValues(service, state).Set(float64(count))
}

// ResetRegistryInstances clears the per-service instance gauges.
func (m *Metrics) ResetRegistryInstances() {
	if m == nil {
		return
	}
	m.registryInstances.Reset()
}

// RecordRegistryRefresh records a refresh attempt of a registry source.
func (m *Metrics) RecordRegistryRefresh(source string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.registryRefreshes.WithLabelValues(source, status).Inc()
}

// SetRegistryStale sets the registry staleness gauge.
func (m *Metrics) SetRegistryStale(stale bool) {
	if m == nil {
		return
	}
	value := 0.0
	if stale {
		value = 1.0
	}
	m.registryStale.Set(value)
}

// SetBuildInfo sets the build information metric.
func (m *Metrics) SetBuildInfo(version, commit string) {
	if m == nil {
		return
	}
	m.buildInfo.WithLabelValues(version, commit).Set(1)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(
		m.registry,
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	)
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
