package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Cache check outcomes: hit, not_found, expired, error, disabled.
	// Hit rate = hit / sum(all outcomes).
	CacheChecksTotal *prometheus.CounterVec

	// Cache write outcomes: success, error, disabled. Watch for: error growth
	// (store rejecting writes).
	CacheWritesTotal *prometheus.CounterVec

	// Store call latency by operation (get, put) and status. Watch for: p95
	// growth = store degradation.
	StoreOperationDurationSeconds *prometheus.HistogramVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	CacheChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheChecksTotal",
			Help: "Cache check operations by outcome",
		},
		[]string{"outcome"},
	)
	CacheWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheWritesTotal",
			Help: "Cache write operations by status",
		},
		[]string{"status"},
	)
	StoreOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storeOperationDurationSeconds",
			Help:    "Document store call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Requests denied by the rate limiter",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		HTTPRequestsInFlight,
		CacheChecksTotal,
		CacheWritesTotal,
		StoreOperationDurationSeconds,
		RateLimitDeniedTotal,
	)
}

// MetricsHandler returns the /metrics endpoint handler for the service registry.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
