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

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Model invocation rate by model and status. Watch for: error vs success ratio per model.
	ModelCallsTotal *prometheus.CounterVec

	// Model invocation latency. Watch for: a single model dragging analysis latency.
	ModelCallDuration *prometheus.HistogramVec

	// Predictions generated by prediction type (weather, alerts, analysis).
	PredictionsGeneratedTotal *prometheus.CounterVec

	// Forecasts served from the trend-extrapolation fallback. Watch for: untrained or failing ensemble.
	ForecastFallbacksTotal prometheus.Counter

	// Training runs by model and status.
	TrainingRunsTotal *prometheus.CounterVec

	// Training duration per model.
	TrainingDuration *prometheus.HistogramVec

	// Prediction cache hits by prediction type.
	CacheHitsTotal *prometheus.CounterVec

	// Prediction cache misses (absent or past validity) by prediction type.
	CacheMissesTotal *prometheus.CounterVec

	// Cache backend failures by operation. Writes are swallowed; this counter is the only trace.
	CacheErrorsTotal *prometheus.CounterVec

	// Scheduler job executions by job and status.
	SchedulerRunsTotal *prometheus.CounterVec

	// External snapshot provider calls by status. Provider absence is expected, not an error.
	ProviderCallsTotal *prometheus.CounterVec

	// Retry attempts against the snapshot provider. Watch for: high retries = unstable provider.
	ProviderRetriesTotal prometheus.Counter

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
	ModelCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelCallsTotal",
			Help: "Total number of prediction model invocations",
		},
		[]string{"model", "status"},
	)
	ModelCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelCallDurationSeconds",
			Help:    "Prediction model invocation latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"model"},
	)
	PredictionsGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictionsGeneratedTotal",
			Help: "Predictions generated by prediction type",
		},
		[]string{"predictionType"},
	)
	ForecastFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "forecastFallbacksTotal",
			Help: "Forecasts served from the linear trend-extrapolation fallback",
		},
	)
	TrainingRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trainingRunsTotal",
			Help: "Model training runs by model and status",
		},
		[]string{"model", "status"},
	)
	TrainingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trainingDurationSeconds",
			Help:    "Model training duration in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60},
		},
		[]string{"model"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictionCacheHitsTotal",
			Help: "Prediction cache hits by prediction type",
		},
		[]string{"predictionType"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictionCacheMissesTotal",
			Help: "Prediction cache misses (absent or past validity) by prediction type",
		},
		[]string{"predictionType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictionCacheErrorsTotal",
			Help: "Prediction cache backend failures by operation",
		},
		[]string{"operation"},
	)
	SchedulerRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedulerRunsTotal",
			Help: "Background scheduler job executions by job and status",
		},
		[]string{"job", "status"},
	)
	ProviderCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshotProviderCallsTotal",
			Help: "External snapshot provider calls by status",
		},
		[]string{"status"},
	)
	ProviderRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snapshotProviderRetriesTotal",
			Help: "Total number of retry attempts against the snapshot provider",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		ModelCallsTotal, ModelCallDuration,
		PredictionsGeneratedTotal, ForecastFallbacksTotal,
		TrainingRunsTotal, TrainingDuration,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal,
		SchedulerRunsTotal, ProviderCallsTotal, ProviderRetriesTotal,
		RateLimitDeniedTotal,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
