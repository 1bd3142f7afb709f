package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestMetrics_Usable verifies that all Prometheus metrics can be used without
// panic, ensuring label dimensions match usage across the httpapi, orchestrator,
// forecast, predcache, and scheduler packages.
func TestMetrics_Usable(t *testing.T) {
	// Route uses path template to avoid cardinality (e.g. /forecast/{location} not /forecast/ames)
	HTTPRequestsTotal.WithLabelValues("GET", "/forecast/{location}", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/forecast/{location}").Observe(0.01)
	ModelCallsTotal.WithLabelValues("weather_ensemble", "success").Inc()
	ModelCallsTotal.WithLabelValues("crop_model", "error").Inc()
	ModelCallDuration.WithLabelValues("weather_ensemble").Observe(0.05)
	PredictionsGeneratedTotal.WithLabelValues("weather").Inc()
	ForecastFallbacksTotal.Inc()
	TrainingRunsTotal.WithLabelValues("timeseries", "success").Inc()
	TrainingDuration.WithLabelValues("timeseries").Observe(0.2)
	CacheHitsTotal.WithLabelValues("weather").Inc()
	CacheMissesTotal.WithLabelValues("analysis").Inc()
	CacheErrorsTotal.WithLabelValues("put").Inc()
	SchedulerRunsTotal.WithLabelValues("refresh", "success").Inc()
	ProviderCallsTotal.WithLabelValues("success").Inc()
	ProviderRetriesTotal.Inc()
	RateLimitDeniedTotal.Inc()
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format with correct HTTP status and metric output.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "httpRequestsTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
}
