package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agrisight/prediction-service/internal/circuitbreaker"
)

const testAPIKey = "test-api-key-12345"

func fastOptions() Options {
	return Options{
		Timeout:       time.Second,
		RetryAttempts: 3,
		BaseDelay:     time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
	}
}

func TestNewHTTPProvider_RejectsBadKey(t *testing.T) {
	tests := []struct {
		name   string
		apiKey string
	}{
		{"empty key", ""},
		{"short key", "short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHTTPProvider(tt.apiKey, "http://example.test", fastOptions())
			if !errors.Is(err, ErrInvalidAPIKey) {
				t.Errorf("error = %v, want ErrInvalidAPIKey", err)
			}
		})
	}
}

func TestCurrentObservation_MapsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("appid"); got != testAPIKey {
			t.Errorf("appid = %q, want %q", got, testAPIKey)
		}
		if got := r.URL.Query().Get("units"); got != "metric" {
			t.Errorf("units = %q, want metric", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"main": {"temp": 24.5, "humidity": 61, "pressure": 1009.2},
			"rain": {"1h": 3.4},
			"name": "Ames"
		}`))
	}))
	defer srv.Close()

	p, err := NewHTTPProvider(testAPIKey, srv.URL, fastOptions())
	if err != nil {
		t.Fatalf("NewHTTPProvider() error = %v", err)
	}

	obs, err := p.CurrentObservation(context.Background(), "ames")
	if err != nil {
		t.Fatalf("CurrentObservation() error = %v", err)
	}
	if obs.Location != "ames" {
		t.Errorf("location = %q, want ames (lowercased provider name)", obs.Location)
	}
	if obs.Temperature != 24.5 || obs.Humidity != 61 || obs.Rainfall != 3.4 || obs.Pressure != 1009.2 {
		t.Errorf("mapped observation = %+v", obs)
	}
	if obs.RecordedAt.IsZero() {
		t.Error("recordedAt should be stamped")
	}
}

func TestCurrentObservation_MissingRainDefaultsToZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"main": {"temp": 30, "humidity": 20, "pressure": 1013}, "name": "Fresno"}`))
	}))
	defer srv.Close()

	p, err := NewHTTPProvider(testAPIKey, srv.URL, fastOptions())
	if err != nil {
		t.Fatalf("NewHTTPProvider() error = %v", err)
	}
	obs, err := p.CurrentObservation(context.Background(), "fresno")
	if err != nil {
		t.Fatalf("CurrentObservation() error = %v", err)
	}
	if obs.Rainfall != 0 {
		t.Errorf("rainfall = %v, want 0 for a dry response", obs.Rainfall)
	}
}

func TestCurrentObservation_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p, err := NewHTTPProvider(testAPIKey, srv.URL, fastOptions())
	if err != nil {
		t.Fatalf("NewHTTPProvider() error = %v", err)
	}
	if _, err := p.CurrentObservation(context.Background(), "nowhere"); !errors.Is(err, ErrLocationNotFound) {
		t.Errorf("error = %v, want ErrLocationNotFound", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1 (404 must not retry)", got)
	}
}

func TestCurrentObservation_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"main": {"temp": 18, "humidity": 70, "pressure": 1011}, "name": "Ames"}`))
	}))
	defer srv.Close()

	p, err := NewHTTPProvider(testAPIKey, srv.URL, fastOptions())
	if err != nil {
		t.Fatalf("NewHTTPProvider() error = %v", err)
	}
	obs, err := p.CurrentObservation(context.Background(), "ames")
	if err != nil {
		t.Fatalf("CurrentObservation() error = %v, want recovery on third attempt", err)
	}
	if obs.Temperature != 18 {
		t.Errorf("temperature = %v, want 18", obs.Temperature)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("upstream calls = %d, want 3", got)
	}
}

func TestCurrentObservation_ExhaustedRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := NewHTTPProvider(testAPIKey, srv.URL, fastOptions())
	if err != nil {
		t.Fatalf("NewHTTPProvider() error = %v", err)
	}
	if _, err := p.CurrentObservation(context.Background(), "ames"); !errors.Is(err, ErrUpstreamFailure) {
		t.Errorf("error = %v, want wrapped ErrUpstreamFailure", err)
	}
}

func TestCurrentObservation_BreakerFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	opts := fastOptions()
	opts.Breaker = circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 2,
		Cooldown:         time.Hour,
	})
	p, err := NewHTTPProvider(testAPIKey, srv.URL, opts)
	if err != nil {
		t.Fatalf("NewHTTPProvider() error = %v", err)
	}

	// First call burns two attempts, opening the breaker; the third attempt
	// is rejected without reaching the upstream.
	if _, err := p.CurrentObservation(context.Background(), "ames"); err == nil {
		t.Fatal("want error from failing upstream")
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("upstream calls = %d, want 2 before the circuit opened", got)
	}

	if _, err := p.CurrentObservation(context.Background(), "ames"); !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Errorf("error = %v, want ErrOpen with no upstream call", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want still 2", got)
	}
}

func TestCurrentObservation_ContextCancelDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	opts := fastOptions()
	opts.BaseDelay = time.Minute
	opts.MaxDelay = time.Minute
	p, err := NewHTTPProvider(testAPIKey, srv.URL, opts)
	if err != nil {
		t.Fatalf("NewHTTPProvider() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = p.CurrentObservation(ctx, "ames")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded from backoff wait", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("took %v, should abandon the backoff promptly", elapsed)
	}
}
