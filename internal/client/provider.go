// Package client fetches current-conditions snapshots from the upstream
// weather provider. Snapshot ingestion is opportunistic: the scheduler calls
// it on a timer and a failure only means the history grows one point slower.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agrisight/prediction-service/internal/circuitbreaker"
	"github.com/agrisight/prediction-service/internal/models"
	"github.com/agrisight/prediction-service/internal/observability"
)

// SnapshotProvider returns the current observation for a location.
type SnapshotProvider interface {
	CurrentObservation(ctx context.Context, location string) (models.WeatherObservation, error)
}

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
)

// HTTPProvider calls an OpenWeather-compatible endpoint with bounded retries
// and a circuit breaker in front of the upstream.
type HTTPProvider struct {
	apiKey    string
	apiURL    string
	timeout   time.Duration
	client    *http.Client
	breaker   *circuitbreaker.Breaker
	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
}

// Options tunes the provider. Zero retry fields fall back to 3 attempts with
// 100ms..2s exponential backoff.
type Options struct {
	Timeout       time.Duration
	RetryAttempts int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Breaker       *circuitbreaker.Breaker
}

// NewHTTPProvider validates the key and builds the client.
func NewHTTPProvider(apiKey, apiURL string, opts Options) (*HTTPProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 2 * time.Second
	}
	if opts.Breaker == nil {
		opts.Breaker = circuitbreaker.New(circuitbreaker.Config{})
	}
	return &HTTPProvider{
		apiKey:    apiKey,
		apiURL:    apiURL,
		timeout:   opts.Timeout,
		client:    &http.Client{Timeout: opts.Timeout},
		breaker:   opts.Breaker,
		attempts:  opts.RetryAttempts,
		baseDelay: opts.BaseDelay,
		maxDelay:  opts.MaxDelay,
	}, nil
}

type providerResponse struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
		Pressure float64 `json:"pressure"`
	} `json:"main"`
	Rain struct {
		OneHour float64 `json:"1h"`
	} `json:"rain"`
	Name string `json:"name"`
}

// CurrentObservation fetches the latest conditions for the location, retrying
// transient failures with exponential backoff. The breaker wraps each attempt
// so a dead upstream fails fast instead of burning the retry budget.
func (p *HTTPProvider) CurrentObservation(ctx context.Context, location string) (models.WeatherObservation, error) {
	var lastErr error
	for attempt := 0; attempt < p.attempts; attempt++ {
		if attempt > 0 {
			observability.ProviderRetriesTotal.Inc()
			select {
			case <-ctx.Done():
				return models.WeatherObservation{}, ctx.Err()
			case <-time.After(p.backoff(attempt)):
			}
		}

		var obs models.WeatherObservation
		err := p.breaker.Do(func() error {
			var callErr error
			obs, callErr = p.callAPI(ctx, location)
			return callErr
		})
		if err == nil {
			return obs, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return models.WeatherObservation{}, err
		}
	}
	return models.WeatherObservation{}, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (p *HTTPProvider) callAPI(ctx context.Context, location string) (models.WeatherObservation, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := p.buildRequest(reqCtx, location)
	if err != nil {
		observability.ProviderCallsTotal.WithLabelValues("error").Inc()
		return models.WeatherObservation{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		observability.ProviderCallsTotal.WithLabelValues("error").Inc()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.WeatherObservation{}, fmt.Errorf("request timeout: %w", err)
		}
		return models.WeatherObservation{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	observability.ProviderCallsTotal.WithLabelValues(statusLabel(resp.StatusCode)).Inc()

	if err := handleErrorStatus(resp.StatusCode); err != nil {
		return models.WeatherObservation{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.WeatherObservation{}, fmt.Errorf("read response body: %w", err)
	}
	var pr providerResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return models.WeatherObservation{}, fmt.Errorf("parse response: %w", err)
	}
	return p.mapResponse(pr, location), nil
}

func (p *HTTPProvider) buildRequest(ctx context.Context, location string) (*http.Request, error) {
	baseURL, err := url.Parse(p.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	params := url.Values{}
	params.Set("q", location)
	params.Set("appid", p.apiKey)
	params.Set("units", "metric")
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (p *HTTPProvider) backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (p *HTTPProvider) mapResponse(pr providerResponse, location string) models.WeatherObservation {
	name := pr.Name
	if name == "" {
		name = location
	}
	return models.WeatherObservation{
		Location:    strings.ToLower(name),
		Temperature: pr.Main.Temp,
		Humidity:    pr.Main.Humidity,
		Rainfall:    pr.Rain.OneHour,
		Pressure:    pr.Main.Pressure,
		RecordedAt:  time.Now().UTC(),
	}
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "context deadline exceeded") ||
		strings.Contains(errStr, "connection refused")
}

func handleErrorStatus(statusCode int) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: rejected by provider", ErrInvalidAPIKey)
	case http.StatusNotFound:
		return ErrLocationNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, statusCode)
	}
	if statusCode < 200 || statusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, statusCode)
	}
	return nil
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	default:
		return "error"
	}
}
