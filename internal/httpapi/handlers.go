// Package httpapi exposes the prediction operations over JSON HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/agrisight/prediction-service/internal/forecast"
	"github.com/agrisight/prediction-service/internal/lifecycle"
	"github.com/agrisight/prediction-service/internal/models"
	"github.com/agrisight/prediction-service/internal/store"
)

const serviceName = "prediction-service"

// Orchestrator is the slice of the prediction orchestrator the handlers use.
type Orchestrator interface {
	PredictWeather(ctx context.Context, location string, horizon int) ([]models.WeatherPrediction, error)
	PredictAlerts(ctx context.Context, location string) ([]models.AlertPrediction, error)
	RunComprehensiveAnalysis(ctx context.Context, req models.AnalysisRequest) (models.ComprehensiveResult, error)
	PerformanceMetrics() []models.ModelPerformanceRecord
	Locations(ctx context.Context) ([]models.Location, error)
	Ready() bool
}

// Handler holds dependencies for the HTTP handlers.
type Handler struct {
	orch     Orchestrator
	shutdown *lifecycle.Flag
	// cachePing, when set, checks cache reachability for /health. Set when
	// the backend is memcached.
	cachePing func() error
	logger    *zap.Logger
}

// NewHandler returns a new Handler.
func NewHandler(orch Orchestrator, shutdown *lifecycle.Flag, cachePing func() error, logger *zap.Logger) *Handler {
	return &Handler{
		orch:      orch,
		shutdown:  shutdown,
		cachePing: cachePing,
		logger:    logger,
	}
}

// GetForecast handles GET /forecast/{location}?days=N.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	location := strings.TrimSpace(mux.Vars(r)["location"])
	if location == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", "location is required")
		return
	}

	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, r, http.StatusBadRequest, "INVALID_DAYS", "days must be a positive integer")
			return
		}
		days = parsed
	}

	preds, err := h.orch.PredictWeather(r.Context(), location, days)
	if err != nil {
		writePredictionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"location": location,
		"forecast": preds,
	})
}

// GetAlerts handles GET /alerts/{location}.
func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	location := strings.TrimSpace(mux.Vars(r)["location"])
	if location == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", "location is required")
		return
	}

	preds, err := h.orch.PredictAlerts(r.Context(), location)
	if err != nil {
		writePredictionError(w, r, err)
		return
	}
	if preds == nil {
		preds = []models.AlertPrediction{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"location": location,
		"alerts":   preds,
	})
}

// PostAnalysis handles POST /analysis.
func (h *Handler) PostAnalysis(w http.ResponseWriter, r *http.Request) {
	var req models.AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON")
		return
	}

	result, err := h.orch.RunComprehensiveAnalysis(r.Context(), req)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetPerformance handles GET /performance, keyed by model name.
func (h *Handler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	records := h.orch.PerformanceMetrics()
	byModel := make(map[string]models.ModelPerformanceRecord, len(records))
	for _, rec := range records {
		byModel[rec.Model] = rec
	}
	writeJSON(w, http.StatusOK, byModel)
}

// GetLocations handles GET /locations.
func (h *Handler) GetLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.orch.Locations(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "listing locations failed")
		return
	}
	if locations == nil {
		locations = []models.Location{}
	}
	writeJSON(w, http.StatusOK, locations)
}

// GetHealth handles GET /health. Shutting-down wins over every other check;
// an unreachable cache degrades but does not fail the service.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	statusCode := http.StatusOK
	checks := map[string]string{}

	if h.orch.Ready() {
		checks["models"] = "trained"
	} else {
		checks["models"] = "untrained"
	}
	if h.cachePing != nil {
		if err := h.cachePing(); err == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
			status = "degraded"
		}
	}
	if h.shutdown != nil && h.shutdown.ShuttingDown() {
		status = "shutting-down"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, map[string]interface{}{
		"status":    status,
		"service":   serviceName,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error envelope with code, message and the
// request's correlation ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writePredictionError maps prediction-layer failures onto HTTP statuses.
// InsufficientData and ModelNotInitialized are the only model errors that
// surface; everything else is an internal failure.
func writePredictionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrUnknownLocation):
		writeError(w, r, http.StatusNotFound, "UNKNOWN_LOCATION", "no observation history for location")
	case errors.Is(err, forecast.ErrInsufficientData):
		writeError(w, r, http.StatusUnprocessableEntity, "INSUFFICIENT_DATA", "not enough observation history to predict")
	case errors.Is(err, forecast.ErrModelNotInitialized):
		writeError(w, r, http.StatusServiceUnavailable, "MODEL_NOT_READY", "prediction models are not trained yet")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusGatewayTimeout, "TIMEOUT", "prediction timed out")
	default:
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "prediction failed")
	}
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Debug("prediction error", zap.Error(err))
	}
}
