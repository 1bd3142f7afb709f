package httpapi

import (
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/agrisight/prediction-service/internal/observability"
)

// NewRouter wires the routes and middleware chain. Rate limiting and the
// request timeout apply to the prediction routes only; health and metrics
// stay reachable under load.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter, requestTimeout time.Duration) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	predict := router.NewRoute().Subrouter()
	predict.Use(RateLimitMiddleware(limiter))
	predict.Use(TimeoutMiddleware(requestTimeout))
	predict.HandleFunc("/forecast/{location}", h.GetForecast).Methods("GET")
	predict.HandleFunc("/alerts/{location}", h.GetAlerts).Methods("GET")
	predict.HandleFunc("/analysis", h.PostAnalysis).Methods("POST")
	predict.HandleFunc("/performance", h.GetPerformance).Methods("GET")
	predict.HandleFunc("/locations", h.GetLocations).Methods("GET")

	return router
}
