// Package orchestrator owns the full predictor set and exposes the service
// operations: weather forecasts, hazard alerts, comprehensive analyses and
// performance metrics. All predictor state and the performance map live on
// the instance; nothing is process-global.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/agrisight/prediction-service/internal/alerts"
	"github.com/agrisight/prediction-service/internal/client"
	"github.com/agrisight/prediction-service/internal/domain"
	"github.com/agrisight/prediction-service/internal/forecast"
	"github.com/agrisight/prediction-service/internal/models"
	"github.com/agrisight/prediction-service/internal/observability"
	"github.com/agrisight/prediction-service/internal/predcache"
	"github.com/agrisight/prediction-service/internal/store"
)

const (
	weatherModelName = "weather_ensemble"
	alertModelName   = "alert_model"

	defaultFarmSizeAcres = 100
)

// Config holds orchestrator tunables.
type Config struct {
	CacheValidity time.Duration
	ModelVersion  string
}

// Orchestrator wires the forecaster, the alert predictor and the domain
// predictors behind the exposed operations. The snapshot provider is
// optional; when nil, forecasts run from stored history alone.
type Orchestrator struct {
	cfg        Config
	store      store.Store
	cache      predcache.Cache
	forecaster *forecast.Service
	alerts     *alerts.Predictor
	crop       domain.Predictor
	soil       domain.Predictor
	irrigation domain.Predictor
	energy     domain.Predictor
	provider   client.SnapshotProvider
	tracker    *PerformanceTracker
	clock      clockwork.Clock
	logger     *zap.Logger
}

// Deps carries the orchestrator's collaborators.
type Deps struct {
	Store      store.Store
	Cache      predcache.Cache
	Forecaster *forecast.Service
	Alerts     *alerts.Predictor
	Crop       domain.Predictor
	Soil       domain.Predictor
	Irrigation domain.Predictor
	Energy     domain.Predictor
	Provider   client.SnapshotProvider
	Clock      clockwork.Clock
	Logger     *zap.Logger
}

// New builds the orchestrator.
func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.CacheValidity <= 0 {
		cfg.CacheValidity = 24 * time.Hour
	}
	if cfg.ModelVersion == "" {
		cfg.ModelVersion = "ensemble-v1"
	}
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:        cfg,
		store:      deps.Store,
		cache:      deps.Cache,
		forecaster: deps.Forecaster,
		alerts:     deps.Alerts,
		crop:       deps.Crop,
		soil:       deps.Soil,
		irrigation: deps.Irrigation,
		energy:     deps.Energy,
		provider:   deps.Provider,
		tracker:    NewPerformanceTracker(clock),
		clock:      clock,
		logger:     logger,
	}
}

// PredictWeather returns the multi-day forecast for the location, serving
// from the cache while a prior run is still valid. InsufficientData and
// ModelNotInitialized surface to the caller; everything else is recovered.
func (o *Orchestrator) PredictWeather(ctx context.Context, location string, horizon int) ([]models.WeatherPrediction, error) {
	if horizon <= 0 || horizon > o.forecaster.Horizon() {
		horizon = o.forecaster.Horizon()
	}

	if cached, ok := o.cachedWeather(ctx, location); ok && len(cached) >= horizon {
		return cached[:horizon], nil
	}
	return o.computeWeather(ctx, location, horizon)
}

// PredictAlerts returns hazard alerts derived from the location's forecast.
func (o *Orchestrator) PredictAlerts(ctx context.Context, location string) ([]models.AlertPrediction, error) {
	var cached []models.AlertPrediction
	if o.readCache(ctx, location, predcache.TypeAlerts, &cached) {
		return cached, nil
	}

	weather, err := o.PredictWeather(ctx, location, o.forecaster.Horizon())
	if err != nil {
		return nil, err
	}

	preds := o.instrumentedAlerts(weather)
	o.writeCache(ctx, location, predcache.TypeAlerts, preds, alertConfidence(preds))
	return preds, nil
}

// PerformanceMetrics returns the per-model call statistics.
func (o *Orchestrator) PerformanceMetrics() []models.ModelPerformanceRecord {
	return o.tracker.Snapshot()
}

// Locations lists the registered analysis targets, one per location key in
// the store.
func (o *Orchestrator) Locations(ctx context.Context) ([]models.Location, error) {
	keys, err := o.store.Locations(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing locations: %w", err)
	}
	out := make([]models.Location, 0, len(keys))
	for _, key := range keys {
		out = append(out, models.Location{ID: key, Name: displayName(key)})
	}
	return out, nil
}

// displayName upper-cases the first letter of each word in a location key.
func displayName(key string) string {
	words := strings.Fields(key)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// Ready reports whether the weather ensemble has been trained.
func (o *Orchestrator) Ready() bool {
	return o.forecaster.Ready()
}

// RunComprehensiveAnalysis fans out to the domain predictors in dependency
// order: weather first, crop and soil next, then irrigation and energy with
// soil moisture flowing into irrigation, alerts last. A domain failure is
// recorded as a zero-confidence entry in Errors and never aborts the rest.
func (o *Orchestrator) RunComprehensiveAnalysis(ctx context.Context, req models.AnalysisRequest) (models.ComprehensiveResult, error) {
	if req.Location == "" {
		return models.ComprehensiveResult{}, fmt.Errorf("location is required")
	}
	scope := req.Scope
	if scope == "" {
		scope = models.ScopeFull
	}
	switch scope {
	case models.ScopeFull, models.ScopeCrop, models.ScopeSoil, models.ScopeIrrigation, models.ScopeEnergy:
	default:
		return models.ComprehensiveResult{}, fmt.Errorf("unknown analysis scope %q", scope)
	}
	if req.FarmSizeAcres <= 0 {
		req.FarmSizeAcres = defaultFarmSizeAcres
	}

	result := models.ComprehensiveResult{
		AnalysisID:  uuid.New().String(),
		Location:    req.Location,
		GeneratedAt: o.clock.Now(),
		Errors:      make(map[string]string),
	}

	weather, err := o.PredictWeather(ctx, req.Location, req.HorizonDays)
	if err != nil {
		o.logger.Warn("weather stage failed, continuing analysis",
			zap.String("location", req.Location), zap.Error(err))
		result.Errors["weather"] = err.Error()
	} else {
		result.Weather = weather
	}

	input := domain.Input{
		Location:     req.Location,
		Current:      o.latestObservation(ctx, req.Location),
		Forecast:     weather,
		SoilMoisture: domain.UnknownMoisture,
	}

	inScope := func(s models.AnalysisScope) bool {
		return scope == models.ScopeFull || scope == s
	}

	// Crop and soil have no dependency between them.
	var wg sync.WaitGroup
	var cropRes, soilRes domain.Result
	var cropErr, soilErr error
	if inScope(models.ScopeCrop) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cropRes, cropErr = o.callDomain(ctx, o.crop, input)
		}()
	}
	if inScope(models.ScopeSoil) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			soilRes, soilErr = o.callDomain(ctx, o.soil, input)
		}()
	}
	wg.Wait()

	if soilRes != nil {
		if sr, ok := soilRes.(domain.SoilResult); ok {
			input.SoilMoisture = sr.Moisture
		}
	}

	var irrRes, energyRes domain.Result
	var irrErr, energyErr error
	if inScope(models.ScopeIrrigation) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			irrRes, irrErr = o.callDomain(ctx, o.irrigation, input)
		}()
	}
	if inScope(models.ScopeEnergy) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			energyRes, energyErr = o.callDomain(ctx, o.energy, input)
		}()
	}
	wg.Wait()

	mergeDomain(&result, "crop", cropRes, cropErr)
	mergeDomain(&result, "soil", soilRes, soilErr)
	mergeDomain(&result, "irrigation", irrRes, irrErr)
	mergeDomain(&result, "energy", energyRes, energyErr)

	if scope == models.ScopeFull && len(weather) > 0 {
		result.Alerts = o.instrumentedAlerts(weather)
	}

	deriveIntegrated(&result, req)
	if len(result.Errors) == 0 {
		result.Errors = nil
	}

	o.writeCache(ctx, req.Location, predcache.TypeAnalysis, result, result.OverallConfidence)
	return result, nil
}

// RefreshLocation recomputes and caches the crop analysis and the alert
// predictions for one location. Used by the background refresh cycle.
func (o *Orchestrator) RefreshLocation(ctx context.Context, location string) error {
	weather, err := o.computeWeather(ctx, location, o.forecaster.Horizon())
	if err != nil {
		return fmt.Errorf("refresh forecast: %w", err)
	}

	preds := o.instrumentedAlerts(weather)
	o.writeCache(ctx, location, predcache.TypeAlerts, preds, alertConfidence(preds))

	input := domain.Input{
		Location:     location,
		Current:      o.latestObservation(ctx, location),
		Forecast:     weather,
		SoilMoisture: domain.UnknownMoisture,
	}
	cropRes, err := o.callDomain(ctx, o.crop, input)
	if err != nil {
		return fmt.Errorf("refresh crop analysis: %w", err)
	}
	if cr, ok := cropRes.(domain.CropResult); ok {
		o.writeCache(ctx, location, predcache.TypeCrop, cr.CropAnalysis, cr.Confidence())
	}
	return nil
}

// RetrainModels pulls each location's observations since the cutoff, drops
// locations under minPoints, and retrains the weather ensemble on the rest.
// The domain predictors refine their baselines from the same batches. Zero
// qualifying locations is a no-op.
func (o *Orchestrator) RetrainModels(ctx context.Context, since time.Time, minPoints int) error {
	locations, err := o.store.Locations(ctx)
	if err != nil {
		return fmt.Errorf("list locations: %w", err)
	}

	var batches [][]models.WeatherObservation
	for _, loc := range locations {
		history, err := o.store.ObservationsSince(ctx, loc, since)
		if err != nil {
			o.logger.Warn("skipping location during retrain",
				zap.String("location", loc), zap.Error(err))
			continue
		}
		if len(history) < minPoints {
			o.logger.Debug("location below retrain minimum",
				zap.String("location", loc), zap.Int("points", len(history)))
			continue
		}
		batches = append(batches, history)
	}
	if len(batches) == 0 {
		o.logger.Info("no locations qualify for retraining")
		return nil
	}

	if err := o.forecaster.Train(batches); err != nil {
		return fmt.Errorf("retrain ensemble: %w", err)
	}
	for _, p := range []domain.Predictor{o.crop, o.soil, o.irrigation, o.energy} {
		for _, batch := range batches {
			if _, err := p.Train(ctx, batch); err != nil {
				o.logger.Warn("domain predictor training failed",
					zap.String("model", p.Name()), zap.Error(err))
			}
		}
	}
	return nil
}

func (o *Orchestrator) computeWeather(ctx context.Context, location string, horizon int) ([]models.WeatherPrediction, error) {
	history, err := o.store.RecentObservations(ctx, location, 0)
	if err != nil {
		return nil, err
	}

	if snapshot, ok := o.snapshot(ctx, location); ok {
		history = append(history, snapshot)
	}

	if !o.forecaster.Ready() {
		if err := o.forecaster.Train([][]models.WeatherObservation{history}); err != nil {
			o.logger.Warn("initial training failed, serving fallback forecast",
				zap.String("location", location), zap.Error(err))
		}
	}

	start := o.clock.Now()
	preds, err := o.forecaster.Predict(history, horizon)
	elapsed := o.clock.Since(start)

	if err != nil {
		observability.ModelCallsTotal.WithLabelValues(weatherModelName, "error").Inc()
		o.tracker.Record(weatherModelName, elapsed, 0, false)
		return nil, err
	}
	observability.ModelCallsTotal.WithLabelValues(weatherModelName, "success").Inc()
	observability.ModelCallDuration.WithLabelValues(weatherModelName).Observe(elapsed.Seconds())
	observability.PredictionsGeneratedTotal.WithLabelValues(predcache.TypeWeather).Inc()
	o.tracker.Record(weatherModelName, elapsed, forecastConfidence(preds), true)

	o.writeCache(ctx, location, predcache.TypeWeather, preds, forecastConfidence(preds))
	return preds, nil
}

// snapshot opportunistically fetches current conditions from the provider.
// Failure is never fatal; the forecast proceeds from stored history.
func (o *Orchestrator) snapshot(ctx context.Context, location string) (models.WeatherObservation, bool) {
	if o.provider == nil {
		return models.WeatherObservation{}, false
	}
	obs, err := o.provider.CurrentObservation(ctx, location)
	if err != nil {
		o.logger.Debug("snapshot fetch failed, using stored history",
			zap.String("location", location), zap.Error(err))
		return models.WeatherObservation{}, false
	}
	obs.Location = location
	if err := o.store.PutObservation(ctx, obs); err != nil {
		o.logger.Warn("could not persist snapshot",
			zap.String("location", location), zap.Error(err))
	}
	return obs, true
}

func (o *Orchestrator) callDomain(ctx context.Context, p domain.Predictor, in domain.Input) (domain.Result, error) {
	start := o.clock.Now()
	res, err := p.Predict(ctx, in)
	elapsed := o.clock.Since(start)

	if err != nil {
		observability.ModelCallsTotal.WithLabelValues(p.Name(), "error").Inc()
		o.tracker.Record(p.Name(), elapsed, 0, false)
		o.logger.Warn("domain predictor failed",
			zap.String("model", p.Name()), zap.String("location", in.Location), zap.Error(err))
		return nil, err
	}
	observability.ModelCallsTotal.WithLabelValues(p.Name(), "success").Inc()
	observability.ModelCallDuration.WithLabelValues(p.Name()).Observe(elapsed.Seconds())
	observability.PredictionsGeneratedTotal.WithLabelValues(res.Domain()).Inc()
	o.tracker.Record(p.Name(), elapsed, res.Confidence(), true)
	return res, nil
}

func (o *Orchestrator) instrumentedAlerts(weather []models.WeatherPrediction) []models.AlertPrediction {
	start := o.clock.Now()
	preds := o.alerts.PredictFromForecast(weather)
	elapsed := o.clock.Since(start)

	observability.ModelCallsTotal.WithLabelValues(alertModelName, "success").Inc()
	observability.ModelCallDuration.WithLabelValues(alertModelName).Observe(elapsed.Seconds())
	observability.PredictionsGeneratedTotal.WithLabelValues(predcache.TypeAlerts).Inc()
	o.tracker.Record(alertModelName, elapsed, alertConfidence(preds), true)
	return preds
}

func (o *Orchestrator) latestObservation(ctx context.Context, location string) models.WeatherObservation {
	recent, err := o.store.RecentObservations(ctx, location, 1)
	if err != nil || len(recent) == 0 {
		return models.WeatherObservation{Location: location}
	}
	return recent[len(recent)-1]
}

func (o *Orchestrator) cachedWeather(ctx context.Context, location string) ([]models.WeatherPrediction, bool) {
	var cached []models.WeatherPrediction
	if !o.readCache(ctx, location, predcache.TypeWeather, &cached) {
		return nil, false
	}
	return cached, true
}

// readCache reports a hit only when an active row exists and decodes cleanly.
// Cache trouble counts as a miss; the live computation is the source of truth.
func (o *Orchestrator) readCache(ctx context.Context, location, predictionType string, out any) bool {
	rec, ok, err := o.cache.GetActive(ctx, location, predictionType)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		o.logger.Warn("cache read failed",
			zap.String("location", location), zap.String("predictionType", predictionType), zap.Error(err))
		return false
	}
	if !ok {
		observability.CacheMissesTotal.WithLabelValues(predictionType).Inc()
		return false
	}
	if err := json.Unmarshal(rec.Payload, out); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("decode").Inc()
		o.logger.Warn("cache payload corrupt",
			zap.String("location", location), zap.String("predictionType", predictionType), zap.Error(err))
		return false
	}
	observability.CacheHitsTotal.WithLabelValues(predictionType).Inc()
	return true
}

// writeCache upserts the serialized payload. Failures are logged and
// swallowed; the response is served from the live computation regardless.
func (o *Orchestrator) writeCache(ctx context.Context, location, predictionType string, payload any, confidence float64) {
	raw, err := json.Marshal(payload)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("encode").Inc()
		o.logger.Warn("cache encode failed",
			zap.String("location", location), zap.String("predictionType", predictionType), zap.Error(err))
		return
	}
	now := o.clock.Now()
	rec := models.CachedPredictionRecord{
		LocationKey:    location,
		PredictionType: predictionType,
		Payload:        raw,
		Confidence:     confidence,
		GeneratedAt:    now,
		ValidUntil:     now.Add(o.cfg.CacheValidity),
		ModelVersion:   o.cfg.ModelVersion,
	}
	if err := o.cache.Put(ctx, rec); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("put").Inc()
		o.logger.Warn("cache write failed",
			zap.String("location", location), zap.String("predictionType", predictionType), zap.Error(err))
	}
}

func forecastConfidence(preds []models.WeatherPrediction) float64 {
	if len(preds) == 0 {
		return 0
	}
	var sum float64
	for _, p := range preds {
		sum += p.Confidence
	}
	return sum / float64(len(preds))
}

func alertConfidence(preds []models.AlertPrediction) float64 {
	if len(preds) == 0 {
		return 1
	}
	var sum float64
	for _, p := range preds {
		sum += p.Confidence
	}
	return sum / float64(len(preds))
}

func mergeDomain(result *models.ComprehensiveResult, name string, res domain.Result, err error) {
	if err != nil {
		result.Errors[name] = err.Error()
		return
	}
	switch r := res.(type) {
	case domain.CropResult:
		result.Crop = &r.CropAnalysis
	case domain.SoilResult:
		result.Soil = &r.SoilAnalysis
	case domain.IrrigationResult:
		result.Irrigation = &r.IrrigationAnalysis
	case domain.EnergyResult:
		result.Energy = &r.EnergyAnalysis
	case nil:
		// Domain was out of scope for this run.
	}
}
