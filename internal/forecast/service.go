package forecast

import (
	"fmt"
	"hash/fnv"
	"math"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/agrisight/prediction-service/internal/models"
	"github.com/agrisight/prediction-service/internal/observability"
)

const (
	// Fixed correlations against the temperature delta from a 25°C baseline.
	// Hand-tuned; kept as named constants rather than ground truth.
	humidityTempCorrelation = -0.5
	rainfallTempCorrelation = 0.05

	humidityNoiseAmplitude = 2.0
	rainfallNoiseAmplitude = 0.5

	trailingWindow = 7

	fallbackSource = "fallback-linear"
)

// Config holds the tunables of the forecast service. The ensemble weights and
// confidence constants are configuration, not ground truth.
type Config struct {
	Horizon      int
	MinHistory   int
	Strategy     string
	Weights      []float64
	Seed         int64
	ModelVersion string
}

// Service wraps the two base models and the combiner into the multi-day
// weather forecaster. Temperature is the modeled series; humidity and
// rainfall are derived from trailing statistics and fixed correlations.
type Service struct {
	cfg      Config
	ts       *TimeSeriesModel
	nn       *NeuralModel
	combiner Combiner
	clock    clockwork.Clock
	logger   *zap.Logger
}

// NewService builds a forecast service with untrained base models.
func NewService(cfg Config, clock clockwork.Clock, logger *zap.Logger) *Service {
	if cfg.Horizon <= 0 {
		cfg.Horizon = 7
	}
	if cfg.MinHistory <= 0 {
		cfg.MinHistory = 7
	}
	if cfg.ModelVersion == "" {
		cfg.ModelVersion = "ensemble-v1"
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		cfg:      cfg,
		ts:       NewTimeSeriesModel(2, 1, 1, cfg.Seed, logger),
		nn:       NewNeuralModel(0, cfg.Seed+1, logger),
		combiner: NewCombiner(cfg.Strategy, cfg.Weights),
		clock:    clock,
		logger:   logger,
	}
}

// Horizon returns the default forecast horizon in days.
func (s *Service) Horizon() int { return s.cfg.Horizon }

// Ready reports whether at least one base model has been trained. Predict
// degrades to trend extrapolation while not ready.
func (s *Service) Ready() bool {
	return s.ts.Trained() || s.nn.Trained()
}

// Train fits both base models on the concatenated temperature series of the
// history batches. A failure training one base model is logged and the
// ensemble continues with the remaining model; only both failing is an error.
func (s *Service) Train(batches [][]models.WeatherObservation) error {
	var series []float64
	for _, batch := range batches {
		for _, obs := range batch {
			series = append(series, obs.Temperature)
		}
	}

	var failures int
	if summary, err := s.ts.Train(series); err != nil {
		failures++
		observability.TrainingRunsTotal.WithLabelValues("timeseries", "error").Inc()
		if s.logger != nil {
			s.logger.Warn("timeseries training failed, ensemble continues", zap.Error(err))
		}
	} else {
		observability.TrainingRunsTotal.WithLabelValues("timeseries", "success").Inc()
		observability.TrainingDuration.WithLabelValues("timeseries").Observe(summary.Duration.Seconds())
		if s.logger != nil {
			s.logger.Info("timeseries model trained",
				zap.Int("samples", summary.Samples), zap.Float64("loss", summary.FinalLoss))
		}
	}

	if summary, err := s.nn.Train(series); err != nil {
		failures++
		observability.TrainingRunsTotal.WithLabelValues("neural", "error").Inc()
		if s.logger != nil {
			s.logger.Warn("neural training failed, ensemble continues", zap.Error(err))
		}
	} else {
		observability.TrainingRunsTotal.WithLabelValues("neural", "success").Inc()
		observability.TrainingDuration.WithLabelValues("neural").Observe(summary.Duration.Seconds())
		if s.logger != nil {
			s.logger.Info("neural model trained",
				zap.Int("samples", summary.Samples), zap.Int("epochs", summary.Epochs), zap.Float64("loss", summary.FinalLoss))
		}
	}

	if failures == 2 {
		return fmt.Errorf("training failed for both base models (%d points)", len(series))
	}
	return nil
}

// Predict produces a horizon-length forecast from the observation history
// (ordered oldest first). Histories shorter than the configured minimum fail
// with ErrInsufficientData and no partial output. Internal failures degrade
// to linear trend extrapolation instead of failing the request.
func (s *Service) Predict(history []models.WeatherObservation, horizon int) ([]models.WeatherPrediction, error) {
	if horizon <= 0 {
		horizon = s.cfg.Horizon
	}
	if len(history) < s.cfg.MinHistory {
		return nil, fmt.Errorf(
			"%w: forecast needs %d observations, got %d", ErrInsufficientData, s.cfg.MinHistory, len(history))
	}

	temps := make([]float64, len(history))
	for i, obs := range history {
		temps[i] = obs.Temperature
	}

	arValues, arErr := s.ts.Forecast(temps, horizon)
	nnValue, nnErr := s.nn.PredictNext(temps)
	if arErr != nil && nnErr != nil {
		if s.logger != nil {
			s.logger.Warn("both base models unavailable, serving trend fallback",
				zap.NamedError("timeseries", arErr), zap.NamedError("neural", nnErr))
		}
		return s.fallback(history, horizon), nil
	}

	dataBonus := math.Min(0.1, 0.005*float64(len(history)-s.cfg.MinHistory))
	if dataBonus < 0 {
		dataBonus = 0
	}

	location := history[0].Location
	now := s.clock.Now()
	out := make([]models.WeatherPrediction, 0, horizon)
	for day := 1; day <= horizon; day++ {
		var temp float64
		if arErr == nil {
			// The neural model contributes its single-step value to every day.
			temp = s.combiner.Combine([]float64{arValues[day-1], nnValue}, []bool{true, nnErr == nil})
		} else {
			temp = nnValue
		}

		out = append(out, models.WeatherPrediction{
			Day:         day,
			Date:        now.AddDate(0, 0, day),
			Temperature: temp,
			Humidity:    s.deriveHumidity(history, location, day, temp),
			Rainfall:    s.deriveRainfall(history, location, day, temp),
			Confidence:  clamp(0.95-0.05*float64(day)+dataBonus, 0.5, 0.99),
			Source:      s.cfg.ModelVersion,
		})
	}
	return out, nil
}

// fallback extrapolates the recent linear temperature trend when the ensemble
// cannot run. Confidence decays 0.1/day from 0.8 with a 0.3 floor.
func (s *Service) fallback(history []models.WeatherObservation, horizon int) []models.WeatherPrediction {
	observability.ForecastFallbacksTotal.Inc()

	temps := make([]float64, len(history))
	for i, obs := range history {
		temps[i] = obs.Temperature
	}
	window := temps
	if len(window) > trailingWindow {
		window = window[len(window)-trailingWindow:]
	}
	slope := linearSlope(window)
	last := temps[len(temps)-1]

	location := history[0].Location
	now := s.clock.Now()
	out := make([]models.WeatherPrediction, 0, horizon)
	for day := 1; day <= horizon; day++ {
		temp := last + slope*float64(day)
		out = append(out, models.WeatherPrediction{
			Day:         day,
			Date:        now.AddDate(0, 0, day),
			Temperature: temp,
			Humidity:    s.deriveHumidity(history, location, day, temp),
			Rainfall:    s.deriveRainfall(history, location, day, temp),
			Confidence:  math.Max(0.3, 0.8-0.1*float64(day-1)),
			Source:      fallbackSource,
		})
	}
	return out
}

// deriveHumidity projects humidity from the trailing average plus linear
// trend, a negative correlation with the temperature delta from 25°C, and
// bounded deterministic noise.
func (s *Service) deriveHumidity(history []models.WeatherObservation, location string, day int, temp float64) float64 {
	values := trailingValues(history, func(o models.WeatherObservation) float64 { return o.Humidity })
	base := mean(values) + linearSlope(values)*float64(day)
	h := base + humidityTempCorrelation*(temp-25) + boundedNoise(location, "humidity", day)*humidityNoiseAmplitude
	return clamp(h, 0, 100)
}

// deriveRainfall projects rainfall the same way with a slightly positive
// temperature correlation, floored at zero.
func (s *Service) deriveRainfall(history []models.WeatherObservation, location string, day int, temp float64) float64 {
	values := trailingValues(history, func(o models.WeatherObservation) float64 { return o.Rainfall })
	base := mean(values) + linearSlope(values)*float64(day)
	r := base + rainfallTempCorrelation*(temp-25) + boundedNoise(location, "rainfall", day)*rainfallNoiseAmplitude
	if r < 0 {
		return 0
	}
	return r
}

// trailingValues extracts the last trailingWindow values of one field.
func trailingValues(history []models.WeatherObservation, field func(models.WeatherObservation) float64) []float64 {
	start := 0
	if len(history) > trailingWindow {
		start = len(history) - trailingWindow
	}
	out := make([]float64, 0, trailingWindow)
	for _, obs := range history[start:] {
		out = append(out, field(obs))
	}
	return out
}

// boundedNoise returns a deterministic value in [-1, 1] keyed by location,
// parameter and day. Keeping it off the models' RNG streams makes repeated
// identical predictions byte-for-byte reproducible.
func boundedNoise(location, param string, day int) float64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%d", location, param, day)
	return float64(h.Sum64()%2001)/1000.0 - 1.0
}

// linearSlope fits a least-squares line through the values at unit spacing
// and returns its slope. Fewer than two values yield zero.
func linearSlope(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
