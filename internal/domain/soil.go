package domain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agrisight/prediction-service/internal/models"
)

// SoilPredictor estimates soil moisture and condition from recent weather.
// Moisture tracks rainfall input against temperature-driven evaporation.
type SoilPredictor struct {
	mu           sync.RWMutex
	baseMoisture float64
	basePH       float64
	trained      bool
	logger       *zap.Logger
}

// NewSoilPredictor returns a predictor with loam defaults.
func NewSoilPredictor(logger *zap.Logger) *SoilPredictor {
	return &SoilPredictor{baseMoisture: 45, basePH: 6.5, logger: logger}
}

func (p *SoilPredictor) Name() string { return "soil_model" }

func (p *SoilPredictor) Ready() bool { return true }

// Train anchors the moisture baseline to the location's rainfall pattern.
func (p *SoilPredictor) Train(ctx context.Context, history []models.WeatherObservation) (models.TrainingSummary, error) {
	start := time.Now()
	if len(history) < minDomainTrainPoints {
		return models.TrainingSummary{}, fmt.Errorf(
			"%w: soil training needs %d observations, got %d", models.ErrInsufficientData, minDomainTrainPoints, len(history))
	}

	var rainSum float64
	for _, obs := range history {
		rainSum += obs.Rainfall
	}
	avgRain := rainSum / float64(len(history))

	p.mu.Lock()
	// 3mm/day of rain keeps a loam profile near 50% of field capacity.
	p.baseMoisture = clampRange(35+avgRain*5, 10, 90)
	p.trained = true
	p.mu.Unlock()

	return models.TrainingSummary{
		Model:      p.Name(),
		Samples:    len(history),
		Duration:   time.Since(start),
		FinishedAt: time.Now(),
	}, nil
}

// Predict estimates the near-term soil state from the baseline, the current
// observation, and the forecast's net water balance.
func (p *SoilPredictor) Predict(ctx context.Context, in Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	baseMoisture, basePH, trained := p.baseMoisture, p.basePH, p.trained
	p.mu.RUnlock()

	moisture := baseMoisture
	if !in.Current.RecordedAt.IsZero() {
		moisture += in.Current.Rainfall * 2
		moisture -= evaporation(in.Current.Temperature)
	}
	for _, day := range in.Forecast {
		moisture += day.Rainfall * 0.5
		moisture -= evaporation(day.Temperature) * 0.5
	}
	moisture = clampRange(moisture, 0, 100)

	// Erosion risk rises with forecast rainfall hitting dry ground.
	var forecastRain float64
	for _, day := range in.Forecast {
		forecastRain += day.Rainfall
	}
	erosion := clampRange(forecastRain*3-moisture*0.3, 0, 100)

	organic := clampRange(2.5+moisture*0.02, 0, 10)

	score := round2(100 - absDiff(moisture, 55)*1.5 - erosion*0.2)
	score = clampRange(score, 0, 100)

	confidence := 0.7
	if trained {
		confidence = 0.85
	}

	return SoilResult{models.SoilAnalysis{
		Moisture:      round2(moisture),
		PH:            basePH,
		OrganicMatter: round2(organic),
		ErosionRisk:   round2(erosion),
		Score:         score,
		Confidence:    confidence,
	}}, nil
}

// evaporation is a coarse daily moisture loss estimate from temperature.
func evaporation(temp float64) float64 {
	if temp <= 0 {
		return 0
	}
	return temp * 0.3
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
