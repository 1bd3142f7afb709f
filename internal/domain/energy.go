package domain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agrisight/prediction-service/internal/models"
)

// EnergyPredictor estimates on-farm renewable generation potential and the
// savings it implies for the operating-cost forecast.
type EnergyPredictor struct {
	mu           sync.RWMutex
	sunnyBaseline float64 // fraction of clear-sky output the site usually sees
	trained       bool
	logger        *zap.Logger
}

// NewEnergyPredictor returns a predictor assuming a moderately sunny site.
func NewEnergyPredictor(logger *zap.Logger) *EnergyPredictor {
	return &EnergyPredictor{sunnyBaseline: 0.6, logger: logger}
}

func (p *EnergyPredictor) Name() string { return "energy_model" }

func (p *EnergyPredictor) Ready() bool { return true }

// Train estimates how sunny the site is from the rainfall record: frequent
// rain implies cloud cover and a lower solar baseline.
func (p *EnergyPredictor) Train(ctx context.Context, history []models.WeatherObservation) (models.TrainingSummary, error) {
	start := time.Now()
	if len(history) < minDomainTrainPoints {
		return models.TrainingSummary{}, fmt.Errorf(
			"%w: energy training needs %d observations, got %d", models.ErrInsufficientData, minDomainTrainPoints, len(history))
	}

	var rainyDays int
	for _, obs := range history {
		if obs.Rainfall > 1 {
			rainyDays++
		}
	}
	rainyFraction := float64(rainyDays) / float64(len(history))

	p.mu.Lock()
	p.sunnyBaseline = clampRange(0.85-rainyFraction*0.5, 0.2, 0.85)
	p.trained = true
	p.mu.Unlock()

	return models.TrainingSummary{
		Model:      p.Name(),
		Samples:    len(history),
		Duration:   time.Since(start),
		FinishedAt: time.Now(),
	}, nil
}

// Predict scores solar and wind potential over the forecast window.
func (p *EnergyPredictor) Predict(ctx context.Context, in Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	baseline, trained := p.sunnyBaseline, p.trained
	p.mu.RUnlock()

	solar := baseline * 100
	var n int
	for _, day := range in.Forecast {
		// Rain days cut solar output; mild days are the panel sweet spot.
		daySolar := baseline * 100
		if day.Rainfall > 5 {
			daySolar *= 0.4
		} else if day.Rainfall > 1 {
			daySolar *= 0.7
		}
		if day.Temperature > 35 {
			daySolar *= 0.9
		}
		solar += daySolar
		n++
	}
	if n > 0 {
		solar /= float64(n + 1)
	}
	solar = clampRange(solar, 0, 100)

	// Pressure swings proxy for wind without a wind series.
	wind := 30.0
	if !in.Current.RecordedAt.IsZero() {
		wind = clampRange(30+absDiff(in.Current.Pressure, 1013)*2, 0, 100)
	}

	saving := round2(clampRange(solar*0.25+wind*0.1, 0, 40))
	score := round2(clampRange(solar*0.7+wind*0.3, 0, 100))

	confidence := 0.7
	if trained {
		confidence = 0.85
	}

	return EnergyResult{models.EnergyAnalysis{
		SolarPotential:  round2(solar),
		WindPotential:   round2(wind),
		PredictedSaving: saving,
		Score:           score,
		Confidence:      confidence,
	}}, nil
}
