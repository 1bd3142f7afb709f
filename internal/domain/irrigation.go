package domain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agrisight/prediction-service/internal/models"
)

// IrrigationPredictor schedules irrigation from the soil-moisture input and
// the forecast water balance. Its moisture input comes from the soil model's
// output when that analysis ran; otherwise the default constant is used.
type IrrigationPredictor struct {
	mu            sync.RWMutex
	targetMoisture float64
	trained        bool
	clockNow       func() time.Time
	logger         *zap.Logger
}

// NewIrrigationPredictor returns a predictor targeting 55% field capacity.
// now provides the schedule anchor; nil uses wall-clock time.
func NewIrrigationPredictor(now func() time.Time, logger *zap.Logger) *IrrigationPredictor {
	if now == nil {
		now = time.Now
	}
	return &IrrigationPredictor{targetMoisture: 55, clockNow: now, logger: logger}
}

func (p *IrrigationPredictor) Name() string { return "irrigation_model" }

func (p *IrrigationPredictor) Ready() bool { return true }

// Train adjusts the moisture target for hot climates, where deeper watering
// compensates for evaporation.
func (p *IrrigationPredictor) Train(ctx context.Context, history []models.WeatherObservation) (models.TrainingSummary, error) {
	start := time.Now()
	if len(history) < minDomainTrainPoints {
		return models.TrainingSummary{}, fmt.Errorf(
			"%w: irrigation training needs %d observations, got %d", models.ErrInsufficientData, minDomainTrainPoints, len(history))
	}

	var tempSum float64
	for _, obs := range history {
		tempSum += obs.Temperature
	}
	avgTemp := tempSum / float64(len(history))

	p.mu.Lock()
	p.targetMoisture = clampRange(55+(avgTemp-22)*0.5, 45, 70)
	p.trained = true
	p.mu.Unlock()

	return models.TrainingSummary{
		Model:      p.Name(),
		Samples:    len(history),
		Duration:   time.Since(start),
		FinishedAt: time.Now(),
	}, nil
}

// Predict derives the irrigation need from the moisture deficit net of
// expected rainfall over the next three forecast days.
func (p *IrrigationPredictor) Predict(ctx context.Context, in Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	target, trained := p.targetMoisture, p.trained
	p.mu.RUnlock()

	moisture := in.SoilMoisture
	if moisture == UnknownMoisture || moisture < 0 {
		moisture = DefaultMoisture
	}

	var expectedRain float64
	for i, day := range in.Forecast {
		if i >= 3 {
			break
		}
		expectedRain += day.Rainfall
	}

	deficit := target - moisture - expectedRain*2
	need := clampRange(deficit*2.5, 0, 100)

	// 1mm of applied water per acre is ~4,046 liters.
	liters := round2(deficit * 4046 / 10)
	if liters < 0 {
		liters = 0
	}
	hours := round2(need / 20)

	next := p.clockNow().Add(6 * time.Hour)
	if need < 20 {
		next = p.clockNow().Add(48 * time.Hour)
	}

	score := clampRange(100-need, 0, 100)
	confidence := 0.7
	if trained {
		confidence = 0.85
	}

	return IrrigationResult{models.IrrigationAnalysis{
		NeedIndex:       round2(need),
		ScheduleHours:   hours,
		WaterLitersAcre: liters,
		NextIrrigation:  next,
		Score:           round2(score),
		Confidence:      confidence,
	}}, nil
}
