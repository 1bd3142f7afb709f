package domain

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agrisight/prediction-service/internal/models"
)

// cropProfile holds a crop's preferred growing conditions.
type cropProfile struct {
	name          string
	idealTemp     float64
	tempTolerance float64
	idealRain     float64 // mm/day
	rainTolerance float64
}

// defaultCropProfiles cover the advisory catalogue. Suitability is scored per
// profile against the averaged current-plus-forecast conditions.
var defaultCropProfiles = []cropProfile{
	{name: "corn", idealTemp: 25, tempTolerance: 8, idealRain: 4, rainTolerance: 4},
	{name: "wheat", idealTemp: 18, tempTolerance: 7, idealRain: 2.5, rainTolerance: 3},
	{name: "soybean", idealTemp: 26, tempTolerance: 6, idealRain: 4.5, rainTolerance: 4},
	{name: "rice", idealTemp: 28, tempTolerance: 5, idealRain: 8, rainTolerance: 6},
	{name: "barley", idealTemp: 15, tempTolerance: 6, idealRain: 2, rainTolerance: 2.5},
}

// minDomainTrainPoints is the shared history minimum the domain predictors
// require for a baseline refresh.
const minDomainTrainPoints = 7

// CropPredictor scores crop suitability against forecast conditions.
// Usable with default baselines from construction; Train tightens the
// baselines to the location's climate and raises confidence.
type CropPredictor struct {
	mu           sync.RWMutex
	climateTemp  float64
	climateRain  float64
	trained      bool
	logger       *zap.Logger
}

// NewCropPredictor returns a predictor with temperate defaults.
func NewCropPredictor(logger *zap.Logger) *CropPredictor {
	return &CropPredictor{climateTemp: 22, climateRain: 3, logger: logger}
}

func (p *CropPredictor) Name() string { return "crop_model" }

// Ready is always true: the predictor operates on defaults before training.
func (p *CropPredictor) Ready() bool { return true }

// Train refreshes the climate baselines from history.
func (p *CropPredictor) Train(ctx context.Context, history []models.WeatherObservation) (models.TrainingSummary, error) {
	start := time.Now()
	if len(history) < minDomainTrainPoints {
		return models.TrainingSummary{}, fmt.Errorf(
			"%w: crop training needs %d observations, got %d", models.ErrInsufficientData, minDomainTrainPoints, len(history))
	}

	var tempSum, rainSum float64
	for _, obs := range history {
		tempSum += obs.Temperature
		rainSum += obs.Rainfall
	}

	p.mu.Lock()
	p.climateTemp = tempSum / float64(len(history))
	p.climateRain = rainSum / float64(len(history))
	p.trained = true
	p.mu.Unlock()

	return models.TrainingSummary{
		Model:      p.Name(),
		Samples:    len(history),
		Duration:   time.Since(start),
		FinishedAt: time.Now(),
	}, nil
}

// Predict scores each crop profile against the blended current and forecast
// conditions and reports the best fit.
func (p *CropPredictor) Predict(ctx context.Context, in Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	climateTemp, climateRain, trained := p.climateTemp, p.climateRain, p.trained
	p.mu.RUnlock()

	temp, rain := blendConditions(in, climateTemp, climateRain)

	suitability := make(map[string]float64, len(defaultCropProfiles))
	best := ""
	bestScore := -1.0
	for _, c := range defaultCropProfiles {
		tempFit := gaussianFit(temp, c.idealTemp, c.tempTolerance)
		rainFit := gaussianFit(rain, c.idealRain, c.rainTolerance)
		s := round2(100 * (0.6*tempFit + 0.4*rainFit))
		suitability[c.name] = s
		if s > bestScore {
			best, bestScore = c.name, s
		}
	}

	confidence := 0.7
	if trained {
		confidence = 0.85
	}

	advice := "Conditions near seasonal norms; follow the standard planting calendar."
	switch {
	case temp > 32:
		advice = "Heat stress likely; favor heat-tolerant varieties and delay transplanting."
	case temp < 10:
		advice = "Sustained cold expected; hold planting until the forecast warms."
	case rain > 8:
		advice = "Heavy rainfall expected; ensure drainage before planting."
	}

	return CropResult{models.CropAnalysis{
		Suitability:    suitability,
		BestCrop:       best,
		PlantingAdvice: advice,
		Score:          bestScore,
		Confidence:     confidence,
	}}, nil
}

// blendConditions averages the current observation with the forecast days,
// falling back to the trained climate baselines when both are empty.
func blendConditions(in Input, climateTemp, climateRain float64) (float64, float64) {
	var tempSum, rainSum float64
	var n int
	if !in.Current.RecordedAt.IsZero() {
		tempSum += in.Current.Temperature
		rainSum += in.Current.Rainfall
		n++
	}
	for _, day := range in.Forecast {
		tempSum += day.Temperature
		rainSum += day.Rainfall
		n++
	}
	if n == 0 {
		return climateTemp, climateRain
	}
	return tempSum / float64(n), rainSum / float64(n)
}

// gaussianFit maps the distance from ideal into (0,1].
func gaussianFit(value, ideal, tolerance float64) float64 {
	d := (value - ideal) / tolerance
	return math.Exp(-0.5 * d * d)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
