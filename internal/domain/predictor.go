// Package domain holds the per-domain advisory predictors (crop, soil,
// irrigation, energy). They share one lifecycle contract; the orchestrator
// owns the fixed set and treats each through the contract alone.
package domain

import (
	"context"

	"github.com/agrisight/prediction-service/internal/models"
)

// Input carries everything a domain predictor may consume for one run.
// SoilMoisture is the irrigation predictor's dependency input: the soil
// model's output when that analysis ran, otherwise UnknownMoisture.
type Input struct {
	Location     string
	Current      models.WeatherObservation
	Forecast     []models.WeatherPrediction
	SoilMoisture float64
}

// UnknownMoisture marks the soil-moisture input as unavailable; predictors
// that need it substitute the default.
const UnknownMoisture = -1

// DefaultMoisture is the constant substituted when no soil analysis supplied
// a moisture value.
const DefaultMoisture = 50.0

// Result is the tagged per-domain output. Concrete types are the analysis
// structs in models; the orchestrator merges them with an explicit typed
// switch rather than a loose payload map.
type Result interface {
	Domain() string
	Score() float64
	Confidence() float64
}

// Predictor is the lifecycle contract every domain model implements.
// Train refines the model's baselines from history; Predict must work with
// default baselines before any training, at reduced confidence.
type Predictor interface {
	Name() string
	Ready() bool
	Train(ctx context.Context, history []models.WeatherObservation) (models.TrainingSummary, error)
	Predict(ctx context.Context, in Input) (Result, error)
}

// CropResult wraps models.CropAnalysis as a Result.
type CropResult struct{ models.CropAnalysis }

func (r CropResult) Domain() string      { return "crop" }
func (r CropResult) Score() float64      { return r.CropAnalysis.Score }
func (r CropResult) Confidence() float64 { return r.CropAnalysis.Confidence }

// SoilResult wraps models.SoilAnalysis as a Result.
type SoilResult struct{ models.SoilAnalysis }

func (r SoilResult) Domain() string      { return "soil" }
func (r SoilResult) Score() float64      { return r.SoilAnalysis.Score }
func (r SoilResult) Confidence() float64 { return r.SoilAnalysis.Confidence }

// IrrigationResult wraps models.IrrigationAnalysis as a Result.
type IrrigationResult struct{ models.IrrigationAnalysis }

func (r IrrigationResult) Domain() string      { return "irrigation" }
func (r IrrigationResult) Score() float64      { return r.IrrigationAnalysis.Score }
func (r IrrigationResult) Confidence() float64 { return r.IrrigationAnalysis.Confidence }

// EnergyResult wraps models.EnergyAnalysis as a Result.
type EnergyResult struct{ models.EnergyAnalysis }

func (r EnergyResult) Domain() string      { return "energy" }
func (r EnergyResult) Score() float64      { return r.EnergyAnalysis.Score }
func (r EnergyResult) Confidence() float64 { return r.EnergyAnalysis.Confidence }
