package alerts

import (
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/agrisight/prediction-service/internal/models"
)

// forecastScanDays is how many forecast days the forecast-driven scan covers.
const forecastScanDays = 3

// minProbability filters out marginal alerts; only entries strictly above it
// are returned.
const minProbability = 0.3

// currentObservationConfidence is attached to alerts derived from a live
// observation; forecast-driven alerts inherit the forecast day's confidence.
const currentObservationConfidence = 0.9

// Thresholds holds the severity cut-points for one hazard against its driving
// variable. For FLOOD and HEAT a reading at or above a cut crosses that tier;
// for COLD and DROUGHT a reading at or below the cut crosses it. The DROUGHT
// scale is inverted on purpose: a lower drought index means a more severe
// drought, and downstream consumers are calibrated to that polarity.
type Thresholds struct {
	Low      float64
	Medium   float64
	High     float64
	Critical float64
}

// tierProbabilities are the fixed per-tier alert probabilities.
var tierProbabilities = map[models.Severity]float64{
	models.SeverityLow:      0.4,
	models.SeverityMedium:   0.6,
	models.SeverityHigh:     0.8,
	models.SeverityCritical: 0.95,
}

// severityDurationMultiplier scales a hazard's base duration by tier.
var severityDurationMultiplier = map[models.Severity]float64{
	models.SeverityLow:      0.5,
	models.SeverityMedium:   1,
	models.SeverityHigh:     1.5,
	models.SeverityCritical: 2,
}

// Predictor evaluates current and forecast conditions against per-hazard
// severity thresholds. The threshold and action tables are owned by the
// instance, not shared process-wide.
type Predictor struct {
	thresholds    map[models.HazardType]Thresholds
	baseDuration  map[models.HazardType]float64 // hours
	actions       map[models.HazardType]map[models.Severity][]string
	clock         clockwork.Clock
	logger        *zap.Logger
}

// NewPredictor builds a predictor with the default calibrated tables.
func NewPredictor(clock clockwork.Clock, logger *zap.Logger) *Predictor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Predictor{
		thresholds: map[models.HazardType]Thresholds{
			models.HazardFlood:   {Low: 50, Medium: 100, High: 200, Critical: 300},
			models.HazardHeat:    {Low: 30, Medium: 35, High: 40, Critical: 45},
			models.HazardCold:    {Low: 5, Medium: 0, High: -5, Critical: -10},
			models.HazardDrought: {Low: 30, Medium: 20, High: 10, Critical: 5},
		},
		baseDuration: map[models.HazardType]float64{
			models.HazardFlood:   24,
			models.HazardHeat:    48,
			models.HazardCold:    36,
			models.HazardDrought: 168,
		},
		actions: defaultActions(),
		clock:   clock,
		logger:  logger,
	}
}

// Predict evaluates a single observation against every hazard table and
// returns the alerts whose probability clears the minimum.
func (p *Predictor) Predict(obs models.WeatherObservation) []models.AlertPrediction {
	now := p.clock.Now()
	var out []models.AlertPrediction
	for _, hazard := range []models.HazardType{
		models.HazardFlood, models.HazardHeat, models.HazardCold, models.HazardDrought,
	} {
		value := p.drivingValue(hazard, obs)
		severity, crossed := p.severityFor(hazard, value)
		if !crossed {
			continue
		}
		alert := p.buildAlert(hazard, severity, now, currentObservationConfidence)
		if alert.Probability > minProbability {
			out = append(out, alert)
		}
	}
	return out
}

// PredictFromForecast repeats the same evaluation against each of the next
// forecastScanDays forecast days, concatenating results without cross-day
// deduplication: a three-day heat wave yields three alerts.
func (p *Predictor) PredictFromForecast(days []models.WeatherPrediction) []models.AlertPrediction {
	var out []models.AlertPrediction
	for i, day := range days {
		if i >= forecastScanDays {
			break
		}
		obs := models.WeatherObservation{
			Temperature: day.Temperature,
			Humidity:    day.Humidity,
			Rainfall:    day.Rainfall,
			RecordedAt:  day.Date,
		}
		for _, hazard := range []models.HazardType{
			models.HazardFlood, models.HazardHeat, models.HazardCold, models.HazardDrought,
		} {
			value := p.drivingValue(hazard, obs)
			severity, crossed := p.severityFor(hazard, value)
			if !crossed {
				continue
			}
			alert := p.buildAlert(hazard, severity, day.Date, day.Confidence)
			if alert.Probability > minProbability {
				out = append(out, alert)
			}
		}
	}
	return out
}

// drivingValue extracts the variable a hazard's thresholds are calibrated to.
func (p *Predictor) drivingValue(hazard models.HazardType, obs models.WeatherObservation) float64 {
	switch hazard {
	case models.HazardFlood:
		return obs.Rainfall
	case models.HazardHeat, models.HazardCold:
		return obs.Temperature
	case models.HazardDrought:
		return DroughtIndex(obs.Rainfall, obs.Humidity)
	default:
		return 0
	}
}

// DroughtIndex is the composite deficit scalar driving the DROUGHT hazard:
// the average of the rainfall and humidity deficits from 100. Lower values
// mean a more severe drought.
func DroughtIndex(rainfall, humidity float64) float64 {
	return ((100 - rainfall) + (100 - humidity)) / 2
}

// severityFor returns the highest tier the value crosses. FLOOD and HEAT
// cross upward (>= cut), COLD and DROUGHT cross downward (<= cut).
func (p *Predictor) severityFor(hazard models.HazardType, value float64) (models.Severity, bool) {
	th := p.thresholds[hazard]
	switch hazard {
	case models.HazardFlood, models.HazardHeat:
		switch {
		case value >= th.Critical:
			return models.SeverityCritical, true
		case value >= th.High:
			return models.SeverityHigh, true
		case value >= th.Medium:
			return models.SeverityMedium, true
		case value >= th.Low:
			return models.SeverityLow, true
		}
	case models.HazardCold, models.HazardDrought:
		switch {
		case value <= th.Critical:
			return models.SeverityCritical, true
		case value <= th.High:
			return models.SeverityHigh, true
		case value <= th.Medium:
			return models.SeverityMedium, true
		case value <= th.Low:
			return models.SeverityLow, true
		}
	}
	return "", false
}

// buildAlert assembles the alert for a crossed tier.
func (p *Predictor) buildAlert(hazard models.HazardType, severity models.Severity, expected time.Time, confidence float64) models.AlertPrediction {
	return models.AlertPrediction{
		HazardType:         hazard,
		Severity:           severity,
		Probability:        tierProbabilities[severity],
		ExpectedTime:       expected,
		DurationHours:      p.baseDuration[hazard] * severityDurationMultiplier[severity],
		RecommendedActions: p.actions[hazard][severity],
		Confidence:         confidence,
	}
}

// defaultActions is the canned recommendation table keyed by hazard and tier.
func defaultActions() map[models.HazardType]map[models.Severity][]string {
	return map[models.HazardType]map[models.Severity][]string{
		models.HazardFlood: {
			models.SeverityLow:      {"Check field drainage channels", "Monitor rainfall updates"},
			models.SeverityMedium:   {"Clear drainage channels", "Move equipment to higher ground"},
			models.SeverityHigh:     {"Delay planting in low-lying fields", "Protect stored grain from water damage"},
			models.SeverityCritical: {"Evacuate livestock from flood plains", "Shut off field irrigation systems", "Follow local emergency guidance"},
		},
		models.HazardHeat: {
			models.SeverityLow:      {"Increase irrigation frequency slightly", "Monitor crop stress"},
			models.SeverityMedium:   {"Irrigate in early morning or evening", "Provide shade and water for livestock"},
			models.SeverityHigh:     {"Suspend midday field work", "Apply mulch to retain soil moisture"},
			models.SeverityCritical: {"Halt outdoor work during peak hours", "Emergency irrigation for vulnerable crops", "Check livestock hourly"},
		},
		models.HazardCold: {
			models.SeverityLow:      {"Cover sensitive seedlings overnight"},
			models.SeverityMedium:   {"Deploy frost cloth on vulnerable crops", "Shelter young livestock"},
			models.SeverityHigh:     {"Run frost protection irrigation before dawn", "Heat greenhouses"},
			models.SeverityCritical: {"Harvest what can be saved immediately", "Move all livestock indoors", "Drain exposed water lines"},
		},
		models.HazardDrought: {
			models.SeverityLow:      {"Review irrigation scheduling", "Reduce non-essential water use"},
			models.SeverityMedium:   {"Prioritize water for high-value crops", "Mulch to reduce evaporation"},
			models.SeverityHigh:     {"Switch to deficit irrigation", "Consider drought-tolerant cover crops"},
			models.SeverityCritical: {"Ration remaining water reserves", "Cull or relocate livestock if feed fails", "Apply for drought assistance programs"},
		},
	}
}
