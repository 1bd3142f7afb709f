package alerts

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/agrisight/prediction-service/internal/models"
)

func newTestPredictor() *Predictor {
	return NewPredictor(clockwork.NewFakeClockAt(time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)), zap.NewNop())
}

// calmObservation is below every hazard threshold.
func calmObservation() models.WeatherObservation {
	return models.WeatherObservation{
		Location:    "ames",
		Temperature: 22,
		Humidity:    60,
		Rainfall:    10,
		Pressure:    1013,
	}
}

func findAlert(alerts []models.AlertPrediction, hazard models.HazardType) (models.AlertPrediction, bool) {
	for _, a := range alerts {
		if a.HazardType == hazard {
			return a, true
		}
	}
	return models.AlertPrediction{}, false
}

// TestPredict_FloodExample verifies the calibration example: 250mm rainfall
// against cuts {50,100,200,300} is HIGH with probability 0.8.
func TestPredict_FloodExample(t *testing.T) {
	p := newTestPredictor()
	obs := calmObservation()
	obs.Rainfall = 250

	alert, ok := findAlert(p.Predict(obs), models.HazardFlood)
	if !ok {
		t.Fatal("Predict() returned no FLOOD alert for 250mm rainfall")
	}
	if alert.Severity != models.SeverityHigh {
		t.Errorf("severity = %s, want HIGH", alert.Severity)
	}
	if alert.Probability != 0.8 {
		t.Errorf("probability = %v, want 0.8", alert.Probability)
	}
	if alert.DurationHours != 24*1.5 {
		t.Errorf("durationHours = %v, want 36 (24h base x 1.5)", alert.DurationHours)
	}
	if len(alert.RecommendedActions) == 0 {
		t.Error("alert should carry recommended actions")
	}
}

// TestPredict_SeverityMonotonicity verifies that increasing the driving
// variable never decreases FLOOD/HEAT severity, and that decreasing the
// drought index never decreases DROUGHT severity.
func TestPredict_SeverityMonotonicity(t *testing.T) {
	p := newTestPredictor()

	prevRank := 0
	for rainfall := 0.0; rainfall <= 400; rainfall += 5 {
		obs := calmObservation()
		obs.Rainfall = rainfall
		rank := 0
		if alert, ok := findAlert(p.Predict(obs), models.HazardFlood); ok {
			rank = alert.Severity.Rank()
		}
		if rank < prevRank {
			t.Fatalf("FLOOD severity decreased at rainfall=%.0f", rainfall)
		}
		prevRank = rank
	}

	prevRank = 0
	for temp := 20.0; temp <= 50; temp += 0.5 {
		obs := calmObservation()
		obs.Temperature = temp
		rank := 0
		if alert, ok := findAlert(p.Predict(obs), models.HazardHeat); ok {
			rank = alert.Severity.Rank()
		}
		if rank < prevRank {
			t.Fatalf("HEAT severity decreased at temperature=%.1f", temp)
		}
		prevRank = rank
	}

	// Drought polarity is inverted: lower index means more severe. Raising
	// humidity with rainfall pinned at 100 walks the index down from 50 to 0,
	// and severity must never decrease along the way.
	prevRank = 0
	for humidity := 0.0; humidity <= 100; humidity += 1 {
		obs := calmObservation()
		obs.Rainfall = 100
		obs.Humidity = humidity
		rank := 0
		if alert, ok := findAlert(p.Predict(obs), models.HazardDrought); ok {
			rank = alert.Severity.Rank()
		}
		if rank < prevRank {
			t.Fatalf("DROUGHT severity decreased at index=%.1f", DroughtIndex(100, humidity))
		}
		prevRank = rank
	}
}

// TestDroughtIndex verifies the composite deficit formula.
func TestDroughtIndex(t *testing.T) {
	tests := []struct {
		rainfall, humidity, want float64
	}{
		{0, 0, 100},
		{100, 100, 0},
		{50, 70, 40},
		{2, 60, 69},
	}
	for _, tt := range tests {
		if got := DroughtIndex(tt.rainfall, tt.humidity); got != tt.want {
			t.Errorf("DroughtIndex(%v, %v) = %v, want %v", tt.rainfall, tt.humidity, got, tt.want)
		}
	}
}

// TestPredict_ColdInvertedCrossing verifies COLD crosses downward.
func TestPredict_ColdInvertedCrossing(t *testing.T) {
	p := newTestPredictor()

	tests := []struct {
		temp float64
		want models.Severity
	}{
		{4, models.SeverityLow},
		{-1, models.SeverityMedium},
		{-6, models.SeverityHigh},
		{-15, models.SeverityCritical},
	}
	for _, tt := range tests {
		obs := calmObservation()
		obs.Temperature = tt.temp
		alert, ok := findAlert(p.Predict(obs), models.HazardCold)
		if !ok {
			t.Fatalf("no COLD alert at %.0f°C", tt.temp)
		}
		if alert.Severity != tt.want {
			t.Errorf("COLD severity at %.0f°C = %s, want %s", tt.temp, alert.Severity, tt.want)
		}
	}
}

// TestPredict_CalmConditionsNoAlerts verifies that benign conditions stay
// below every threshold.
func TestPredict_CalmConditionsNoAlerts(t *testing.T) {
	p := newTestPredictor()
	if got := p.Predict(calmObservation()); len(got) != 0 {
		t.Errorf("Predict() = %v alerts for calm conditions, want none", got)
	}
}

// TestPredictFromForecast_ScansThreeDaysWithoutDedup verifies the forecast
// scan covers exactly the next 3 days and concatenates repeated hazards.
func TestPredictFromForecast_ScansThreeDaysWithoutDedup(t *testing.T) {
	p := newTestPredictor()
	base := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)

	days := make([]models.WeatherPrediction, 5)
	for i := range days {
		days[i] = models.WeatherPrediction{
			Day:         i + 1,
			Date:        base.AddDate(0, 0, i),
			Temperature: 41, // HIGH heat every day
			Humidity:    60,
			Rainfall:    10,
			Confidence:  0.9 - 0.05*float64(i),
		}
	}

	got := p.PredictFromForecast(days)
	var heat []models.AlertPrediction
	for _, a := range got {
		if a.HazardType == models.HazardHeat {
			heat = append(heat, a)
		}
	}
	if len(heat) != 3 {
		t.Fatalf("got %d HEAT alerts, want one per scanned day (3, no dedup)", len(heat))
	}
	for i, a := range heat {
		if !a.ExpectedTime.Equal(base.AddDate(0, 0, i)) {
			t.Errorf("alert %d expectedTime = %v, want forecast date %v", i, a.ExpectedTime, base.AddDate(0, 0, i))
		}
		if a.Confidence != days[i].Confidence {
			t.Errorf("alert %d confidence = %v, want forecast day confidence %v", i, a.Confidence, days[i].Confidence)
		}
	}
}
