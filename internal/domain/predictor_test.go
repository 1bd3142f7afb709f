package domain

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/agrisight/prediction-service/internal/models"
)

// testHistory builds n days of a temperate climate.
func testHistory(n int) []models.WeatherObservation {
	rng := rand.New(rand.NewSource(7))
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	out := make([]models.WeatherObservation, n)
	for i := range out {
		out[i] = models.WeatherObservation{
			Location:    "ames",
			Temperature: 24 + (rng.Float64()*2-1)*4,
			Humidity:    60 + (rng.Float64()*2-1)*10,
			Rainfall:    rng.Float64() * 5,
			Pressure:    1013,
			RecordedAt:  base.AddDate(0, 0, i),
		}
	}
	return out
}

func testInput() Input {
	return Input{
		Location: "ames",
		Current: models.WeatherObservation{
			Location:    "ames",
			Temperature: 25,
			Humidity:    60,
			Rainfall:    2,
			Pressure:    1015,
			RecordedAt:  time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC),
		},
		Forecast: []models.WeatherPrediction{
			{Day: 1, Temperature: 26, Humidity: 58, Rainfall: 1, Confidence: 0.9},
			{Day: 2, Temperature: 27, Humidity: 55, Rainfall: 0, Confidence: 0.85},
			{Day: 3, Temperature: 25, Humidity: 60, Rainfall: 3, Confidence: 0.8},
		},
		SoilMoisture: UnknownMoisture,
	}
}

// allPredictors builds one of each domain predictor.
func allPredictors() []Predictor {
	now := func() time.Time { return time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC) }
	return []Predictor{
		NewCropPredictor(zap.NewNop()),
		NewSoilPredictor(zap.NewNop()),
		NewIrrigationPredictor(now, zap.NewNop()),
		NewEnergyPredictor(zap.NewNop()),
	}
}

// TestPredictors_Contract verifies the shared lifecycle contract: usable from
// construction at reduced confidence, trainable on sufficient history with a
// confidence boost, and rejecting short histories with ErrInsufficientData.
func TestPredictors_Contract(t *testing.T) {
	ctx := context.Background()
	for _, p := range allPredictors() {
		t.Run(p.Name(), func(t *testing.T) {
			if !p.Ready() {
				t.Fatal("predictor should be ready from construction")
			}

			before, err := p.Predict(ctx, testInput())
			if err != nil {
				t.Fatalf("Predict() before training error = %v", err)
			}
			if before.Confidence() != 0.7 {
				t.Errorf("untrained confidence = %v, want 0.7", before.Confidence())
			}
			if before.Score() < 0 || before.Score() > 100 {
				t.Errorf("score = %v, want within [0,100]", before.Score())
			}

			if _, err := p.Train(ctx, testHistory(3)); !errors.Is(err, models.ErrInsufficientData) {
				t.Errorf("Train() with 3 points error = %v, want ErrInsufficientData", err)
			}

			summary, err := p.Train(ctx, testHistory(30))
			if err != nil {
				t.Fatalf("Train() error = %v", err)
			}
			if summary.Samples != 30 {
				t.Errorf("summary.Samples = %d, want 30", summary.Samples)
			}

			after, err := p.Predict(ctx, testInput())
			if err != nil {
				t.Fatalf("Predict() after training error = %v", err)
			}
			if after.Confidence() != 0.85 {
				t.Errorf("trained confidence = %v, want 0.85", after.Confidence())
			}
		})
	}
}

// TestCropPredictor_FavorsMatchingClimate verifies a warm wet profile beats a
// cool dry one under warm wet conditions.
func TestCropPredictor_FavorsMatchingClimate(t *testing.T) {
	p := NewCropPredictor(zap.NewNop())
	in := testInput()
	in.Current.Temperature = 28
	in.Current.Rainfall = 8
	for i := range in.Forecast {
		in.Forecast[i].Temperature = 28
		in.Forecast[i].Rainfall = 8
	}

	res, err := p.Predict(context.Background(), in)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	crop := res.(CropResult)
	if crop.Suitability["rice"] <= crop.Suitability["barley"] {
		t.Errorf("rice suitability %.1f should beat barley %.1f in warm wet conditions",
			crop.Suitability["rice"], crop.Suitability["barley"])
	}
	if crop.BestCrop == "" {
		t.Error("BestCrop should be set")
	}
}

// TestIrrigationPredictor_MoistureDependency verifies the soil-moisture
// dependency input: dry soil raises the need index relative to the default,
// and the default constant is substituted when the input is unknown.
func TestIrrigationPredictor_MoistureDependency(t *testing.T) {
	now := func() time.Time { return time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC) }
	p := NewIrrigationPredictor(now, zap.NewNop())
	ctx := context.Background()

	in := testInput()
	for i := range in.Forecast {
		in.Forecast[i].Rainfall = 0
	}

	in.SoilMoisture = UnknownMoisture
	unknown, err := p.Predict(ctx, in)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	in.SoilMoisture = DefaultMoisture
	defaulted, err := p.Predict(ctx, in)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if unknown.(IrrigationResult).NeedIndex != defaulted.(IrrigationResult).NeedIndex {
		t.Error("unknown moisture should behave exactly like the default constant")
	}

	in.SoilMoisture = 15
	dry, err := p.Predict(ctx, in)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	in.SoilMoisture = 80
	wet, err := p.Predict(ctx, in)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if dry.(IrrigationResult).NeedIndex <= wet.(IrrigationResult).NeedIndex {
		t.Errorf("dry soil need %.1f should exceed wet soil need %.1f",
			dry.(IrrigationResult).NeedIndex, wet.(IrrigationResult).NeedIndex)
	}
}

// TestEnergyPredictor_RainCutsSolar verifies rainy forecasts reduce the solar
// potential.
func TestEnergyPredictor_RainCutsSolar(t *testing.T) {
	p := NewEnergyPredictor(zap.NewNop())
	ctx := context.Background()

	sunny := testInput()
	for i := range sunny.Forecast {
		sunny.Forecast[i].Rainfall = 0
	}
	rainy := testInput()
	for i := range rainy.Forecast {
		rainy.Forecast[i].Rainfall = 10
	}

	sunnyRes, err := p.Predict(ctx, sunny)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	rainyRes, err := p.Predict(ctx, rainy)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if rainyRes.(EnergyResult).SolarPotential >= sunnyRes.(EnergyResult).SolarPotential {
		t.Errorf("rainy solar %.1f should be below sunny solar %.1f",
			rainyRes.(EnergyResult).SolarPotential, sunnyRes.(EnergyResult).SolarPotential)
	}
}

// TestSoilPredictor_RainRaisesMoisture verifies the water balance direction.
func TestSoilPredictor_RainRaisesMoisture(t *testing.T) {
	p := NewSoilPredictor(zap.NewNop())
	ctx := context.Background()

	dry := testInput()
	dry.Current.Rainfall = 0
	for i := range dry.Forecast {
		dry.Forecast[i].Rainfall = 0
	}
	wet := testInput()
	wet.Current.Rainfall = 10
	for i := range wet.Forecast {
		wet.Forecast[i].Rainfall = 10
	}

	dryRes, err := p.Predict(ctx, dry)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	wetRes, err := p.Predict(ctx, wet)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if wetRes.(SoilResult).Moisture <= dryRes.(SoilResult).Moisture {
		t.Errorf("wet moisture %.1f should exceed dry moisture %.1f",
			wetRes.(SoilResult).Moisture, dryRes.(SoilResult).Moisture)
	}
}
