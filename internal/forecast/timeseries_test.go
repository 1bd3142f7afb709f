package forecast

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"go.uber.org/zap"
)

// syntheticSeries builds a reproducible series around a base value with a
// mild trend and seeded noise.
func syntheticSeries(n int, base, trend, noise float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = base + trend*float64(i) + (rng.Float64()*2-1)*noise
	}
	return out
}

// TestTimeSeriesModel_TrainInsufficientData verifies that histories shorter
// than p+d+q+10 are rejected with ErrInsufficientData and no partial fit.
func TestTimeSeriesModel_TrainInsufficientData(t *testing.T) {
	m := NewTimeSeriesModel(2, 1, 1, 1, zap.NewNop())

	short := syntheticSeries(m.MinTrainLength()-1, 25, 0, 1, 1)
	if _, err := m.Train(short); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("Train() error = %v, want ErrInsufficientData", err)
	}
	if m.Trained() {
		t.Error("model should not be trained after rejected history")
	}
}

// TestTimeSeriesModel_ForecastBeforeTrain verifies the lifecycle guard.
func TestTimeSeriesModel_ForecastBeforeTrain(t *testing.T) {
	m := NewTimeSeriesModel(2, 1, 1, 1, zap.NewNop())
	if _, err := m.Forecast(syntheticSeries(20, 25, 0, 1, 1), 5); !errors.Is(err, ErrModelNotInitialized) {
		t.Fatalf("Forecast() error = %v, want ErrModelNotInitialized", err)
	}
}

// TestTimeSeriesModel_TrainAndForecast verifies that a trained model returns
// the requested number of steps and stays near the series level for a
// stationary input.
func TestTimeSeriesModel_TrainAndForecast(t *testing.T) {
	m := NewTimeSeriesModel(2, 1, 1, 7, zap.NewNop())
	series := syntheticSeries(60, 25, 0, 2, 7)

	summary, err := m.Train(series)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if summary.Samples != 60 {
		t.Errorf("summary.Samples = %d, want 60", summary.Samples)
	}
	if !m.Trained() {
		t.Fatal("model should report trained")
	}

	got, err := m.Forecast(series, 7)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if len(got) != 7 {
		t.Fatalf("Forecast() returned %d steps, want 7", len(got))
	}
	for i, v := range got {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("Forecast()[%d] = %v, want finite", i, v)
		}
		if v < 0 || v > 50 {
			t.Errorf("Forecast()[%d] = %.2f, implausible for a ~25°C series", i, v)
		}
	}
}

// TestTimeSeriesModel_ForecastDeterministic verifies that two consecutive
// forecasts with no intervening train are identical: the prediction path must
// not consume randomness.
func TestTimeSeriesModel_ForecastDeterministic(t *testing.T) {
	m := NewTimeSeriesModel(2, 1, 1, 3, zap.NewNop())
	series := syntheticSeries(40, 22, 0.1, 1.5, 3)
	if _, err := m.Train(series); err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	first, err := m.Forecast(series, 7)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	second, err := m.Forecast(series, 7)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("Forecast() not deterministic at step %d: %v vs %v", i, first[i], second[i])
		}
	}
}

// TestTimeSeriesModel_DegenerateRegressionFallsBack verifies that a constant
// series (singular design matrix after differencing) trains with the default
// coefficients instead of failing the run.
func TestTimeSeriesModel_DegenerateRegressionFallsBack(t *testing.T) {
	m := NewTimeSeriesModel(2, 1, 1, 5, zap.NewNop())
	series := make([]float64, 30)
	for i := range series {
		series[i] = 20.0
	}

	if _, err := m.Train(series); err != nil {
		t.Fatalf("Train() on constant series error = %v, want fallback to defaults", err)
	}
	got, err := m.Forecast(series, 3)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	for i, v := range got {
		if math.Abs(v-20.0) > 1e-6 {
			t.Errorf("Forecast()[%d] = %v, want 20 for a constant series", i, v)
		}
	}
}

// TestDifferenceUndifference verifies the integration round-trip used by the
// forecast recursion.
func TestDifferenceUndifference(t *testing.T) {
	series := []float64{1, 3, 6, 10, 15}

	diffed := difference(series, 1)
	want := []float64{2, 3, 4, 5}
	for i := range want {
		if diffed[i] != want[i] {
			t.Fatalf("difference()[%d] = %v, want %v", i, diffed[i], want[i])
		}
	}

	// Undifferencing forecast steps of the same increments continues the series.
	got := undifference(series, []float64{6, 7}, 1)
	if got[0] != 21 || got[1] != 28 {
		t.Errorf("undifference() = %v, want [21 28]", got)
	}
}
