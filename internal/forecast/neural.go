package forecast

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agrisight/prediction-service/internal/models"
)

const (
	neuralWindow      = 5
	neuralMaxEpochs   = 100
	neuralTargetMSE   = 0.001
	neuralLearnRate   = 0.01
	defaultHiddenSize = 12
)

// NeuralModel is a small feed-forward regressor giving a secondary point
// forecast. One hidden ReLU layer, linear output, trained by per-sample
// stochastic gradient descent. It exists to diversify the ensemble, not to be
// state of the art.
type NeuralModel struct {
	window int
	hidden int

	mu      sync.RWMutex
	w1      [][]float64 // hidden x input
	b1      []float64
	w2      []float64 // output weights over hidden
	b2      float64
	mean    float64
	std     float64
	trained bool

	rng    *rand.Rand
	logger *zap.Logger
}

// NewNeuralModel creates an untrained regressor. hidden <= 0 uses the default
// width. The seed fixes weight initialization and sample shuffling.
func NewNeuralModel(hidden int, seed int64, logger *zap.Logger) *NeuralModel {
	if hidden <= 0 {
		hidden = defaultHiddenSize
	}
	return &NeuralModel{
		window: neuralWindow,
		hidden: hidden,
		rng:    rand.New(rand.NewSource(seed)),
		logger: logger,
	}
}

// MinTrainLength returns the minimum series length Train accepts.
func (m *NeuralModel) MinTrainLength() int {
	return m.window + 10
}

// Trained reports whether the model has been fit.
func (m *NeuralModel) Trained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trained
}

// inputSize is the window plus the three augmented features: a pairwise
// interaction of the two most recent values, the square of the latest value,
// and a trailing moving average.
func (m *NeuralModel) inputSize() int {
	return m.window + 3
}

// features builds the normalized input vector for the window ending at the
// last element of recent (which must have length >= window).
func (m *NeuralModel) features(recent []float64, mean, std float64) []float64 {
	w := m.window
	x := make([]float64, m.inputSize())
	tail := recent[len(recent)-w:]
	for i, v := range tail {
		x[i] = (v - mean) / std
	}
	x[w] = x[w-1] * x[w-2]   // pairwise interaction
	x[w+1] = x[w-1] * x[w-1] // squared term
	var ma float64
	for _, v := range x[:w] {
		ma += v
	}
	x[w+2] = ma / float64(w) // trailing moving average
	return x
}

// Train fits the network on sliding windows of the series. Early-stops when
// the epoch MSE drops below the target or the epoch budget is exhausted.
func (m *NeuralModel) Train(series []float64) (models.TrainingSummary, error) {
	start := time.Now()
	if len(series) < m.MinTrainLength() {
		return models.TrainingSummary{}, fmt.Errorf(
			"%w: neural training needs %d points, got %d", ErrInsufficientData, m.MinTrainLength(), len(series))
	}

	mean, std := meanStd(series)
	if std < 1e-9 {
		std = 1
	}

	in := m.inputSize()
	// Variance-scaled initialization keeps early activations in range.
	w1 := make([][]float64, m.hidden)
	b1 := make([]float64, m.hidden)
	scale1 := math.Sqrt(2.0 / float64(in))
	for h := range w1 {
		w1[h] = make([]float64, in)
		for j := range w1[h] {
			w1[h][j] = m.rng.NormFloat64() * scale1
		}
	}
	w2 := make([]float64, m.hidden)
	scale2 := math.Sqrt(2.0 / float64(m.hidden))
	for h := range w2 {
		w2[h] = m.rng.NormFloat64() * scale2
	}
	var b2 float64

	type sample struct {
		x []float64
		y float64
	}
	var samples []sample
	for i := m.window; i < len(series); i++ {
		samples = append(samples, sample{
			x: m.features(series[:i], mean, std),
			y: (series[i] - mean) / std,
		})
	}

	hiddenOut := make([]float64, m.hidden)
	var epoch int
	var mse float64
	for epoch = 0; epoch < neuralMaxEpochs; epoch++ {
		m.rng.Shuffle(len(samples), func(i, j int) { samples[i], samples[j] = samples[j], samples[i] })
		var sse float64
		for _, s := range samples {
			// Forward.
			for h := 0; h < m.hidden; h++ {
				var z float64
				for j, xv := range s.x {
					z += w1[h][j] * xv
				}
				z += b1[h]
				if z < 0 {
					z = 0
				}
				hiddenOut[h] = z
			}
			var out float64
			for h := 0; h < m.hidden; h++ {
				out += w2[h] * hiddenOut[h]
			}
			out += b2

			errOut := out - s.y
			sse += errOut * errOut

			// Backward, per-sample update.
			for h := 0; h < m.hidden; h++ {
				gradW2 := errOut * hiddenOut[h]
				if hiddenOut[h] > 0 {
					gradH := errOut * w2[h]
					for j, xv := range s.x {
						w1[h][j] -= neuralLearnRate * gradH * xv
					}
					b1[h] -= neuralLearnRate * gradH
				}
				w2[h] -= neuralLearnRate * gradW2
			}
			b2 -= neuralLearnRate * errOut
		}
		mse = sse / float64(len(samples))
		if mse < neuralTargetMSE {
			break
		}
	}

	m.mu.Lock()
	m.w1, m.b1, m.w2, m.b2 = w1, b1, w2, b2
	m.mean, m.std = mean, std
	m.trained = true
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.Debug("neural model trained",
			zap.Int("samples", len(samples)), zap.Int("epochs", epoch+1), zap.Float64("mse", mse))
	}
	return models.TrainingSummary{
		Model:      "neural",
		Samples:    len(samples),
		Epochs:     epoch + 1,
		FinalLoss:  mse,
		Duration:   time.Since(start),
		FinishedAt: time.Now(),
	}, nil
}

// PredictNext returns the single-step forecast following the series.
func (m *NeuralModel) PredictNext(series []float64) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.trained {
		return 0, fmt.Errorf("%w: neural model", ErrModelNotInitialized)
	}
	if len(series) < m.window {
		return 0, fmt.Errorf(
			"%w: neural forecast needs %d points, got %d", ErrInsufficientData, m.window, len(series))
	}

	x := m.features(series, m.mean, m.std)
	var out float64
	for h := 0; h < m.hidden; h++ {
		var z float64
		for j, xv := range x {
			z += m.w1[h][j] * xv
		}
		z += m.b1[h]
		if z > 0 {
			out += m.w2[h] * z
		}
	}
	out += m.b2
	return out*m.std + m.mean, nil
}

// meanStd returns the sample mean and standard deviation.
func meanStd(series []float64) (float64, float64) {
	var sum float64
	for _, v := range series {
		sum += v
	}
	mean := sum / float64(len(series))
	var sq float64
	for _, v := range series {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(series)))
}
