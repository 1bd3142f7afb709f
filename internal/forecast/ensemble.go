package forecast

// Combiner merges per-day scalar forecasts from the base models.
//
// Strategies: "weighted" takes the dot product of values and weights (weights
// sum to 1, default favors the time-series model), "average" is the plain
// mean. When a base model is unavailable (for example its training failed and
// the ensemble continues with the remaining model) its slot is excluded and
// weights are renormalized over the models that are present.
type Combiner struct {
	Strategy string
	Weights  []float64
}

// NewCombiner builds a combiner; an unknown strategy or mismatched weights
// fall back to weighted [0.6, 0.4].
func NewCombiner(strategy string, weights []float64) Combiner {
	if strategy != "average" && strategy != "weighted" {
		strategy = "weighted"
	}
	if strategy == "weighted" && len(weights) == 0 {
		weights = []float64{0.6, 0.4}
	}
	return Combiner{Strategy: strategy, Weights: weights}
}

// Combine merges the values whose available flag is set. Returns 0 when
// nothing is available; callers guard against that before calling.
func (c Combiner) Combine(values []float64, available []bool) float64 {
	switch c.Strategy {
	case "average":
		var sum float64
		var n int
		for i, v := range values {
			if available[i] {
				sum += v
				n++
			}
		}
		if n == 0 {
			return 0
		}
		return sum / float64(n)
	default:
		var sum, wsum float64
		for i, v := range values {
			if !available[i] {
				continue
			}
			w := 1.0
			if i < len(c.Weights) {
				w = c.Weights[i]
			}
			sum += v * w
			wsum += w
		}
		if wsum == 0 {
			return 0
		}
		return sum / wsum
	}
}
