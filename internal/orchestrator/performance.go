package orchestrator

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/agrisight/prediction-service/internal/models"
)

// PerformanceTracker accumulates per-model call statistics. Records are
// created on first call and updated forever; nothing is deleted. Foreground
// requests and the scheduler both write it.
type PerformanceTracker struct {
	mu      sync.Mutex
	records map[string]*models.ModelPerformanceRecord
	clock   clockwork.Clock
}

// NewPerformanceTracker creates an empty tracker. A nil clock uses real time.
func NewPerformanceTracker(clock clockwork.Clock) *PerformanceTracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PerformanceTracker{
		records: make(map[string]*models.ModelPerformanceRecord),
		clock:   clock,
	}
}

// Record folds one call outcome into the model's running averages. Failed
// calls contribute zero confidence.
func (t *PerformanceTracker) Record(model string, duration time.Duration, confidence float64, ok bool) {
	if !ok {
		confidence = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, found := t.records[model]
	if !found {
		rec = &models.ModelPerformanceRecord{Model: model}
		t.records[model] = rec
	}

	n := float64(rec.TotalCalls)
	rec.TotalCalls++
	if ok {
		rec.SuccessfulCalls++
	}
	ms := float64(duration.Milliseconds())
	rec.AverageResponseTime = (rec.AverageResponseTime*n + ms) / (n + 1)
	rec.AverageConfidence = (rec.AverageConfidence*n + confidence) / (n + 1)
	rec.LastUpdated = t.clock.Now()
}

// Snapshot returns copies of every record, sorted by model name.
func (t *PerformanceTracker) Snapshot() []models.ModelPerformanceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.ModelPerformanceRecord, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out
}
