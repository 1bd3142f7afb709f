package orchestrator

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestPerformanceTracker_RunningAverages(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC))
	tr := NewPerformanceTracker(clock)

	tr.Record("crop_model", 100*time.Millisecond, 0.8, true)
	tr.Record("crop_model", 300*time.Millisecond, 0.6, true)

	recs := tr.Snapshot()
	if len(recs) != 1 {
		t.Fatalf("len = %d, want 1", len(recs))
	}
	rec := recs[0]
	if rec.TotalCalls != 2 || rec.SuccessfulCalls != 2 {
		t.Errorf("calls = %d/%d, want 2/2", rec.SuccessfulCalls, rec.TotalCalls)
	}
	if rec.AverageResponseTime != 200 {
		t.Errorf("averageResponseTime = %v, want 200", rec.AverageResponseTime)
	}
	if diff := rec.AverageConfidence - 0.7; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("averageConfidence = %v, want 0.7", rec.AverageConfidence)
	}
	if !rec.LastUpdated.Equal(clock.Now()) {
		t.Errorf("lastUpdated = %v, want %v", rec.LastUpdated, clock.Now())
	}
}

func TestPerformanceTracker_FailureCountsZeroConfidence(t *testing.T) {
	tr := NewPerformanceTracker(nil)

	tr.Record("soil_model", 50*time.Millisecond, 0.8, true)
	// The confidence argument of a failed call is ignored.
	tr.Record("soil_model", 50*time.Millisecond, 0.9, false)

	rec := tr.Snapshot()[0]
	if rec.TotalCalls != 2 || rec.SuccessfulCalls != 1 {
		t.Errorf("calls = %d/%d, want 1/2", rec.SuccessfulCalls, rec.TotalCalls)
	}
	if diff := rec.AverageConfidence - 0.4; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("averageConfidence = %v, want 0.4", rec.AverageConfidence)
	}
}

func TestPerformanceTracker_SnapshotSortedAndDetached(t *testing.T) {
	tr := NewPerformanceTracker(nil)
	tr.Record("soil_model", time.Millisecond, 0.5, true)
	tr.Record("crop_model", time.Millisecond, 0.5, true)

	recs := tr.Snapshot()
	if recs[0].Model != "crop_model" || recs[1].Model != "soil_model" {
		t.Errorf("snapshot order = %v, want sorted by model", []string{recs[0].Model, recs[1].Model})
	}

	recs[0].TotalCalls = 999
	if tr.Snapshot()[0].TotalCalls == 999 {
		t.Error("snapshot should be a copy, not a live reference")
	}
}
