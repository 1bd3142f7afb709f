package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agrisight/prediction-service/internal/models"
)

// MemoryStore keeps per-location observation slices behind one RWMutex.
// Suitable for development and tests; history is lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]models.WeatherObservation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]models.WeatherObservation)}
}

// PutObservation appends the observation, keeping the slice sorted by
// RecordedAt so out-of-order ingestion does not corrupt reads.
func (s *MemoryStore) PutObservation(ctx context.Context, obs models.WeatherObservation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	hist := append(s.data[obs.Location], obs)
	if n := len(hist); n > 1 && hist[n-1].RecordedAt.Before(hist[n-2].RecordedAt) {
		sort.SliceStable(hist, func(i, j int) bool {
			return hist[i].RecordedAt.Before(hist[j].RecordedAt)
		})
	}
	s.data[obs.Location] = hist
	return nil
}

// RecentObservations returns up to n most recent observations, oldest first.
func (s *MemoryStore) RecentObservations(ctx context.Context, location string, n int) ([]models.WeatherObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	hist, ok := s.data[location]
	if !ok {
		return nil, ErrUnknownLocation
	}
	if n <= 0 || n > len(hist) {
		n = len(hist)
	}
	out := make([]models.WeatherObservation, n)
	copy(out, hist[len(hist)-n:])
	return out, nil
}

// ObservationsSince returns observations recorded at or after the cutoff,
// oldest first.
func (s *MemoryStore) ObservationsSince(ctx context.Context, location string, since time.Time) ([]models.WeatherObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	hist, ok := s.data[location]
	if !ok {
		return nil, ErrUnknownLocation
	}
	// History is sorted; binary search for the first qualifying row.
	i := sort.Search(len(hist), func(i int) bool {
		return !hist[i].RecordedAt.Before(since)
	})
	out := make([]models.WeatherObservation, len(hist)-i)
	copy(out, hist[i:])
	return out, nil
}

// Locations lists locations with history, sorted for stable iteration order.
func (s *MemoryStore) Locations(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for loc := range s.data {
		out = append(out, loc)
	}
	sort.Strings(out)
	return out, nil
}
