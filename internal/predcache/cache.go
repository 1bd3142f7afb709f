// Package predcache persists prediction results keyed by (locationKey,
// predictionType) with an explicit validity deadline. The cache is an
// optimization, never a source of truth: a write failure is logged by the
// caller and the response is still served from the live computation.
package predcache

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/agrisight/prediction-service/internal/models"
)

// Prediction types stored by the service.
const (
	TypeWeather  = "weather"
	TypeAlerts   = "alerts"
	TypeCrop     = "crop"
	TypeAnalysis = "analysis"
)

// Cache is the upsert-only prediction store. Put replaces any prior row for
// the same (locationKey, predictionType); GetActive returns a row only while
// its validity deadline has not passed. Stale rows are excluded by timestamp
// comparison, never actively purged.
type Cache interface {
	Put(ctx context.Context, rec models.CachedPredictionRecord) error
	GetActive(ctx context.Context, locationKey, predictionType string) (models.CachedPredictionRecord, bool, error)
}

// InMemoryCache implements Cache with a mutex-guarded map. Both foreground
// requests and the background scheduler write it; concurrent upsert is safe
// and last-writer-wins.
type InMemoryCache struct {
	mu    sync.RWMutex
	rows  map[string]models.CachedPredictionRecord
	clock clockwork.Clock
}

// NewInMemoryCache creates an empty in-memory cache. A nil clock uses real time.
func NewInMemoryCache(clock clockwork.Clock) *InMemoryCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &InMemoryCache{
		rows:  make(map[string]models.CachedPredictionRecord),
		clock: clock,
	}
}

func rowKey(locationKey, predictionType string) string {
	return locationKey + "|" + predictionType
}

// Put upserts the record.
func (c *InMemoryCache) Put(ctx context.Context, rec models.CachedPredictionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.rows[rowKey(rec.LocationKey, rec.PredictionType)] = rec
	c.mu.Unlock()
	return nil
}

// GetActive returns the row if present and still valid. Expired rows are left
// in place; the next Put for the key overwrites them.
func (c *InMemoryCache) GetActive(ctx context.Context, locationKey, predictionType string) (models.CachedPredictionRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.CachedPredictionRecord{}, false, err
	}
	c.mu.RLock()
	rec, ok := c.rows[rowKey(locationKey, predictionType)]
	c.mu.RUnlock()
	if !ok {
		return models.CachedPredictionRecord{}, false, nil
	}
	if !rec.ValidUntil.After(c.clock.Now()) {
		return models.CachedPredictionRecord{}, false, nil
	}
	return rec, true, nil
}
