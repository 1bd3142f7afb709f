package predcache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/jonboulle/clockwork"

	"github.com/agrisight/prediction-service/internal/models"
)

const keyPrefix = "prediction:"

// MemcachedCache implements Cache on memcached. The whole record is stored as
// JSON; the validity deadline inside the record is authoritative, with the
// memcached item expiration set slightly past it as garbage collection.
type MemcachedCache struct {
	client *memcache.Client
	clock  clockwork.Clock
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and
// maxIdleConns configure the client; both use package defaults if zero.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int, clock clockwork.Clock) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemcachedCache{client: client, clock: clock}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedCache) key(locationKey, predictionType string) string {
	return keyPrefix + rowKey(locationKey, predictionType)
}

// Put upserts the record. The item expiration gets an hour of slack past the
// validity deadline so reads never see a row memcached dropped early.
func (c *MemcachedCache) Put(ctx context.Context, rec models.CachedPredictionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	expSec := int32(rec.ValidUntil.Sub(c.clock.Now()).Seconds()) + 3600
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 3600
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(rec.LocationKey, rec.PredictionType),
		Value:      raw,
		Expiration: expSec,
	})
}

// GetActive returns the row if present and its validity deadline has not
// passed. Returns false, nil on miss; false, err on backend failure.
func (c *MemcachedCache) GetActive(ctx context.Context, locationKey, predictionType string) (models.CachedPredictionRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.CachedPredictionRecord{}, false, err
	}
	item, err := c.client.Get(c.key(locationKey, predictionType))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return models.CachedPredictionRecord{}, false, nil
		}
		return models.CachedPredictionRecord{}, false, err
	}
	var rec models.CachedPredictionRecord
	if err := json.Unmarshal(item.Value, &rec); err != nil {
		return models.CachedPredictionRecord{}, false, err
	}
	if !rec.ValidUntil.After(c.clock.Now()) {
		return models.CachedPredictionRecord{}, false, nil
	}
	return rec, true, nil
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
