package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agrisight/prediction-service/internal/models"
)

const (
	obsKeyPrefix    = "obs:"
	locationsSetKey = "obs:locations"
)

// RedisStore persists observation history in Redis: one list per location
// holding JSON observations in recorded order, plus a set of known locations.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func obsKey(location string) string {
	return obsKeyPrefix + location
}

// PutObservation appends the observation to the location's list.
func (s *RedisStore) PutObservation(ctx context.Context, obs models.WeatherObservation) error {
	payload, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("marshal observation: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, obsKey(obs.Location), payload)
	pipe.SAdd(ctx, locationsSetKey, obs.Location)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store observation: %w", err)
	}
	return nil
}

// RecentObservations returns up to n most recent observations, oldest first.
func (s *RedisStore) RecentObservations(ctx context.Context, location string, n int) ([]models.WeatherObservation, error) {
	start := int64(0)
	if n > 0 {
		start = int64(-n)
	}
	raw, err := s.client.LRange(ctx, obsKey(location), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read observations: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrUnknownLocation
	}
	return decodeObservations(raw)
}

// ObservationsSince returns observations recorded at or after the cutoff,
// oldest first. The full list is scanned; retention windows are short enough
// that per-location lists stay small.
func (s *RedisStore) ObservationsSince(ctx context.Context, location string, since time.Time) ([]models.WeatherObservation, error) {
	raw, err := s.client.LRange(ctx, obsKey(location), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read observations: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrUnknownLocation
	}
	all, err := decodeObservations(raw)
	if err != nil {
		return nil, err
	}
	out := make([]models.WeatherObservation, 0, len(all))
	for _, obs := range all {
		if !obs.RecordedAt.Before(since) {
			out = append(out, obs)
		}
	}
	return out, nil
}

// Locations lists every location with at least one observation.
func (s *RedisStore) Locations(ctx context.Context) ([]string, error) {
	locs, err := s.client.SMembers(ctx, locationsSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return locs, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeObservations(raw []string) ([]models.WeatherObservation, error) {
	out := make([]models.WeatherObservation, 0, len(raw))
	for _, item := range raw {
		var obs models.WeatherObservation
		if err := json.Unmarshal([]byte(item), &obs); err != nil {
			return nil, fmt.Errorf("decode observation: %w", err)
		}
		out = append(out, obs)
	}
	return out, nil
}
