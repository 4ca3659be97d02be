package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gridcast/backend/services/energy-service/internal/forecast"
)

// DefaultTTL applies when the configured TTL is not positive.
const DefaultTTL = 10 * time.Minute

// ForecastCache stores forecasts keyed by station and the timestamp of the seeding reading.
type ForecastCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewForecastCache returns redis-backed cache.
func NewForecastCache(client *redis.Client, ttl time.Duration) *ForecastCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ForecastCache{client: client, ttl: ttl}
}

// Key is the cache key of a forecast seeded by the reading at last.
func Key(station string, last time.Time) string {
	return fmt.Sprintf("gridcast:forecast:%s:%d", station, last.Unix())
}

// Get returns the cached forecast; ok is false on a miss.
func (c *ForecastCache) Get(ctx context.Context, station string, last time.Time) ([]forecast.Point, bool, error) {
	raw, err := c.client.Get(ctx, Key(station, last)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get forecast: %w", err)
	}
	var points []forecast.Point
	if err := json.Unmarshal(raw, &points); err != nil {
		return nil, false, fmt.Errorf("cache: decode forecast: %w", err)
	}
	return points, true, nil
}

// Save caches a forecast.
func (c *ForecastCache) Save(ctx context.Context, station string, last time.Time, points []forecast.Point) error {
	data, err := json.Marshal(points)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, Key(station, last), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: save forecast: %w", err)
	}
	return nil
}
