// Package durcache keeps tutorial video durations warm: a redis cache in
// front of the videos table, refreshed by scraping the hosting platform's
// watch pages.
package durcache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/soundpost/campaigner/internal/metrics"
)

// Cache stores scraped durations in redis keyed by video id.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCache creates a redis-backed duration cache.
func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

func (c *Cache) key(videoID string) string {
	return fmt.Sprintf("videodur:%s", videoID)
}

// Get returns the cached duration in seconds, or ok=false on a miss.
func (c *Cache) Get(ctx context.Context, videoID string) (int, bool, error) {
	val, err := c.rdb.Get(ctx, c.key(videoID)).Result()
	if err == redis.Nil {
		metrics.IncDurationCacheMiss()
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read duration cache: %w", err)
	}

	seconds, err := strconv.Atoi(val)
	if err != nil {
		// Treat a corrupt entry as a miss.
		metrics.IncDurationCacheMiss()
		return 0, false, nil
	}
	metrics.IncDurationCacheHit()
	return seconds, true, nil
}

// Set stores a duration with the configured TTL.
func (c *Cache) Set(ctx context.Context, videoID string, seconds int) error {
	if err := c.rdb.Set(ctx, c.key(videoID), strconv.Itoa(seconds), c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write duration cache: %w", err)
	}
	return nil
}
