// Package cache provides a Redis read-through cache for the hot dashboard
// reads (risk summary, contact funnel). Without a configured Redis the cache
// degrades to a no-op and every read goes to the store.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL keeps dashboard reads fresh enough while absorbing polling.
const DefaultTTL = 30 * time.Second

// Cache wraps a Redis client. A nil Cache or a Cache with no client is safe
// to use; all operations become no-ops.
type Cache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New connects to Redis using a redis:// URL. Connection failure is not
// fatal: the returned cache is disabled and a warning is logged.
func New(redisURL string, logger *slog.Logger) *Cache {
	c := &Cache{ttl: DefaultTTL, logger: logger}
	if redisURL == "" {
		return c
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid REDIS_URL, caching disabled", "error", err)
		return c
	}

	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, caching disabled", "error", err)
		return c
	}

	logger.Info("redis cache enabled", "addr", opts.Addr)
	c.rdb = rdb
	return c
}

// Enabled reports whether a Redis backend is connected.
func (c *Cache) Enabled() bool {
	return c != nil && c.rdb != nil
}

// GetJSON loads a cached value into dest. Returns false on miss, disabled
// cache, or decode failure.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) bool {
	if !c.Enabled() {
		return false
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn("cache entry corrupt, dropping", "key", key, "error", err)
		c.rdb.Del(ctx, key)
		return false
	}
	return true
}

// SetJSON stores a value under key with the cache TTL. Failures are logged
// and ignored.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) {
	if !c.Enabled() {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// Invalidate removes keys. Failures are logged and ignored.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if !c.Enabled() || len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("cache invalidation failed", "keys", keys, "error", err)
	}
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Close()
}

// SummaryKey is the cache key for a user's risk summary.
func SummaryKey(userID string) string {
	return "proptor:summary:" + userID
}

// FunnelKey is the cache key for a user's contact funnel counts.
func FunnelKey(userID string) string {
	return "proptor:funnel:" + userID
}
