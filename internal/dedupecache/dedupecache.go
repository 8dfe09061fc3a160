// Package dedupecache provides a non-authoritative, Redis-backed
// negative-dedupe cache: a best-effort "have we seen this dedupe key
// recently" check the ingest handler can consult before hitting the
// database. The UNIQUE constraint on dedupe_key remains the sole
// correctness source — a cache miss or an unreachable Redis never
// blocks ingestion, it only loses the optimization.
package dedupecache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/wpphooks/ingestcore/internal/telemetry"
)

const keyPrefix = "wpphooks:dedupe:"

// Client is the subset of redis.Cmdable the cache needs, kept narrow
// so tests can supply a mock instead of a live Redis connection.
type Client interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Cache is the Redis-backed negative dedupe check.
type Cache struct {
	client Client
	ttl    time.Duration
}

// New constructs a Cache against the given Redis client. ttl bounds
// how long a dedupe key is remembered; it should comfortably exceed
// the worst-case gap between a retried delivery and the first.
func New(client Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Seen reports whether dedupeKey was recorded recently. Any Redis
// error is treated as "not seen" — the caller falls through to the
// authoritative database insert.
func (c *Cache) Seen(ctx context.Context, dedupeKey string) bool {
	logger := telemetry.GetContextualLogger(ctx).WithField("component", "dedupecache")
	n, err := c.client.Exists(ctx, keyPrefix+dedupeKey).Result()
	if err != nil {
		logger.WithError(err).Warn("dedupecache_check_failed")
		return false
	}
	return n > 0
}

// Record marks dedupeKey as seen. Errors are logged and swallowed:
// a failed cache write only costs a future redundant DB round-trip.
func (c *Cache) Record(ctx context.Context, dedupeKey string) {
	logger := telemetry.GetContextualLogger(ctx).WithField("component", "dedupecache")
	if err := c.client.Set(ctx, keyPrefix+dedupeKey, "1", c.ttl).Err(); err != nil {
		logger.WithError(err).Warn("dedupecache_record_failed")
	}
}
