package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a short-TTL read-through cache for availability responses.
// Schedule writes bump a per-provider version that is baked into every
// key, so stale schedule data ages out immediately; bookings made in the
// meantime are only as stale as the TTL. Every failure degrades to a
// miss — the cache can never fail an availability request.
type Cache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCache(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{rdb: rdb, ttl: ttl, logger: logger}
}

func (c *Cache) Key(ctx context.Context, providerID, date string, locationID *string, consultationType string) string {
	version, err := c.rdb.Get(ctx, versionKey(providerID)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("availability cache version read failed", "err", err)
			return ""
		}
		version = "0"
	}
	loc := ""
	if locationID != nil {
		loc = *locationID
	}
	return fmt.Sprintf("avail:%s:%s:%s:%s:%s", providerID, version, date, loc, consultationType)
}

func (c *Cache) Get(ctx context.Context, key string) ([]WindowAvailability, bool) {
	if key == "" {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("availability cache read failed", "err", err)
		}
		return nil, false
	}
	var out []WindowAvailability
	if err := json.Unmarshal(raw, &out); err != nil {
		c.logger.Warn("availability cache entry corrupt", "err", err)
		return nil, false
	}
	return out, true
}

func (c *Cache) Set(ctx context.Context, key string, val []WindowAvailability) {
	if key == "" {
		return
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("availability cache write failed", "err", err)
	}
}

// Invalidate bumps the provider's cache version after a schedule write.
func (c *Cache) Invalidate(ctx context.Context, providerID string) {
	if err := c.rdb.Incr(ctx, versionKey(providerID)).Err(); err != nil {
		c.logger.Warn("availability cache invalidation failed", "err", err, "provider_id", providerID)
	}
}

func versionKey(providerID string) string {
	return "avail:version:" + providerID
}
