// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache on a Redis backend. Redis read errors are
// treated as misses (logged, then fetched from the store) so a degraded
// cache never turns into a read outage.
type RedisCache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisCache connects to Redis and returns a RedisCache.
func NewRedisCache(redisURL string, logger *slog.Logger) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{
		client: client,
		logger: logger.With("component", "cache"),
	}, nil
}

// GetOrCompute loads key into dest, fetching and storing on a miss.
func (c *RedisCache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, dest interface{}, fetch FetchFunc) error {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		if err := json.Unmarshal(raw, dest); err == nil {
			return nil
		}
		// Undecodable entry: drop it and recompute.
		c.client.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("cache read failed, falling through to store", "key", key, "error", err)
	}

	value, err := fetch(ctx)
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value for %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, encoded, ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}

	return json.Unmarshal(encoded, dest)
}

// Invalidate removes the given keys.
func (c *RedisCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cache keys: %w", err)
	}
	return nil
}

// InvalidateOwner removes every key under the owner's prefix via SCAN.
func (c *RedisCache) InvalidateOwner(ctx context.Context, ownerID int64) error {
	pattern := OwnerKeyPrefix(ownerID) + "*"
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys for owner %d: %w", ownerID, err)
	}
	return c.Invalidate(ctx, keys...)
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
