// internal/cache/cache.go
package cache

import (
	"context"
	"fmt"
	"time"
)

// FetchFunc computes the value on a cache miss. A fetch error is returned
// to the caller and is never cached; the cache must not mask store
// failures by memoizing them.
type FetchFunc func(ctx context.Context) (interface{}, error)

// Cache is a short-TTL read-through cache for per-owner aggregates. It is
// not authoritative: it may be cleared entirely at any time with no
// correctness impact beyond a cold start.
type Cache interface {
	// GetOrCompute loads key into dest, calling fetch and storing the
	// result for ttl on a miss. Values round-trip through JSON, so dest
	// must be a pointer to a JSON-decodable type.
	GetOrCompute(ctx context.Context, key string, ttl time.Duration, dest interface{}, fetch FetchFunc) error
	// Invalidate removes the given keys.
	Invalidate(ctx context.Context, keys ...string) error
	// InvalidateOwner removes every key derived from the owner. Write
	// paths call this before reporting success, so the next read can never
	// observe a value computed before the write.
	InvalidateOwner(ctx context.Context, ownerID int64) error
	// Close releases the underlying resources.
	Close() error
}

// OwnerKeyPrefix is the namespace all of an owner's cache keys share, so
// InvalidateOwner can clear them as a group.
func OwnerKeyPrefix(ownerID int64) string {
	return fmt.Sprintf("owner:%d:", ownerID)
}

// EarningsKey is the cache key for an owner's projected-earnings aggregate.
func EarningsKey(ownerID int64) string {
	return OwnerKeyPrefix(ownerID) + "earnings"
}
