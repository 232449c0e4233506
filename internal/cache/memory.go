// internal/cache/memory.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is an in-process Cache used when no Redis URL is configured
// and by the unit tests. Entries are lazily expired on read.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// GetOrCompute loads key into dest, fetching and storing on a miss.
func (c *MemoryCache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, dest interface{}, fetch FetchFunc) error {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.now().Before(entry.expiresAt) {
		return json.Unmarshal(entry.value, dest)
	}

	value, err := fetch(ctx)
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value for %s: %w", key, err)
	}

	c.mu.Lock()
	c.entries[key] = memoryEntry{value: encoded, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()

	return json.Unmarshal(encoded, dest)
}

// Invalidate removes the given keys.
func (c *MemoryCache) Invalidate(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}

// InvalidateOwner removes every key under the owner's prefix.
func (c *MemoryCache) InvalidateOwner(ctx context.Context, ownerID int64) error {
	prefix := OwnerKeyPrefix(ownerID)
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

// Close releases the cache contents.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
	return nil
}
