package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// CacheStore holds serialized values with an absolute expiry.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CacheStats are simple counters for cache behavior.
type CacheStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Sets      int64 `json:"sets"`
	Deletes   int64 `json:"deletes"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
}

// InMemoryCache is a size bounded map based CacheStore. Entries are
// replaced wholesale on Set and never mutated in place.
type InMemoryCache struct {
	entries map[string]cacheEntry
	mu      sync.RWMutex
	maxSize int
	now     Clock

	hits      int64
	misses    int64
	sets      int64
	deletes   int64
	evictions int64
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

var _ CacheStore = (*InMemoryCache)(nil)

// NewInMemoryCache creates a cache holding at most maxSize entries, 1000
// when maxSize is not positive.
func NewInMemoryCache(maxSize int) *InMemoryCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &InMemoryCache{
		entries: make(map[string]cacheEntry),
		maxSize: maxSize,
		now:     time.Now,
	}
}

func (c *InMemoryCache) WithClock(clock Clock) *InMemoryCache {
	c.now = normalizeClock(clock)
	return c
}

// Get returns a copy of the stored value, ErrCacheMiss when the key is
// absent or expired.
func (c *InMemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return nil, ErrCacheMiss
	}

	if !c.now().Before(entry.expiresAt) {
		atomic.AddInt64(&c.misses, 1)
		c.mu.Lock()
		if current, ok := c.entries[key]; ok && current.expiresAt.Equal(entry.expiresAt) {
			delete(c.entries, key)
			atomic.AddInt64(&c.evictions, 1)
		}
		c.mu.Unlock()
		return nil, ErrCacheMiss
	}

	atomic.AddInt64(&c.hits, 1)
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

// Set stores value until now + ttl, replacing any prior entry.
func (c *InMemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictLocked()
	}

	c.entries[key] = cacheEntry{
		value:     stored,
		expiresAt: c.now().Add(ttl),
	}
	atomic.AddInt64(&c.sets, 1)
	return nil
}

func (c *InMemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, existed := c.entries[key]; existed {
		delete(c.entries, key)
		atomic.AddInt64(&c.deletes, 1)
	}
	return nil
}

// evictLocked drops expired entries, or the entry closest to expiry when
// none has expired. Caller holds the write lock.
func (c *InMemoryCache) evictLocked() {
	now := c.now()
	var (
		oldestKey string
		oldestAt  time.Time
		dropped   bool
	)
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			atomic.AddInt64(&c.evictions, 1)
			dropped = true
			continue
		}
		if oldestKey == "" || e.expiresAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.expiresAt
		}
	}
	if !dropped && oldestKey != "" {
		delete(c.entries, oldestKey)
		atomic.AddInt64(&c.evictions, 1)
	}
}

func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *InMemoryCache) Stats() CacheStats {
	return CacheStats{
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Sets:      atomic.LoadInt64(&c.sets),
		Deletes:   atomic.LoadInt64(&c.deletes),
		Evictions: atomic.LoadInt64(&c.evictions),
		Size:      c.Len(),
	}
}
