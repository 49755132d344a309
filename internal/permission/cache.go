package permission

import (
	"context"
	"sync"
	"time"

	"consoleauth/internal/platform/clock"
)

// DefaultTTL applies when Set is called with a non-positive ttl.
const DefaultTTL = 300 * time.Second

// Cache memoizes authorization answers under caller-chosen keys. Keys are not
// derived from the check they answer: two checks sharing a key share an
// answer. The session manager clears the cache on every login and logout.
type Cache[V any] struct {
	clock clock.Clock

	mu      sync.Mutex
	entries map[string]entry[V]
}

type entry[V any] struct {
	value  V
	stored time.Time
	ttl    time.Duration
}

func (e entry[V]) expired(now time.Time) bool {
	return now.Sub(e.stored) > e.ttl
}

// CacheOption configures a Cache.
type CacheOption func(*cacheConfig)

type cacheConfig struct {
	clock clock.Clock
}

// WithCacheClock injects the time source used for expiry.
func WithCacheClock(c clock.Clock) CacheOption {
	return func(cfg *cacheConfig) {
		if c != nil {
			cfg.clock = c
		}
	}
}

func NewCache[V any](opts ...CacheOption) *Cache[V] {
	cfg := cacheConfig{clock: clock.Real()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Cache[V]{clock: cfg.clock, entries: make(map[string]entry[V])}
}

// Set stores value for ttl. A non-positive ttl means DefaultTTL.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, stored: c.clock.Now(), ttl: ttl}
}

// Get returns the value if present and fresh. Stale entries are evicted.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if e.expired(c.clock.Now()) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Cleanup sweeps expired entries and returns how many were removed.
func (c *Cache[V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	removed := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len counts entries, including stale ones not yet swept.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// StartJanitor runs Cleanup every interval until ctx is done.
func (c *Cache[V]) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := c.clock.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Cleanup()
			}
		}
	}()
}
