// Package ttlcache provides a concurrency-safe in-memory key/value store
// with per-entry expiry. Reads expire entries lazily; a background sweeper
// bounds memory for keys that are never read again. The sweeper only frees
// memory; correctness never depends on it running.
package ttlcache

import (
	"sync"
	"time"
)

// DefaultSweepInterval is how often the background sweeper runs.
const DefaultSweepInterval = time.Minute

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a keyed store of values with absolute expiry. Safe for use from
// many request handlers simultaneously.
type Cache[V any] struct {
	mu         sync.Mutex
	entries    map[string]entry[V]
	defaultTTL time.Duration

	stopSweep chan struct{}
	sweepDone chan struct{}
	stopOnce  sync.Once
}

// New creates a cache whose entries expire after defaultTTL and starts the
// periodic sweeper. Callers must Stop the cache when done with it.
func New[V any](defaultTTL time.Duration) *Cache[V] {
	return NewWithSweepInterval[V](defaultTTL, DefaultSweepInterval)
}

// NewWithSweepInterval creates a cache with a custom sweep cadence.
func NewWithSweepInterval[V any](defaultTTL, sweepInterval time.Duration) *Cache[V] {
	c := &Cache[V]{
		entries:    make(map[string]entry[V]),
		defaultTTL: defaultTTL,
		stopSweep:  make(chan struct{}),
		sweepDone:  make(chan struct{}),
	}
	go c.sweepLoop(sweepInterval)
	return c
}

// Set stores value under key with the cache's default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetTTL(key, value, c.defaultTTL)
}

// SetTTL stores value under key with an override TTL.
func (c *Cache[V]) SetTTL(key string, value V, ttl time.Duration) {
	now := time.Now()
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, expiresAt: now.Add(ttl)}
	c.mu.Unlock()
}

// SetIfAbsent stores value under key only when no live entry exists, and
// reports whether the store happened. The check and insert are a single
// atomic step, which makes a check-then-insert guard built on top of it
// linearizable: of N concurrent callers with the same key, exactly one wins.
func (c *Cache[V]) SetIfAbsent(key string, value V) bool {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && now.Before(e.expiresAt) {
		return false
	}
	c.entries[key] = entry[V]{value: value, expiresAt: now.Add(c.defaultTTL)}
	return true
}

// Get returns the live value for key. Expired entries are deleted on the
// spot and reported as absent.
func (c *Cache[V]) Get(key string) (V, bool) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if now.After(e.expiresAt) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Has reports whether a live entry exists for key.
func (c *Cache[V]) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes key regardless of expiry.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len sweeps expired entries and returns the number of live ones.
func (c *Cache[V]) Len() int {
	c.Sweep()
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes all currently expired entries.
func (c *Cache[V]) Sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Clear removes every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry[V])
	c.mu.Unlock()
}

// Stop terminates the background sweeper deterministically. The cache
// remains usable afterwards; only periodic eviction stops. Safe to call
// more than once.
func (c *Cache[V]) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopSweep)
	})
	<-c.sweepDone
}

// Close implements io.Closer for lifecycle management.
func (c *Cache[V]) Close() error {
	c.Stop()
	return nil
}

func (c *Cache[V]) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(c.sweepDone)

	for {
		select {
		case <-c.stopSweep:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}
