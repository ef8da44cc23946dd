// Package cache provides a TTL'd stage-result cache scoped to a single
// orchestrator instance. Successful stage payloads are stored here so later
// runs can fall back to a cached result when a retryable failure exhausts
// its budget. The cache is an explicit value handed to the orchestrator at
// construction time, never a process-global.
package cache

import (
	"sync"
	"time"

	"github.com/nomis52/goinit/stage"
)

// DefaultTTL is how long entries live when no TTL is configured.
const DefaultTTL = 15 * time.Minute

type entry struct {
	payload   any
	storedAt  time.Time
	expiresAt time.Time
}

// Cache stores stage payloads with per-cache TTL and explicit invalidation.
type Cache struct {
	ttl   time.Duration
	clock func() time.Time

	mu      sync.Mutex
	entries map[stage.ID]entry
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Cache) {
		c.clock = clock
	}
}

// New creates a cache. A non-positive ttl means DefaultTTL.
func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		ttl:     ttl,
		clock:   time.Now,
		entries: make(map[stage.ID]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Put stores a stage's payload, replacing any previous entry.
func (c *Cache) Put(id stage.ID, payload any) {
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = entry{
		payload:   payload,
		storedAt:  now,
		expiresAt: now.Add(c.ttl),
	}
}

// Get returns a stage's cached payload if present and unexpired.
func (c *Cache) Get(id stage.ID) (any, bool) {
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	if now.After(e.expiresAt) {
		delete(c.entries, id)
		return nil, false
	}
	return e.payload, true
}

// Age returns how long ago a stage's entry was stored.
func (c *Cache) Age(id stage.ID) (time.Duration, bool) {
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok || now.After(e.expiresAt) {
		return 0, false
	}
	return now.Sub(e.storedAt), true
}

// Invalidate removes a single stage's entry.
func (c *Cache) Invalidate(id stage.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[stage.ID]entry)
}

// Len returns the number of live (possibly expired but not yet evicted)
// entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
