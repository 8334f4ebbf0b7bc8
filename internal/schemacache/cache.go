// Package schemacache caches metadata tool results keyed by a deterministic
// fingerprint of the tool name and its parameters.
//
// Entries expire after a fixed TTL set at construction. Expiry is checked
// lazily on read; stale entries stay in the map until overwritten or the
// cache is cleared. There is no background sweeper.
package schemacache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// DefaultTTL is the entry lifetime used when no TTL is configured.
const DefaultTTL = 300 * time.Second

// Cache is a mutex-guarded in-memory store of metadata tool results.
// Safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration

	// now is swappable in tests for deterministic expiry checks.
	now func() time.Time
}

type entry struct {
	value     any
	fetchedAt time.Time
}

// New creates a cache with the given TTL. A non-positive TTL falls back
// to DefaultTTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the stored value for the fingerprint if present and not expired.
func (c *Cache) Get(fingerprint string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[fingerprint]
	if !ok || c.now().Sub(e.fetchedAt) >= c.ttl {
		return nil, false
	}
	return e.value, true
}

// Put stores a value, unconditionally overwriting any prior entry and its
// timestamp.
func (c *Cache) Put(fingerprint string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[fingerprint] = entry{value: value, fetchedAt: c.now()}
}

// Clear drops all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]entry)
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Fingerprint derives a stable cache key from a tool name and its parameters.
// encoding/json marshals map keys in sorted order, so two parameter maps that
// are equal as sets of key/value pairs produce the same key regardless of
// construction order.
func Fingerprint(tool string, params map[string]any) string {
	canonical, err := json.Marshal(params)
	if err != nil {
		// Parameters are plain JSON-compatible values in practice; fall back
		// to a formatted rendering rather than failing the lookup.
		canonical = []byte(fmt.Sprintf("%v", params))
	}
	sum := sha256.Sum256(append([]byte(tool+":"), canonical...))
	return hex.EncodeToString(sum[:])
}
