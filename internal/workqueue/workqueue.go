// Package workqueue provides the small concurrency primitives the external
// service clients share: a bounded-concurrency gate and a content-addressed
// response cache.
package workqueue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
)

// Queue limits how many callers run a function concurrently. Excess callers
// block until a slot frees or their context ends.
type Queue struct {
	sem chan struct{}
}

// NewQueue creates a queue admitting up to limit concurrent calls.
func NewQueue(limit int) *Queue {
	if limit < 1 {
		limit = 1
	}
	return &Queue{sem: make(chan struct{}, limit)}
}

// Do runs fn once a slot is available.
func (q *Queue) Do(ctx context.Context, fn func() error) error {
	select {
	case q.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-q.sem }()
	return fn()
}

// Cache memoizes responses keyed by the content hash of their request.
// Entries never expire; solver answers are pure functions of their input
// within one experiment run.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
}

// NewCache creates an empty cache.
func NewCache[V any]() *Cache[V] {
	return &Cache[V]{entries: make(map[string]V)}
}

// Key derives a stable cache key from any JSON-encodable request.
func Key(req any) (string, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Get returns the cached value for the key.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// Put stores the value under the key.
func (c *Cache[V]) Put(key string, v V) {
	c.mu.Lock()
	c.entries[key] = v
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
