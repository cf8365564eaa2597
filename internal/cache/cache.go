// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
)

// sweepInterval is the cadence of the background pass that removes
// entries whose expiry already passed but that nobody read again.
const sweepInterval = 5 * time.Minute

type entry[V any] struct {
	value     V
	expiresAt int64 // unix nanoseconds
}

// Cache is a typed in-memory TTL cache. Expiry is evaluated at read
// time, so an entry past its TTL is reported as absent and never
// returned stale; a background sweep reclaims entries that are never
// read again. Stop halts the sweep when the cache is discarded.
//
// The recommendation layer keeps per-user entries in one and the
// engine memoizes per-vehicle similarity lists in another.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	ttl     time.Duration

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	lastSweep atomic.Int64 // unix nanoseconds

	stop     chan struct{}
	stopOnce sync.Once
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Keys      int
	LastSweep time.Time
}

// New builds a cache whose Set entries live for ttl. The background
// sweep starts immediately and runs until Stop.
func New[V any](ttl time.Duration) *Cache[V] {
	c := &Cache[V]{
		entries: make(map[string]entry[V]),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	c.lastSweep.Store(time.Now().UnixNano())

	go c.sweepLoop()

	return c
}

// Get returns the live value for key. Absent and expired keys both
// report false; an expired entry found here is removed on the spot.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		return zero, false
	}

	if time.Now().UnixNano() > e.expiresAt {
		c.mu.Lock()
		// A concurrent Set may have replaced the entry since the read
		// lock dropped; only the expired generation is removed.
		if cur, ok := c.entries[key]; ok && cur.expiresAt == e.expiresAt {
			delete(c.entries, key)
			c.evictions.Add(1)
		}
		c.mu.Unlock()
		c.misses.Add(1)
		return zero, false
	}

	c.hits.Add(1)
	return e.value, true
}

// Set stores value under key for the default TTL, replacing any
// existing entry.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value under key for a caller-chosen TTL.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	e := entry[V]{
		value:     value,
		expiresAt: time.Now().Add(ttl).UnixNano(),
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Delete removes key. Missing keys are a no-op.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()

	if ok {
		c.evictions.Add(1)
	}
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]entry[V])
	c.mu.Unlock()

	c.evictions.Add(int64(n))
}

// Len reports the number of stored entries, expired ones included
// until a read or sweep removes them.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats snapshots the counters.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Keys:      c.Len(),
		LastSweep: time.Unix(0, c.lastSweep.Load()),
	}
}

// HitRate reports the percentage of Gets answered from the cache.
func (c *Cache[V]) HitRate() float64 {
	hits, misses := c.hits.Load(), c.misses.Load()
	total := hits + misses
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total) * 100.0
}

// Stop halts the background sweep. Safe to call more than once; the
// cache itself keeps working after Stop, only the sweep ends.
func (c *Cache[V]) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache[V]) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep removes every expired entry in one pass.
func (c *Cache[V]) sweep() {
	now := time.Now().UnixNano()

	c.mu.Lock()
	var removed int64
	for key, e := range c.entries {
		if now > e.expiresAt {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()

	c.evictions.Add(removed)
	c.lastSweep.Store(now)
}

// GenerateKey derives a cache key from a namespace and a parameter
// struct. Parameters are serialized and hashed so structurally equal
// inputs always map to the same key.
func GenerateKey(namespace string, params any) string {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%s:%v", namespace, params)
	}

	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", namespace, hash[:16])
}
