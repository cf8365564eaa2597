// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package cache

import (
	"container/list"
	"sync"
	"time"
)

// DedupWindow is a bounded set of recently seen keys. Seen answers "was
// this key recorded within the window" and records it in the same locked
// step, so two concurrent submissions of the same key cannot both pass.
// The quality gate suppresses duplicate events with it.
//
// Recency order doubles as the eviction policy: when the window is full,
// the key idle longest is dropped first. A record's expiry is fixed at
// the moment it is recorded; duplicate hits refresh recency but never
// extend the window.
type DedupWindow struct {
	mu       sync.Mutex
	window   time.Duration
	capacity int
	order    *list.List // front = touched most recently
	keys     map[string]*list.Element
	hits     int64
	misses   int64
}

type seenKey struct {
	key       string
	expiresAt time.Time
}

// NewDedupWindow creates a window holding at most capacity keys, each
// valid for the window duration after it is first recorded.
func NewDedupWindow(capacity int, window time.Duration) *DedupWindow {
	if capacity <= 0 {
		capacity = 10000
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &DedupWindow{
		window:   window,
		capacity: capacity,
		order:    list.New(),
		keys:     make(map[string]*list.Element, capacity),
	}
}

// Seen reports whether key was recorded within the window, recording it
// when it was not. An expired record counts as unseen and is re-recorded
// with a fresh expiry.
func (w *DedupWindow) Seen(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if el, ok := w.keys[key]; ok {
		rec := el.Value.(*seenKey)
		if !now.After(rec.expiresAt) {
			w.order.MoveToFront(el)
			w.hits++
			return true
		}
		w.dropLocked(el)
	}

	w.keys[key] = w.order.PushFront(&seenKey{key: key, expiresAt: now.Add(w.window)})
	for len(w.keys) > w.capacity {
		w.dropLocked(w.order.Back())
	}

	w.misses++
	return false
}

// Len returns the number of recorded keys, expired or not.
func (w *DedupWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.keys)
}

// Sweep drops every expired record and reports how many went. Expiry is
// otherwise handled lazily by Seen, so sweeping only reclaims memory for
// keys that never repeat.
func (w *DedupWindow) Sweep() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	removed := 0
	var next *list.Element
	for el := w.order.Front(); el != nil; el = next {
		next = el.Next()
		if now.After(el.Value.(*seenKey).expiresAt) {
			w.dropLocked(el)
			removed++
		}
	}
	return removed
}

// Stats returns the duplicate-hit and new-key counters with the current
// size. The data quality monitor reads these to compute duplicate ratios.
func (w *DedupWindow) Stats() (hits, misses int64, size int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hits, w.misses, len(w.keys)
}

func (w *DedupWindow) dropLocked(el *list.Element) {
	if el == nil {
		return
	}
	w.order.Remove(el)
	delete(w.keys, el.Value.(*seenKey).key)
}
