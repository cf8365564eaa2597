// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package cache

import (
	"sync"
	"time"
)

// RateWindow counts events over a trailing span without keeping per-event
// state. The span is split into fixed slots arranged in a ring; each slot
// carries the count and the slot epoch that last wrote it, so a slot left
// over from an earlier lap of the ring is recognized as stale when read
// instead of being cleared by a sweep.
//
// The collector keeps a 60-slot one-minute window to report events per
// minute without a database query.
//
// Mark is O(1); Total is O(slots) with slots typically 10-60.
type RateWindow struct {
	mu     sync.Mutex
	counts []int64 // events recorded in the epoch held by stamps
	stamps []int64 // slot epoch that last wrote each slot
	slot   time.Duration
	slots  int64
}

// NewRateWindow splits span into the given number of slots. Non-positive
// arguments fall back to a five-minute span over ten slots.
//
// Example: NewRateWindow(time.Minute, 60) counts over the trailing minute
// at one-second granularity.
func NewRateWindow(span time.Duration, slots int) *RateWindow {
	if slots <= 0 {
		slots = 10
	}
	if span <= 0 {
		span = 5 * time.Minute
	}

	return &RateWindow{
		counts: make([]int64, slots),
		stamps: make([]int64, slots),
		slot:   span / time.Duration(slots),
		slots:  int64(slots),
	}
}

// epoch numbers slots monotonically since the zero time. Two writes in
// the same slot share an epoch; the stamp disambiguates ring laps.
func (rw *RateWindow) epoch(t time.Time) int64 {
	return t.UnixNano() / int64(rw.slot)
}

// Add records delta events at the current instant.
func (rw *RateWindow) Add(delta int64) {
	now := rw.epoch(time.Now())
	idx := now % rw.slots

	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.stamps[idx] != now {
		rw.counts[idx] = 0
		rw.stamps[idx] = now
	}
	rw.counts[idx] += delta
}

// Mark records a single event.
func (rw *RateWindow) Mark() {
	rw.Add(1)
}

// Total sums the events recorded within the trailing span. Slots stamped
// outside the span, including untouched leftovers from a previous lap,
// contribute nothing.
func (rw *RateWindow) Total() int64 {
	now := rw.epoch(time.Now())
	oldest := now - rw.slots + 1

	rw.mu.Lock()
	defer rw.mu.Unlock()

	var total int64
	for i, stamp := range rw.stamps {
		if stamp >= oldest && stamp <= now {
			total += rw.counts[i]
		}
	}
	return total
}

// Reset discards every recorded event.
func (rw *RateWindow) Reset() {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	for i := range rw.counts {
		rw.counts[i] = 0
		rw.stamps[i] = 0
	}
}
