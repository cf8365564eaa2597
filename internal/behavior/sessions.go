// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package behavior

import (
	"sync"
	"time"
)

// Session is the rolling state for one browsing session. It lives only in
// memory; the durable record of the visit is the event stream itself.
type Session struct {
	ID        string
	UserID    string
	StartedAt time.Time
	LastSeen  time.Time
	Duration  time.Duration
	Events    int
}

// SessionSnapshot is a point-in-time copy of a session handed to the
// scorer. Snapshots are value copies; mutating one has no effect on the
// tracked session.
type SessionSnapshot struct {
	ID        string
	UserID    string
	StartedAt time.Time
	LastSeen  time.Time
	Duration  time.Duration
	Events    int
}

// Tracker maintains active sessions keyed by session id. Touch feeds it
// from the ingest path; a periodic sweep destroys sessions idle past the
// timeout. Reads for scoring go through Snapshot and never block writers
// for long.
type Tracker struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	idleTimeout time.Duration
	maxTracked  int
}

// NewTracker builds a tracker that expires sessions idle longer than
// idleTimeout and refuses to grow past maxTracked sessions. At capacity,
// starting a new session evicts the stalest one.
func NewTracker(idleTimeout time.Duration, maxTracked int) *Tracker {
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	if maxTracked <= 0 {
		maxTracked = 100000
	}
	return &Tracker{
		sessions:    make(map[string]*Session),
		idleTimeout: idleTimeout,
		maxTracked:  maxTracked,
	}
}

// Touch records an event against its session: the last-seen time moves
// forward and any reported dwell time accumulates. Events without a
// session id are ignored. Touch happens after scoring, so the scorer
// always sees the session as it was before the current event.
func (t *Tracker) Touch(ev *Event) {
	if ev.SessionID == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[ev.SessionID]
	if !ok {
		if len(t.sessions) >= t.maxTracked {
			t.evictStalest()
		}
		s = &Session{
			ID:        ev.SessionID,
			UserID:    ev.UserID,
			StartedAt: ev.Timestamp,
		}
		t.sessions[ev.SessionID] = s
	}

	if ev.Timestamp.After(s.LastSeen) {
		s.LastSeen = ev.Timestamp
	}
	if ev.DurationSeconds > 0 {
		s.Duration += time.Duration(ev.DurationSeconds * float64(time.Second))
	}
	s.Events++
}

// Snapshot returns a copy of the session's current state, or false when
// the session is unknown or already swept.
func (t *Tracker) Snapshot(sessionID string) (*SessionSnapshot, bool) {
	if sessionID == "" {
		return nil, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return &SessionSnapshot{
		ID:        s.ID,
		UserID:    s.UserID,
		StartedAt: s.StartedAt,
		LastSeen:  s.LastSeen,
		Duration:  s.Duration,
		Events:    s.Events,
	}, true
}

// Sweep destroys sessions idle past the timeout and returns how many it
// removed. Called on a fixed cadence by the session sweeper service.
func (t *Tracker) Sweep() int {
	cutoff := time.Now().Add(-t.idleTimeout)

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, s := range t.sessions {
		if s.LastSeen.Before(cutoff) {
			delete(t.sessions, id)
			removed++
		}
	}
	return removed
}

// ActiveCount returns the number of tracked sessions.
func (t *Tracker) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// evictStalest removes the session with the oldest last-seen time. Caller
// holds the write lock. The linear scan only runs when the tracker is at
// capacity, which in practice means the sweep has fallen behind.
func (t *Tracker) evictStalest() {
	var (
		stalestID string
		stalestAt time.Time
		first     = true
	)
	for id, s := range t.sessions {
		if first || s.LastSeen.Before(stalestAt) {
			stalestID = id
			stalestAt = s.LastSeen
			first = false
		}
	}
	if stalestID != "" {
		delete(t.sessions, stalestID)
	}
}
