// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/motrixlab/motrix/internal/behavior"
)

// Journal bridges the async gap between tier queue and database write.
// Append happens before an event is enqueued, Confirm after it has been
// persisted; everything in between survives a crash.
type Journal interface {
	// Append records an admitted event under its event ID.
	Append(ctx context.Context, ev *behavior.Event) error

	// Confirm marks the entry for the given event ID as persisted.
	// Returns ErrEntryNotFound if the entry was never appended or has
	// already been confirmed.
	Confirm(ctx context.Context, eventID string) error

	// Discard removes an entry without marking it persisted, for events
	// that were journaled but never made it into a queue.
	Discard(ctx context.Context, eventID string) error

	// Replay feeds every pending entry to enqueue, oldest first. Entries
	// that enqueue accepts stay pending until their events are persisted
	// and confirmed through the normal path; rejected entries are left
	// for the next replay. Returns the number of accepted events.
	Replay(ctx context.Context, enqueue func(*behavior.Event) bool) (int, error)

	// Stats reports current journal counts and storage size.
	Stats() Stats

	// Close stops background compaction and closes the underlying store.
	Close() error
}

// Entry is the stored form of a journaled event.
type Entry struct {
	ID          string          `json:"id"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	Confirmed   bool            `json:"confirmed"`
	ConfirmedAt *time.Time      `json:"confirmed_at,omitempty"`
}

// Event decodes the journaled event payload.
func (e *Entry) Event() (*behavior.Event, error) {
	var ev behavior.Event
	if err := json.Unmarshal(e.Payload, &ev); err != nil {
		return nil, fmt.Errorf("decode journal entry %s: %w", e.ID, err)
	}
	return &ev, nil
}

// Stats describes the current state of the journal.
type Stats struct {
	Pending        int64     `json:"pending"`
	Confirmed      int64     `json:"confirmed"`
	TotalAppends   int64     `json:"total_appends"`
	TotalConfirms  int64     `json:"total_confirms"`
	TotalReplayed  int64     `json:"total_replayed"`
	LastCompaction time.Time `json:"last_compaction"`
	DBSizeBytes    int64     `json:"db_size_bytes"`
}

var (
	// ErrClosed is returned for operations on a closed journal.
	ErrClosed = errors.New("journal is closed")

	// ErrNilEvent is returned when appending a nil event.
	ErrNilEvent = errors.New("cannot journal nil event")

	// ErrEmptyEventID is returned when an operation requires an event ID.
	ErrEmptyEventID = errors.New("event ID cannot be empty")

	// ErrEntryNotFound is returned when confirming an unknown entry.
	ErrEntryNotFound = errors.New("journal entry not found")
)

// Nop is a disabled journal. Every operation succeeds without storing
// anything, which keeps pipeline code free of enabled checks.
type Nop struct{}

// Append is a no-op.
func (Nop) Append(context.Context, *behavior.Event) error { return nil }

// Confirm is a no-op.
func (Nop) Confirm(context.Context, string) error { return nil }

// Discard is a no-op.
func (Nop) Discard(context.Context, string) error { return nil }

// Replay is a no-op and reports zero replayed events.
func (Nop) Replay(context.Context, func(*behavior.Event) bool) (int, error) { return 0, nil }

// Stats reports an empty journal.
func (Nop) Stats() Stats { return Stats{} }

// Close is a no-op.
func (Nop) Close() error { return nil }
