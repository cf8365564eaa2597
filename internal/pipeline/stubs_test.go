// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/motrixlab/motrix/internal/behavior"
	"github.com/motrixlab/motrix/internal/config"
	"github.com/motrixlab/motrix/internal/journal"
)

// fakeWriter is an in-memory EventWriter that can be primed to fail.
type fakeWriter struct {
	mu          sync.Mutex
	events      map[string]*behavior.Event
	batches     [][]string
	failIDs     map[string]bool
	singleCalls int
	batchCalls  int
	failNext    int
	permanent   bool
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		events:  make(map[string]*behavior.Event),
		failIDs: make(map[string]bool),
	}
}

// failFor makes every write touching the given event ID fail with a
// retryable error.
func (w *fakeWriter) failFor(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failIDs[id] = true
}

func (w *fakeWriter) InsertBehaviorEvent(_ context.Context, ev *behavior.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.singleCalls++
	if w.failIDs[ev.ID] {
		return NewRetryableError("connection refused", nil)
	}
	if err := w.nextErrLocked(); err != nil {
		return err
	}
	w.events[ev.ID] = ev
	return nil
}

func (w *fakeWriter) InsertBehaviorEventsBatch(_ context.Context, events []*behavior.Event) (int, int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.batchCalls++
	for _, ev := range events {
		if w.failIDs[ev.ID] {
			return 0, 0, NewRetryableError("connection refused", nil)
		}
	}
	if err := w.nextErrLocked(); err != nil {
		return 0, 0, err
	}

	ids := make([]string, len(events))
	inserted, duplicates := 0, 0
	for i, ev := range events {
		ids[i] = ev.ID
		if _, exists := w.events[ev.ID]; exists {
			duplicates++
			continue
		}
		w.events[ev.ID] = ev
		inserted++
	}
	w.batches = append(w.batches, ids)
	return inserted, duplicates, nil
}

func (w *fakeWriter) nextErrLocked() error {
	if w.failNext <= 0 {
		return nil
	}
	w.failNext--
	if w.permanent {
		return NewPermanentError("invalid event payload", nil)
	}
	return NewRetryableError("connection refused", nil)
}

func (w *fakeWriter) has(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.events[id]
	return ok
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.events)
}

func (w *fakeWriter) calls() (single, batch int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.singleCalls, w.batchCalls
}

// batchContents returns the event IDs of every successful batch write, in
// submission order.
func (w *fakeWriter) batchContents() [][]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([][]string, len(w.batches))
	for i, b := range w.batches {
		out[i] = append([]string(nil), b...)
	}
	return out
}

// fakeArchive records terminally failed events.
type fakeArchive struct {
	mu       sync.Mutex
	archived []string
	fail     bool
}

func (a *fakeArchive) InsertFailedEvent(_ context.Context, ev *behavior.Event, _, _ string, _ int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail {
		return errors.New("archive unavailable")
	}
	a.archived = append(a.archived, ev.ID)
	return nil
}

func (a *fakeArchive) ids() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.archived...)
}

// fakeJournal records journal calls without storage.
type fakeJournal struct {
	mu        sync.Mutex
	appended  []string
	confirmed []string
	discarded []string
}

func (f *fakeJournal) Append(_ context.Context, ev *behavior.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, ev.ID)
	return nil
}

func (f *fakeJournal) Confirm(_ context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed = append(f.confirmed, eventID)
	return nil
}

func (f *fakeJournal) Discard(_ context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discarded = append(f.discarded, eventID)
	return nil
}

func (f *fakeJournal) Replay(context.Context, func(*behavior.Event) bool) (int, error) {
	return 0, nil
}

func (f *fakeJournal) Stats() journal.Stats { return journal.Stats{} }

func (f *fakeJournal) Close() error { return nil }

func (f *fakeJournal) appendedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.appended...)
}

func (f *fakeJournal) confirmedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.confirmed...)
}

func (f *fakeJournal) discardedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.discarded...)
}

// fakeLearner records which events took the immediate and deferred paths.
type fakeLearner struct {
	mu       sync.Mutex
	applied  []string
	deferred []string
}

func (l *fakeLearner) ApplyImmediate(_ context.Context, ev *behavior.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applied = append(l.applied, ev.ID)
	return nil
}

func (l *fakeLearner) ApplyDeferred(_ context.Context, events []*behavior.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range events {
		l.deferred = append(l.deferred, ev.ID)
	}
}

func (l *fakeLearner) appliedIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.applied...)
}

func (l *fakeLearner) deferredIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.deferred...)
}

func testPipelineConfig() *config.PipelineConfig {
	return &config.PipelineConfig{
		CriticalCapacity:   16,
		HighCapacity:       64,
		MediumCapacity:     64,
		LowCapacity:        64,
		BackgroundCapacity: 64,
		CriticalTimeout:    10 * time.Millisecond,
		HighInterval:       20 * time.Millisecond,
		HighBatchSize:      50,
		MediumInterval:     20 * time.Millisecond,
		MediumBatchSize:    50,
		LowInterval:        20 * time.Millisecond,
		LowBatchSize:       50,
		BackgroundInterval: 20 * time.Millisecond,
		HighValueThreshold: 50,
		RetryAttempts:      2,
		RetryDelay:         time.Millisecond,
		DLQMaxEntries:      100,
		DLQRetryInterval:   10 * time.Millisecond,
		DLQMaxRetries:      2,
		DedupWindow:        time.Minute,
		DedupSize:          1000,
	}
}

func testEvent(id string, tier behavior.Priority, conversion float64) *behavior.Event {
	if id == "" {
		id = uuid.NewString()
	}
	return &behavior.Event{
		ID:              id,
		UserID:          "user_alpha",
		EventType:       "page_view",
		Timestamp:       time.Now().UTC(),
		Priority:        tier,
		Method:          behavior.MethodBatchRegular,
		RuleName:        "navigation",
		ConversionValue: conversion,
		LeadScore:       10,
	}
}

func testPolicy() *RetryPolicy {
	return NewRetryPolicyWithSeed(2, time.Millisecond, 7)
}

func testDLQ(t *testing.T) *DLQHandler {
	t.Helper()
	dlq, err := NewDLQHandler(100, 2, testPolicy())
	if err != nil {
		t.Fatalf("NewDLQHandler() error = %v", err)
	}
	return dlq
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}
