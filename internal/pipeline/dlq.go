// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package pipeline

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/motrixlab/motrix/internal/behavior"
	"github.com/motrixlab/motrix/internal/cache"
	"github.com/motrixlab/motrix/internal/journal"
	"github.com/motrixlab/motrix/internal/logging"
	"github.com/motrixlab/motrix/internal/metrics"
)

// RetryPolicy computes exponential backoff with jitter for persistence
// retries. Safe for concurrent use.
type RetryPolicy struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	JitterFraction    float64

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewRetryPolicy creates a policy with the given retry budget and initial
// backoff. Multiplier 2.0, jitter 10%, max backoff 64x initial.
func NewRetryPolicy(maxRetries int, initialBackoff time.Duration) *RetryPolicy {
	return NewRetryPolicyWithSeed(maxRetries, initialBackoff, 0)
}

// NewRetryPolicyWithSeed creates a policy with a fixed random seed. Seed 0
// uses a time-based seed; non-zero gives deterministic jitter for tests.
func NewRetryPolicyWithSeed(maxRetries int, initialBackoff time.Duration, seed int64) *RetryPolicy {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if initialBackoff <= 0 {
		initialBackoff = time.Second
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RetryPolicy{
		MaxRetries:        maxRetries,
		InitialBackoff:    initialBackoff,
		MaxBackoff:        initialBackoff * 64,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,
		//nolint:gosec // G404: non-cryptographic jitter for backoff timing
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Backoff returns the wait before the given retry attempt, counted from
// zero.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	p.rngMu.Lock()
	jitter := backoff * p.JitterFraction * (p.rng.Float64()*2 - 1)
	p.rngMu.Unlock()

	return time.Duration(backoff + jitter)
}

// DLQEntry is one failed event awaiting replay.
type DLQEntry struct {
	Event         *behavior.Event
	OriginalError string
	LastError     string
	RetryCount    int
	FirstFailure  time.Time
	LastFailure   time.Time
	NextRetry     time.Time
	Category      ErrorCategory
}

// DLQStats holds runtime statistics for the dead letter queue.
type DLQStats struct {
	Entries     int64
	Added       int64
	Removed     int64
	Retries     int64
	Evicted     int64
	OldestEntry time.Time
	ByCategory  map[string]int64
}

// DLQHandler holds failed events in a capacity-bounded min-heap keyed by
// first failure time, so the oldest failure is evicted when full. Replay
// scheduling pops entries whose NextRetry has passed.
type DLQHandler struct {
	maxEntries int
	maxRetries int
	policy     *RetryPolicy

	entries *cache.KeyedHeap[*DLQEntry]

	totalAdded   atomic.Int64
	totalRemoved atomic.Int64
	totalRetries atomic.Int64
	totalEvicted atomic.Int64
}

// NewDLQHandler creates a dead letter queue handler.
func NewDLQHandler(maxEntries, maxRetries int, policy *RetryPolicy) (*DLQHandler, error) {
	if maxEntries <= 0 {
		return nil, errors.New("dlq max entries must be positive")
	}
	if maxRetries <= 0 {
		return nil, errors.New("dlq max retries must be positive")
	}
	if policy == nil {
		policy = NewRetryPolicy(maxRetries, time.Second)
	}
	return &DLQHandler{
		maxEntries: maxEntries,
		maxRetries: maxRetries,
		policy:     policy,
		entries:    cache.NewKeyedHeap[*DLQEntry](maxEntries),
	}, nil
}

// Add spills a failed event into the queue and schedules its first replay.
func (h *DLQHandler) Add(ev *behavior.Event, cause error) *DLQEntry {
	now := time.Now()
	entry := &DLQEntry{
		Event:         ev,
		OriginalError: cause.Error(),
		LastError:     cause.Error(),
		FirstFailure:  now,
		LastFailure:   now,
		NextRetry:     now.Add(h.policy.Backoff(0)),
		Category:      Categorize(cause),
	}

	evicted := h.entries.Push(ev.ID, entry, entry.FirstFailure)
	if evicted != nil {
		h.totalEvicted.Add(1)
		logging.Warn().
			Str("event_id", evicted.Key).
			Str("category", evicted.Value.Category.String()).
			Msg("PIPELINE: DLQ at capacity, evicted oldest entry")
	}

	h.totalAdded.Add(1)
	metrics.DLQAdded.WithLabelValues(entry.Category.String()).Inc()
	metrics.DLQEntries.Set(float64(h.entries.Len()))

	return entry
}

// PendingRetries returns entries whose next retry time has passed and
// whose retry budget is not exhausted.
func (h *DLQHandler) PendingRetries() []*DLQEntry {
	now := time.Now()
	var pending []*DLQEntry
	for _, heapEntry := range h.entries.All() {
		entry := heapEntry.Value
		if entry.RetryCount < h.maxRetries && !entry.NextRetry.After(now) {
			pending = append(pending, entry)
		}
	}
	return pending
}

// Entries returns a snapshot of every queued entry in no particular
// order, including entries whose next retry is still in the future.
func (h *DLQHandler) Entries() []*DLQEntry {
	heapEntries := h.entries.All()
	entries := make([]*DLQEntry, 0, len(heapEntries))
	for _, heapEntry := range heapEntries {
		entries = append(entries, heapEntry.Value)
	}
	return entries
}

// MarkFailure records a failed replay attempt and reschedules the entry.
// Returns false when the retry budget is exhausted.
func (h *DLQHandler) MarkFailure(eventID string, cause error) bool {
	heapEntry := h.entries.Get(eventID)
	if heapEntry == nil {
		return false
	}

	entry := heapEntry.Value
	entry.RetryCount++
	entry.LastError = cause.Error()
	entry.LastFailure = time.Now()
	entry.NextRetry = time.Now().Add(h.policy.Backoff(entry.RetryCount))

	h.totalRetries.Add(1)
	return entry.RetryCount < h.maxRetries
}

// Remove deletes an entry, typically after a successful replay or a
// terminal archive. Returns true if the entry existed.
func (h *DLQHandler) Remove(eventID string) bool {
	removed := h.entries.Remove(eventID)
	if removed == nil {
		return false
	}
	h.totalRemoved.Add(1)
	metrics.DLQEntries.Set(float64(h.entries.Len()))
	return true
}

// Len returns the current number of entries.
func (h *DLQHandler) Len() int {
	return h.entries.Len()
}

// Stats returns current queue statistics.
func (h *DLQHandler) Stats() DLQStats {
	stats := DLQStats{
		Entries:    int64(h.entries.Len()),
		Added:      h.totalAdded.Load(),
		Removed:    h.totalRemoved.Load(),
		Retries:    h.totalRetries.Load(),
		Evicted:    h.totalEvicted.Load(),
		ByCategory: make(map[string]int64),
	}
	for _, heapEntry := range h.entries.All() {
		entry := heapEntry.Value
		stats.ByCategory[entry.Category.String()]++
		if stats.OldestEntry.IsZero() || entry.FirstFailure.Before(stats.OldestEntry) {
			stats.OldestEntry = entry.FirstFailure
		}
	}
	return stats
}

// FailureArchive records events whose retry budget is exhausted. The store
// implements it with the failed_events table.
type FailureArchive interface {
	InsertFailedEvent(ctx context.Context, ev *behavior.Event, category, reason string, retryCount int) error
}

// RetryWorker periodically replays due DLQ entries against the event
// writer. Exhausted entries are archived to the failure table and removed.
type RetryWorker struct {
	dlq           *DLQHandler
	writer        EventWriter
	archive       FailureArchive
	journal       journal.Journal
	interval      time.Duration
	maxConcurrent int
}

// NewRetryWorker creates a worker that replays due entries every interval
// with at most maxConcurrent writes in flight.
func NewRetryWorker(dlq *DLQHandler, writer EventWriter, archive FailureArchive, jr journal.Journal, interval time.Duration, maxConcurrent int) *RetryWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	return &RetryWorker{
		dlq:           dlq,
		writer:        writer,
		archive:       archive,
		journal:       jr,
		interval:      interval,
		maxConcurrent: maxConcurrent,
	}
}

// Serve runs the replay loop until the context is cancelled.
func (w *RetryWorker) Serve(ctx context.Context) error {
	logging.Info().
		Dur("interval", w.interval).
		Int("max_concurrent", w.maxConcurrent).
		Msg("PIPELINE: DLQ retry worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.drainPending(ctx)
		}
	}
}

func (w *RetryWorker) String() string {
	return "dlq-retry-worker"
}

func (w *RetryWorker) drainPending(ctx context.Context) {
	pending := w.dlq.PendingRetries()
	if len(pending) == 0 {
		return
	}

	sem := make(chan struct{}, w.maxConcurrent)
	var wg sync.WaitGroup
	for _, entry := range pending {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(entry *DLQEntry) {
			defer wg.Done()
			defer func() { <-sem }()
			w.retry(ctx, entry)
		}(entry)
	}
	wg.Wait()
}

func (w *RetryWorker) retry(ctx context.Context, entry *DLQEntry) {
	ev := entry.Event

	err := w.writer.InsertBehaviorEvent(ctx, ev)
	if err == nil {
		w.dlq.Remove(ev.ID)
		metrics.DLQReplayed.Inc()
		if err := w.journal.Confirm(ctx, ev.ID); err != nil && !errors.Is(err, journal.ErrEntryNotFound) {
			logging.Warn().Err(err).Str("event_id", ev.ID).Msg("PIPELINE: Journal confirm failed after DLQ replay")
		}
		logging.Debug().
			Str("event_id", ev.ID).
			Int("retry_count", entry.RetryCount).
			Msg("PIPELINE: DLQ replay succeeded")
		return
	}

	metrics.DLQReplayFailed.Inc()
	if w.dlq.MarkFailure(ev.ID, err) {
		return
	}

	// Retry budget exhausted; move the event to the failure table so it
	// is not lost when the entry leaves the queue.
	if archiveErr := w.archive.InsertFailedEvent(ctx, ev, Categorize(err).String(), entry.LastError, entry.RetryCount); archiveErr != nil {
		logging.Error().Err(archiveErr).
			Str("event_id", ev.ID).
			Msg("PIPELINE: Failed to archive dead-lettered event")
		return
	}
	w.dlq.Remove(ev.ID)
	if err := w.journal.Discard(ctx, ev.ID); err != nil && !errors.Is(err, journal.ErrEntryNotFound) {
		logging.Warn().Err(err).Str("event_id", ev.ID).Msg("PIPELINE: Journal discard failed for archived event")
	}
	logging.Error().
		Str("event_id", ev.ID).
		Str("user_id", ev.UserID).
		Str("last_error", entry.LastError).
		Int("retry_count", entry.RetryCount).
		Msg("PIPELINE: Event exhausted retries, archived to failure table")
}
