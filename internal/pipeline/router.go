// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package pipeline

import (
	"context"
	"errors"

	"github.com/motrixlab/motrix/internal/behavior"
	"github.com/motrixlab/motrix/internal/config"
	"github.com/motrixlab/motrix/internal/journal"
	"github.com/motrixlab/motrix/internal/logging"
	"github.com/motrixlab/motrix/internal/metrics"
)

// Router owns the five tier queues. Each event lands on exactly one queue,
// selected by its assigned tier; a full queue is a counted drop, never a
// block on the ingest path.
type Router struct {
	queues  map[behavior.Priority]chan *behavior.Event
	journal journal.Journal
}

// NewRouter sizes one buffered channel per tier from the pipeline
// configuration.
func NewRouter(cfg *config.PipelineConfig, jr journal.Journal) *Router {
	return &Router{
		queues: map[behavior.Priority]chan *behavior.Event{
			behavior.PriorityCritical:   make(chan *behavior.Event, cfg.CriticalCapacity),
			behavior.PriorityHigh:       make(chan *behavior.Event, cfg.HighCapacity),
			behavior.PriorityMedium:     make(chan *behavior.Event, cfg.MediumCapacity),
			behavior.PriorityLow:        make(chan *behavior.Event, cfg.LowCapacity),
			behavior.PriorityBackground: make(chan *behavior.Event, cfg.BackgroundCapacity),
		},
		journal: jr,
	}
}

// Route journals the event and enqueues it on its tier. Journal failures
// are logged but never block ingest; the event still flows in-memory.
func (r *Router) Route(ctx context.Context, ev *behavior.Event) error {
	queue, ok := r.queues[ev.Priority]
	if !ok {
		return &PermanentError{Message: "invalid tier " + string(ev.Priority), Category: ErrorCategoryValidation}
	}

	if err := r.journal.Append(ctx, ev); err != nil && !errors.Is(err, journal.ErrClosed) {
		metrics.ProcessingErrors.Inc()
		logging.Warn().Err(err).
			Str("event_id", ev.ID).
			Msg("PIPELINE: Journal append failed, event is in-memory only")
	}

	select {
	case queue <- ev:
		metrics.UpdateQueueDepth(string(ev.Priority), len(queue))
		return nil
	default:
		metrics.QueueDrops.WithLabelValues(string(ev.Priority)).Inc()
		// Retire the journal entry; a dropped event must not resurrect
		// at the next start.
		if err := r.journal.Discard(ctx, ev.ID); err != nil && !errors.Is(err, journal.ErrClosed) {
			logging.Warn().Err(err).
				Str("event_id", ev.ID).
				Msg("PIPELINE: Journal discard failed for dropped event")
		}
		return &QueueFullError{Tier: ev.Priority}
	}
}

// Enqueue places an event on its tier without journaling, for journal
// replay where the entry already exists. Reports whether the queue took
// it.
func (r *Router) Enqueue(ev *behavior.Event) bool {
	queue, ok := r.queues[ev.Priority]
	if !ok {
		return false
	}
	select {
	case queue <- ev:
		metrics.UpdateQueueDepth(string(ev.Priority), len(queue))
		return true
	default:
		metrics.QueueDrops.WithLabelValues(string(ev.Priority)).Inc()
		return false
	}
}

// Queue returns the receive side of a tier queue for its processor.
func (r *Router) Queue(tier behavior.Priority) <-chan *behavior.Event {
	return r.queues[tier]
}

// Depths snapshots the current queue depths, keyed by tier name.
func (r *Router) Depths() map[string]int {
	depths := make(map[string]int, len(r.queues))
	for tier, queue := range r.queues {
		depths[string(tier)] = len(queue)
	}
	return depths
}
