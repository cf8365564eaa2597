// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package pipeline

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/motrixlab/motrix/internal/behavior"
	"github.com/motrixlab/motrix/internal/journal"
	"github.com/motrixlab/motrix/internal/logging"
	"github.com/motrixlab/motrix/internal/metrics"
)

// EventWriter is the persistence collaborator. Writes are idempotent on
// the event ID, so retries and replays are safe.
type EventWriter interface {
	InsertBehaviorEvent(ctx context.Context, ev *behavior.Event) error
	InsertBehaviorEventsBatch(ctx context.Context, events []*behavior.Event) (inserted, duplicates int, err error)
}

// Persister writes events through a circuit breaker with bounded retry.
// Exhausted retries spill the events to the dead letter queue; successful
// writes confirm their journal entries.
type Persister struct {
	writer  EventWriter
	journal journal.Journal
	dlq     *DLQHandler
	policy  *RetryPolicy
	breaker *gobreaker.CircuitBreaker[any]
}

// NewPersister creates a persister around the given writer.
func NewPersister(writer EventWriter, jr journal.Journal, dlq *DLQHandler, policy *RetryPolicy) *Persister {
	if policy == nil {
		policy = NewRetryPolicy(3, time.Second)
	}
	return &Persister{
		writer:  writer,
		journal: jr,
		dlq:     dlq,
		policy:  policy,
		breaker: newPersistenceBreaker(),
	}
}

// WriteOne persists a single event. On unrecoverable failure the event is
// spilled to the DLQ and the error returned.
func (p *Persister) WriteOne(ctx context.Context, ev *behavior.Event) error {
	err := p.withRetry(ctx, string(ev.Priority), func(ctx context.Context) error {
		_, execErr := p.breaker.Execute(func() (any, error) {
			return nil, p.writer.InsertBehaviorEvent(ctx, ev)
		})
		return execErr
	})
	if err != nil {
		p.spill([]*behavior.Event{ev}, err)
		return err
	}

	p.confirm(ctx, ev)
	return nil
}

// WriteBatch persists a buffer atomically. The whole buffer is retried on
// failure and the whole buffer spills to the DLQ when retries run out;
// idempotent event IDs make the partial-overlap cases harmless.
func (p *Persister) WriteBatch(ctx context.Context, events []*behavior.Event) error {
	if len(events) == 0 {
		return nil
	}

	tier := string(events[0].Priority)
	err := p.withRetry(ctx, tier, func(ctx context.Context) error {
		_, execErr := p.breaker.Execute(func() (any, error) {
			inserted, duplicates, batchErr := p.writer.InsertBehaviorEventsBatch(ctx, events)
			if batchErr == nil && duplicates > 0 {
				logging.Debug().
					Str("tier", tier).
					Int("inserted", inserted).
					Int("duplicates", duplicates).
					Msg("PIPELINE: Batch contained already-persisted events")
			}
			return nil, batchErr
		})
		return execErr
	})
	if err != nil {
		p.spill(events, err)
		return err
	}

	p.confirm(ctx, events...)
	return nil
}

// withRetry runs op with exponential backoff. Permanent errors and context
// cancellation stop the loop early.
func (p *Persister) withRetry(ctx context.Context, tier string, op func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if IsPermanentError(err) || attempt >= p.policy.MaxRetries {
			return err
		}

		metrics.FlushRetries.WithLabelValues(tier).Inc()
		logging.Warn().Err(err).
			Str("tier", tier).
			Int("attempt", attempt+1).
			Msg("PIPELINE: Persistence attempt failed, backing off")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.policy.Backoff(attempt)):
		}
	}
}

// spill moves events to the DLQ. Their journal entries stay pending; a
// successful DLQ replay confirms them, and a crash before that replays
// the events instead.
func (p *Persister) spill(events []*behavior.Event, cause error) {
	for _, ev := range events {
		p.dlq.Add(ev, cause)
	}
	metrics.ProcessingErrors.Inc()
	logging.Error().Err(cause).
		Int("count", len(events)).
		Str("breaker_state", p.breaker.State().String()).
		Msg("PIPELINE: Persistence exhausted retries, spilled to DLQ")
}

func (p *Persister) confirm(ctx context.Context, events ...*behavior.Event) {
	for _, ev := range events {
		err := p.journal.Confirm(ctx, ev.ID)
		if err != nil && !errors.Is(err, journal.ErrEntryNotFound) {
			logging.Warn().Err(err).
				Str("event_id", ev.ID).
				Msg("PIPELINE: Journal confirm failed")
		}
	}
}

// BreakerState exposes the circuit breaker state for health reporting.
func (p *Persister) BreakerState() string {
	return p.breaker.State().String()
}

func newPersistenceBreaker() *gobreaker.CircuitBreaker[any] {
	settings := gobreaker.Settings{
		Name:        "persistence",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordBreakerTransition(name, from.String(), to.String(), breakerStateValue(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("PIPELINE: Circuit breaker state changed")
		},
	}
	return gobreaker.NewCircuitBreaker[any](settings)
}

// breakerStateValue encodes states for the gauge: closed=0, half-open=1,
// open=2.
func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 2
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 0
	}
}
