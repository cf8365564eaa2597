// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package pipeline

import (
	"context"
	"time"

	"github.com/motrixlab/motrix/internal/behavior"
	"github.com/motrixlab/motrix/internal/config"
	"github.com/motrixlab/motrix/internal/logging"
	"github.com/motrixlab/motrix/internal/metrics"
)

// shutdownFlushTimeout bounds the final drain when a processor stops, so
// shutdown cannot hang on a slow database.
const shutdownFlushTimeout = 10 * time.Second

// Learner receives persisted events. ApplyImmediate is the synchronous
// fast path for the critical tier and high-value re-routes; ApplyDeferred
// hands the rest of a flushed batch to the learning bus. Each event goes
// through exactly one of the two.
type Learner interface {
	ApplyImmediate(ctx context.Context, ev *behavior.Event) error
	ApplyDeferred(ctx context.Context, events []*behavior.Event)
}

// TierProcessor drains one tier queue. The critical tier processes events
// one at a time as they arrive; batch tiers flush on a cadence; the
// background tier drains its whole queue every interval.
//
// Each processor runs as a supervised service. A panic in one iteration
// is logged and the loop continues at the next tick.
type TierProcessor struct {
	tier    behavior.Priority
	queue   <-chan *behavior.Event
	persist *Persister
	learner Learner

	interval  time.Duration // batch tiers only
	batchCap  int           // 0 = drain everything
	timeout   time.Duration // critical dequeue timeout
	highValue float64
	reroute   bool // re-route high-value events after a flush
}

// NewTierProcessor wires a processor to its tier queue. Cadence, drain
// cap, and re-route behavior derive from the tier.
func NewTierProcessor(tier behavior.Priority, router *Router, persist *Persister, learner Learner, cfg *config.PipelineConfig) *TierProcessor {
	p := &TierProcessor{
		tier:      tier,
		queue:     router.Queue(tier),
		persist:   persist,
		learner:   learner,
		timeout:   cfg.CriticalTimeout,
		highValue: cfg.HighValueThreshold,
	}

	switch tier {
	case behavior.PriorityHigh:
		p.interval, p.batchCap, p.reroute = cfg.HighInterval, cfg.HighBatchSize, true
	case behavior.PriorityMedium:
		p.interval, p.batchCap, p.reroute = cfg.MediumInterval, cfg.MediumBatchSize, true
	case behavior.PriorityLow:
		p.interval, p.batchCap, p.reroute = cfg.LowInterval, cfg.LowBatchSize, true
	case behavior.PriorityBackground:
		p.interval = cfg.BackgroundInterval
	}

	if p.timeout <= 0 {
		p.timeout = time.Second
	}
	return p
}

// Serve runs the tier loop until the context is cancelled.
func (p *TierProcessor) Serve(ctx context.Context) error {
	logging.Info().
		Str("tier", string(p.tier)).
		Dur("interval", p.interval).
		Int("batch_cap", p.batchCap).
		Msg("PIPELINE: Tier processor started")

	if p.tier == behavior.PriorityCritical {
		return p.serveCritical(ctx)
	}
	return p.serveBatch(ctx)
}

func (p *TierProcessor) String() string {
	return "tier-" + string(p.tier)
}

// serveCritical dequeues continuously. The timeout arm is an idle beat;
// events are handled the moment they arrive.
func (p *TierProcessor) serveCritical(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-p.queue:
			p.safeImmediate(ctx, ev)
			metrics.UpdateQueueDepth(string(p.tier), len(p.queue))
		case <-time.After(p.timeout):
		}
	}
}

func (p *TierProcessor) serveBatch(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final drain: everything still queued goes out in one
			// batch under a detached deadline, since ctx is already
			// cancelled.
			flushCtx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
			p.drainAndFlush(flushCtx, 0)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			p.safeTick(ctx)
		}
	}
}

func (p *TierProcessor) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Interface("panic", r).
				Str("tier", string(p.tier)).
				Msg("PIPELINE: Tier flush panicked")
		}
	}()
	p.drainAndFlush(ctx, p.batchCap)
}

func (p *TierProcessor) safeImmediate(ctx context.Context, ev *behavior.Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Interface("panic", r).
				Str("tier", string(p.tier)).
				Str("event_id", ev.ID).
				Msg("PIPELINE: Immediate processing panicked")
		}
	}()
	p.processImmediate(ctx, ev)
}

// processImmediate is the fast path: single persist, then the learning
// hook. Persistence failures are already spilled by the persister.
func (p *TierProcessor) processImmediate(ctx context.Context, ev *behavior.Event) {
	if err := p.persist.WriteOne(ctx, ev); err != nil {
		return
	}
	metrics.RecordTierProcessed(string(p.tier), "immediate", 1)

	if p.learner == nil {
		return
	}
	if err := p.learner.ApplyImmediate(ctx, ev); err != nil {
		logging.Warn().Err(err).
			Str("event_id", ev.ID).
			Msg("PIPELINE: Immediate learning failed")
	}
}

func (p *TierProcessor) drainAndFlush(ctx context.Context, limit int) {
	buffer := p.drain(limit)
	metrics.UpdateQueueDepth(string(p.tier), len(p.queue))
	if len(buffer) == 0 {
		return
	}

	start := time.Now()
	err := p.persist.WriteBatch(ctx, buffer)
	metrics.RecordFlush(string(p.tier), time.Since(start), len(buffer))
	if err != nil {
		// The persister retried and spilled the whole buffer; the
		// buffer is gone either way.
		return
	}

	metrics.RecordTierProcessed(string(p.tier), "batch", len(buffer))

	deferred := p.rerouteHighValue(ctx, buffer)
	if p.learner != nil && len(deferred) > 0 {
		p.learner.ApplyDeferred(ctx, deferred)
	}
}

// drain moves up to limit events off the queue without blocking. Zero
// limit drains everything waiting.
func (p *TierProcessor) drain(limit int) []*behavior.Event {
	var buffer []*behavior.Event
	for limit <= 0 || len(buffer) < limit {
		select {
		case ev := <-p.queue:
			buffer = append(buffer, ev)
		default:
			return buffer
		}
	}
	return buffer
}

// rerouteHighValue sends flushed events whose conversion value exceeds the
// threshold back through the immediate path, so a purchase buried in a
// batch still reaches learning promptly. The duplicate persist is a no-op
// on the idempotent event ID. Returns the events that were not re-routed,
// which take the deferred learning path instead.
func (p *TierProcessor) rerouteHighValue(ctx context.Context, events []*behavior.Event) []*behavior.Event {
	if !p.reroute {
		return events
	}

	deferred := events[:0]
	for _, ev := range events {
		if ev.ConversionValue <= p.highValue {
			deferred = append(deferred, ev)
			continue
		}
		metrics.HighValueReroutes.Inc()
		logging.Debug().
			Str("event_id", ev.ID).
			Float64("conversion_value", ev.ConversionValue).
			Msg("PIPELINE: High-value event re-routed through immediate path")
		p.processImmediate(ctx, ev)
	}
	return deferred
}
