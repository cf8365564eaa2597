// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/motrixlab/motrix/internal/behavior"
	"github.com/motrixlab/motrix/internal/cache"
	"github.com/motrixlab/motrix/internal/logging"
	"github.com/motrixlab/motrix/internal/metrics"
)

type identityKey struct{}

// WithIdentity marks ctx as carrying a verified user identity. The auth
// middleware attaches it after validating a bearer token.
func WithIdentity(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, identityKey{}, userID)
}

// Identity returns the verified user ID attached to ctx, if any.
func Identity(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(identityKey{}).(string)
	return userID, ok && userID != ""
}

// EventBroadcaster receives accepted events for the live feed. The
// websocket hub satisfies it; a nil broadcaster disables the feed.
type EventBroadcaster interface {
	BroadcastAccepted(ev *behavior.Event)
}

// CollectionMetrics is the ingest-side snapshot served by the metrics
// endpoint.
type CollectionMetrics struct {
	EventsProcessed  int64          `json:"events_processed"`
	ProcessingErrors int64          `json:"processing_errors"`
	EventsPerMinute  int64          `json:"events_per_minute"`
	QueueDepths      map[string]int `json:"queue_depths"`
	ActiveSessions   int            `json:"active_sessions"`
	RuleCount        int            `json:"rule_count"`
	Running          bool           `json:"running"`
	Timestamp        time.Time      `json:"timestamp"`
}

// Collector is the ingest facade: it screens, classifies, scores, admits,
// and routes one event per call. Collect never blocks on downstream
// pressure; a full queue is a drop.
type Collector struct {
	classifier *behavior.Classifier
	gate       *behavior.QualityGate
	sessions   *behavior.Tracker
	router     *Router

	rate *cache.RateWindow

	broadcaster EventBroadcaster

	processed        atomic.Int64
	processingErrors atomic.Int64
	running          atomic.Bool
}

// NewCollector assembles the ingest path. Call Start once the tier
// processors are up.
func NewCollector(classifier *behavior.Classifier, gate *behavior.QualityGate, sessions *behavior.Tracker, router *Router) *Collector {
	return &Collector{
		classifier: classifier,
		gate:       gate,
		sessions:   sessions,
		router:     router,
		rate:       cache.NewRateWindow(time.Minute, 60),
	}
}

// SetBroadcaster attaches the live feed. Call during wiring, before
// Start; Collect reads the field without synchronization.
func (c *Collector) SetBroadcaster(b EventBroadcaster) {
	c.broadcaster = b
}

// Start marks the collector as accepting events.
func (c *Collector) Start() {
	c.running.Store(true)
	logging.Info().Int("rules", c.classifier.Rules().Len()).Msg("COLLECT: Collector started")
}

// Stop makes subsequent Collect calls refuse events.
func (c *Collector) Stop() {
	c.running.Store(false)
	logging.Info().Msg("COLLECT: Collector stopped")
}

// Collect ingests one event payload. Returns true when the event was
// accepted onto a tier queue; false for rejections, unmatched types,
// queue drops, and malformed payloads.
func (c *Collector) Collect(ctx context.Context, payload map[string]any) bool {
	if !c.running.Load() {
		return false
	}

	raw, err := decodeRawEvent(payload)
	if err != nil {
		c.processingErrors.Add(1)
		metrics.ProcessingErrors.Inc()
		logging.Debug().Err(err).Msg("COLLECT: Malformed payload")
		return false
	}

	if raw.Timestamp.IsZero() {
		raw.Timestamp = time.Now().UTC()
	}
	if _, ok := Identity(ctx); ok {
		raw.Authenticated = true
	}

	if rej := c.gate.Screen(raw); rej != nil {
		metrics.RecordRejection(string(rej.Reason))
		logging.Debug().
			Str("reason", string(rej.Reason)).
			Str("user_id", raw.UserID).
			Str("event_type", raw.EventType).
			Msg("COLLECT: Event rejected")
		return false
	}

	rule, ok := c.classifier.Rules().Match(raw.EventType)
	if !ok {
		metrics.EventsDropped.Inc()
		logging.Trace().Str("event_type", raw.EventType).Msg("COLLECT: No rule matched, event dropped")
		return false
	}

	// Session context is read before Touch so scoring sees the session
	// as it was when the event arrived.
	sess, _ := c.sessions.Snapshot(raw.SessionID)
	ev := c.classifier.Classify(raw, rule, sess)

	if rej := c.gate.Admit(ev, rule); rej != nil {
		metrics.RecordRejection(string(rej.Reason))
		logging.Debug().
			Str("reason", string(rej.Reason)).
			Str("user_id", ev.UserID).
			Str("event_type", ev.EventType).
			Msg("COLLECT: Event rejected")
		return false
	}

	c.sessions.Touch(ev)

	if err := c.router.Route(ctx, ev); err != nil {
		var full *QueueFullError
		if errors.As(err, &full) {
			logging.Warn().
				Str("tier", string(full.Tier)).
				Str("event_id", ev.ID).
				Msg("COLLECT: Queue full, event dropped")
		} else {
			c.processingErrors.Add(1)
			metrics.ProcessingErrors.Inc()
			logging.Error().Err(err).Str("event_id", ev.ID).Msg("COLLECT: Routing failed")
		}
		return false
	}

	c.processed.Add(1)
	c.rate.Mark()
	metrics.EventsProcessed.Inc()
	if c.broadcaster != nil {
		c.broadcaster.BroadcastAccepted(ev)
	}
	return true
}

// Metrics snapshots the ingest surface.
func (c *Collector) Metrics() CollectionMetrics {
	return CollectionMetrics{
		EventsProcessed:  c.processed.Load(),
		ProcessingErrors: c.processingErrors.Load(),
		EventsPerMinute:  c.rate.Total(),
		QueueDepths:      c.router.Depths(),
		ActiveSessions:   c.sessions.ActiveCount(),
		RuleCount:        c.classifier.Rules().Len(),
		Running:          c.running.Load(),
		Timestamp:        time.Now().UTC(),
	}
}

// PublishGauges pushes snapshot gauges to Prometheus. The metrics loop
// calls this on its cadence.
func (c *Collector) PublishGauges() {
	metrics.EventsPerMinute.Set(float64(c.rate.Total()))
	metrics.ActiveSessions.Set(float64(c.sessions.ActiveCount()))
	for tier, depth := range c.router.Depths() {
		metrics.UpdateQueueDepth(tier, depth)
	}
}

func decodeRawEvent(payload map[string]any) (*behavior.RawEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	var raw behavior.RawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &raw, nil
}
