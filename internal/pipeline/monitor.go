// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package pipeline

import (
	"context"
	"time"

	"github.com/motrixlab/motrix/internal/behavior"
	"github.com/motrixlab/motrix/internal/journal"
	"github.com/motrixlab/motrix/internal/logging"
	"github.com/motrixlab/motrix/internal/metrics"
)

// retentionPurgeInterval spaces out the per-rule retention sweep, which is
// heavier than the quality checks sharing the monitor loop.
const retentionPurgeInterval = 1 * time.Hour

// MetricsBroadcaster pushes periodic snapshots to live feed clients.
// The websocket hub satisfies it.
type MetricsBroadcaster interface {
	BroadcastJSON(messageType string, data interface{})
}

// MetricsLoop publishes collector gauges on a fixed cadence.
type MetricsLoop struct {
	collector *Collector
	feed      MetricsBroadcaster
	interval  time.Duration
}

// NewMetricsLoop creates the gauge publisher.
func NewMetricsLoop(collector *Collector, interval time.Duration) *MetricsLoop {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &MetricsLoop{collector: collector, interval: interval}
}

// SetFeed attaches the live feed. Call during wiring, before Serve.
func (l *MetricsLoop) SetFeed(b MetricsBroadcaster) {
	l.feed = b
}

// Serve publishes gauges until the context is cancelled.
func (l *MetricsLoop) Serve(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.collector.PublishGauges()
			if l.feed != nil {
				l.feed.BroadcastJSON("metrics", l.collector.Metrics())
			}
		}
	}
}

func (l *MetricsLoop) String() string {
	return "metrics-loop"
}

// SessionSweeper removes idle sessions on a fixed cadence.
type SessionSweeper struct {
	sessions *behavior.Tracker
	interval time.Duration
}

// NewSessionSweeper creates the idle session sweep service.
func NewSessionSweeper(sessions *behavior.Tracker, interval time.Duration) *SessionSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SessionSweeper{sessions: sessions, interval: interval}
}

// Serve sweeps until the context is cancelled.
func (s *SessionSweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if expired := s.sessions.Sweep(); expired > 0 {
				metrics.SessionsExpired.Add(float64(expired))
				logging.Debug().
					Int("expired", expired).
					Int("active", s.sessions.ActiveCount()).
					Msg("SESSIONS: Idle sweep completed")
			}
			metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
		}
	}
}

func (s *SessionSweeper) String() string {
	return "session-sweeper"
}

// MaintenanceStore covers the housekeeping queries the quality monitor
// runs against the database.
type MaintenanceStore interface {
	PurgeExpired(ctx context.Context, rules []behavior.CollectionRule) (int64, error)
	CountFailedEvents(ctx context.Context) (int64, error)
}

// QualityMonitor reports data quality indicators (dedup hit rate, DLQ
// depth, journal backlog, archived failures) and runs the retention purge
// on a slower sub-cadence.
type QualityMonitor struct {
	gate     *behavior.QualityGate
	dlq      *DLQHandler
	journal  journal.Journal
	store    MaintenanceStore
	rules    []behavior.CollectionRule
	interval time.Duration

	lastPurge time.Time
}

// NewQualityMonitor creates the data quality monitor service.
func NewQualityMonitor(gate *behavior.QualityGate, dlq *DLQHandler, jr journal.Journal, store MaintenanceStore, rules []behavior.CollectionRule, interval time.Duration) *QualityMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &QualityMonitor{
		gate:      gate,
		dlq:       dlq,
		journal:   jr,
		store:     store,
		rules:     rules,
		interval:  interval,
		lastPurge: time.Now(),
	}
}

// Serve checks quality indicators until the context is cancelled.
func (q *QualityMonitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			q.check(ctx)
		}
	}
}

func (q *QualityMonitor) String() string {
	return "quality-monitor"
}

func (q *QualityMonitor) check(ctx context.Context) {
	hits, misses, dedupSize := q.gate.DedupStats()
	var duplicateRate float64
	if total := hits + misses; total > 0 {
		duplicateRate = float64(hits) / float64(total)
	}

	dlqStats := q.dlq.Stats()
	journalStats := q.journal.Stats()

	failed, err := q.store.CountFailedEvents(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("QUALITY: Failed event count unavailable")
	}

	evt := logging.Debug()
	if dlqStats.Entries > 0 || duplicateRate > 0.5 {
		evt = logging.Warn()
	}
	evt.
		Float64("duplicate_rate", duplicateRate).
		Int("dedup_tracked", dedupSize).
		Int64("dlq_entries", dlqStats.Entries).
		Int64("journal_pending", journalStats.Pending).
		Int64("archived_failures", failed).
		Msg("QUALITY: Data quality check")

	if time.Since(q.lastPurge) >= retentionPurgeInterval {
		q.lastPurge = time.Now()
		purged, err := q.store.PurgeExpired(ctx, q.rules)
		if err != nil {
			logging.Error().Err(err).Msg("QUALITY: Retention purge failed")
			return
		}
		if purged > 0 {
			logging.Info().Int64("purged", purged).Msg("QUALITY: Retention purge removed expired events")
		}
	}
}
