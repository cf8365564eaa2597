// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the behavior pipeline:
// - Ingest outcomes (processed / rejected / dropped)
// - Tier queue depths and batch flush performance
// - Dead letter queue movement
// - Learning loop health
// - Session, cache, live feed, and API surfaces

var (
	// Ingest Metrics
	EventsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_events_processed_total",
			Help: "Total number of behavior events accepted by the collector",
		},
	)

	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_events_rejected_total",
			Help: "Total number of events rejected by the quality gate",
		},
		[]string{"reason"}, // missing_field, invalid_user, out_of_range, timestamp_range, duplicate, auth_required
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_events_dropped_total",
			Help: "Total number of events that matched no collection rule",
		},
	)

	ProcessingErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_processing_errors_total",
			Help: "Total number of ingest-path processing errors",
		},
	)

	EventsPerMinute = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_events_per_minute",
			Help: "Events accepted in the trailing sixty seconds",
		},
	)

	// Tier Queue Metrics
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_queue_depth",
			Help: "Current number of events waiting in a tier queue",
		},
		[]string{"tier"},
	)

	QueueDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_queue_drops_total",
			Help: "Total number of events dropped because a tier queue was full",
		},
		[]string{"tier"},
	)

	TierProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_tier_processed_total",
			Help: "Total number of events handed to the persister per tier",
		},
		[]string{"tier", "path"}, // path: "immediate", "batch"
	)

	HighValueReroutes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_high_value_reroutes_total",
			Help: "Total number of batched events re-routed through the immediate path",
		},
	)

	// Batch Flush Metrics
	FlushDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_flush_duration_seconds",
			Help:    "Duration of tier batch flushes in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tier"},
	)

	FlushSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_flush_size",
			Help:    "Number of events per tier batch flush",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000, 2000, 5000, 10000},
		},
		[]string{"tier"},
	)

	FlushRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_flush_retries_total",
			Help: "Total number of persistence retries",
		},
		[]string{"tier"},
	)

	// Dead Letter Queue Metrics
	DLQEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dlq_entries",
			Help: "Current number of entries in the dead letter queue",
		},
	)

	DLQAdded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_added_total",
			Help: "Total number of events spilled to the dead letter queue",
		},
		[]string{"category"}, // connection, timeout, constraint, validation, capacity, unknown
	)

	DLQReplayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlq_replayed_total",
			Help: "Total number of dead letter entries successfully replayed",
		},
	)

	DLQReplayFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlq_replay_failures_total",
			Help: "Total number of failed dead letter replay attempts",
		},
	)

	// Journal Metrics
	JournalPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "journal_pending_entries",
			Help: "Current number of unconfirmed tier queue journal entries",
		},
	)

	JournalReplayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "journal_replayed_total",
			Help: "Total number of journal entries replayed into tier queues at startup",
		},
	)

	// Learning Metrics
	LearningIterations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learning_iterations_total",
			Help: "Total number of completed learning loop iterations",
		},
		[]string{"loop"}, // interaction, batch_trainer, embedding, preference
	)

	LearningFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learning_failures_total",
			Help: "Total number of learning failures by stage",
		},
		[]string{"loop"}, // the loops above, plus publish and poison
	)

	InteractionsApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "learning_interactions_applied_total",
			Help: "Total number of interactions folded into preference aggregates",
		},
	)

	// Session Metrics
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "session_active",
			Help: "Current number of tracked user sessions",
		},
	)

	SessionsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_expired_total",
			Help: "Total number of sessions removed by the idle sweep",
		},
	)

	// Recommendation Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of recommendation cache hits",
		},
		[]string{"cache_type"}, // "local", "shared"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of recommendation cache misses",
		},
		[]string{"cache_type"},
	)

	// Circuit Breaker Metrics
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Breaker state, encoded closed=0 half-open=1 open=2",
		},
		[]string{"name"},
	)

	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of breaker state changes",
		},
		[]string{"name", "from", "to"},
	)

	// Live Feed Metrics
	LiveClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "live_feed_clients",
			Help: "Current number of connected live feed clients",
		},
	)

	LiveMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "live_feed_messages_sent_total",
			Help: "Total number of frames pushed to live feed clients",
		},
	)

	// API Metrics
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served",
		},
		[]string{"method", "endpoint", "code"},
	)

	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_latency_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limited_total",
			Help: "Total number of requests refused by the rate limiter",
		},
		[]string{"endpoint"},
	)
)

// RecordRejection counts a quality gate rejection by reason.
func RecordRejection(reason string) {
	EventsRejected.WithLabelValues(reason).Inc()
}

// RecordFlush records a tier batch flush. Failure counting lives with the
// persister spill path, so this only observes the histograms.
func RecordFlush(tier string, duration time.Duration, size int) {
	FlushDuration.WithLabelValues(tier).Observe(duration.Seconds())
	FlushSize.WithLabelValues(tier).Observe(float64(size))
}

// RecordTierProcessed counts events handed to the persister.
func RecordTierProcessed(tier, path string, count int) {
	TierProcessed.WithLabelValues(tier, path).Add(float64(count))
}

// UpdateQueueDepth sets the current depth gauge for a tier queue.
func UpdateQueueDepth(tier string, depth int) {
	QueueDepth.WithLabelValues(tier).Set(float64(depth))
}

// RecordLearningIteration counts a learning loop iteration, failed or not.
func RecordLearningIteration(loop string, err error) {
	LearningIterations.WithLabelValues(loop).Inc()
	if err != nil {
		LearningFailures.WithLabelValues(loop).Inc()
	}
}

// RecordCacheLookup counts a recommendation cache lookup outcome.
func RecordCacheLookup(cacheType string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(cacheType).Inc()
		return
	}
	CacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordBreakerTransition records a circuit breaker state change.
// State encoding: closed=0, half-open=1, open=2.
func RecordBreakerTransition(name, from, to string, toValue float64) {
	BreakerTransitions.WithLabelValues(name, from, to).Inc()
	BreakerState.WithLabelValues(name).Set(toValue)
}

// RecordAPIRequest records one served HTTP request.
func RecordAPIRequest(method, endpoint, code string, duration time.Duration) {
	APIRequests.WithLabelValues(method, endpoint, code).Inc()
	APILatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
