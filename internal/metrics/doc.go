// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

/*
Package metrics provides Prometheus metrics collection and export for observability.

This package instruments the behavior pipeline end to end using the Prometheus
client library, exposing metrics for ingest outcomes, queue pressure, persistence
performance, learning loop health, and the API surface.

# Overview

The package provides metrics for:
  - Event ingest outcomes (processed, rejected by reason, dropped)
  - Tier queue depth and overflow drops
  - Batch flush latency, size, and retries
  - Dead letter queue movement and replay outcomes
  - Learning loop iterations and failures
  - Session tracking and recommendation cache hit rates
  - Circuit breaker state transitions
  - WebSocket connections and HTTP request latency

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:8087/metrics

# Usage

Metrics are registered automatically via promauto at package initialization.
Hot paths use the Record* helpers rather than touching collectors directly:

	metrics.RecordRejection("duplicate")
	metrics.RecordFlush("high", elapsed, len(batch), err)
	metrics.UpdateQueueDepth("critical", len(queue))
	metrics.RecordLearningIteration("batch_trainer", err)

# Cardinality

Label values are drawn from small closed sets (tier names, rejection reasons,
loop names). User identifiers and event payload fields are never used as label
values.
*/
package metrics
