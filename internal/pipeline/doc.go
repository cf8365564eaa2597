// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

// Package pipeline moves admitted events from ingest to storage. The
// Collector screens, classifies, and routes; the Router fans events onto
// five tier queues; TierProcessors drain them on tier-specific cadences;
// the Persister writes through a circuit breaker with bounded retry and
// spills exhausted failures to the dead letter queue, whose retry worker
// replays them and archives what cannot be saved.
//
// The ingest path never blocks: full queues drop, quality failures
// reject, and everything downstream of the queues is asynchronous.
package pipeline
