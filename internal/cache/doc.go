// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

/*
Package cache provides thread-safe in-memory data structures for caching,
deduplication, and scheduling used across the behavior pipeline.

# Structures

Cache is a typed TTL map with read-time expiry and a background sweep.
The recommendation layer uses one as the local fallback store and the
engine another to memoize similarity lists; entries past their TTL read
as absent, never stale.

DedupWindow is a capacity-bounded set of recently seen keys with a fixed
per-record expiry. Its Seen method is the quality gate's dedup primitive:
check-and-record under one lock, so concurrent submissions of the same
key cannot both pass.

KeyedHeap is a generic min-heap ordered by timestamp with O(1) key lookup.
The dead letter queue uses it for oldest-first capacity eviction and for
popping entries whose next retry time has passed.

RateWindow is an epoch-stamped slot ring for trailing-window rates. The
collector uses a 60-slot one-minute window to report events per minute.

# Thread Safety

All structures are safe for concurrent use. Locks are held only for the
duration of individual operations; no structure calls out while locked.
*/
package cache
