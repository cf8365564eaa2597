// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

// Package recommend serves per-user vehicle recommendations from a
// two-tier cache backed by a store-driven similarity engine.
//
// # Cache
//
// Cache layers an optional shared Redis tier over an always-present
// in-process tier. Reads try the shared tier first and fall back to
// local; writes go through to both. Entries expire by TTL and are
// replaced wholesale on refresh. A shared-tier outage degrades the
// cache to local-only; it never fails a lookup.
//
// # Engine
//
// Engine derives similar vehicles from co-interaction overlap ("users
// who looked at this also looked at") with a popularity fallback for
// vehicles that have too little overlap history. RefreshUser rebuilds
// a user's cache entry from their preference profile: their strongest
// vehicles seed the similarity queries, scores blend by preference
// weight, and vehicles the user has already interacted with are
// excluded. Users without vehicle history receive the popularity
// ranking.
//
// The learning coordinator triggers RefreshUser after high-engagement
// interactions, so the cache tracks behavior without any request-time
// recomputation.
package recommend
