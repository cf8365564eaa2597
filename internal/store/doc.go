// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

// Package store is the DuckDB persistence layer. It owns the schema
// (behavior_events, user_preferences, vehicle_popularity, failed_events)
// and every query the pipeline and the learning loops run against it.
//
// Two write disciplines keep concurrent writers honest:
//
//   - Event inserts are idempotent on the event id (ON CONFLICT DO
//     NOTHING), so at-least-once delivery from the tier processors and the
//     DLQ retry worker never duplicates a row.
//   - Preference and popularity mutations are additive upserts (weight =
//     weight + delta). Additions commute, so the immediate learning path,
//     the bus consumer, and redeliveries can interleave freely.
//
// Anything that cannot be expressed in one of those two shapes does not
// belong in this package.
package store
