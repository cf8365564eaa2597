// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

// Package journal provides crash durability for the tier queues. Admitted
// events are written to an embedded Badger store before they are enqueued
// and confirmed once they reach the database, so anything still pending
// after a crash can be replayed into the queues on the next start.
//
// Entries are keyed by event ID under a pending prefix and moved to a
// confirmed prefix on confirmation. A background compaction pass drops
// confirmed entries and reclaims value log space; pending entries carry a
// TTL matching the ingest window, since an event too old to be accepted
// is also too old to be worth replaying.
//
// The journal is optional. When disabled, Open returns a Nop implementation
// and the pipeline runs on in-memory queues alone, trading durability for
// zero disk I/O.
package journal
