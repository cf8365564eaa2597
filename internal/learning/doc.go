// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

// Package learning folds admitted behavior events into user preference
// profiles and vehicle popularity scores. The Coordinator offers two
// paths with exactly-once analysis between them: ApplyImmediate folds an
// interaction synchronously (critical purchases and inquiries),
// ApplyDeferred publishes the rest onto an in-process message bus whose
// consumer folds them asynchronously. Three background loops run on
// fixed cadences: the batch trainer summarizes recent windows for the
// model, the embedding refresher recomputes vectors for active entities,
// and the preference recalculator decays and renormalizes stored
// weights.
//
// Nothing in this package is fatal to ingest. A failed fold is retried
// by the bus, then poisoned and counted; a failed loop iteration logs
// and waits for the next tick.
package learning
