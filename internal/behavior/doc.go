// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

// Package behavior holds the domain model for user behavior collection:
// event types, the collection rule table, the quality gate, scoring, and
// session tracking.
//
// An ingest payload moves through the package in a fixed order. The
// quality gate screens the raw payload, the rule set picks the first
// matching rule, the classifier builds a scored Event under that rule,
// and the gate then admits it against the rule's auth requirement and the
// duplicate-suppression window. Events that match no rule are dropped;
// events the gate refuses are rejected with a terminal reason.
//
// Everything here is pure domain logic with no I/O; queueing, batching,
// and persistence live in the pipeline package.
package behavior
