// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

/*
schema.go - Database Schema Management

Tables:
  - behavior_events: every persisted behavior event, one row per event id.
    The id is the idempotency key for at-least-once delivery from the tier
    processors and the DLQ retry worker.
  - user_preferences: per-user attribute weights. Rows are only ever
    accumulated into (weight = weight + delta) or uniformly scaled by the
    preference recalculator, never overwritten, so concurrent writers from
    the immediate and batched learning paths compose safely.
  - vehicle_popularity: per-vehicle interaction counters and a weighted
    popularity score, accumulated the same way.
  - failed_events: terminal dead letters. Batches that exhausted their
    retries land here with enough payload to re-ingest by hand.

Schema Strategy:
All columns are defined in the initial CREATE TABLE statements; there is no
migration chain yet. Indexes cover the hot query paths: recency windows for
the learning loops, per-user and per-vehicle lookups, and rule-scoped
retention sweeps.
*/

package store

import (
	"context"
	"fmt"
	"time"
)

// schemaTimeout bounds DDL statements, which on a cold open may pay for
// DuckDB catalog initialization.
const schemaTimeout = time.Minute

// createTables creates the core tables.
func (s *Store) createTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS behavior_events (
			-- Identity and classification
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			event_timestamp TIMESTAMP NOT NULL,
			priority TEXT NOT NULL,
			method TEXT NOT NULL,
			rule_name TEXT NOT NULL,

			-- Event context
			vehicle_id TEXT,
			session_id TEXT,
			page_path TEXT,
			referrer TEXT,

			-- Engagement metrics
			duration_seconds DOUBLE,
			scroll_depth DOUBLE,
			click_count INTEGER,

			-- Client context
			device_type TEXT,
			browser TEXT,
			location TEXT,

			-- Visitor flags
			repeat_visitor BOOLEAN NOT NULL DEFAULT FALSE,
			premium_user BOOLEAN NOT NULL DEFAULT FALSE,

			-- Computed business metrics
			conversion_value DOUBLE NOT NULL,
			lead_score DOUBLE NOT NULL,

			-- Original payload for audit and replay
			raw_payload TEXT,

			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS user_preferences (
			user_id TEXT NOT NULL,
			attribute TEXT NOT NULL,
			weight DOUBLE NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, attribute)
		)`,

		`CREATE TABLE IF NOT EXISTS vehicle_popularity (
			vehicle_id TEXT PRIMARY KEY,
			views BIGINT NOT NULL DEFAULT 0,
			likes BIGINT NOT NULL DEFAULT 0,
			inquiries BIGINT NOT NULL DEFAULT 0,
			compares BIGINT NOT NULL DEFAULT 0,
			purchases BIGINT NOT NULL DEFAULT 0,
			score DOUBLE NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS failed_events (
			id UUID PRIMARY KEY,
			event_id TEXT NOT NULL,
			user_id TEXT,
			event_type TEXT,
			priority TEXT,
			payload TEXT NOT NULL,
			category TEXT NOT NULL,
			reason TEXT NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			failed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, query := range queries {
		if _, err := s.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create table: %s: %w", query, err)
		}
	}

	return nil
}

// createIndexes creates indexes for the hot query paths.
func (s *Store) createIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()

	indexes := []string{
		// Learning loop windows and metrics scans
		`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON behavior_events(event_timestamp)`,
		// Per-user activity and preference recalculation
		`CREATE INDEX IF NOT EXISTS idx_events_user_time ON behavior_events(user_id, event_timestamp)`,
		// Vehicle popularity and co-view queries
		`CREATE INDEX IF NOT EXISTS idx_events_vehicle ON behavior_events(vehicle_id)`,
		// Session reconstruction
		`CREATE INDEX IF NOT EXISTS idx_events_session ON behavior_events(session_id)`,
		// Rule-scoped retention sweeps
		`CREATE INDEX IF NOT EXISTS idx_events_rule_time ON behavior_events(rule_name, event_timestamp)`,
		// DLQ inspection
		`CREATE INDEX IF NOT EXISTS idx_failed_events_time ON failed_events(failed_at)`,
	}

	for _, query := range indexes {
		if _, err := s.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create index: %s: %w", query, err)
		}
	}

	return nil
}
