// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package store

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/motrixlab/motrix/internal/behavior"
	"github.com/motrixlab/motrix/internal/logging"
)

// FailedEvent is a terminal dead letter: an event whose persistence
// retries were exhausted. The payload column carries the full serialized
// event so an operator can re-ingest it once the underlying fault is
// fixed.
type FailedEvent struct {
	ID         string    `json:"id"`
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	EventType  string    `json:"event_type"`
	Priority   string    `json:"priority"`
	Payload    string    `json:"payload"`
	Category   string    `json:"category"`
	Reason     string    `json:"reason"`
	RetryCount int       `json:"retry_count"`
	FailedAt   time.Time `json:"failed_at"`
}

// InsertFailedEvent records a terminal dead letter.
func (s *Store) InsertFailedEvent(ctx context.Context, ev *behavior.Event, category, reason string, retryCount int) error {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to serialize dead letter %s: %w", ev.ID, err)
	}

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO failed_events (id, event_id, user_id, event_type, priority, payload, category, reason, retry_count, failed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		uuid.NewString(), ev.ID, ev.UserID, ev.EventType, string(ev.Priority),
		string(payload), category, reason, retryCount, time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert dead letter for event %s: %w", ev.ID, err)
	}

	logging.Warn().
		Str("event_id", ev.ID).
		Str("category", category).
		Int("retry_count", retryCount).
		Msg("STORE: Event dead-lettered")

	return nil
}

// CountFailedEvents returns the number of terminal dead letters.
func (s *Store) CountFailedEvents(ctx context.Context) (int64, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	var count int64
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM failed_events").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count failed events: %w", err)
	}
	return count, nil
}

// ListFailedEvents returns the most recent dead letters for inspection.
func (s *Store) ListFailedEvents(ctx context.Context, limit int) ([]FailedEvent, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, event_id, COALESCE(user_id, ''), COALESCE(event_type, ''), COALESCE(priority, ''),
			payload, category, reason, retry_count, failed_at
		FROM failed_events
		ORDER BY failed_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed events: %w", err)
	}
	defer closeRows(rows)

	var out []FailedEvent
	for rows.Next() {
		var fe FailedEvent
		if err := rows.Scan(&fe.ID, &fe.EventID, &fe.UserID, &fe.EventType, &fe.Priority,
			&fe.Payload, &fe.Category, &fe.Reason, &fe.RetryCount, &fe.FailedAt); err != nil {
			return nil, fmt.Errorf("failed to scan failed event: %w", err)
		}
		out = append(out, fe)
	}
	return out, rows.Err()
}
