// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/motrixlab/motrix/internal/behavior"
	"github.com/motrixlab/motrix/internal/logging"
)

const insertEventQuery = `INSERT INTO behavior_events (
	id, user_id, event_type, event_timestamp, priority, method, rule_name,
	vehicle_id, session_id, page_path, referrer,
	duration_seconds, scroll_depth, click_count,
	device_type, browser, location,
	repeat_visitor, premium_user,
	conversion_value, lead_score,
	raw_payload, created_at
) VALUES (
	?, ?, ?, ?, ?, ?, ?,
	?, ?, ?, ?,
	?, ?, ?,
	?, ?, ?,
	?, ?,
	?, ?,
	?, ?
) ON CONFLICT DO NOTHING`

// eventArgs flattens an event into the insert argument list. Empty strings
// and zero metrics become NULLs so the analytics queries can distinguish
// absent from zero.
func eventArgs(ev *behavior.Event) []any {
	return []any{
		ev.ID, ev.UserID, ev.EventType, ev.Timestamp, string(ev.Priority), string(ev.Method), ev.RuleName,
		nullStr(ev.VehicleID), nullStr(ev.SessionID), nullStr(ev.PagePath), nullStr(ev.Referrer),
		nullFloat(ev.DurationSeconds), nullFloat(ev.ScrollDepth), nullInt(ev.ClickCount),
		nullStr(ev.DeviceType), nullStr(ev.Browser), nullStr(ev.Location),
		ev.RepeatVisitor, ev.PremiumUser,
		ev.ConversionValue, ev.LeadScore,
		nullStr(string(ev.Raw)), time.Now(),
	}
}

// InsertBehaviorEvent inserts a single event.
//
// The event id is the idempotency key: ON CONFLICT DO NOTHING makes
// redelivery from the critical path, a batch retry, or the DLQ worker a
// silent no-op, which is what makes at-least-once delivery safe.
func (s *Store) InsertBehaviorEvent(ctx context.Context, ev *behavior.Event) error {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	stmt, err := s.getOrPrepare(ctx, insertEventQuery)
	if err != nil {
		return err
	}

	result, err := stmt.ExecContext(ctx, eventArgs(ev)...)
	if err != nil {
		return fmt.Errorf("failed to insert behavior event: %w", err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		logging.Debug().
			Str("event_id", ev.ID).
			Str("event_type", ev.EventType).
			Msg("STORE: Duplicate event skipped")
	}

	return nil
}

// InsertBehaviorEventsBatch atomically inserts a batch of events inside
// one transaction: either every row is applied or none is. Rows whose id
// already exists count as duplicates, not failures, so a retried batch
// commits cleanly.
func (s *Store) InsertBehaviorEventsBatch(ctx context.Context, events []*behavior.Event) (inserted int, duplicates int, err error) {
	if len(events) == 0 {
		return 0, 0, nil
	}

	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Error().Err(rbErr).AnErr("original_error", err).Msg("STORE: Transaction rollback failed")
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertEventQuery)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			logging.Warn().Err(closeErr).Msg("STORE: Failed to close prepared statement")
		}
	}()

	for i, ev := range events {
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}

		result, execErr := stmt.ExecContext(ctx, eventArgs(ev)...)
		if execErr != nil {
			err = fmt.Errorf("failed to insert event %d (%s): %w", i, ev.ID, execErr)
			return 0, 0, err
		}

		affected, rowsErr := result.RowsAffected()
		if rowsErr != nil {
			err = fmt.Errorf("failed to get rows affected for event %d: %w", i, rowsErr)
			return 0, 0, err
		}
		if affected > 0 {
			inserted++
		} else {
			duplicates++
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	logging.Debug().
		Int("inserted", inserted).
		Int("duplicates", duplicates).
		Int("total", len(events)).
		Msg("STORE: Batch committed")

	return inserted, duplicates, nil
}

const selectEventColumns = `id, user_id, event_type, event_timestamp, priority, method, rule_name,
	vehicle_id, session_id, page_path, referrer,
	duration_seconds, scroll_depth, click_count,
	device_type, browser, location,
	repeat_visitor, premium_user,
	conversion_value, lead_score`

// scanEvent reads one behavior_events row.
func scanEvent(rows *sql.Rows) (*behavior.Event, error) {
	var (
		ev                                       behavior.Event
		vehicleID, sessionID, pagePath, referrer sql.NullString
		duration, scrollDepth                    sql.NullFloat64
		clickCount                               sql.NullInt32
		deviceType, browser, location            sql.NullString
		priority, method                         string
	)

	if err := rows.Scan(
		&ev.ID, &ev.UserID, &ev.EventType, &ev.Timestamp, &priority, &method, &ev.RuleName,
		&vehicleID, &sessionID, &pagePath, &referrer,
		&duration, &scrollDepth, &clickCount,
		&deviceType, &browser, &location,
		&ev.RepeatVisitor, &ev.PremiumUser,
		&ev.ConversionValue, &ev.LeadScore,
	); err != nil {
		return nil, err
	}

	ev.Priority = behavior.Priority(priority)
	ev.Method = behavior.Method(method)
	ev.VehicleID = vehicleID.String
	ev.SessionID = sessionID.String
	ev.PagePath = pagePath.String
	ev.Referrer = referrer.String
	ev.DurationSeconds = duration.Float64
	ev.ScrollDepth = scrollDepth.Float64
	ev.ClickCount = int(clickCount.Int32)
	ev.DeviceType = deviceType.String
	ev.Browser = browser.String
	ev.Location = location.String

	return &ev, nil
}

// EventsSince returns events with a timestamp at or after since, oldest
// first, up to limit rows. The batch trainer uses this for its training
// window.
func (s *Store) EventsSince(ctx context.Context, since time.Time, limit int) ([]*behavior.Event, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	query := `SELECT ` + selectEventColumns + `
		FROM behavior_events
		WHERE event_timestamp >= ?
		ORDER BY event_timestamp ASC
		LIMIT ?`

	rows, err := s.conn.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events since %s: %w", since.Format(time.RFC3339), err)
	}
	defer closeRows(rows)

	var events []*behavior.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ActiveUsers returns distinct user ids with activity at or after since,
// most active first, up to limit.
func (s *Store) ActiveUsers(ctx context.Context, since time.Time, limit int) ([]string, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	query := `SELECT user_id
		FROM behavior_events
		WHERE event_timestamp >= ?
		GROUP BY user_id
		ORDER BY COUNT(*) DESC
		LIMIT ?`

	rows, err := s.conn.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query active users: %w", err)
	}
	defer closeRows(rows)

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// ActiveVehicles returns distinct vehicle ids touched at or after since.
// The embedding refresher scopes its recomputation to these.
func (s *Store) ActiveVehicles(ctx context.Context, since time.Time, limit int) ([]string, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	query := `SELECT vehicle_id
		FROM behavior_events
		WHERE event_timestamp >= ? AND vehicle_id IS NOT NULL
		GROUP BY vehicle_id
		ORDER BY COUNT(*) DESC
		LIMIT ?`

	rows, err := s.conn.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query active vehicles: %w", err)
	}
	defer closeRows(rows)

	var vehicles []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan vehicle id: %w", err)
		}
		vehicles = append(vehicles, id)
	}
	return vehicles, rows.Err()
}

// CountEvents returns the total number of persisted events.
func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	var count int64
	err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM behavior_events").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// PurgeExpired deletes events older than each rule's retention period and
// returns the total rows removed. One statement per rule keeps the deletes
// small and index-friendly.
func (s *Store) PurgeExpired(ctx context.Context, rules []behavior.CollectionRule) (int64, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	var total int64
	for _, rule := range rules {
		if rule.RetentionDays <= 0 {
			continue
		}
		cutoff := time.Now().AddDate(0, 0, -rule.RetentionDays)

		result, err := s.conn.ExecContext(ctx,
			`DELETE FROM behavior_events WHERE rule_name = ? AND event_timestamp < ?`,
			rule.Name, cutoff)
		if err != nil {
			return total, fmt.Errorf("failed to purge rule %q: %w", rule.Name, err)
		}
		if affected, err := result.RowsAffected(); err == nil {
			total += affected
		}
	}

	if total > 0 {
		logging.Info().Int64("purged", total).Msg("STORE: Retention sweep removed expired events")
	}
	return total, nil
}

// Null helpers keep absent optional fields as SQL NULL rather than zero
// values.

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullFloat(v float64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		logging.Warn().Err(err).Msg("STORE: Failed to close rows")
	}
}
