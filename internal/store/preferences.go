// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package store

import (
	"context"
	"fmt"
	"time"
)

// ApplyPreferenceDeltas folds attribute deltas into a user's preference
// aggregate. The upsert is additive (weight = weight + delta), which makes
// it commutative: the immediate learning path, the bus consumer, and a
// redelivered message can all apply their deltas in any order and arrive
// at the same aggregate.
func (s *Store) ApplyPreferenceDeltas(ctx context.Context, userID string, deltas map[string]float64) error {
	if len(deltas) == 0 {
		return nil
	}

	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	query := `INSERT INTO user_preferences (user_id, attribute, weight, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, attribute) DO UPDATE SET
			weight = user_preferences.weight + EXCLUDED.weight,
			updated_at = EXCLUDED.updated_at`

	stmt, err := s.getOrPrepare(ctx, query)
	if err != nil {
		return err
	}

	now := time.Now()
	for attribute, delta := range deltas {
		if delta == 0 {
			continue
		}
		if _, err := stmt.ExecContext(ctx, userID, attribute, delta, now); err != nil {
			return fmt.Errorf("failed to apply preference delta %q for user %s: %w", attribute, userID, err)
		}
	}
	return nil
}

// GetPreferences returns a user's attribute weights. Users with no rows
// get an empty map, not an error.
func (s *Store) GetPreferences(ctx context.Context, userID string) (map[string]float64, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx,
		`SELECT attribute, weight FROM user_preferences WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query preferences for user %s: %w", userID, err)
	}
	defer closeRows(rows)

	prefs := make(map[string]float64)
	for rows.Next() {
		var (
			attribute string
			weight    float64
		)
		if err := rows.Scan(&attribute, &weight); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		prefs[attribute] = weight
	}
	return prefs, rows.Err()
}

// ScalePreferences multiplies every weight for the given users by factor.
// The preference recalculator uses this for time decay; factor 1.0 is a
// no-op. Scaling commutes with the additive folds, so running it while
// deltas land is safe.
func (s *Store) ScalePreferences(ctx context.Context, userIDs []string, factor float64) error {
	if len(userIDs) == 0 || factor == 1.0 {
		return nil
	}

	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	stmt, err := s.getOrPrepare(ctx,
		`UPDATE user_preferences SET weight = weight * ?, updated_at = ? WHERE user_id = ?`)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, userID := range userIDs {
		if _, err := stmt.ExecContext(ctx, factor, now, userID); err != nil {
			return fmt.Errorf("failed to scale preferences for user %s: %w", userID, err)
		}
	}
	return nil
}

// PreferenceMagnitude returns the sum of absolute weights for a user. The
// recalculator uses it to decide whether a vector has drifted far enough
// to renormalize.
func (s *Store) PreferenceMagnitude(ctx context.Context, userID string) (float64, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	var magnitude float64
	err := s.conn.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(ABS(weight)), 0) FROM user_preferences WHERE user_id = ?`,
		userID).Scan(&magnitude)
	if err != nil {
		return 0, fmt.Errorf("failed to compute preference magnitude for user %s: %w", userID, err)
	}
	return magnitude, nil
}
