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

// VehiclePopularity is one row of the popularity table.
type VehiclePopularity struct {
	VehicleID string  `json:"vehicle_id"`
	Views     int64   `json:"views"`
	Likes     int64   `json:"likes"`
	Inquiries int64   `json:"inquiries"`
	Compares  int64   `json:"compares"`
	Purchases int64   `json:"purchases"`
	Score     float64 `json:"score"`
}

// popularityColumns maps a canonical interaction kind to its counter
// column. The column names are fixed identifiers, never user input.
var popularityColumns = map[string]string{
	"view":     "views",
	"like":     "likes",
	"inquiry":  "inquiries",
	"compare":  "compares",
	"purchase": "purchases",
}

// BumpVehiclePopularity accumulates one interaction of the given kind and
// its weighted score contribution. Counters and score only ever grow by
// deltas, so concurrent bumps from any path compose.
func (s *Store) BumpVehiclePopularity(ctx context.Context, vehicleID, kind string, scoreDelta float64) error {
	if vehicleID == "" {
		return nil
	}
	column, ok := popularityColumns[kind]
	if !ok {
		return fmt.Errorf("unknown interaction kind %q", kind)
	}

	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`INSERT INTO vehicle_popularity (vehicle_id, %s, score, updated_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT (vehicle_id) DO UPDATE SET
			%s = vehicle_popularity.%s + 1,
			score = vehicle_popularity.score + EXCLUDED.score,
			updated_at = EXCLUDED.updated_at`, column, column, column)

	stmt, err := s.getOrPrepare(ctx, query)
	if err != nil {
		return err
	}

	if _, err := stmt.ExecContext(ctx, vehicleID, scoreDelta, time.Now()); err != nil {
		return fmt.Errorf("failed to bump popularity for vehicle %s: %w", vehicleID, err)
	}
	return nil
}

// TopVehicles returns the highest-scored vehicles, ties broken by view
// count.
func (s *Store) TopVehicles(ctx context.Context, limit int) ([]VehiclePopularity, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx,
		`SELECT vehicle_id, views, likes, inquiries, compares, purchases, score
		FROM vehicle_popularity
		ORDER BY score DESC, views DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top vehicles: %w", err)
	}
	defer closeRows(rows)

	var out []VehiclePopularity
	for rows.Next() {
		var v VehiclePopularity
		if err := rows.Scan(&v.VehicleID, &v.Views, &v.Likes, &v.Inquiries, &v.Compares, &v.Purchases, &v.Score); err != nil {
			return nil, fmt.Errorf("failed to scan vehicle popularity: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CoViewedVehicles returns vehicles that users who interacted with
// vehicleID also interacted with, ranked by how many distinct users
// overlap. This is the similarity signal behind "people who looked at this
// also looked at".
func (s *Store) CoViewedVehicles(ctx context.Context, vehicleID string, limit int) ([]string, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	query := `SELECT other.vehicle_id
		FROM behavior_events AS seed
		JOIN behavior_events AS other
			ON other.user_id = seed.user_id
			AND other.vehicle_id IS NOT NULL
			AND other.vehicle_id <> seed.vehicle_id
		WHERE seed.vehicle_id = ?
		GROUP BY other.vehicle_id
		ORDER BY COUNT(DISTINCT other.user_id) DESC
		LIMIT ?`

	rows, err := s.conn.QueryContext(ctx, query, vehicleID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query co-viewed vehicles for %s: %w", vehicleID, err)
	}
	defer closeRows(rows)

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan vehicle id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
