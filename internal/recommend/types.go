// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package recommend

import "time"

// Reasons attached to recommended items. They explain which signal
// produced the item, not how strongly.
const (
	// ReasonCoView marks items from co-interaction overlap with a seed
	// vehicle.
	ReasonCoView = "co_view"
	// ReasonPopular marks items from the marketplace-wide popularity
	// ranking.
	ReasonPopular = "popular"
)

// Item is one recommended vehicle with its blended score.
type Item struct {
	// VehicleID identifies the recommended listing.
	VehicleID string `json:"vehicle_id"`

	// Score is the recommendation score, higher is better. Scores are
	// comparable within one entry, not across users.
	Score float64 `json:"score"`

	// Reason names the signal that produced this item.
	Reason string `json:"reason,omitempty"`
}

// Entry is a user's cached recommendation list. Entries are replaced
// wholesale on refresh; readers see either a complete list or nothing.
type Entry struct {
	// UserID is the user the recommendations were computed for.
	UserID string `json:"user_id"`

	// Items is the ordered recommendation list, best first.
	Items []Item `json:"items"`

	// ComputedAt is when the entry was built.
	ComputedAt time.Time `json:"computed_at"`

	// TTL is the lifetime the entry was stored with.
	TTL time.Duration `json:"ttl"`
}
