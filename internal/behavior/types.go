// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package behavior

import (
	"time"

	json "github.com/goccy/go-json"
)

// Priority assigns an event to one of the five processing tiers. Tier
// selection happens exactly once, at classification, and is immutable
// afterwards.
type Priority string

const (
	// PriorityCritical events bypass batching entirely and are persisted
	// one at a time as they arrive.
	PriorityCritical Priority = "critical"

	// PriorityHigh events are batched on a short cadence.
	PriorityHigh Priority = "high"

	// PriorityMedium events are batched on a moderate cadence.
	PriorityMedium Priority = "medium"

	// PriorityLow events are batched on a long cadence.
	PriorityLow Priority = "low"

	// PriorityBackground events are drained in bulk for offline analytics.
	PriorityBackground Priority = "background"
)

// Tiers returns all priorities in descending urgency order. The order is
// stable and is used for queue construction, metrics iteration, and API
// responses.
func Tiers() []Priority {
	return []Priority{
		PriorityCritical,
		PriorityHigh,
		PriorityMedium,
		PriorityLow,
		PriorityBackground,
	}
}

// Valid reports whether p is one of the five known tiers.
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow, PriorityBackground:
		return true
	}
	return false
}

// Method describes how a matched event travels to the store.
type Method string

const (
	// MethodImmediate persists the event synchronously in its tier loop.
	MethodImmediate Method = "immediate"

	// MethodBatchFast buffers the event for the one-minute flush.
	MethodBatchFast Method = "batch_fast"

	// MethodBatchRegular buffers the event for the five-minute flush.
	MethodBatchRegular Method = "batch_regular"

	// MethodBatchSlow buffers the event for the thirty-minute flush.
	MethodBatchSlow Method = "batch_slow"

	// MethodOffline defers the event to the hourly bulk drain.
	MethodOffline Method = "offline"
)

// RawEvent is an ingest payload before classification. Only UserID and
// EventType are required; every other field is optional client context.
// Timestamp is the client-reported event time and is normalized to the
// server clock when absent. The validate tags cover payload shape; the
// quality gate layers the checks that need server state (reserved
// prefixes, clock windows, duplicates) on top.
type RawEvent struct {
	UserID    string    `json:"user_id" validate:"required,min=3"`
	EventType string    `json:"event_type" validate:"required"`
	Timestamp time.Time `json:"timestamp"`

	VehicleID string `json:"vehicle_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	PagePath  string `json:"page_path,omitempty"`
	Referrer  string `json:"referrer,omitempty"`

	DurationSeconds float64 `json:"duration_seconds,omitempty" validate:"gte=0"`
	ScrollDepth     float64 `json:"scroll_depth,omitempty" validate:"gte=0"`
	ClickCount      int     `json:"click_count,omitempty" validate:"gte=0"`

	DeviceType string `json:"device_type,omitempty"`
	Browser    string `json:"browser,omitempty"`
	Location   string `json:"location,omitempty"`

	RepeatVisitor bool `json:"repeat_visitor,omitempty"`
	PremiumUser   bool `json:"premium_user,omitempty"`

	// Authenticated is set by the transport layer after verifying the
	// caller's token. It never comes from the payload itself.
	Authenticated bool `json:"-"`
}

// Event is a classified, scored behavior event. Tier, method, and the two
// computed scores are assigned once by the classifier and never modified
// downstream; the pipeline treats the struct as append-only after that
// point.
type Event struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Priority  Priority  `json:"priority"`
	Method    Method    `json:"method"`
	RuleName  string    `json:"rule_name"`

	VehicleID string `json:"vehicle_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	PagePath  string `json:"page_path,omitempty"`
	Referrer  string `json:"referrer,omitempty"`

	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	ScrollDepth     float64 `json:"scroll_depth,omitempty"`
	ClickCount      int     `json:"click_count,omitempty"`

	DeviceType string `json:"device_type,omitempty"`
	Browser    string `json:"browser,omitempty"`
	Location   string `json:"location,omitempty"`

	RepeatVisitor bool `json:"repeat_visitor,omitempty"`
	PremiumUser   bool `json:"premium_user,omitempty"`

	ConversionValue float64 `json:"conversion_value"`
	LeadScore       float64 `json:"lead_score"`

	// Raw preserves the payload as received, for audit queries and for
	// replaying events whose schema predates a field.
	Raw json.RawMessage `json:"raw,omitempty"`

	// Authenticated records whether the submitting caller presented a
	// verified identity. It is transport state, not event data, and is
	// never serialized.
	Authenticated bool `json:"-"`
}

// DedupKey identifies an event for duplicate suppression: same user, same
// event type, same second. Two distinct interactions inside one second
// collapse to one, which is the intended behavior for double-submits.
func (e *Event) DedupKey() string {
	return dedupKey(e.UserID, e.EventType, e.Timestamp)
}
