// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package learning

import (
	"errors"
	"strings"
	"time"

	"github.com/motrixlab/motrix/internal/behavior"
)

// Kind is a canonical interaction category. Every raw event type maps to
// exactly one kind; the preference and popularity folds only understand
// kinds, never raw types.
type Kind string

const (
	KindView     Kind = "view"
	KindLike     Kind = "like"
	KindInquiry  Kind = "inquiry"
	KindCompare  Kind = "compare"
	KindPurchase Kind = "purchase"
)

// Engagement scoring constants. Duration saturates at two minutes and the
// repeat-visitor boost can never push the score past 1.0.
const (
	defaultDurationSeconds = 10.0
	maxDurationWeight      = 2.0
	repeatVisitorBoost     = 1.2
	maxEngagementScore     = 1.0
)

// preferenceWeights drive the additive preference fold. They are not the
// engagement bases; the two tables differ for inquiry and compare.
var preferenceWeights = map[Kind]float64{
	KindView:     0.1,
	KindLike:     0.3,
	KindInquiry:  0.6,
	KindCompare:  0.4,
	KindPurchase: 1.0,
}

// engagementBases seed the engagement score before duration and
// repeat-visitor adjustments.
var engagementBases = map[Kind]float64{
	KindView:     0.1,
	KindLike:     0.3,
	KindInquiry:  0.7,
	KindCompare:  0.5,
	KindPurchase: 1.0,
}

// likeTypes are matched exactly; "share" appearing inside a longer type
// name does not make it a like.
var likeTypes = map[string]struct{}{
	"like":     {},
	"favorite": {},
	"save":     {},
	"share":    {},
}

// NormalizeKind maps a raw event type to its canonical kind. Matching is
// case-insensitive; purchase, inquiry, and compare families match by
// containment so composite types (vehicle_inquiry, purchase_complete,
// compare_add) land in the right bucket. Unrecognized types are views.
func NormalizeKind(eventType string) Kind {
	t := strings.ToLower(strings.TrimSpace(eventType))

	switch {
	case containsAny(t, "purchase", "contract", "payment"):
		return KindPurchase
	case containsAny(t, "inquiry", "quote", "contact"):
		return KindInquiry
	}

	if _, ok := likeTypes[t]; ok {
		return KindLike
	}

	if containsAny(t, "compare", "wishlist") {
		return KindCompare
	}
	return KindView
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// PreferenceWeight returns the additive weight this kind contributes to a
// user's preference profile. Unknown kinds weigh nothing.
func (k Kind) PreferenceWeight() float64 {
	return preferenceWeights[k]
}

// EngagementScore computes how engaged the user was during a single
// interaction, on [0, 1]. Longer dwell raises the score up to a two-minute
// saturation point, repeat visitors get a flat boost, and absent durations
// assume a ten-second glance.
func EngagementScore(kind Kind, durationSeconds float64, repeatVisitor bool) float64 {
	base, ok := engagementBases[kind]
	if !ok {
		base = engagementBases[KindView]
	}

	if durationSeconds <= 0 {
		durationSeconds = defaultDurationSeconds
	}
	durationWeight := durationSeconds / 60.0
	if durationWeight > maxDurationWeight {
		durationWeight = maxDurationWeight
	}

	score := base * durationWeight
	if repeatVisitor {
		score *= repeatVisitorBoost
	}
	if score > maxEngagementScore {
		score = maxEngagementScore
	}
	return score
}

// Interaction is the unit of learning: one classified event reduced to
// the fields the folds and the trainer care about. It is the payload
// travelling over the learning bus.
type Interaction struct {
	EventID   string `json:"event_id"`
	UserID    string `json:"user_id"`
	VehicleID string `json:"vehicle_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	Kind      Kind   `json:"kind"`
	EventType string `json:"event_type"`

	EngagementScore float64   `json:"engagement_score"`
	DurationSeconds float64   `json:"duration_seconds"`
	Timestamp       time.Time `json:"timestamp"`
}

// ErrNoUser marks an event that cannot be attributed to anyone and is
// therefore unlearnable.
var ErrNoUser = errors.New("interaction has no user id")

// FromEvent reduces a classified event to an interaction. Only the user id
// is required; vehicle-less events (searches, page views) still shape the
// user's kind profile, they just cannot bump any vehicle's popularity.
func FromEvent(ev *behavior.Event) (*Interaction, error) {
	if ev == nil {
		return nil, errors.New("nil event")
	}
	if ev.UserID == "" {
		return nil, ErrNoUser
	}

	kind := NormalizeKind(ev.EventType)
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return &Interaction{
		EventID:         ev.ID,
		UserID:          ev.UserID,
		VehicleID:       ev.VehicleID,
		SessionID:       ev.SessionID,
		Kind:            kind,
		EventType:       ev.EventType,
		EngagementScore: EngagementScore(kind, ev.DurationSeconds, ev.RepeatVisitor),
		DurationSeconds: ev.DurationSeconds,
		Timestamp:       ts,
	}, nil
}

// PreferenceDeltas returns the additive weight adjustments this
// interaction contributes to its user's profile. The kind attribute is
// always present; the vehicle attribute only when the event references
// one. Deltas scale with engagement so a two-minute inquiry moves the
// profile further than a bounce.
func (i *Interaction) PreferenceDeltas() map[string]float64 {
	delta := i.Kind.PreferenceWeight() * i.EngagementScore

	deltas := map[string]float64{
		"kind:" + string(i.Kind): delta,
	}
	if i.VehicleID != "" {
		deltas["vehicle:"+i.VehicleID] = delta
	}
	return deltas
}
