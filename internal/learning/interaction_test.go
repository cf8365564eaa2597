// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package learning

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/motrixlab/motrix/internal/behavior"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNormalizeKind(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		want      Kind
	}{
		{"purchase completion", "purchase_complete", KindPurchase},
		{"contract family", "contract_signed", KindPurchase},
		{"payment family", "payment_initiated", KindPurchase},
		{"composite inquiry", "vehicle_inquiry", KindInquiry},
		{"quote request", "request_quote", KindInquiry},
		{"contact family", "contact_seller", KindInquiry},
		{"plain like", "like", KindLike},
		{"favorite", "favorite", KindLike},
		{"save", "save", KindLike},
		{"share", "share", KindLike},
		{"share composite is not a like", "share_listing", KindView},
		{"compare family", "compare_add", KindCompare},
		{"wishlist family", "wishlist_remove", KindCompare},
		{"page view", "page_view", KindView},
		{"search falls through to view", "search_results", KindView},
		{"case insensitive", "LIKE", KindLike},
		{"whitespace trimmed", "  Purchase_Complete  ", KindPurchase},
		{"empty type", "", KindView},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeKind(tt.eventType); got != tt.want {
				t.Errorf("NormalizeKind(%q) = %q, want %q", tt.eventType, got, tt.want)
			}
		})
	}
}

func TestEngagementScore(t *testing.T) {
	tests := []struct {
		name     string
		kind     Kind
		duration float64
		repeat   bool
		want     float64
	}{
		{"absent duration assumes ten seconds", KindView, 0, false, 0.1 * (10.0 / 60.0)},
		{"one minute purchase", KindPurchase, 60, false, 1.0},
		{"duration saturates at two minutes", KindLike, 600, false, 0.6},
		{"repeat visitor boost", KindLike, 300, true, 0.72},
		{"half minute inquiry", KindInquiry, 30, false, 0.35},
		{"saturated repeat view", KindView, 600, true, 0.24},
		{"score capped at one", KindPurchase, 90, true, 1.0},
		{"unknown kind scores as view", Kind("scroll"), 60, false, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EngagementScore(tt.kind, tt.duration, tt.repeat)
			if !almostEqual(got, tt.want) {
				t.Errorf("EngagementScore(%q, %v, %v) = %v, want %v", tt.kind, tt.duration, tt.repeat, got, tt.want)
			}
		})
	}
}

func TestPreferenceWeight(t *testing.T) {
	tests := []struct {
		kind Kind
		want float64
	}{
		{KindView, 0.1},
		{KindLike, 0.3},
		{KindInquiry, 0.6},
		{KindCompare, 0.4},
		{KindPurchase, 1.0},
		{Kind("scroll"), 0},
	}

	for _, tt := range tests {
		if got := tt.kind.PreferenceWeight(); !almostEqual(got, tt.want) {
			t.Errorf("PreferenceWeight(%q) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestFromEventCarriesFields(t *testing.T) {
	ev := learnEvent("ev-1", "user_alpha", "purchase_complete", "veh-9", 120)

	inter, err := FromEvent(ev)
	if err != nil {
		t.Fatalf("FromEvent() error = %v", err)
	}

	if inter.EventID != "ev-1" || inter.UserID != "user_alpha" {
		t.Errorf("identity = %q/%q, want ev-1/user_alpha", inter.EventID, inter.UserID)
	}
	if inter.VehicleID != "veh-9" || inter.SessionID != "sess-1" {
		t.Errorf("context = %q/%q, want veh-9/sess-1", inter.VehicleID, inter.SessionID)
	}
	if inter.Kind != KindPurchase || inter.EventType != "purchase_complete" {
		t.Errorf("kind = %q (%q), want purchase (purchase_complete)", inter.Kind, inter.EventType)
	}
	// Purchase base 1.0 at the two-minute saturation point, capped.
	if !almostEqual(inter.EngagementScore, 1.0) {
		t.Errorf("EngagementScore = %v, want 1.0", inter.EngagementScore)
	}
	if !inter.Timestamp.Equal(ev.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", inter.Timestamp, ev.Timestamp)
	}
}

func TestFromEventRequiresUser(t *testing.T) {
	_, err := FromEvent(learnEvent("ev-1", "", "page_view", "", 0))
	if !errors.Is(err, ErrNoUser) {
		t.Errorf("FromEvent() error = %v, want ErrNoUser", err)
	}

	if _, err := FromEvent(nil); err == nil {
		t.Error("FromEvent(nil) should fail")
	}
}

func TestFromEventNormalizesZeroTimestamp(t *testing.T) {
	inter, err := FromEvent(&behavior.Event{ID: "ev-1", UserID: "user_alpha", EventType: "page_view"})
	if err != nil {
		t.Fatalf("FromEvent() error = %v", err)
	}
	if inter.Timestamp.IsZero() {
		t.Fatal("zero timestamp should be replaced with the server clock")
	}
	if time.Since(inter.Timestamp) > time.Minute {
		t.Errorf("normalized timestamp %v is not recent", inter.Timestamp)
	}
}

func TestPreferenceDeltas(t *testing.T) {
	withVehicle := &Interaction{
		UserID:          "user_alpha",
		VehicleID:       "veh-9",
		Kind:            KindLike,
		EngagementScore: 0.5,
	}

	deltas := withVehicle.PreferenceDeltas()
	if len(deltas) != 2 {
		t.Fatalf("len(deltas) = %d, want 2", len(deltas))
	}
	if !almostEqual(deltas["kind:like"], 0.15) {
		t.Errorf("kind delta = %v, want 0.15", deltas["kind:like"])
	}
	if !almostEqual(deltas["vehicle:veh-9"], 0.15) {
		t.Errorf("vehicle delta = %v, want 0.15", deltas["vehicle:veh-9"])
	}

	withoutVehicle := &Interaction{UserID: "user_alpha", Kind: KindView, EngagementScore: 0.2}
	deltas = withoutVehicle.PreferenceDeltas()
	if len(deltas) != 1 {
		t.Fatalf("len(deltas) = %d, want 1", len(deltas))
	}
	if !almostEqual(deltas["kind:view"], 0.02) {
		t.Errorf("kind delta = %v, want 0.02", deltas["kind:view"])
	}
}
