// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package behavior

import (
	"testing"
	"time"
)

func TestDefaultRulesMatch(t *testing.T) {
	rs := NewRuleSet(DefaultRules())

	tests := []struct {
		eventType    string
		wantRule     string
		wantPriority Priority
		wantMatch    bool
	}{
		{"purchase_completed", "purchase", PriorityCritical, true},
		{"contract_signed", "purchase", PriorityCritical, true},
		{"payment_initiated", "purchase", PriorityCritical, true},
		{"inquiry_submitted", "inquiry", PriorityCritical, true},
		{"quote_request", "inquiry", PriorityCritical, true},
		{"contact_dealer", "inquiry", PriorityCritical, true},
		{"like", "engagement", PriorityHigh, true},
		{"favorite", "engagement", PriorityHigh, true},
		{"save", "engagement", PriorityHigh, true},
		{"share", "engagement", PriorityHigh, true},
		{"compare_trims", "comparison", PriorityHigh, true},
		{"wishlist_add", "comparison", PriorityHigh, true},
		{"page_view", "navigation", PriorityMedium, true},
		{"search", "navigation", PriorityMedium, true},
		{"filter", "navigation", PriorityMedium, true},
		{"session_start", "session", PriorityLow, true},
		{"scroll", "session", PriorityLow, true},
		{"hover", "session", PriorityLow, true},
		{"analytics_pageload", "analytics", PriorityBackground, true},
		{"performance_paint", "analytics", PriorityBackground, true},

		// Exact patterns do not match supersets or prefixes.
		{"liked", "", "", false},
		{"page_views", "", "", false},

		// Unmatched and empty types are dropped.
		{"unknown", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			rule, ok := rs.Match(tt.eventType)
			if ok != tt.wantMatch {
				t.Fatalf("Match(%q) matched = %v, want %v", tt.eventType, ok, tt.wantMatch)
			}
			if !ok {
				return
			}
			if rule.Name != tt.wantRule {
				t.Errorf("Match(%q) rule = %q, want %q", tt.eventType, rule.Name, tt.wantRule)
			}
			if rule.Priority != tt.wantPriority {
				t.Errorf("Match(%q) priority = %q, want %q", tt.eventType, rule.Priority, tt.wantPriority)
			}
		})
	}
}

func TestRuleSetFirstMatchWins(t *testing.T) {
	rs := NewRuleSet([]CollectionRule{
		{Name: "broad", Patterns: []string{"page_*"}, Priority: PriorityLow},
		{Name: "narrow", Patterns: []string{"page_view"}, Priority: PriorityMedium},
	})

	rule, ok := rs.Match("page_view")
	if !ok {
		t.Fatal("expected a match")
	}
	if rule.Name != "broad" {
		t.Errorf("first declared rule should win, got %q", rule.Name)
	}
}

func TestRuleSetPrefixBoundary(t *testing.T) {
	rs := NewRuleSet([]CollectionRule{
		{Name: "wild", Patterns: []string{"inquiry_*"}, Priority: PriorityCritical},
	})

	if _, ok := rs.Match("inquiry_form"); !ok {
		t.Error("prefix pattern should match inquiry_form")
	}
	if _, ok := rs.Match("inquiry_"); !ok {
		t.Error("prefix pattern should match the bare prefix")
	}
	if _, ok := rs.Match("inquiry"); ok {
		t.Error("prefix pattern should not match without the underscore")
	}
}

func TestDefaultRulesTable(t *testing.T) {
	rules := DefaultRules()
	if len(rules) != 7 {
		t.Fatalf("expected 7 default rules, got %d", len(rules))
	}

	byName := make(map[string]CollectionRule, len(rules))
	for _, r := range rules {
		byName[r.Name] = r
	}

	purchase := byName["purchase"]
	if !purchase.RequiresAuth {
		t.Error("purchase rule must require auth")
	}
	if purchase.Method != MethodImmediate || purchase.BatchWindow != 0 {
		t.Errorf("purchase rule should be immediate, got method %q window %v", purchase.Method, purchase.BatchWindow)
	}
	if purchase.RetentionDays != 2555 {
		t.Errorf("purchase retention = %d, want 2555", purchase.RetentionDays)
	}

	if byName["inquiry"].RequiresAuth {
		t.Error("inquiry rule must not require auth")
	}

	nav := byName["navigation"]
	if nav.BatchWindow != 5*time.Minute || nav.BatchSize != 500 {
		t.Errorf("navigation batching = %v/%d, want 5m/500", nav.BatchWindow, nav.BatchSize)
	}

	analytics := byName["analytics"]
	if analytics.Priority != PriorityBackground || analytics.BatchSize != 10000 {
		t.Errorf("analytics rule = %q/%d, want background/10000", analytics.Priority, analytics.BatchSize)
	}
}

func TestRuleSetRulesReturnsCopy(t *testing.T) {
	rs := NewRuleSet(DefaultRules())

	out := rs.Rules()
	out[0].Name = "mutated"

	rule, ok := rs.Match("purchase_completed")
	if !ok || rule.Name != "purchase" {
		t.Error("mutating the returned slice must not affect the rule set")
	}
	if rs.Len() != 7 {
		t.Errorf("Len() = %d, want 7", rs.Len())
	}
}
