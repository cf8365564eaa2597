// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package behavior

import (
	"strings"
	"time"
)

// CollectionRule maps a family of event types onto a tier and a batching
// policy. Patterns are either exact strings or prefix wildcards ending in
// "*". A rule with a zero BatchWindow is an immediate rule.
type CollectionRule struct {
	Name          string        `json:"name"`
	Patterns      []string      `json:"patterns"`
	Priority      Priority      `json:"priority"`
	Method        Method        `json:"method"`
	RetentionDays int           `json:"retention_days"`
	BatchWindow   time.Duration `json:"batch_window"`
	BatchSize     int           `json:"batch_size"`
	RequiresAuth  bool          `json:"requires_auth"`
}

// matches reports whether eventType matches any of the rule's patterns.
func (r *CollectionRule) matches(eventType string) bool {
	for _, p := range r.Patterns {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			if strings.HasPrefix(eventType, prefix) {
				return true
			}
			continue
		}
		if eventType == p {
			return true
		}
	}
	return false
}

// RuleSet is an ordered collection of rules. Matching is a linear scan in
// declaration order and the first matching rule wins, so narrower rules
// must be declared before broader ones. The set is loaded once at startup
// and never mutated afterwards, which is why lookups take no lock.
type RuleSet struct {
	rules []CollectionRule
}

// NewRuleSet builds a rule set preserving the declaration order of rules.
func NewRuleSet(rules []CollectionRule) *RuleSet {
	rs := make([]CollectionRule, len(rules))
	copy(rs, rules)
	return &RuleSet{rules: rs}
}

// Match returns the first rule whose patterns match eventType. The second
// return is false when no rule matches; such events are dropped, not
// rejected.
func (s *RuleSet) Match(eventType string) (*CollectionRule, bool) {
	if eventType == "" {
		return nil, false
	}
	for i := range s.rules {
		if s.rules[i].matches(eventType) {
			return &s.rules[i], true
		}
	}
	return nil, false
}

// Len returns the number of rules in the set.
func (s *RuleSet) Len() int {
	return len(s.rules)
}

// Rules returns a copy of the rule table for reporting endpoints.
func (s *RuleSet) Rules() []CollectionRule {
	out := make([]CollectionRule, len(s.rules))
	copy(out, s.rules)
	return out
}

// DefaultRules returns the built-in marketplace rule table. Declaration
// order doubles as match precedence.
//
// Retention periods follow the business record-keeping policy: purchase
// trails are kept seven years, inquiry trails five, engagement and
// comparison signals one year, navigation ninety days, session telemetry
// thirty, and raw analytics seven.
func DefaultRules() []CollectionRule {
	return []CollectionRule{
		{
			Name:          "purchase",
			Patterns:      []string{"purchase_*", "contract_*", "payment_*"},
			Priority:      PriorityCritical,
			Method:        MethodImmediate,
			RetentionDays: 2555,
			RequiresAuth:  true,
		},
		{
			Name:          "inquiry",
			Patterns:      []string{"inquiry_*", "quote_request", "contact_*"},
			Priority:      PriorityCritical,
			Method:        MethodImmediate,
			RetentionDays: 1825,
		},
		{
			Name:          "engagement",
			Patterns:      []string{"like", "favorite", "save", "share"},
			Priority:      PriorityHigh,
			Method:        MethodBatchFast,
			RetentionDays: 365,
			BatchWindow:   time.Minute,
			BatchSize:     100,
		},
		{
			Name:          "comparison",
			Patterns:      []string{"compare_*", "wishlist_*"},
			Priority:      PriorityHigh,
			Method:        MethodBatchFast,
			RetentionDays: 365,
			BatchWindow:   time.Minute,
			BatchSize:     100,
		},
		{
			Name:          "navigation",
			Patterns:      []string{"page_view", "search", "filter"},
			Priority:      PriorityMedium,
			Method:        MethodBatchRegular,
			RetentionDays: 90,
			BatchWindow:   5 * time.Minute,
			BatchSize:     500,
		},
		{
			Name:          "session",
			Patterns:      []string{"session_*", "scroll", "hover"},
			Priority:      PriorityLow,
			Method:        MethodBatchSlow,
			RetentionDays: 30,
			BatchWindow:   30 * time.Minute,
			BatchSize:     2000,
		},
		{
			Name:          "analytics",
			Patterns:      []string{"analytics_*", "performance_*"},
			Priority:      PriorityBackground,
			Method:        MethodOffline,
			RetentionDays: 7,
			BatchWindow:   time.Hour,
			BatchSize:     10000,
		},
	}
}
