// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package behavior

import (
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Classifier turns raw payloads into classified, scored events. The rule
// set decides the tier and delivery method; the scorer fills in the
// business metrics. Classification is the only place these fields are
// written.
type Classifier struct {
	rules  *RuleSet
	scorer *Scorer
}

// NewClassifier builds a classifier over the given rule set.
func NewClassifier(rules *RuleSet) *Classifier {
	return &Classifier{rules: rules, scorer: NewScorer()}
}

// Rules exposes the rule set for matching and reporting.
func (c *Classifier) Rules() *RuleSet {
	return c.rules
}

// Classify builds an Event from a raw payload under the matched rule,
// using sess as read-only scoring context. A zero raw timestamp is
// normalized to the current time before anything keys off it.
func (c *Classifier) Classify(raw *RawEvent, rule *CollectionRule, sess *SessionSnapshot) *Event {
	ts := raw.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	ev := &Event{
		ID:        uuid.NewString(),
		UserID:    raw.UserID,
		EventType: raw.EventType,
		Timestamp: ts,
		Priority:  rule.Priority,
		Method:    rule.Method,
		RuleName:  rule.Name,

		VehicleID: raw.VehicleID,
		SessionID: raw.SessionID,
		PagePath:  raw.PagePath,
		Referrer:  raw.Referrer,

		DurationSeconds: raw.DurationSeconds,
		ScrollDepth:     raw.ScrollDepth,
		ClickCount:      raw.ClickCount,

		DeviceType: raw.DeviceType,
		Browser:    raw.Browser,
		Location:   raw.Location,

		RepeatVisitor: raw.RepeatVisitor,
		PremiumUser:   raw.PremiumUser,

		Authenticated: raw.Authenticated,
	}

	if data, err := json.Marshal(raw); err == nil {
		ev.Raw = data
	}

	ev.ConversionValue, ev.LeadScore = c.scorer.Score(ev, rule, sess)
	return ev
}
