// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package behavior

import "strings"

// conversionBase is the per-tier starting conversion value in currency
// points. Unknown tiers fall back to 1.0.
var conversionBase = map[Priority]float64{
	PriorityCritical:   100,
	PriorityHigh:       20,
	PriorityMedium:     5,
	PriorityLow:        1,
	PriorityBackground: 0.1,
}

// leadBase is the per-tier starting lead score. Unknown tiers fall back
// to 1.
var leadBase = map[Priority]float64{
	PriorityCritical:   50,
	PriorityHigh:       20,
	PriorityMedium:     10,
	PriorityLow:        5,
	PriorityBackground: 1,
}

const (
	// maxLeadScore caps the lead score so downstream consumers can treat
	// it as a percentage.
	maxLeadScore = 100

	// engagedDurationSeconds is the dwell time past which an interaction
	// counts as engaged for the conversion multiplier.
	engagedDurationSeconds = 300
)

// Scorer computes the two business metrics attached to every event at
// classification time: an estimated conversion value and a lead score.
// Both read the event and, when the event itself carries no dwell time,
// fall back to the session's accumulated duration. The session snapshot
// is never written.
type Scorer struct{}

// NewScorer returns a stateless scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score computes (conversion value, lead score) for a classified event.
// The rule supplies the tier; sess may be nil when the event arrived
// without a session id or the session has already been swept.
func (s *Scorer) Score(ev *Event, rule *CollectionRule, sess *SessionSnapshot) (float64, float64) {
	duration := effectiveDuration(ev, sess)
	return s.conversionValue(rule.Priority, ev, duration), s.leadScore(rule.Priority, ev.EventType, duration)
}

// conversionValue multiplies the tier base by independent engagement
// multipliers. The multipliers compose, so a premium repeat visitor on a
// long visit scores base x 1.5 x 2.0 x 1.3.
func (s *Scorer) conversionValue(tier Priority, ev *Event, duration float64) float64 {
	value, ok := conversionBase[tier]
	if !ok {
		value = 1.0
	}
	if ev.RepeatVisitor {
		value *= 1.5
	}
	if ev.PremiumUser {
		value *= 2.0
	}
	if duration > engagedDurationSeconds {
		value *= 1.3
	}
	return value
}

// leadScore adds tier base points, intent bonuses keyed off the event
// type, and a single dwell-time bonus, then clamps to [0, 100]. The
// intent and dwell bonuses are each exclusive: only the strongest signal
// in each group counts.
func (s *Scorer) leadScore(tier Priority, eventType string, duration float64) float64 {
	score, ok := leadBase[tier]
	if !ok {
		score = 1
	}

	switch {
	case strings.Contains(eventType, "purchase"):
		score += 100
	case strings.Contains(eventType, "inquiry"):
		score += 50
	case strings.Contains(eventType, "compare"):
		score += 15
	}

	switch {
	case duration > 600:
		score += 20
	case duration > 300:
		score += 10
	case duration > 60:
		score += 5
	}

	if score > maxLeadScore {
		score = maxLeadScore
	}
	return score
}

// effectiveDuration prefers the dwell time reported on the event itself
// and falls back to the session's accumulated duration, so batched
// events that omit per-event timing still earn engagement credit.
func effectiveDuration(ev *Event, sess *SessionSnapshot) float64 {
	if ev.DurationSeconds > 0 {
		return ev.DurationSeconds
	}
	if sess != nil {
		return sess.Duration.Seconds()
	}
	return 0
}
