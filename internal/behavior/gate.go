// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package behavior

import (
	"fmt"
	"strings"
	"time"

	"github.com/motrixlab/motrix/internal/cache"
	"github.com/motrixlab/motrix/internal/validation"
)

// RejectReason labels why the quality gate refused an event. The values
// double as metric label values, so they form a small closed set.
type RejectReason string

const (
	RejectMissingField   RejectReason = "missing_field"
	RejectInvalidUser    RejectReason = "invalid_user"
	RejectOutOfRange     RejectReason = "out_of_range"
	RejectTimestampRange RejectReason = "timestamp_range"
	RejectDuplicate      RejectReason = "duplicate"
	RejectAuthRequired   RejectReason = "auth_required"
)

// RejectionError reports a quality-gate rejection. Rejection is terminal
// for the event instance; the caller gets a false accept and nothing is
// retried.
type RejectionError struct {
	Reason RejectReason
	Detail string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("event rejected (%s): %s", e.Reason, e.Detail)
}

func reject(reason RejectReason, format string, args ...any) *RejectionError {
	return &RejectionError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

const (
	// maxEventAge is how far in the past an event timestamp may lie.
	maxEventAge = 24 * time.Hour

	// maxEventSkew is how far in the future an event timestamp may lie,
	// allowing for client clock drift.
	maxEventSkew = 5 * time.Minute
)

// reservedUserPrefixes are synthetic account namespaces whose traffic must
// never reach the analytics store.
var reservedUserPrefixes = []string{"test_", "demo_", "admin_", "system_"}

// dedupKey collapses an interaction to (user, event type, second). Clients
// that double-submit a form or retry a request inside the same second
// produce the same key.
func dedupKey(userID, eventType string, ts time.Time) string {
	return fmt.Sprintf("%s_%s_%d", userID, eventType, ts.Unix())
}

// QualityGate validates incoming events before they enter the pipeline.
// Screen runs field and range checks on the raw payload; Admit runs the
// rule-dependent checks on the classified event and records the dedup key.
// Both return nil for an accepted event.
type QualityGate struct {
	dedup *cache.DedupWindow
}

// NewQualityGate builds a gate whose duplicate suppression remembers up to
// size keys for the given window.
func NewQualityGate(window time.Duration, size int) *QualityGate {
	return &QualityGate{dedup: cache.NewDedupWindow(size, window)}
}

// Screen checks the raw payload before classification: shape via the
// struct's validate tags, then user-id namespace and timestamp
// plausibility. The caller is expected to have normalized a zero
// Timestamp to the server clock first.
func (g *QualityGate) Screen(raw *RawEvent) *RejectionError {
	if verr := validation.ValidateStruct(raw); verr != nil {
		fe := verr.First()
		switch {
		case fe.Tag() == "required":
			return reject(RejectMissingField, "%s", fe.Error())
		case fe.Field() == "user_id":
			return reject(RejectInvalidUser, "%s", fe.Error())
		default:
			return reject(RejectOutOfRange, "%s", fe.Error())
		}
	}

	lower := strings.ToLower(raw.UserID)
	for _, prefix := range reservedUserPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return reject(RejectInvalidUser, "user_id %q uses a reserved prefix", raw.UserID)
		}
	}

	now := time.Now()
	if raw.Timestamp.After(now.Add(maxEventSkew)) {
		return reject(RejectTimestampRange, "timestamp %s is too far in the future", raw.Timestamp.Format(time.RFC3339))
	}
	if raw.Timestamp.Before(now.Add(-maxEventAge)) {
		return reject(RejectTimestampRange, "timestamp %s is too old", raw.Timestamp.Format(time.RFC3339))
	}
	return nil
}

// Admit runs the checks that need the matched rule: the rule's auth
// requirement and duplicate suppression. The dedup key is recorded only
// when every other check has passed, so a rejected submission does not
// poison the key for a later legitimate one.
func (g *QualityGate) Admit(ev *Event, rule *CollectionRule) *RejectionError {
	if rule.RequiresAuth && !ev.Authenticated {
		return reject(RejectAuthRequired, "rule %q requires an authenticated caller", rule.Name)
	}
	if g.dedup.Seen(ev.DedupKey()) {
		return reject(RejectDuplicate, "duplicate of %s", ev.DedupKey())
	}
	return nil
}

// DedupStats exposes the suppression cache counters for the quality
// monitor.
func (g *QualityGate) DedupStats() (hits, misses int64, size int) {
	return g.dedup.Stats()
}
