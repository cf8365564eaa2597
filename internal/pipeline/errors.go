// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/motrixlab/motrix/internal/behavior"
)

// ErrorCategory classifies persistence failures for dead letter routing
// and metrics labels.
type ErrorCategory int

const (
	// ErrorCategoryUnknown covers errors no keyword matched.
	ErrorCategoryUnknown ErrorCategory = iota
	// ErrorCategoryConnection covers refused, reset and unreachable peers.
	ErrorCategoryConnection
	// ErrorCategoryTimeout covers missed deadlines.
	ErrorCategoryTimeout
	// ErrorCategoryValidation covers data the store will never accept.
	ErrorCategoryValidation
	// ErrorCategoryConstraint covers unique and foreign key conflicts.
	ErrorCategoryConstraint
	// ErrorCategoryCapacity covers queues and disks at their limit.
	ErrorCategoryCapacity
)

var categoryNames = [...]string{
	ErrorCategoryUnknown:    "unknown",
	ErrorCategoryConnection: "connection",
	ErrorCategoryTimeout:    "timeout",
	ErrorCategoryValidation: "validation",
	ErrorCategoryConstraint: "constraint",
	ErrorCategoryCapacity:   "capacity",
}

// String returns the metrics label for the category.
func (c ErrorCategory) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return categoryNames[ErrorCategoryUnknown]
	}
	return categoryNames[c]
}

// categoryKeywords drives categorizeMessage. Order matters: "connection
// reset by peer" should land in connection even though "reset" alone is
// ambiguous, so the more specific buckets come first.
var categoryKeywords = []struct {
	category ErrorCategory
	words    []string
}{
	{ErrorCategoryConnection, []string{"connection", "connect", "refused", "reset", "network"}},
	{ErrorCategoryTimeout, []string{"timeout", "deadline", "timed out"}},
	{ErrorCategoryConstraint, []string{"constraint", "conflict", "duplicate"}},
	{ErrorCategoryValidation, []string{"invalid", "validation", "malformed", "parse"}},
	{ErrorCategoryCapacity, []string{"capacity", "full", "limit", "exceeded"}},
}

func categorizeMessage(message string) ErrorCategory {
	m := strings.ToLower(message)
	for _, ck := range categoryKeywords {
		for _, w := range ck.words {
			if strings.Contains(m, w) {
				return ck.category
			}
		}
	}
	return ErrorCategoryUnknown
}

// joinCause renders "message: cause" or just the message when there is
// no underlying cause.
func joinCause(message string, cause error) string {
	if cause == nil {
		return message
	}
	return message + ": " + cause.Error()
}

// RetryableError wraps transient failures worth retrying, typically
// connection drops and timeouts.
type RetryableError struct {
	Message  string
	Cause    error
	Category ErrorCategory
}

// NewRetryableError creates a retryable error, categorizing it from the
// message text.
func NewRetryableError(message string, cause error) *RetryableError {
	return &RetryableError{Message: message, Cause: cause, Category: categorizeMessage(message)}
}

func (e *RetryableError) Error() string { return joinCause(e.Message, e.Cause) }
func (e *RetryableError) Unwrap() error { return e.Cause }

// PermanentError wraps failures that no retry can fix, typically
// validation problems in the data itself.
type PermanentError struct {
	Message  string
	Cause    error
	Category ErrorCategory
}

// NewPermanentError creates a permanent error, categorizing it from the
// message text. Unclassifiable permanent errors default to validation.
func NewPermanentError(message string, cause error) *PermanentError {
	category := categorizeMessage(message)
	if category == ErrorCategoryUnknown {
		category = ErrorCategoryValidation
	}
	return &PermanentError{Message: message, Cause: cause, Category: category}
}

func (e *PermanentError) Error() string { return joinCause(e.Message, e.Cause) }
func (e *PermanentError) Unwrap() error { return e.Cause }

// IsRetryableError reports whether err is or wraps a RetryableError.
func IsRetryableError(err error) bool {
	var target *RetryableError
	return errors.As(err, &target)
}

// IsPermanentError reports whether err is or wraps a PermanentError.
func IsPermanentError(err error) bool {
	var target *PermanentError
	return errors.As(err, &target)
}

// Categorize extracts the category from a classified error, falling back
// to message inspection for plain errors.
func Categorize(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryUnknown
	}
	var retryable *RetryableError
	if errors.As(err, &retryable) {
		return retryable.Category
	}
	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return permanent.Category
	}
	return categorizeMessage(err.Error())
}

// QueueFullError reports a tier queue that rejected an enqueue. The ingest
// path treats it as a counted drop, never as a reason to block.
type QueueFullError struct {
	Tier behavior.Priority
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("%s queue is full", e.Tier)
}
