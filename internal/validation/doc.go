// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

// Package validation wraps go-playground/validator v10 behind a
// thread-safe singleton and translates its field errors into messages
// that name wire fields (json tag names) instead of Go struct fields.
//
// The quality gate uses it to check ingest payload shape before
// classification:
//
//	type RawEvent struct {
//	    UserID    string `json:"user_id" validate:"required,min=3"`
//	    EventType string `json:"event_type" validate:"required"`
//	}
//
//	if verr := validation.ValidateStruct(raw); verr != nil {
//	    fe := verr.First() // "user_id is required"
//	    ...
//	}
//
// The singleton caches struct metadata per type, so repeated checks of
// the same payload type cost no reflection after the first.
package validation
