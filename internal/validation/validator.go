// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	instance *validator.Validate
	initOnce sync.Once
)

// FieldError is one failed constraint on one field.
type FieldError struct {
	field   string
	tag     string
	param   string
	value   interface{}
	message string
}

// Field returns the wire name of the field that failed (the json tag
// name, not the Go field name).
func (e *FieldError) Field() string {
	return e.field
}

// Tag returns the constraint that failed ("required", "min", "gte", ...).
func (e *FieldError) Tag() string {
	return e.tag
}

// Param returns the constraint parameter (e.g. "3" for "min=3").
func (e *FieldError) Param() string {
	return e.param
}

// Value returns the value that failed the constraint.
func (e *FieldError) Value() interface{} {
	return e.value
}

// Error returns a human-readable message naming the wire field.
func (e *FieldError) Error() string {
	return e.message
}

// PayloadError collects every failed constraint from one struct check,
// in field declaration order.
type PayloadError struct {
	errors []FieldError
}

// Errors returns the individual field errors.
func (pe *PayloadError) Errors() []FieldError {
	return pe.errors
}

// First returns the first failed constraint. Callers that reject on the
// first problem use this instead of walking Errors.
func (pe *PayloadError) First() *FieldError {
	if len(pe.errors) == 0 {
		return nil
	}
	return &pe.errors[0]
}

// Error implements the error interface with all messages joined.
func (pe *PayloadError) Error() string {
	if len(pe.errors) == 0 {
		return "validation failed"
	}

	messages := make([]string, len(pe.errors))
	for i, fe := range pe.errors {
		messages[i] = fe.message
	}
	return strings.Join(messages, "; ")
}

// Instance returns the process-wide validator. Struct metadata is cached
// per type, so the shared instance is also the fast path. Field names in
// errors come from json tags, so messages name the field the client
// actually sent.
func Instance() *validator.Validate {
	initOnce.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())

		instance.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
	})

	return instance
}

// ValidateStruct checks s against its validate tags. Returns nil when
// every constraint passes, or a *PayloadError carrying one FieldError per
// failed constraint.
func ValidateStruct(s interface{}) *PayloadError {
	err := Instance().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		// InvalidValidationError: the caller passed a non-struct. Surface
		// it as a single opaque error rather than panicking.
		one := FieldError{field: "unknown", tag: "unknown", message: err.Error()}
		return &PayloadError{errors: []FieldError{one}}
	}

	out := make([]FieldError, len(fieldErrs))
	for i, fe := range fieldErrs {
		out[i] = FieldError{
			field:   fe.Field(),
			tag:     fe.Tag(),
			param:   fe.Param(),
			value:   fe.Value(),
			message: messageFor(fe),
		}
	}

	return &PayloadError{errors: out}
}

// messageFor renders one FieldError as a sentence naming the wire field.
// min, max, gte and lte constrain length on strings and magnitude on
// numbers, so those four share the lengthUnit suffix.
func messageFor(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "uuid":
		return field + " must be a valid UUID"
	case "datetime":
		return field + " must be a valid RFC3339 timestamp"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, param)
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, param)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s%s", field, param, lengthUnit(fe))
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s%s", field, param, lengthUnit(fe))
	default:
		return fmt.Sprintf("%s failed the %s rule", field, fe.Tag())
	}
}

// lengthUnit returns " characters" when the failed field is a string.
func lengthUnit(fe validator.FieldError) string {
	if fe.Kind() == reflect.String {
		return " characters"
	}
	return ""
}
