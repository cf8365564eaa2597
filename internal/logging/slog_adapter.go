// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package logging

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// slogBridge implements slog.Handler on top of zerolog. It exists for
// libraries that speak slog (sutureslog in particular) so their output
// lands in the same stream as everything else.
//
// Open groups become dotted key prefixes: WithGroup("a") then
// WithGroup("b") writes an attribute x as "a.b.x". Attributes bound
// via WithAttrs keep the prefix that was open when they were bound.
type slogBridge struct {
	logger zerolog.Logger
	bound  []slog.Attr // qualified with their full dotted keys at bind time
	prefix string      // open group path, "" at the root, else "a.b."
}

//nolint:gocritic // zerolog loggers are value types
func newSlogBridge(logger zerolog.Logger) *slogBridge {
	return &slogBridge{logger: logger}
}

// Enabled reports whether records at the given level would be written.
func (h *slogBridge) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.GetLevel() <= levelOf(level)
}

// Handle writes the record as one zerolog event.
//
//nolint:gocritic // the slog.Handler contract takes records by value
func (h *slogBridge) Handle(_ context.Context, record slog.Record) error {
	event := h.logger.WithLevel(levelOf(record.Level))

	for _, a := range h.bound {
		event = writeAttr(event, "", a)
	}
	record.Attrs(func(a slog.Attr) bool {
		event = writeAttr(event, h.prefix, a)
		return true
	})

	event.Msg(record.Message)
	return nil
}

// WithAttrs binds attributes under the currently open groups. Groups
// opened later do not re-qualify them.
func (h *slogBridge) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}

	bound := make([]slog.Attr, 0, len(h.bound)+len(attrs))
	bound = append(bound, h.bound...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		bound = append(bound, a)
	}

	return &slogBridge{logger: h.logger, bound: bound, prefix: h.prefix}
}

// WithGroup opens a group: subsequent attribute keys gain the group
// name as a dotted prefix.
func (h *slogBridge) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &slogBridge{logger: h.logger, bound: h.bound, prefix: h.prefix + name + "."}
}

// writeAttr appends one attribute to the event under its dotted key.
// Group values flatten recursively; a group with an empty key splices
// its members at the current level, and an empty group vanishes.
func writeAttr(e *zerolog.Event, prefix string, a slog.Attr) *zerolog.Event {
	if a.Equal(slog.Attr{}) {
		return e
	}
	v := a.Value.Resolve()

	if v.Kind() == slog.KindGroup {
		members := v.Group()
		if len(members) == 0 {
			return e
		}
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, m := range members {
			e = writeAttr(e, p, m)
		}
		return e
	}

	key := prefix + a.Key
	switch v.Kind() {
	case slog.KindString:
		return e.Str(key, v.String())
	case slog.KindInt64:
		return e.Int64(key, v.Int64())
	case slog.KindUint64:
		return e.Uint64(key, v.Uint64())
	case slog.KindFloat64:
		return e.Float64(key, v.Float64())
	case slog.KindBool:
		return e.Bool(key, v.Bool())
	case slog.KindDuration:
		return e.Dur(key, v.Duration())
	case slog.KindTime:
		return e.Time(key, v.Time())
	default:
		return e.Interface(key, v.Any())
	}
}

// levelOf maps an slog level onto the zerolog scale. Levels between
// the named slog constants round down, so LevelInfo+1 still writes at
// info.
func levelOf(level slog.Level) zerolog.Level {
	switch {
	case level >= slog.LevelError:
		return zerolog.ErrorLevel
	case level >= slog.LevelWarn:
		return zerolog.WarnLevel
	case level >= slog.LevelInfo:
		return zerolog.InfoLevel
	case level >= slog.LevelDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// NewSlogLogger creates an slog.Logger backed by the global zerolog
// logger.
//
//	slogger := logging.NewSlogLogger()
//	hook := (&sutureslog.Handler{Logger: slogger}).MustHook()
func NewSlogLogger() *slog.Logger {
	return slog.New(newSlogBridge(Logger()))
}
