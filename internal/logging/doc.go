// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

// Package logging provides centralized zerolog-based structured logging.
//
// One global logger serves the whole process: JSON output for production,
// console output for development. Workers and long-lived components derive
// child loggers with a "component" field; everything else calls the
// package-level helpers directly.
//
// # Quick Start
//
//	import "github.com/motrixlab/motrix/internal/logging"
//
//	logging.Init(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	logging.Info().Str("tier", "critical").Msg("queue drained")
//	logging.Error().Err(err).Int("batch", n).Msg("flush failed")
//
// # Component Loggers
//
//	sweepLogger := logging.With().Str("component", "session-sweep").Logger()
//	sweepLogger.Debug().Int("removed", n).Msg("sweep complete")
//
// # slog Adapter
//
// Suture's event hook speaks slog; NewSlogLogger bridges it into zerolog:
//
//	slogger := logging.NewSlogLogger()
//	hook := (&sutureslog.Handler{Logger: slogger}).MustHook()
//
// # Testing
//
//	var buf bytes.Buffer
//	logger := logging.NewTestLogger(&buf)
//	logger.Info().Msg("test message")
//
// All exported functions are safe for concurrent use; the global logger is
// guarded by a sync.RWMutex for configuration changes.
package logging
