// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package logging

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	want := Config{Level: "info", Format: "json", Timestamp: true, Output: os.Stderr}
	if got := DefaultConfig(); got != want {
		t.Errorf("DefaultConfig() = %+v, want %+v", got, want)
	}
}

func TestInitEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Output: &buf})

	Info().Str("stage", "boot").Msg("pipeline booted")

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not a JSON object: %v (%s)", err, buf.String())
	}
	if record["level"] != "info" || record["message"] != "pipeline booted" || record["stage"] != "boot" {
		t.Errorf("unexpected record: %s", buf.String())
	}
}

func TestInitConsoleWriter(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Format: "console", Output: &buf})

	Info().Msg("console check")

	out := buf.String()
	if !strings.Contains(out, "console check") {
		t.Fatalf("message missing from console output: %s", out)
	}
	if strings.Contains(out, `"message"`) {
		t.Errorf("console output still rendered as JSON: %s", out)
	}
}

func TestLevelFrom(t *testing.T) {
	t.Parallel()

	cases := map[string]zerolog.Level{
		"trace":    zerolog.TraceLevel,
		"debug":    zerolog.DebugLevel,
		"info":     zerolog.InfoLevel,
		"warn":     zerolog.WarnLevel,
		"warning":  zerolog.WarnLevel,
		"ERROR":    zerolog.ErrorLevel,
		"fatal":    zerolog.FatalLevel,
		"panic":    zerolog.PanicLevel,
		"disabled": zerolog.Disabled,
		"verbose":  zerolog.InfoLevel, // unknown names fall back to info
		"":         zerolog.InfoLevel,
	}
	for name, want := range cases {
		if got := levelFrom(name); got != want {
			t.Errorf("levelFrom(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestFacadeLevels(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	Trace().Msg("a")
	Debug().Msg("b")
	Info().Msg("c")
	Warn().Msg("d")
	Error().Msg("e")

	want := []string{"trace", "debug", "info", "warn", "error"}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != len(want) {
		t.Fatalf("wrote %d records, want %d:\n%s", len(lines), len(want), buf.String())
	}
	for i, level := range want {
		if !strings.Contains(lines[i], `"level":"`+level+`"`) {
			t.Errorf("record %d = %s, want level %s", i, lines[i], level)
		}
	}
}

func TestWithDerivesChild(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	With().Str("component", "router").Logger().Info().Msg("routed")

	if !strings.Contains(buf.String(), `"component":"router"`) {
		t.Errorf("component field missing: %s", buf.String())
	}
}

func TestErrAttachesError(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	Err(errors.New("dlq full")).Msg("enqueue failed")

	out := buf.String()
	if !strings.Contains(out, `"error":"dlq full"`) {
		t.Errorf("error field missing: %s", out)
	}
	if !strings.Contains(out, `"level":"error"`) {
		t.Errorf("record not at error level: %s", out)
	}
}

func TestNewTestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewTestLogger(&buf)
	logger.Info().Str("k", "v").Msg("captured")

	out := buf.String()
	if !strings.Contains(out, "captured") || !strings.Contains(out, `"k":"v"`) {
		t.Errorf("captured record incomplete: %s", out)
	}
}

func TestLevelControls(t *testing.T) {
	old := GetLevel()
	defer SetLevel(old)

	SetLevel(zerolog.WarnLevel)

	if GetLevel() != zerolog.WarnLevel {
		t.Errorf("GetLevel() = %v after SetLevel(warn)", GetLevel())
	}
	if IsLevelEnabled(zerolog.DebugLevel) {
		t.Error("debug reported enabled at warn")
	}
	if !IsLevelEnabled(zerolog.ErrorLevel) {
		t.Error("error reported disabled at warn")
	}
}
