// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

func TestMockServiceParksUntilCanceled(t *testing.T) {
	svc := NewMockService("parked")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve() = %v, want context.DeadlineExceeded", err)
	}
	if svc.Starts() != 1 || svc.Stops() != 1 {
		t.Errorf("starts/stops = %d/%d, want 1/1", svc.Starts(), svc.Stops())
	}
}

func TestMockServiceScriptedFailuresThenSettle(t *testing.T) {
	svc := NewMockService("flaky")
	svc.FailTimes(2)

	for i := 0; i < 2; i++ {
		if err := svc.Serve(context.Background()); err == nil {
			t.Fatalf("Serve() call %d succeeded, want a scripted failure", i+1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve() after script drained = %v, want to park until canceled", err)
	}
	if svc.Starts() != 3 {
		t.Errorf("Starts() = %d, want 3", svc.Starts())
	}
}

func TestMockServiceStickyError(t *testing.T) {
	boom := errors.New("boom")
	svc := NewMockService("broken")
	svc.FailWith(boom)

	for i := 0; i < 2; i++ {
		if err := svc.Serve(context.Background()); !errors.Is(err, boom) {
			t.Errorf("Serve() call %d = %v, want the sticky error", i+1, err)
		}
	}
}

func TestMockServiceDoNotRestart(t *testing.T) {
	svc := NewMockService("one-shot")
	svc.FailWith(suture.ErrDoNotRestart)

	if err := svc.Serve(context.Background()); !errors.Is(err, suture.ErrDoNotRestart) {
		t.Errorf("Serve() = %v, want suture.ErrDoNotRestart", err)
	}
}
