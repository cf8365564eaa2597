// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// eventually polls cond until it holds or the deadline passes. Fixed
// sleeps are flaky under CI load.
func eventually(d time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestNewTreeBuildsLayers(t *testing.T) {
	tree, err := NewTree(testLogger(), TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   time.Second,
		ShutdownTimeout:  10 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}

	if tree.Root() == nil {
		t.Error("Root() = nil")
	}
	if tree.pipeline == nil || tree.learning == nil || tree.api == nil {
		t.Error("layer supervisors missing")
	}
}

func TestNewTreeFillsZeroConfig(t *testing.T) {
	tree, err := NewTree(testLogger(), TreeConfig{})
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}

	if tree.config != DefaultTreeConfig() {
		t.Errorf("config = %+v, want DefaultTreeConfig", tree.config)
	}
}

func TestTreeConfigWithDefaultsKeepsSetFields(t *testing.T) {
	c := TreeConfig{FailureThreshold: 2, ShutdownTimeout: time.Second}.withDefaults()

	if c.FailureThreshold != 2 {
		t.Errorf("FailureThreshold = %f, want the caller's 2", c.FailureThreshold)
	}
	if c.ShutdownTimeout != time.Second {
		t.Errorf("ShutdownTimeout = %v, want the caller's 1s", c.ShutdownTimeout)
	}
	if c.FailureDecay != 30.0 {
		t.Errorf("FailureDecay = %f, want the default 30", c.FailureDecay)
	}
	if c.FailureBackoff != 15*time.Second {
		t.Errorf("FailureBackoff = %v, want the default 15s", c.FailureBackoff)
	}
}

func TestTreeRunsAndStopsOnCancel(t *testing.T) {
	tree, err := NewTree(testLogger(), TreeConfig{
		FailureBackoff:  100 * time.Millisecond,
		ShutdownTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}

	proc := NewMockService("mock-processor")
	loop := NewMockService("mock-loop")
	api := NewMockService("mock-server")
	tree.AddPipelineService(proc)
	tree.AddLearningService(loop)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	if !eventually(time.Second, func() bool {
		return proc.Starts() >= 1 && loop.Starts() >= 1 && api.Starts() >= 1
	}) {
		cancel()
		t.Fatalf("services not all started: proc=%d loop=%d api=%d",
			proc.Starts(), loop.Starts(), api.Starts())
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not shut down after cancel")
	}

	if proc.Stops() < 1 || loop.Stops() < 1 || api.Stops() < 1 {
		t.Errorf("services not stopped: proc=%d loop=%d api=%d",
			proc.Stops(), loop.Stops(), api.Stops())
	}
}

func TestTreeStartsServicesInEveryLayer(t *testing.T) {
	layers := []struct {
		name string
		add  func(*Tree, *MockService)
	}{
		{name: "pipeline", add: func(tr *Tree, s *MockService) { tr.AddPipelineService(s) }},
		{name: "learning", add: func(tr *Tree, s *MockService) { tr.AddLearningService(s) }},
		{name: "api", add: func(tr *Tree, s *MockService) { tr.AddAPIService(s) }},
	}

	for _, layer := range layers {
		t.Run(layer.name, func(t *testing.T) {
			tree, err := NewTree(testLogger(), TreeConfig{ShutdownTimeout: time.Second})
			if err != nil {
				t.Fatalf("NewTree: %v", err)
			}

			svc := NewMockService(layer.name + "-service")
			layer.add(tree, svc)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			tree.ServeBackground(ctx)

			if !eventually(time.Second, func() bool { return svc.Starts() >= 1 }) {
				t.Errorf("%s service never started", layer.name)
			}
		})
	}
}

func TestTreeRestartsFailingService(t *testing.T) {
	tree, err := NewTree(testLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}

	flaky := NewMockService("flaky")
	flaky.FailTimes(2)
	stable := NewMockService("stable")

	tree.AddLearningService(flaky)
	tree.AddAPIService(stable)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tree.ServeBackground(ctx)

	// Two scripted failures plus the settled run.
	if !eventually(2*time.Second, func() bool { return flaky.Starts() >= 3 }) {
		t.Errorf("flaky service starts = %d, want at least 3", flaky.Starts())
	}
	if !eventually(time.Second, func() bool { return stable.Starts() >= 1 }) {
		t.Error("stable service never started while sibling layer restarted")
	}
}

func TestDefaultTreeConfig(t *testing.T) {
	c := DefaultTreeConfig()

	want := TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
	if c != want {
		t.Errorf("DefaultTreeConfig() = %+v, want %+v", c, want)
	}
}
