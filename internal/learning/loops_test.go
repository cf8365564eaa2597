// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package learning

import (
	"errors"
	"testing"
	"time"

	"github.com/motrixlab/motrix/internal/behavior"
)

func TestBatchTrainerTrainsWindow(t *testing.T) {
	source := &fakeEventSource{events: []*behavior.Event{
		learnEvent("ev-1", "user_alpha", "like", "veh-1", 60),
		learnEvent("ev-2", "user_alpha", "compare_add", "veh-2", 30),
		learnEvent("ev-3", "user_beta", "page_view", "veh-1", 10),
	}}
	trainer := &fakeTrainer{}
	loop := NewBatchTrainer(source, trainer, testLearningConfig())
	if loop.String() != "batch-trainer" {
		t.Errorf("String() = %q, want batch-trainer", loop.String())
	}

	cancel, done := startService(t, loop.Serve)
	waitFor(t, 2*time.Second, func() bool { return len(trainer.windows()) >= 1 }, "no training pass ran")

	if got := trainer.windows()[0]; len(got) != 3 {
		t.Errorf("window size = %d, want 3", len(got))
	}
	stopService(t, cancel, done)
}

func TestBatchTrainerSkipsSmallWindow(t *testing.T) {
	source := &fakeEventSource{events: []*behavior.Event{
		learnEvent("ev-1", "user_alpha", "like", "veh-1", 60),
	}}
	trainer := &fakeTrainer{}
	loop := NewBatchTrainer(source, trainer, testLearningConfig()) // MinBatch 2

	cancel, done := startService(t, loop.Serve)
	waitFor(t, 2*time.Second, func() bool { return source.calls() >= 2 }, "trainer loop did not tick")

	if got := len(trainer.windows()); got != 0 {
		t.Errorf("training passes = %d, want 0 below the minimum batch", got)
	}
	stopService(t, cancel, done)
}

func TestBatchTrainerFiltersUnlearnableEvents(t *testing.T) {
	source := &fakeEventSource{events: []*behavior.Event{
		learnEvent("ev-1", "user_alpha", "like", "veh-1", 60),
		learnEvent("ev-2", "user_beta", "compare_add", "veh-2", 30),
		learnEvent("ev-3", "", "page_view", "", 0),
	}}
	trainer := &fakeTrainer{}
	loop := NewBatchTrainer(source, trainer, testLearningConfig())

	cancel, done := startService(t, loop.Serve)
	waitFor(t, 2*time.Second, func() bool { return len(trainer.windows()) >= 1 }, "no training pass ran")

	if got := trainer.windows()[0]; len(got) != 2 {
		t.Errorf("window size = %d, want 2 with the anonymous event dropped", len(got))
	}
	stopService(t, cancel, done)
}

func TestBatchTrainerSurvivesFailures(t *testing.T) {
	source := &fakeEventSource{err: errors.New("database offline")}
	trainer := &fakeTrainer{}
	loop := NewBatchTrainer(source, trainer, testLearningConfig())

	cancel, done := startService(t, loop.Serve)
	waitFor(t, 2*time.Second, func() bool { return source.calls() >= 2 }, "loop stopped after a query failure")

	if got := len(trainer.windows()); got != 0 {
		t.Errorf("training passes = %d, want 0", got)
	}
	stopService(t, cancel, done)
}

func TestEmbeddingLoopRefreshesActiveEntities(t *testing.T) {
	activity := &fakeActivity{
		users:    []string{"user_alpha", "user_beta"},
		vehicles: []string{"veh-1"},
	}
	embedder := &fakeEmbedder{}
	loop := NewEmbeddingLoop(activity, embedder, testLearningConfig())
	if loop.String() != "embedding-refresher" {
		t.Errorf("String() = %q, want embedding-refresher", loop.String())
	}

	cancel, done := startService(t, loop.Serve)
	waitFor(t, 2*time.Second, func() bool { return len(embedder.refreshes()) >= 1 }, "no refresh ran")

	call := embedder.refreshes()[0]
	if len(call.users) != 2 || len(call.vehicles) != 1 {
		t.Errorf("refresh scope = %d users / %d vehicles, want 2/1", len(call.users), len(call.vehicles))
	}
	stopService(t, cancel, done)
}

func TestEmbeddingLoopSkipsWhenIdle(t *testing.T) {
	activity := &fakeActivity{}
	embedder := &fakeEmbedder{}
	loop := NewEmbeddingLoop(activity, embedder, testLearningConfig())

	cancel, done := startService(t, loop.Serve)
	waitFor(t, 2*time.Second, func() bool { return activity.calls() >= 2 }, "embedding loop did not tick")

	if got := len(embedder.refreshes()); got != 0 {
		t.Errorf("refreshes = %d, want 0 with no active entities", got)
	}
	stopService(t, cancel, done)
}

func TestPreferenceLoopDecaysAndRenormalizes(t *testing.T) {
	store := &fakePrefStore{
		users:      []string{"user_hot", "user_cool"},
		magnitudes: map[string]float64{"user_hot": 250, "user_cool": 40},
	}
	loop := NewPreferenceLoop(store, testLearningConfig()) // decay 0.9
	if loop.String() != "preference-recalculator" {
		t.Errorf("String() = %q, want preference-recalculator", loop.String())
	}

	cancel, done := startService(t, loop.Serve)
	waitFor(t, 2*time.Second, func() bool { return len(store.scaleCalls()) >= 2 }, "recalculation did not run")

	calls := store.scaleCalls()
	// First the decay pass over every active user, then the hot profile
	// is scaled back onto the cap.
	if len(calls[0].users) != 2 || !almostEqual(calls[0].factor, 0.9) {
		t.Errorf("decay call = %+v, want both users at factor 0.9", calls[0])
	}
	if len(calls[1].users) != 1 || calls[1].users[0] != "user_hot" || !almostEqual(calls[1].factor, 100.0/250.0) {
		t.Errorf("renormalize call = %+v, want user_hot at factor 0.4", calls[1])
	}
	stopService(t, cancel, done)
}

func TestPreferenceLoopWithoutDecay(t *testing.T) {
	cfg := testLearningConfig()
	cfg.DecayFactor = 1.0
	store := &fakePrefStore{
		users:      []string{"user_alpha"},
		magnitudes: map[string]float64{"user_alpha": 50},
	}
	loop := NewPreferenceLoop(store, cfg)

	cancel, done := startService(t, loop.Serve)
	waitFor(t, 2*time.Second, func() bool { return store.magnitudeCalls() >= 2 }, "recalculation did not run")

	if got := len(store.scaleCalls()); got != 0 {
		t.Errorf("scale calls = %d, want 0 below the cap without decay", got)
	}
	stopService(t, cancel, done)
}
