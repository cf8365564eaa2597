// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package learning

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/motrixlab/motrix/internal/behavior"
	"github.com/motrixlab/motrix/internal/config"
)

// fakeProfileStore records folds in memory and can be primed to fail.
type fakeProfileStore struct {
	mu        sync.Mutex
	deltas    map[string]map[string]float64
	bumps     []popularityBump
	prefCalls int
	failFolds int
}

type popularityBump struct {
	vehicleID string
	kind      string
	delta     float64
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{deltas: make(map[string]map[string]float64)}
}

func (s *fakeProfileStore) ApplyPreferenceDeltas(_ context.Context, userID string, deltas map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefCalls++
	if s.failFolds > 0 {
		s.failFolds--
		return errors.New("store unavailable")
	}
	user := s.deltas[userID]
	if user == nil {
		user = make(map[string]float64)
		s.deltas[userID] = user
	}
	for attribute, delta := range deltas {
		user[attribute] += delta
	}
	return nil
}

func (s *fakeProfileStore) BumpVehiclePopularity(_ context.Context, vehicleID, kind string, scoreDelta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bumps = append(s.bumps, popularityBump{vehicleID: vehicleID, kind: kind, delta: scoreDelta})
	return nil
}

func (s *fakeProfileStore) delta(userID, attribute string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deltas[userID][attribute]
}

func (s *fakeProfileStore) foldCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deltas)
}

func (s *fakeProfileStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefCalls
}

func (s *fakeProfileStore) allBumps() []popularityBump {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]popularityBump(nil), s.bumps...)
}

// fakeRefresher records recommendation refresh requests.
type fakeRefresher struct {
	mu    sync.Mutex
	users []string
	fail  bool
}

func (r *fakeRefresher) RefreshUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("cache down")
	}
	r.users = append(r.users, userID)
	return nil
}

func (r *fakeRefresher) refreshed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.users...)
}

// fakeEventSource serves a fixed event window.
type fakeEventSource struct {
	mu        sync.Mutex
	events    []*behavior.Event
	err       error
	callCount int
	lastLimit int
}

func (s *fakeEventSource) EventsSince(_ context.Context, _ time.Time, limit int) ([]*behavior.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callCount++
	s.lastLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	return s.events, nil
}

func (s *fakeEventSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

// fakeActivity serves fixed active entity lists.
type fakeActivity struct {
	mu        sync.Mutex
	users     []string
	vehicles  []string
	callCount int
}

func (a *fakeActivity) ActiveUsers(_ context.Context, _ time.Time, _ int) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callCount++
	return a.users, nil
}

func (a *fakeActivity) ActiveVehicles(_ context.Context, _ time.Time, _ int) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.vehicles, nil
}

func (a *fakeActivity) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.callCount
}

// fakePrefStore serves fixed users and magnitudes and records rescales.
type fakePrefStore struct {
	mu         sync.Mutex
	users      []string
	magnitudes map[string]float64
	scales     []scaleCall
	magCalls   int
}

type scaleCall struct {
	users  []string
	factor float64
}

func (s *fakePrefStore) ActiveUsers(_ context.Context, _ time.Time, _ int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users, nil
}

func (s *fakePrefStore) ScalePreferences(_ context.Context, userIDs []string, factor float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scales = append(s.scales, scaleCall{users: append([]string(nil), userIDs...), factor: factor})
	return nil
}

func (s *fakePrefStore) PreferenceMagnitude(_ context.Context, userID string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.magCalls++
	return s.magnitudes[userID], nil
}

func (s *fakePrefStore) scaleCalls() []scaleCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scaleCall(nil), s.scales...)
}

func (s *fakePrefStore) magnitudeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.magCalls
}

// fakeTrainer records training windows.
type fakeTrainer struct {
	mu      sync.Mutex
	batches [][]*Interaction
	err     error
}

func (t *fakeTrainer) TrainBatch(_ context.Context, interactions []*Interaction) (TrainReport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return TrainReport{}, t.err
	}
	t.batches = append(t.batches, interactions)
	return TrainReport{Interactions: len(interactions), Batches: 1}, nil
}

func (t *fakeTrainer) windows() [][]*Interaction {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]*Interaction(nil), t.batches...)
}

// fakeEmbedder records refresh requests.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls []embedCall
}

type embedCall struct {
	users    []string
	vehicles []string
}

func (e *fakeEmbedder) RefreshEmbeddings(_ context.Context, userIDs, vehicleIDs []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, embedCall{
		users:    append([]string(nil), userIDs...),
		vehicles: append([]string(nil), vehicleIDs...),
	})
	return nil
}

func (e *fakeEmbedder) refreshes() []embedCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]embedCall(nil), e.calls...)
}

// testLearningConfig returns cadences fast enough to tick inside a test.
func testLearningConfig() *config.LearningConfig {
	return &config.LearningConfig{
		Enabled:            true,
		BatchInterval:      10 * time.Millisecond,
		EmbeddingInterval:  10 * time.Millisecond,
		PreferenceInterval: 10 * time.Millisecond,
		QueueCapacity:      64,
		BatchWindow:        5 * time.Minute,
		BatchLimit:         100,
		MinBatch:           2,
		EmbeddingLookback:  time.Hour,
		ActiveUserWindow:   10 * time.Minute,
		ActiveUserLimit:    50,
		BatchSize:          2,
		LearningRate:       0.001,
		EmbeddingDim:       8,
		UpdateThreshold:    10,
		ImmediateThreshold: 0.7,
		DecayFactor:        0.9,
	}
}

// learnEvent builds a classified event in the shape the folds expect.
func learnEvent(id, userID, eventType, vehicleID string, duration float64) *behavior.Event {
	return &behavior.Event{
		ID:              id,
		UserID:          userID,
		EventType:       eventType,
		Timestamp:       time.Now().UTC(),
		Priority:        behavior.PriorityHigh,
		Method:          behavior.MethodBatchFast,
		RuleName:        "engagement",
		VehicleID:       vehicleID,
		SessionID:       "sess-1",
		DurationSeconds: duration,
	}
}

// startService runs a Serve loop until the returned cancel fires.
func startService(t *testing.T, serve func(context.Context) error) (cancel func(), done chan error) {
	t.Helper()
	ctx, cancelCtx := context.WithCancel(context.Background())
	done = make(chan error, 1)
	go func() { done <- serve(ctx) }()
	return cancelCtx, done
}

// stopService cancels the loop and requires a clean shutdown.
func stopService(t *testing.T, cancel func(), done chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("service returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop after cancel")
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}
