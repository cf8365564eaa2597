// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// MockService implements suture.Service with scripted Serve outcomes
// for exercising restart behavior in tests.
//
// Each Serve call first consults the sticky error, then consumes one
// scripted failure; with neither pending it parks until its context is
// canceled. Restart counting falls out of the starts/stops counters.
type MockService struct {
	name string

	mu     sync.Mutex
	sticky error
	script []error

	starts atomic.Int32
	stops  atomic.Int32
}

// NewMockService names a fresh mock with an empty script.
func NewMockService(name string) *MockService {
	return &MockService{name: name}
}

// Serve implements suture.Service.
func (m *MockService) Serve(ctx context.Context) error {
	m.starts.Add(1)
	defer m.stops.Add(1)

	m.mu.Lock()
	next := m.sticky
	if next == nil && len(m.script) > 0 {
		next = m.script[0]
		m.script = m.script[1:]
	}
	m.mu.Unlock()

	if next != nil {
		return next
	}

	<-ctx.Done()
	return ctx.Err()
}

// FailTimes scripts n immediate failures. The service settles into
// park-until-canceled once they are consumed.
func (m *MockService) FailTimes(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.script = append(m.script, errors.New("scripted failure"))
	}
}

// FailWith makes every subsequent Serve return err, the scripted
// failures included. Pass suture.ErrDoNotRestart to simulate a service
// that completes permanently.
func (m *MockService) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sticky = err
}

// Starts reports how many times Serve was entered.
func (m *MockService) Starts() int32 {
	return m.starts.Load()
}

// Stops reports how many times Serve returned.
func (m *MockService) Stops() int32 {
	return m.stops.Load()
}

// String names the service in supervision logs.
func (m *MockService) String() string {
	return m.name
}
