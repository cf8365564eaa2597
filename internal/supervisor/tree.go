// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds the restart policy shared by every supervisor in
// the tree.
type TreeConfig struct {
	// FailureThreshold is how many failures a supervisor tolerates
	// before entering backoff. Default: 5.
	FailureThreshold float64

	// FailureDecay halves the accumulated failure count this many
	// seconds apart. Default: 30.
	FailureDecay float64

	// FailureBackoff is how long a supervisor waits before resuming
	// restarts once the threshold is crossed. Default: 15s.
	FailureBackoff time.Duration

	// ShutdownTimeout bounds the wait for services to stop. Default: 10s.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns production defaults, matching suture's
// built-in policy.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultTreeConfig.
func (c TreeConfig) withDefaults() TreeConfig {
	d := DefaultTreeConfig()
	if c.FailureThreshold == 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.FailureDecay == 0 {
		c.FailureDecay = d.FailureDecay
	}
	if c.FailureBackoff == 0 {
		c.FailureBackoff = d.FailureBackoff
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}

// spec translates the policy into a suture.Spec. The hook is set on
// the root only; children inherit it when added.
func (c TreeConfig) spec(hook suture.EventHook) suture.Spec {
	return suture.Spec{
		EventHook:        hook,
		FailureThreshold: c.FailureThreshold,
		FailureDecay:     c.FailureDecay,
		FailureBackoff:   c.FailureBackoff,
		Timeout:          c.ShutdownTimeout,
	}
}

// Tree groups the Motrix services under one suture root with a child
// supervisor per layer:
//   - pipeline: tier processors, session sweeper, monitors, DLQ retry
//   - learning: the learning bus router and the cadence loops
//   - api: HTTP server and the live event feed hub
//
// Failure isolation follows the layers. A learning loop stuck in a
// restart cycle backs off its own layer while ingestion and the API keep
// serving.
type Tree struct {
	root     *suture.Supervisor
	pipeline *suture.Supervisor
	learning *suture.Supervisor
	api      *suture.Supervisor
	logger   *slog.Logger
	config   TreeConfig
}

// NewTree creates a supervisor tree with the given configuration. Zero
// config fields take the defaults from DefaultTreeConfig.
func NewTree(logger *slog.Logger, config TreeConfig) (*Tree, error) {
	config = config.withDefaults()

	// sutureslog's hook constructor is (&Handler{Logger: logger}).MustHook();
	// MustHook has a pointer receiver.
	hook := (&sutureslog.Handler{Logger: logger}).MustHook()

	t := &Tree{
		root:     suture.New("motrix", config.spec(hook)),
		pipeline: suture.New("pipeline-layer", config.spec(nil)),
		learning: suture.New("learning-layer", config.spec(nil)),
		api:      suture.New("api-layer", config.spec(nil)),
		logger:   logger,
		config:   config,
	}
	t.root.Add(t.pipeline)
	t.root.Add(t.learning)
	t.root.Add(t.api)

	return t, nil
}

// Root exposes the root supervisor, mainly for callers that add
// services outside the three layers.
func (t *Tree) Root() *suture.Supervisor {
	return t.root
}

// AddPipelineService places a service under the pipeline layer: tier
// processors, the session sweeper, the monitors, the DLQ retry worker.
func (t *Tree) AddPipelineService(svc suture.Service) suture.ServiceToken {
	return t.pipeline.Add(svc)
}

// AddLearningService places a service under the learning layer: the
// learning bus and the cadence loops.
func (t *Tree) AddLearningService(svc suture.Service) suture.ServiceToken {
	return t.learning.Add(svc)
}

// AddAPIService places a service under the API layer: the HTTP server
// and the live feed hub.
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve runs the tree and blocks until the context is canceled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in its own goroutine. The returned
// channel delivers the terminal error, or nil, when the tree stops.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that outlived the shutdown
// timeout, for diagnosing a hung stop.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
