// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

/*
Package supervisor runs every long-lived Motrix worker under one suture v4
supervision tree with automatic restart, failure isolation, and graceful
shutdown.

# Tree layout

The worker set is fixed at startup and organized into three layers so a
crash in one layer restarts without disturbing the others:

	RootSupervisor ("motrix")
	├── PipelineSupervisor ("pipeline-layer")
	│   ├── tier-critical .. tier-background (one TierProcessor per tier)
	│   ├── session-sweeper
	│   ├── metrics-loop
	│   ├── quality-monitor
	│   └── dlq-retry-worker
	├── LearningSupervisor ("learning-layer")
	│   ├── learning-bus
	│   ├── batch-trainer
	│   ├── embedding-refresher
	│   └── preference-recalculator
	└── APISupervisor ("api-layer")
	    ├── api-server
	    └── live-feed-hub

Every worker implements suture.Service: Serve(ctx) blocks until the
context is canceled or the worker fails, and String() names it in
supervision logs. Workers that wrap non-conforming types (net/http's
Server) get a thin adapter in this package.

# Failure model

Each supervisor tracks a decaying failure count. A worker that fails
repeatedly within the decay window pushes its layer into backoff; workers
in other layers keep running. suture.ErrDoNotRestart removes a worker
permanently, and ErrTerminateSupervisorTree collapses the tree for truly
fatal conditions.

# Shutdown

Canceling the context passed to Serve stops the tree root-down. Each
worker gets ShutdownTimeout to return before it is abandoned and reported
through UnstoppedServiceReport.

Supervision events are logged through sutureslog into the process-wide
zerolog logger (logging.NewSlogLogger).
*/
package supervisor
