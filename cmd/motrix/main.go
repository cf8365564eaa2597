// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

// Command motrix runs the behavior collection service: the HTTP ingest
// boundary, the tiered processing pipeline, the learning loops, and the
// recommendation surface, all under one supervisor tree.
package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/motrixlab/motrix/internal/behavior"
	"github.com/motrixlab/motrix/internal/config"
	"github.com/motrixlab/motrix/internal/journal"
	"github.com/motrixlab/motrix/internal/learning"
	"github.com/motrixlab/motrix/internal/live"
	"github.com/motrixlab/motrix/internal/logging"
	"github.com/motrixlab/motrix/internal/pipeline"
	"github.com/motrixlab/motrix/internal/recommend"
	"github.com/motrixlab/motrix/internal/server"
	"github.com/motrixlab/motrix/internal/store"
	"github.com/motrixlab/motrix/internal/supervisor"
)

func main() {
	// Config decides how logging is set up, so it loads before anything
	// can log.
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Configuration load failed")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Msg("Motrix starting")
	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("journal_enabled", cfg.Journal.Enabled).
		Bool("redis_enabled", cfg.Redis.Enabled).
		Bool("auth_enabled", cfg.Security.AuthEnabled).
		Bool("learning_enabled", cfg.Learning.Enabled).
		Msg("Configuration loaded")

	db, err := store.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Store startup failed")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Store close failed")
		}
	}()

	jr, err := journal.Open(&cfg.Journal)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open event journal")
	}
	defer func() {
		if err := jr.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing journal")
		}
	}()

	// Admission chain and tier queues.
	rules := behavior.DefaultRules()
	gate := behavior.NewQualityGate(cfg.Pipeline.DedupWindow, cfg.Pipeline.DedupSize)
	sessions := behavior.NewTracker(cfg.Sessions.IdleTimeout, cfg.Sessions.MaxTracked)
	router := pipeline.NewRouter(&cfg.Pipeline, jr)

	// SIGINT and SIGTERM cancel the run context; everything supervised
	// drains from there.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Re-enqueue events that were journaled but never confirmed before
	// the last shutdown. The tier processors drain them once started.
	if cfg.Journal.ReplayOnStart {
		replayed, err := jr.Replay(ctx, router.Enqueue)
		if err != nil {
			logging.Warn().Err(err).Msg("Journal replay failed, unconfirmed entries stay pending")
		} else if replayed > 0 {
			logging.Info().Int("events", replayed).Msg("Journal replay re-enqueued unconfirmed events")
		}
	}

	// Persistence path: breaker-wrapped writes, DLQ spill, periodic retry.
	policy := pipeline.NewRetryPolicy(cfg.Pipeline.RetryAttempts, cfg.Pipeline.RetryDelay)
	dlq, err := pipeline.NewDLQHandler(cfg.Pipeline.DLQMaxEntries, cfg.Pipeline.DLQMaxRetries, policy)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create DLQ handler")
	}
	persister := pipeline.NewPersister(db, jr, dlq, policy)

	// Recommendation surface. The engine serves reads even when learning
	// is disabled; the cache degrades to local-only without Redis.
	cache := recommend.NewCache(&cfg.Redis, &cfg.Recommend)
	defer func() {
		if err := cache.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing recommendation cache")
		}
	}()
	engine := recommend.NewEngine(db, cache, &cfg.Recommend)
	defer engine.Close()

	var bus *learning.Bus
	var learner pipeline.Learner
	if cfg.Learning.Enabled {
		bus, err = learning.NewBus(cfg.Learning.QueueCapacity)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create learning bus")
		}
		learner = learning.NewCoordinator(db, bus, engine, &cfg.Learning)
		logging.Info().
			Float64("immediate_threshold", cfg.Learning.ImmediateThreshold).
			Msg("Learning coordinator wired")
	} else {
		logging.Info().Msg("Learning disabled, events persist without profile updates")
	}

	// Live feed hub plus the collector that feeds it.
	hub := live.NewHub()

	collector := pipeline.NewCollector(behavior.NewClassifier(behavior.NewRuleSet(rules)), gate, sessions, router)
	collector.SetBroadcaster(hub)

	metricsLoop := pipeline.NewMetricsLoop(collector, cfg.Pipeline.MetricsInterval)
	metricsLoop.SetFeed(hub)

	srv, err := server.New(server.Options{
		Server:      &cfg.Server,
		Security:    &cfg.Security,
		Collector:   collector,
		Hub:         hub,
		Recommender: engine,
		DB:          db,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build HTTP server")
	}

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{})
	if err != nil {
		logging.Fatal().Err(err).Msg("Supervisor tree construction failed")
	}

	// Pipeline layer: one processor per tier plus the maintenance loops.
	for _, tier := range behavior.Tiers() {
		tree.AddPipelineService(pipeline.NewTierProcessor(tier, router, persister, learner, &cfg.Pipeline))
	}
	tree.AddPipelineService(pipeline.NewSessionSweeper(sessions, cfg.Sessions.SweepInterval))
	tree.AddPipelineService(pipeline.NewQualityMonitor(gate, dlq, jr, db, rules, cfg.Pipeline.QualityInterval))
	tree.AddPipelineService(pipeline.NewRetryWorker(dlq, db, db, jr, cfg.Pipeline.DLQRetryInterval, 5))
	tree.AddPipelineService(metricsLoop)
	logging.Info().Int("tiers", len(behavior.Tiers())).Msg("Pipeline services added to supervisor tree")

	// Learning layer: the bus and the cadence loops.
	if cfg.Learning.Enabled {
		tree.AddLearningService(bus)
		tree.AddLearningService(learning.NewBatchTrainer(db, learning.NewNopTrainer(&cfg.Learning), &cfg.Learning))
		tree.AddLearningService(learning.NewEmbeddingLoop(db, learning.NopEmbeddingRefresher{}, &cfg.Learning))
		tree.AddLearningService(learning.NewPreferenceLoop(db, &cfg.Learning))
		logging.Info().Msg("Learning services added to supervisor tree")
	}

	// API layer.
	tree.AddAPIService(hub)
	tree.AddAPIService(supervisor.NewWebService(srv, 10*time.Second))
	logging.Info().Str("addr", srv.Addr()).Msg("HTTP server service added")

	collector.Start()

	logging.Info().Msg("Supervision starting")
	errCh := tree.ServeBackground(ctx)

	// A context.Canceled result is the normal signal-driven exit, so only
	// other errors are worth reporting.
	report := func(err error, msg string) {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg(msg)
		}
	}

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, stopping services")
	case err := <-errCh:
		report(err, "Supervision ended with error")
	}

	// Drain until the tree goroutine closes the channel.
	for err := range errCh {
		report(err, "Error during supervised shutdown")
	}

	collector.Stop()

	if bus != nil {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing learning bus")
		}
	}

	// Anything still running now is stuck past the shutdown timeout.
	if stragglers, _ := tree.UnstoppedServiceReport(); len(stragglers) > 0 {
		for _, svc := range stragglers {
			logging.Warn().Str("service", svc.Name).Msg("Service still running at exit")
		}
	}

	logging.Info().Msg("Motrix stopped")
}
