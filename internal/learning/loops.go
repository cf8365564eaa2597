// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package learning

import (
	"context"
	"time"

	"github.com/motrixlab/motrix/internal/behavior"
	"github.com/motrixlab/motrix/internal/config"
	"github.com/motrixlab/motrix/internal/logging"
	"github.com/motrixlab/motrix/internal/metrics"
)

// EventSource supplies recent persisted events for batch training.
type EventSource interface {
	EventsSince(ctx context.Context, since time.Time, limit int) ([]*behavior.Event, error)
}

// ActivitySource lists recently active entities so refreshes stay scoped
// to what actually changed.
type ActivitySource interface {
	ActiveUsers(ctx context.Context, since time.Time, limit int) ([]string, error)
	ActiveVehicles(ctx context.Context, since time.Time, limit int) ([]string, error)
}

// PreferenceStore is the slice of the store the recalculator reads and
// rescales.
type PreferenceStore interface {
	ActiveUsers(ctx context.Context, since time.Time, limit int) ([]string, error)
	ScalePreferences(ctx context.Context, userIDs []string, factor float64) error
	PreferenceMagnitude(ctx context.Context, userID string) (float64, error)
}

// BatchTrainer pulls the recent interaction window on a fixed cadence and
// hands it to the model trainer once it is large enough for a pass. A
// failed pass logs and waits for the next tick.
type BatchTrainer struct {
	source   EventSource
	trainer  ModelTrainer
	interval time.Duration
	window   time.Duration
	limit    int
	minBatch int
}

// NewBatchTrainer creates the training loop service.
func NewBatchTrainer(source EventSource, trainer ModelTrainer, cfg *config.LearningConfig) *BatchTrainer {
	b := &BatchTrainer{
		source:   source,
		trainer:  trainer,
		interval: 5 * time.Minute,
		window:   5 * time.Minute,
		limit:    1000,
		minBatch: 32,
	}
	if cfg != nil {
		if cfg.BatchInterval > 0 {
			b.interval = cfg.BatchInterval
		}
		if cfg.BatchWindow > 0 {
			b.window = cfg.BatchWindow
		}
		if cfg.BatchLimit > 0 {
			b.limit = cfg.BatchLimit
		}
		if cfg.MinBatch > 0 {
			b.minBatch = cfg.MinBatch
		}
	}
	return b
}

// Serve trains on cadence until the context is cancelled.
func (b *BatchTrainer) Serve(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.train(ctx)
		}
	}
}

func (b *BatchTrainer) String() string {
	return "batch-trainer"
}

func (b *BatchTrainer) train(ctx context.Context) {
	events, err := b.source.EventsSince(ctx, time.Now().Add(-b.window), b.limit)
	if err != nil {
		metrics.RecordLearningIteration("batch_trainer", err)
		logging.Warn().Err(err).Msg("LEARN: Training window query failed")
		return
	}

	interactions := make([]*Interaction, 0, len(events))
	for _, ev := range events {
		inter, err := FromEvent(ev)
		if err != nil {
			continue
		}
		interactions = append(interactions, inter)
	}

	if len(interactions) < b.minBatch {
		metrics.RecordLearningIteration("batch_trainer", nil)
		logging.Debug().
			Int("interactions", len(interactions)).
			Int("min_batch", b.minBatch).
			Msg("LEARN: Window below training minimum, skipped")
		return
	}

	report, err := b.trainer.TrainBatch(ctx, interactions)
	metrics.RecordLearningIteration("batch_trainer", err)
	if err != nil {
		logging.Warn().
			Err(err).
			Int("interactions", len(interactions)).
			Msg("LEARN: Training pass failed")
		return
	}

	logging.Info().
		Int("interactions", report.Interactions).
		Int("batches", report.Batches).
		Int("users", report.Users).
		Int("vehicles", report.Vehicles).
		Float64("loss", report.Loss).
		Msg("LEARN: Training pass completed")
}

// EmbeddingLoop recomputes embeddings for entities touched within the
// lookback window instead of sweeping the whole catalog. The entity count
// per pass shares the trainer's batch limit.
type EmbeddingLoop struct {
	source    ActivitySource
	refresher EmbeddingRefresher
	interval  time.Duration
	lookback  time.Duration
	limit     int
}

// NewEmbeddingLoop creates the embedding refresh service.
func NewEmbeddingLoop(source ActivitySource, refresher EmbeddingRefresher, cfg *config.LearningConfig) *EmbeddingLoop {
	l := &EmbeddingLoop{
		source:    source,
		refresher: refresher,
		interval:  10 * time.Minute,
		lookback:  time.Hour,
		limit:     1000,
	}
	if cfg != nil {
		if cfg.EmbeddingInterval > 0 {
			l.interval = cfg.EmbeddingInterval
		}
		if cfg.EmbeddingLookback > 0 {
			l.lookback = cfg.EmbeddingLookback
		}
		if cfg.BatchLimit > 0 {
			l.limit = cfg.BatchLimit
		}
	}
	return l
}

// Serve refreshes on cadence until the context is cancelled.
func (l *EmbeddingLoop) Serve(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.refresh(ctx)
		}
	}
}

func (l *EmbeddingLoop) String() string {
	return "embedding-refresher"
}

func (l *EmbeddingLoop) refresh(ctx context.Context) {
	since := time.Now().Add(-l.lookback)

	users, err := l.source.ActiveUsers(ctx, since, l.limit)
	if err != nil {
		metrics.RecordLearningIteration("embedding", err)
		logging.Warn().Err(err).Msg("LEARN: Active user query failed")
		return
	}
	vehicles, err := l.source.ActiveVehicles(ctx, since, l.limit)
	if err != nil {
		metrics.RecordLearningIteration("embedding", err)
		logging.Warn().Err(err).Msg("LEARN: Active vehicle query failed")
		return
	}

	if len(users) == 0 && len(vehicles) == 0 {
		metrics.RecordLearningIteration("embedding", nil)
		return
	}

	err = l.refresher.RefreshEmbeddings(ctx, users, vehicles)
	metrics.RecordLearningIteration("embedding", err)
	if err != nil {
		logging.Warn().
			Err(err).
			Int("users", len(users)).
			Int("vehicles", len(vehicles)).
			Msg("LEARN: Embedding refresh failed")
		return
	}

	logging.Debug().
		Int("users", len(users)).
		Int("vehicles", len(vehicles)).
		Msg("LEARN: Embeddings refreshed for active entities")
}

// magnitudeCap bounds the L1 norm of a preference profile. The additive
// fold grows profiles without bound; recalculation scales anything past
// the cap back onto it.
const magnitudeCap = 100.0

// PreferenceLoop decays and renormalizes preference profiles for recently
// active users.
type PreferenceLoop struct {
	store    PreferenceStore
	interval time.Duration
	window   time.Duration
	limit    int
	decay    float64
}

// NewPreferenceLoop creates the preference recalculation service.
func NewPreferenceLoop(store PreferenceStore, cfg *config.LearningConfig) *PreferenceLoop {
	l := &PreferenceLoop{
		store:    store,
		interval: 2 * time.Minute,
		window:   10 * time.Minute,
		limit:    100,
		decay:    1.0,
	}
	if cfg != nil {
		if cfg.PreferenceInterval > 0 {
			l.interval = cfg.PreferenceInterval
		}
		if cfg.ActiveUserWindow > 0 {
			l.window = cfg.ActiveUserWindow
		}
		if cfg.ActiveUserLimit > 0 {
			l.limit = cfg.ActiveUserLimit
		}
		if cfg.DecayFactor > 0 && cfg.DecayFactor <= 1 {
			l.decay = cfg.DecayFactor
		}
	}
	return l
}

// Serve recalculates on cadence until the context is cancelled.
func (l *PreferenceLoop) Serve(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.recalculate(ctx)
		}
	}
}

func (l *PreferenceLoop) String() string {
	return "preference-recalculator"
}

func (l *PreferenceLoop) recalculate(ctx context.Context) {
	users, err := l.store.ActiveUsers(ctx, time.Now().Add(-l.window), l.limit)
	if err != nil {
		metrics.RecordLearningIteration("preference", err)
		logging.Warn().Err(err).Msg("LEARN: Active user query failed")
		return
	}
	if len(users) == 0 {
		metrics.RecordLearningIteration("preference", nil)
		return
	}

	if l.decay < 1.0 {
		if err := l.store.ScalePreferences(ctx, users, l.decay); err != nil {
			metrics.RecordLearningIteration("preference", err)
			logging.Warn().Err(err).Msg("LEARN: Preference decay failed")
			return
		}
	}

	renormalized := 0
	for _, userID := range users {
		magnitude, err := l.store.PreferenceMagnitude(ctx, userID)
		if err != nil {
			logging.Warn().
				Err(err).
				Str("user_id", userID).
				Msg("LEARN: Preference magnitude unavailable")
			continue
		}
		if magnitude <= magnitudeCap {
			continue
		}

		if err := l.store.ScalePreferences(ctx, []string{userID}, magnitudeCap/magnitude); err != nil {
			logging.Warn().
				Err(err).
				Str("user_id", userID).
				Msg("LEARN: Preference renormalization failed")
			continue
		}
		renormalized++
	}

	metrics.RecordLearningIteration("preference", nil)
	logging.Debug().
		Int("users", len(users)).
		Int("renormalized", renormalized).
		Float64("decay", l.decay).
		Msg("LEARN: Preference recalculation completed")
}
