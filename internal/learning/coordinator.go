// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package learning

import (
	"context"
	"fmt"

	"github.com/motrixlab/motrix/internal/behavior"
	"github.com/motrixlab/motrix/internal/config"
	"github.com/motrixlab/motrix/internal/logging"
	"github.com/motrixlab/motrix/internal/metrics"
)

// ProfileStore is the slice of the store the folds write to. Both methods
// are additive and commutative, so immediate and deferred folds can
// interleave in any order.
type ProfileStore interface {
	ApplyPreferenceDeltas(ctx context.Context, userID string, deltas map[string]float64) error
	BumpVehiclePopularity(ctx context.Context, vehicleID, kind string, scoreDelta float64) error
}

// RecommendRefresher recomputes one user's cached recommendations. The
// coordinator calls it after highly engaged interactions so the next page
// load reflects what just happened.
type RecommendRefresher interface {
	RefreshUser(ctx context.Context, userID string) error
}

const defaultImmediateThreshold = 0.7

// Coordinator is the entry point for learning from admitted events. The
// critical tier and high-value re-routes call ApplyImmediate; the batch
// tiers hand their flushed buffers to ApplyDeferred. Each event is
// analyzed exactly once, on whichever path it arrived.
type Coordinator struct {
	store       ProfileStore
	bus         *Bus
	recommender RecommendRefresher
	threshold   float64
}

// NewCoordinator wires the coordinator to its collaborators and, when a
// bus is present, registers the interaction processor on it. recommender
// may be nil; immediate folds then skip the refresh step.
func NewCoordinator(store ProfileStore, bus *Bus, recommender RecommendRefresher, cfg *config.LearningConfig) *Coordinator {
	threshold := defaultImmediateThreshold
	if cfg != nil && cfg.ImmediateThreshold > 0 {
		threshold = cfg.ImmediateThreshold
	}

	c := &Coordinator{
		store:       store,
		bus:         bus,
		recommender: recommender,
		threshold:   threshold,
	}
	if bus != nil {
		bus.SubscribeInteractions("interaction-processor", c.consumeInteraction)
	}
	return c
}

// ApplyImmediate folds one event into the preference and popularity
// aggregates synchronously. When the interaction's engagement clears the
// threshold, the user's recommendations are refreshed in the same call so
// high-intent activity surfaces without waiting for a batch cycle.
func (c *Coordinator) ApplyImmediate(ctx context.Context, ev *behavior.Event) error {
	inter, err := FromEvent(ev)
	if err != nil {
		return fmt.Errorf("unlearnable event: %w", err)
	}

	if err := c.applyInteraction(ctx, inter); err != nil {
		return err
	}

	if inter.EngagementScore > c.threshold {
		c.refreshRecommendations(ctx, inter)
	}
	return nil
}

// ApplyDeferred publishes each event's interaction onto the learning bus
// for asynchronous analysis. Unlearnable events are skipped and publish
// failures are counted and dropped; the caller's flush already succeeded
// and must not be failed retroactively.
func (c *Coordinator) ApplyDeferred(ctx context.Context, events []*behavior.Event) {
	if c.bus == nil || len(events) == 0 {
		return
	}

	for _, ev := range events {
		if ev == nil {
			continue
		}
		inter, err := FromEvent(ev)
		if err != nil {
			logging.Debug().
				Err(err).
				Str("event_id", ev.ID).
				Msg("LEARN: Skipping unlearnable event")
			continue
		}

		if err := c.bus.Publish(ctx, inter); err != nil {
			metrics.LearningFailures.WithLabelValues("publish").Inc()
			logging.Warn().
				Err(err).
				Str("event_id", ev.ID).
				Msg("LEARN: Interaction publish failed, dropping")
		}
	}
}

// consumeInteraction is the bus handler behind the deferred path. A
// returned error makes the router redeliver; exhausted redeliveries land
// on the poison topic.
func (c *Coordinator) consumeInteraction(ctx context.Context, inter *Interaction) error {
	err := c.applyInteraction(ctx, inter)
	metrics.RecordLearningIteration("interaction", err)
	if err != nil {
		return fmt.Errorf("apply interaction %s: %w", inter.EventID, err)
	}
	return nil
}

// applyInteraction performs the actual fold: weighted preference deltas
// for the user, and a popularity bump for the vehicle when one is
// referenced.
func (c *Coordinator) applyInteraction(ctx context.Context, inter *Interaction) error {
	if err := c.store.ApplyPreferenceDeltas(ctx, inter.UserID, inter.PreferenceDeltas()); err != nil {
		return fmt.Errorf("preference fold for %s: %w", inter.UserID, err)
	}

	if inter.VehicleID != "" {
		weight := inter.Kind.PreferenceWeight()
		if err := c.store.BumpVehiclePopularity(ctx, inter.VehicleID, string(inter.Kind), weight); err != nil {
			return fmt.Errorf("popularity bump for %s: %w", inter.VehicleID, err)
		}
	}

	metrics.InteractionsApplied.Inc()
	logging.Trace().
		Str("user_id", inter.UserID).
		Str("vehicle_id", inter.VehicleID).
		Str("kind", string(inter.Kind)).
		Float64("engagement", inter.EngagementScore).
		Msg("LEARN: Interaction applied")
	return nil
}

// refreshRecommendations never fails the caller; refresh errors are
// logged and the cache entry stays stale until the next trigger.
func (c *Coordinator) refreshRecommendations(ctx context.Context, inter *Interaction) {
	if c.recommender == nil {
		return
	}

	if err := c.recommender.RefreshUser(ctx, inter.UserID); err != nil {
		logging.Warn().
			Err(err).
			Str("user_id", inter.UserID).
			Msg("LEARN: Recommendation refresh failed")
		return
	}
	logging.Debug().
		Str("user_id", inter.UserID).
		Float64("engagement", inter.EngagementScore).
		Msg("LEARN: Recommendations refreshed for engaged user")
}
