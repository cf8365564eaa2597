// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package learning

import (
	"context"

	"github.com/motrixlab/motrix/internal/config"
	"github.com/motrixlab/motrix/internal/logging"
)

// ModelTrainer consumes a window of interactions and updates the
// recommendation model. Implementations must tolerate repeated windows;
// the trainer loop does not deduplicate across ticks.
type ModelTrainer interface {
	TrainBatch(ctx context.Context, interactions []*Interaction) (TrainReport, error)
}

// EmbeddingRefresher recomputes embedding vectors for the given users and
// vehicles. Either slice may be empty.
type EmbeddingRefresher interface {
	RefreshEmbeddings(ctx context.Context, userIDs, vehicleIDs []string) error
}

// TrainReport summarizes one training invocation.
type TrainReport struct {
	Interactions int     `json:"interactions"`
	Batches      int     `json:"batches"`
	Users        int     `json:"users"`
	Vehicles     int     `json:"vehicles"`
	Loss         float64 `json:"loss"`
}

const defaultBatchSize = 32

// NopTrainer is the ModelTrainer that ships in this binary: it chunks
// the window into mini-batches and summarizes it, but trains nothing.
// The collaborative-filtering service plugs in behind the same interface
// when deployed alongside.
type NopTrainer struct {
	batchSize int
}

// NewNopTrainer creates the stub trainer and logs the hyperparameters a
// model backend would receive.
func NewNopTrainer(cfg *config.LearningConfig) *NopTrainer {
	batchSize := defaultBatchSize
	if cfg != nil && cfg.BatchSize > 0 {
		batchSize = cfg.BatchSize
	}
	if cfg != nil {
		logging.Debug().
			Int("batch_size", batchSize).
			Float64("learning_rate", cfg.LearningRate).
			Int("embedding_dim", cfg.EmbeddingDim).
			Int("update_threshold", cfg.UpdateThreshold).
			Msg("LEARN: Trainer initialized without a model backend")
	}
	return &NopTrainer{batchSize: batchSize}
}

// TrainBatch counts mini-batches and distinct entities in the window and
// logs the summary.
func (t *NopTrainer) TrainBatch(_ context.Context, interactions []*Interaction) (TrainReport, error) {
	size := t.batchSize
	if size <= 0 {
		size = defaultBatchSize
	}

	users := make(map[string]struct{}, len(interactions))
	vehicles := make(map[string]struct{}, len(interactions))
	for _, inter := range interactions {
		users[inter.UserID] = struct{}{}
		if inter.VehicleID != "" {
			vehicles[inter.VehicleID] = struct{}{}
		}
	}

	report := TrainReport{
		Interactions: len(interactions),
		Batches:      (len(interactions) + size - 1) / size,
		Users:        len(users),
		Vehicles:     len(vehicles),
	}
	logging.Debug().
		Int("interactions", report.Interactions).
		Int("batches", report.Batches).
		Int("users", report.Users).
		Int("vehicles", report.Vehicles).
		Msg("LEARN: Training stubbed, window summarized only")
	return report, nil
}

// NopEmbeddingRefresher is the EmbeddingRefresher that ships in this
// binary; it records the refresh request and does nothing else.
type NopEmbeddingRefresher struct{}

// RefreshEmbeddings logs the entity counts the real refresher would
// recompute.
func (NopEmbeddingRefresher) RefreshEmbeddings(_ context.Context, userIDs, vehicleIDs []string) error {
	logging.Debug().
		Int("users", len(userIDs)).
		Int("vehicles", len(vehicleIDs)).
		Msg("LEARN: Embedding refresh stubbed")
	return nil
}
