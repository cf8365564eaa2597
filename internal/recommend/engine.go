// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package recommend

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/motrixlab/motrix/internal/cache"
	"github.com/motrixlab/motrix/internal/config"
	"github.com/motrixlab/motrix/internal/logging"
	"github.com/motrixlab/motrix/internal/store"
)

const (
	// vehiclePrefKey is the preference-attribute prefix that carries
	// per-vehicle weights. Attributes under other prefixes (interaction
	// kinds) do not seed similarity queries.
	vehiclePrefKey = "vehicle:"

	// seedLimit caps how many of the user's strongest vehicles seed a
	// refresh. More seeds widen the candidate pool but dilute the
	// per-seed signal.
	seedLimit = 3

	// popularityDiscount scales popularity-ranked items so an item
	// backed by actual co-interaction overlap always outranks one that
	// is merely popular.
	popularityDiscount = 0.5

	// similarMemoTTL bounds how stale a memoized similarity list may
	// get. Refreshes for users sharing a hot seed vehicle reuse the
	// list instead of repeating the overlap query.
	similarMemoTTL = time.Minute

	defaultSimilarLimit = 10
	defaultMaxItems     = 10
)

// VehicleSource supplies the interaction-derived signals the engine
// ranks with. Implemented by internal/store.
type VehicleSource interface {
	// CoViewedVehicles returns vehicles sharing user overlap with
	// vehicleID, strongest overlap first.
	CoViewedVehicles(ctx context.Context, vehicleID string, limit int) ([]string, error)

	// TopVehicles returns the marketplace popularity ranking.
	TopVehicles(ctx context.Context, limit int) ([]store.VehiclePopularity, error)

	// GetPreferences returns a user's attribute weight map.
	GetPreferences(ctx context.Context, userID string) (map[string]float64, error)
}

// Engine computes similar-vehicle lists and rebuilds per-user cache
// entries from preference profiles.
//
// Similarity is co-interaction overlap: vehicles that the same users
// touched rank by how many distinct users they share with the seed.
// When overlap history is thin the marketplace popularity ranking fills
// the remaining slots at a discount.
type Engine struct {
	source       VehicleSource
	cache        *Cache
	similar      *cache.Cache[[]Item]
	similarLimit int
	maxItems     int
}

// NewEngine builds the engine. Zero or missing config fields fall back
// to defaults.
func NewEngine(source VehicleSource, c *Cache, cfg *config.RecommendConfig) *Engine {
	e := &Engine{
		source:       source,
		cache:        c,
		similar:      cache.New[[]Item](similarMemoTTL),
		similarLimit: defaultSimilarLimit,
		maxItems:     defaultMaxItems,
	}
	if cfg != nil {
		if cfg.SimilarLimit > 0 {
			e.similarLimit = cfg.SimilarLimit
		}
		if cfg.MaxItems > 0 {
			e.maxItems = cfg.MaxItems
		}
	}
	return e
}

// Close stops the similarity memo's background sweep.
func (e *Engine) Close() {
	e.similar.Stop()
}

// SimilarVehicles returns up to limit vehicles related to vehicleID,
// best first.
//
// Co-interacted vehicles come back rank-decayed:
//
//	score(rank) = 1 / (rank + 1)
//
// so the strongest overlap scores 1.0, the next 0.5, and so on. When
// fewer than limit vehicles have overlap history, the popularity
// ranking tops the list up with scores normalized against the most
// popular vehicle and discounted below every co-interaction score.
//
// Lists are memoized for similarMemoTTL, keyed by vehicle and limit,
// so refreshes for users sharing a seed vehicle reuse one query.
func (e *Engine) SimilarVehicles(ctx context.Context, vehicleID string, limit int) ([]Item, error) {
	if vehicleID == "" {
		return nil, fmt.Errorf("similar vehicles: empty vehicle id")
	}
	if limit <= 0 {
		limit = e.similarLimit
	}

	memoKey := cache.GenerateKey("similar", struct {
		VehicleID string
		Limit     int
	}{vehicleID, limit})
	if items, ok := e.similar.Get(memoKey); ok {
		return items, nil
	}

	coViewed, err := e.source.CoViewedVehicles(ctx, vehicleID, limit)
	if err != nil {
		return nil, fmt.Errorf("co-viewed lookup for %s: %w", vehicleID, err)
	}

	items := make([]Item, 0, limit)
	seen := make(map[string]bool, limit+1)
	seen[vehicleID] = true
	for rank, id := range coViewed {
		if seen[id] {
			continue
		}
		seen[id] = true
		items = append(items, Item{
			VehicleID: id,
			Score:     1.0 / float64(rank+1),
			Reason:    ReasonCoView,
		})
	}

	if len(items) < limit {
		// Fetch past the limit so the seed and overlap duplicates can
		// be skipped without coming up short.
		top, err := e.source.TopVehicles(ctx, limit+len(seen))
		if err != nil {
			return nil, fmt.Errorf("popularity fallback for %s: %w", vehicleID, err)
		}
		var maxScore float64
		if len(top) > 0 {
			maxScore = top[0].Score
		}
		for _, v := range top {
			if len(items) >= limit {
				break
			}
			if seen[v.VehicleID] {
				continue
			}
			seen[v.VehicleID] = true
			frac := 1.0
			if maxScore > 0 {
				frac = v.Score / maxScore
			}
			items = append(items, Item{
				VehicleID: v.VehicleID,
				Score:     popularityDiscount * frac,
				Reason:    ReasonPopular,
			})
		}
	}

	e.similar.Set(memoKey, items)
	return items, nil
}

// RefreshUser rebuilds and caches the user's recommendation list from
// their preference profile. The strongest preferred vehicles seed
// similarity queries and each candidate's score blends by seed weight:
//
//	score(candidate) = sum over seeds of weight(seed)/total * sim(seed, candidate)
//
// Vehicles the user has already interacted with never appear in their
// own recommendations. Users without vehicle preferences receive the
// popularity ranking. RefreshUser satisfies the learning coordinator's
// refresh collaborator contract.
func (e *Engine) RefreshUser(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("refresh recommendations: empty user id")
	}

	prefs, err := e.source.GetPreferences(ctx, userID)
	if err != nil {
		return fmt.Errorf("preferences for %s: %w", userID, err)
	}

	seeds := strongestVehicles(prefs, seedLimit)

	var items []Item
	if len(seeds) == 0 {
		items, err = e.popularityItems(ctx)
	} else {
		items, err = e.blendFromSeeds(ctx, prefs, seeds)
	}
	if err != nil {
		return err
	}

	if len(items) == 0 {
		logging.Debug().
			Str("user_id", userID).
			Msg("RECOMMEND: No candidates for user, leaving cache entry absent")
		return nil
	}
	if len(items) > e.maxItems {
		items = items[:e.maxItems]
	}

	e.cache.Set(ctx, userID, items)
	logging.Debug().
		Str("user_id", userID).
		Int("items", len(items)).
		Int("seeds", len(seeds)).
		Msg("RECOMMEND: Refreshed user recommendations")
	return nil
}

// Recommendations returns the user's cached list. It never recomputes;
// a cache miss surfaces as an empty list until the next refresh.
func (e *Engine) Recommendations(ctx context.Context, userID string) []Item {
	items, ok := e.cache.Get(ctx, userID)
	if !ok {
		return nil
	}
	return items
}

// blendFromSeeds gathers similar vehicles for every seed and folds the
// scores into one ranking, weighted by how strongly the user prefers
// each seed. Candidates already present in the user's preference map
// are dropped.
func (e *Engine) blendFromSeeds(ctx context.Context, prefs map[string]float64, seeds []seedVehicle) ([]Item, error) {
	var total float64
	for _, s := range seeds {
		total += s.weight
	}

	scores := make(map[string]float64)
	reasons := make(map[string]string)
	for _, s := range seeds {
		share := 1.0 / float64(len(seeds))
		if total > 0 {
			share = s.weight / total
		}

		sims, err := e.SimilarVehicles(ctx, s.vehicleID, e.similarLimit)
		if err != nil {
			return nil, err
		}
		for _, item := range sims {
			if _, interacted := prefs[vehiclePrefKey+item.VehicleID]; interacted {
				continue
			}
			scores[item.VehicleID] += share * item.Score
			// Overlap evidence from any seed beats a popularity fill.
			if reasons[item.VehicleID] != ReasonCoView {
				reasons[item.VehicleID] = item.Reason
			}
		}
	}

	items := make([]Item, 0, len(scores))
	for id, score := range scores {
		items = append(items, Item{VehicleID: id, Score: score, Reason: reasons[id]})
	}
	sortItems(items)
	return items, nil
}

// popularityItems is the cold-start ranking for users without vehicle
// history.
func (e *Engine) popularityItems(ctx context.Context) ([]Item, error) {
	top, err := e.source.TopVehicles(ctx, e.maxItems)
	if err != nil {
		return nil, fmt.Errorf("popularity ranking: %w", err)
	}
	var maxScore float64
	if len(top) > 0 {
		maxScore = top[0].Score
	}

	items := make([]Item, 0, len(top))
	for _, v := range top {
		frac := 1.0
		if maxScore > 0 {
			frac = v.Score / maxScore
		}
		items = append(items, Item{VehicleID: v.VehicleID, Score: frac, Reason: ReasonPopular})
	}
	return items, nil
}

// seedVehicle is one of the user's preferred vehicles with its weight.
type seedVehicle struct {
	vehicleID string
	weight    float64
}

// strongestVehicles extracts the top-weighted vehicle attributes from a
// preference map, heaviest first, ties broken by id for deterministic
// refreshes.
func strongestVehicles(prefs map[string]float64, limit int) []seedVehicle {
	seeds := make([]seedVehicle, 0, limit)
	for key, weight := range prefs {
		id := strings.TrimPrefix(key, vehiclePrefKey)
		if id == key || id == "" || weight <= 0 {
			continue
		}
		seeds = append(seeds, seedVehicle{vehicleID: id, weight: weight})
	}
	sort.Slice(seeds, func(i, j int) bool {
		if seeds[i].weight != seeds[j].weight {
			return seeds[i].weight > seeds[j].weight
		}
		return seeds[i].vehicleID < seeds[j].vehicleID
	})
	if len(seeds) > limit {
		seeds = seeds[:limit]
	}
	return seeds
}

// sortItems orders items by score descending, vehicle id ascending on
// ties.
func sortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].VehicleID < items[j].VehicleID
	})
}
