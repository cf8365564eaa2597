// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package recommend

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/motrixlab/motrix/internal/cache"
	"github.com/motrixlab/motrix/internal/config"
	"github.com/motrixlab/motrix/internal/logging"
	"github.com/motrixlab/motrix/internal/metrics"
)

const (
	// keyPrefix namespaces recommendation entries in the shared tier.
	keyPrefix = "recommendations:"

	// defaultTTL applies when no cache TTL is configured.
	defaultTTL = 5 * time.Minute
)

// sharedTier is the slice of the go-redis client API the cache uses.
// Narrowed for substitution in tests.
type sharedTier interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// Cache stores recommendation entries in two tiers: an optional shared
// Redis tier visible to every instance, and an in-process tier that
// serves both as a fallback and as the only tier when Redis is not
// configured.
//
// Shared-tier failures are logged and treated as misses on read and as
// skipped writes on write. The cache never returns an error; absence is
// the only negative outcome a caller sees.
type Cache struct {
	shared sharedTier
	local  *cache.Cache[*Entry]
	ttl    time.Duration
}

// NewCache builds the recommendation cache. The shared tier is attached
// only when redisCfg enables it and names an address; otherwise the
// cache runs local-only. Connection establishment is lazy, so a Redis
// that is down at startup joins once it becomes reachable.
func NewCache(redisCfg *config.RedisConfig, recCfg *config.RecommendConfig) *Cache {
	ttl := defaultTTL
	if recCfg != nil && recCfg.CacheTTL > 0 {
		ttl = recCfg.CacheTTL
	}

	c := &Cache{
		local: cache.New[*Entry](ttl),
		ttl:   ttl,
	}

	if redisCfg != nil && redisCfg.Enabled && redisCfg.Addr != "" {
		c.shared = redis.NewClient(&redis.Options{
			Addr:        redisCfg.Addr,
			Password:    redisCfg.Password,
			DB:          redisCfg.DB,
			DialTimeout: redisCfg.DialTimeout,
		})
		logging.Info().
			Str("addr", redisCfg.Addr).
			Int("db", redisCfg.DB).
			Dur("ttl", ttl).
			Msg("CACHE: Shared recommendation tier enabled")
	} else {
		logging.Debug().
			Dur("ttl", ttl).
			Msg("CACHE: Recommendation cache running local-only")
	}

	return c
}

// Get returns the cached recommendation items for userID. The shared
// tier is consulted first; on a shared miss or error the local tier
// answers. Expired entries count as absent. Get never recomputes.
func (c *Cache) Get(ctx context.Context, userID string) ([]Item, bool) {
	if userID == "" {
		return nil, false
	}
	key := keyPrefix + userID

	if c.shared != nil {
		payload, err := c.shared.Get(ctx, key).Result()
		switch {
		case err == nil:
			var entry Entry
			if uerr := json.Unmarshal([]byte(payload), &entry); uerr == nil {
				metrics.RecordCacheLookup("shared", true)
				return entry.Items, true
			}
			// Undecodable payloads fall through to the local tier.
			logging.Debug().
				Str("user_id", userID).
				Msg("CACHE: Discarding undecodable shared entry")
			metrics.RecordCacheLookup("shared", false)
		case errors.Is(err, redis.Nil):
			metrics.RecordCacheLookup("shared", false)
		default:
			logging.Debug().
				Err(err).
				Str("user_id", userID).
				Msg("CACHE: Shared tier read failed, falling back to local")
			metrics.RecordCacheLookup("shared", false)
		}
	}

	entry, ok := c.local.Get(key)
	if !ok {
		metrics.RecordCacheLookup("local", false)
		return nil, false
	}
	metrics.RecordCacheLookup("local", true)
	return entry.Items, true
}

// Set replaces the user's cached entry in both tiers. A failed shared
// write does not block the local write.
func (c *Cache) Set(ctx context.Context, userID string, items []Item) {
	if userID == "" {
		return
	}
	key := keyPrefix + userID

	entry := &Entry{
		UserID:     userID,
		Items:      items,
		ComputedAt: time.Now().UTC(),
		TTL:        c.ttl,
	}

	if c.shared != nil {
		payload, err := json.Marshal(entry)
		if err != nil {
			logging.Warn().
				Err(err).
				Str("user_id", userID).
				Msg("CACHE: Failed to encode recommendation entry")
		} else if err := c.shared.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			logging.Debug().
				Err(err).
				Str("user_id", userID).
				Msg("CACHE: Shared tier write failed, keeping local copy")
		}
	}

	c.local.SetWithTTL(key, entry, c.ttl)
}

// Close stops the local tier's sweeper and releases the shared tier
// connection if one was attached.
func (c *Cache) Close() error {
	c.local.Stop()
	if c.shared == nil {
		return nil
	}
	return c.shared.Close()
}
