// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package recommend

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/motrixlab/motrix/internal/cache"
	"github.com/motrixlab/motrix/internal/config"
)

// fakeShared implements sharedTier against an in-memory map so the
// shared path is testable without a Redis server.
type fakeShared struct {
	mu      sync.Mutex
	entries map[string]string
	getErr  error
	setErr  error
	gets    int
	sets    int
	closed  bool
}

func newFakeShared() *fakeShared {
	return &fakeShared{entries: make(map[string]string)}
}

func (f *fakeShared) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	val, ok := f.entries[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (f *fakeShared) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	switch v := value.(type) {
	case []byte:
		f.entries[key] = string(v)
	case string:
		f.entries[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeShared) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeShared) stored(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := f.entries[key]
	return val, ok
}

func testRecommendConfig() *config.RecommendConfig {
	return &config.RecommendConfig{
		CacheTTL:     time.Minute,
		MaxItems:     10,
		SimilarLimit: 3,
	}
}

func testItems() []Item {
	return []Item{
		{VehicleID: "veh-1", Score: 1.0, Reason: ReasonCoView},
		{VehicleID: "veh-2", Score: 0.5, Reason: ReasonPopular},
	}
}

func TestCacheLocalRoundTrip(t *testing.T) {
	c := NewCache(nil, testRecommendConfig())

	if _, ok := c.Get(context.Background(), "user_a"); ok {
		t.Fatal("expected miss before any set")
	}

	c.Set(context.Background(), "user_a", testItems())

	items, ok := c.Get(context.Background(), "user_a")
	if !ok {
		t.Fatal("expected hit after set")
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].VehicleID != "veh-1" || items[1].VehicleID != "veh-2" {
		t.Fatalf("item order = %s, %s", items[0].VehicleID, items[1].VehicleID)
	}
	if items[0].Reason != ReasonCoView {
		t.Fatalf("reason = %q, want %q", items[0].Reason, ReasonCoView)
	}

	if _, ok := c.Get(context.Background(), "user_b"); ok {
		t.Fatal("expected miss for a different user")
	}
}

func TestCacheIgnoresEmptyUserID(t *testing.T) {
	c := NewCache(nil, testRecommendConfig())

	c.Set(context.Background(), "", testItems())
	if _, ok := c.Get(context.Background(), ""); ok {
		t.Fatal("empty user id must never hit")
	}
}

func TestCacheDefaultTTL(t *testing.T) {
	c := NewCache(nil, nil)
	if c.ttl != defaultTTL {
		t.Fatalf("ttl = %v, want %v", c.ttl, defaultTTL)
	}
	if c.shared != nil {
		t.Fatal("shared tier must be absent without redis config")
	}
}

func TestCacheDisabledRedisStaysLocal(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.RedisConfig
	}{
		{name: "disabled", cfg: config.RedisConfig{Enabled: false, Addr: "localhost:6379"}},
		{name: "no address", cfg: config.RedisConfig{Enabled: true, Addr: ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCache(&tt.cfg, testRecommendConfig())
			if c.shared != nil {
				t.Fatal("shared tier must stay absent")
			}
		})
	}
}

func TestCacheLocalExpiry(t *testing.T) {
	c := NewCache(nil, &config.RecommendConfig{CacheTTL: 25 * time.Millisecond})

	c.Set(context.Background(), "user_a", testItems())
	if _, ok := c.Get(context.Background(), "user_a"); !ok {
		t.Fatal("expected hit inside the ttl")
	}

	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Get(context.Background(), "user_a"); ok {
		t.Fatal("expected expired entry to read as absent")
	}
}

func TestCacheWritesThroughToShared(t *testing.T) {
	shared := newFakeShared()
	c := NewCache(nil, testRecommendConfig())
	c.shared = shared

	c.Set(context.Background(), "user_a", testItems())

	payload, ok := shared.stored("recommendations:user_a")
	if !ok {
		t.Fatal("expected a shared tier write")
	}
	if payload == "" {
		t.Fatal("shared payload must not be empty")
	}
}

func TestCacheSharedHitServesWithoutLocal(t *testing.T) {
	shared := newFakeShared()
	c := NewCache(nil, testRecommendConfig())
	c.shared = shared

	c.Set(context.Background(), "user_a", testItems())

	// Drop the local tier so only the shared copy can answer.
	c.local.Stop()
	c.local = cache.New[*Entry](time.Minute)

	items, ok := c.Get(context.Background(), "user_a")
	if !ok {
		t.Fatal("expected shared tier hit")
	}
	if len(items) != 2 || items[0].VehicleID != "veh-1" {
		t.Fatalf("shared round trip items = %+v", items)
	}
}

func TestCacheSharedReadFailureFallsBackToLocal(t *testing.T) {
	shared := newFakeShared()
	c := NewCache(nil, testRecommendConfig())
	c.shared = shared

	c.Set(context.Background(), "user_a", testItems())
	shared.getErr = errors.New("connection refused")

	items, ok := c.Get(context.Background(), "user_a")
	if !ok {
		t.Fatal("expected local fallback hit")
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
}

func TestCacheSharedWriteFailureKeepsLocalCopy(t *testing.T) {
	shared := newFakeShared()
	shared.setErr = errors.New("readonly replica")
	c := NewCache(nil, testRecommendConfig())
	c.shared = shared

	c.Set(context.Background(), "user_a", testItems())

	if _, ok := shared.stored("recommendations:user_a"); ok {
		t.Fatal("failed shared write must not store")
	}
	if _, ok := c.Get(context.Background(), "user_a"); !ok {
		t.Fatal("expected the local copy to survive a shared write failure")
	}
}

func TestCacheUndecodableSharedEntryIsAMiss(t *testing.T) {
	shared := newFakeShared()
	shared.entries["recommendations:user_a"] = "{not json"
	c := NewCache(nil, testRecommendConfig())
	c.shared = shared

	if _, ok := c.Get(context.Background(), "user_a"); ok {
		t.Fatal("garbage shared entry must not hit")
	}
}

func TestCacheCloseReleasesShared(t *testing.T) {
	c := NewCache(nil, testRecommendConfig())
	if err := c.Close(); err != nil {
		t.Fatalf("local-only close: %v", err)
	}

	shared := newFakeShared()
	c.shared = shared
	if err := c.Close(); err != nil {
		t.Fatalf("close with shared tier: %v", err)
	}
	if !shared.closed {
		t.Fatal("expected the shared client to be closed")
	}
}
