// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package config

import (
	"time"
)

// Config holds all application configuration loaded from defaults, an optional
// YAML file, and environment variables.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all settings
//  2. Config File: Optional YAML config file (config.yaml) for persistent settings
//  3. Environment Variables: Override any setting via environment variables
//
// Configuration Categories:
//
//  1. Infrastructure:
//     - Database: DuckDB configuration (path, memory, threads)
//     - Journal: Optional Badger write-ahead journal for tier queues
//     - Redis: Optional shared recommendation cache
//
//  2. Pipeline:
//     - Pipeline: Tier queue capacities, batch cadences, persistence retry policy
//     - Sessions: Idle timeout and sweep interval for session tracking
//
//  3. Learning:
//     - Learning: Background loop cadences and model hyperparameters
//     - Recommend: Recommendation cache TTL and list sizing
//
//  4. API & Security:
//     - Server: HTTP server configuration (port, host, timeout)
//     - Security: Ingest authentication, rate limiting, CORS
//
//  5. Observability:
//     - Logging: Log levels and output formats
//
// Thread Safety:
// Config is immutable after Load() and safe for concurrent read access from
// multiple goroutines.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Journal   JournalConfig   `koanf:"journal"`  // Optional: durable tier queue journal
	Redis     RedisConfig     `koanf:"redis"`    // Optional: shared recommendation cache
	Security  SecurityConfig  `koanf:"security"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Sessions  SessionConfig   `koanf:"sessions"`
	Learning  LearningConfig  `koanf:"learning"`
	Recommend RecommendConfig `koanf:"recommend"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"` // "development" or "production"
}

// DatabaseConfig holds DuckDB settings.
// Threads=0 means runtime.NumCPU().
type DatabaseConfig struct {
	Path                   string `koanf:"path"`
	MaxMemory              string `koanf:"max_memory"`
	Threads                int    `koanf:"threads"`
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`

	// SkipIndexes skips index creation for fast test setup. Never set in
	// production configuration.
	SkipIndexes bool `koanf:"skip_indexes"`
}

// JournalConfig holds settings for the optional Badger-backed tier queue
// journal. When enabled, accepted events are journaled before enqueue and
// confirmed after persistence, so queue contents survive a crash.
type JournalConfig struct {
	Enabled       bool   `koanf:"enabled"`
	Path          string `koanf:"path"`
	SyncWrites    bool   `koanf:"sync_writes"`
	ReplayOnStart bool   `koanf:"replay_on_start"`
}

// RedisConfig holds settings for the optional shared recommendation cache.
// When disabled, recommendations are cached locally only.
type RedisConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Addr        string        `koanf:"addr"`
	Password    string        `koanf:"password"`
	DB          int           `koanf:"db"`
	DialTimeout time.Duration `koanf:"dial_timeout"`
}

// SecurityConfig holds ingest authentication and rate limiting settings.
//
// AuthEnabled gates JWT verification on the ingest endpoint. When enabled,
// rules flagged requires_auth reject events from unauthenticated requests;
// JWTSecret must be set.
type SecurityConfig struct {
	AuthEnabled       bool          `koanf:"auth_enabled"`
	JWTSecret         string        `koanf:"jwt_secret"`
	TokenLifetime     time.Duration `koanf:"token_lifetime"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	PerUserRate       float64       `koanf:"per_user_rate"`  // events/sec per authenticated user
	PerUserBurst      int           `koanf:"per_user_burst"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// PipelineConfig holds tier queue sizing, batch cadences, and the
// persistence retry policy.
//
// Queue capacities follow the fast/regular/slow grouping: the critical queue
// is small because it drains continuously, high and medium share the regular
// size, low and background absorb bulk traffic.
type PipelineConfig struct {
	CriticalCapacity   int `koanf:"critical_capacity"`
	HighCapacity       int `koanf:"high_capacity"`
	MediumCapacity     int `koanf:"medium_capacity"`
	LowCapacity        int `koanf:"low_capacity"`
	BackgroundCapacity int `koanf:"background_capacity"`

	// Critical tier dequeue timeout; the processor loops on this.
	CriticalTimeout time.Duration `koanf:"critical_timeout"`

	// Batch tier cadences and per-drain caps. Background has no cap; it
	// drains its whole queue every interval.
	HighInterval       time.Duration `koanf:"high_interval"`
	HighBatchSize      int           `koanf:"high_batch_size"`
	MediumInterval     time.Duration `koanf:"medium_interval"`
	MediumBatchSize    int           `koanf:"medium_batch_size"`
	LowInterval        time.Duration `koanf:"low_interval"`
	LowBatchSize       int           `koanf:"low_batch_size"`
	BackgroundInterval time.Duration `koanf:"background_interval"`

	// Events whose conversion value exceeds this threshold are re-routed
	// through the immediate path after a batch flush.
	HighValueThreshold float64 `koanf:"high_value_threshold"`

	// Persistence retry policy. A failed flush is retried with exponential
	// backoff up to RetryAttempts before the batch spills to the dead
	// letter queue.
	RetryAttempts int           `koanf:"retry_attempts"`
	RetryDelay    time.Duration `koanf:"retry_delay"`

	// Dead letter queue sizing and replay.
	DLQMaxEntries    int           `koanf:"dlq_max_entries"`
	DLQRetryInterval time.Duration `koanf:"dlq_retry_interval"`
	DLQMaxRetries    int           `koanf:"dlq_max_retries"`

	// Dedup window for the quality gate.
	DedupWindow time.Duration `koanf:"dedup_window"`
	DedupSize   int           `koanf:"dedup_size"`

	// Operational loops.
	MetricsInterval time.Duration `koanf:"metrics_interval"`
	QualityInterval time.Duration `koanf:"quality_interval"`
}

// SessionConfig holds session tracking settings.
type SessionConfig struct {
	IdleTimeout   time.Duration `koanf:"idle_timeout"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
	MaxTracked    int           `koanf:"max_tracked"`
}

// LearningConfig holds background learning loop cadences and model
// hyperparameters.
type LearningConfig struct {
	Enabled bool `koanf:"enabled"`

	// Loop cadences.
	BatchInterval      time.Duration `koanf:"batch_interval"`
	EmbeddingInterval  time.Duration `koanf:"embedding_interval"`
	PreferenceInterval time.Duration `koanf:"preference_interval"`

	// Buffer capacity of the learning bus between the deferred path and
	// the interaction processor.
	QueueCapacity int `koanf:"queue_capacity"`

	// Batch trainer windowing.
	BatchWindow time.Duration `koanf:"batch_window"`
	BatchLimit  int           `koanf:"batch_limit"`
	MinBatch    int           `koanf:"min_batch"`

	// Embedding refresh considers entities touched within this lookback.
	EmbeddingLookback time.Duration `koanf:"embedding_lookback"`

	// Preference recalculation targets users active within this window.
	ActiveUserWindow time.Duration `koanf:"active_user_window"`
	ActiveUserLimit  int           `koanf:"active_user_limit"`

	// Model hyperparameters handed to the trainer collaborator.
	BatchSize       int     `koanf:"batch_size"`
	LearningRate    float64 `koanf:"learning_rate"`
	EmbeddingDim    int     `koanf:"embedding_dim"`
	UpdateThreshold int     `koanf:"update_threshold"`

	// Interactions whose engagement exceeds this threshold trigger an
	// immediate recommendation refresh.
	ImmediateThreshold float64 `koanf:"immediate_threshold"`

	// DecayFactor scales stored preference weights during each
	// recalculation pass. 1.0 (or 0) disables decay.
	DecayFactor float64 `koanf:"decay_factor"`
}

// RecommendConfig holds recommendation cache settings.
type RecommendConfig struct {
	CacheTTL     time.Duration `koanf:"cache_ttl"`
	MaxItems     int           `koanf:"max_items"`
	SimilarLimit int           `koanf:"similar_limit"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // trace, debug, info, warn, error
	Format string `koanf:"format"` // json, console
	Caller bool   `koanf:"caller"`
}
