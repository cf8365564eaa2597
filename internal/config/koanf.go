// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths is the config file search order; the first hit wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/motrix/config.yaml",
	"/etc/motrix/config.yml",
}

// ConfigPathEnvVar, when set, is tried ahead of DefaultConfigPaths.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values. These
// defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8087,
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Database: DatabaseConfig{
			Path:                   "/data/motrix.duckdb",
			MaxMemory:              "2GB",
			Threads:                0, // 0 = use runtime.NumCPU()
			PreserveInsertionOrder: true,
		},
		Journal: JournalConfig{
			Enabled:       false, // Opt-in; queues are in-memory by default
			Path:          "/data/journal",
			SyncWrites:    true,
			ReplayOnStart: true,
		},
		Redis: RedisConfig{
			Enabled:     false, // Opt-in; local cache only by default
			Addr:        "127.0.0.1:6379",
			Password:    "",
			DB:          0,
			DialTimeout: 5 * time.Second,
		},
		Security: SecurityConfig{
			AuthEnabled:       false,
			JWTSecret:         "",
			TokenLifetime:     24 * time.Hour,
			RateLimitReqs:     100,
			RateLimitWindow:   1 * time.Minute,
			RateLimitDisabled: false,
			PerUserRate:       50,
			PerUserBurst:      100,
			CORSOrigins:       []string{"*"},
		},
		Pipeline: PipelineConfig{
			CriticalCapacity:   1000,
			HighCapacity:       5000,
			MediumCapacity:     5000,
			LowCapacity:        20000,
			BackgroundCapacity: 20000,

			CriticalTimeout: 1 * time.Second,

			HighInterval:       1 * time.Minute,
			HighBatchSize:      100,
			MediumInterval:     5 * time.Minute,
			MediumBatchSize:    500,
			LowInterval:        30 * time.Minute,
			LowBatchSize:       2000,
			BackgroundInterval: 1 * time.Hour,

			HighValueThreshold: 50.0,

			RetryAttempts: 3,
			RetryDelay:    1 * time.Second,

			DLQMaxEntries:    10000,
			DLQRetryInterval: 30 * time.Second,
			DLQMaxRetries:    5,

			DedupWindow: 60 * time.Second,
			DedupSize:   100000,

			MetricsInterval: 10 * time.Second,
			QualityInterval: 1 * time.Minute,
		},
		Sessions: SessionConfig{
			IdleTimeout:   30 * time.Minute,
			SweepInterval: 1 * time.Minute,
			MaxTracked:    100000,
		},
		Learning: LearningConfig{
			Enabled: true,

			BatchInterval:      5 * time.Minute,
			EmbeddingInterval:  10 * time.Minute,
			PreferenceInterval: 2 * time.Minute,

			QueueCapacity: 10000,

			BatchWindow: 5 * time.Minute,
			BatchLimit:  1000,
			MinBatch:    32,

			EmbeddingLookback: 1 * time.Hour,

			ActiveUserWindow: 10 * time.Minute,
			ActiveUserLimit:  100,

			BatchSize:       32,
			LearningRate:    0.001,
			EmbeddingDim:    64,
			UpdateThreshold: 10,

			ImmediateThreshold: 0.7,
			DecayFactor:        0.98,
		},
		Recommend: RecommendConfig{
			CacheTTL:     5 * time.Minute,
			MaxItems:     10,
			SimilarLimit: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load assembles the configuration from three layers, lowest to highest
// precedence: built-in defaults, an optional YAML file, then environment
// variables. Variables use the MOTRIX_ prefix with underscore paths
// (MOTRIX_SERVER_PORT becomes server.port) or one of the short aliases
// (HTTP_PORT, DUCKDB_PATH, LOG_LEVEL, ...).
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if err := normalizeListValues(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first config file that exists, trying the
// CONFIG_PATH override ahead of the default search paths. Empty when
// nothing is found; the defaults then stand alone.
func findConfigFile() string {
	candidates := DefaultConfigPaths
	if override := os.Getenv(ConfigPathEnvVar); override != "" {
		candidates = append([]string{override}, candidates...)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// listValueKeys names the config keys holding string slices. Environment
// variables deliver them as one comma-separated value.
var listValueKeys = []string{
	"security.cors_origins",
}

// normalizeListValues rewrites comma-separated env strings into real
// slices for the list-typed keys. YAML sources already deliver slices
// and pass through untouched.
func normalizeListValues(k *koanf.Koanf) error {
	for _, path := range listValueKeys {
		raw, ok := k.Get(path).(string)
		if !ok || raw == "" {
			continue
		}

		var items []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		if len(items) == 0 {
			continue
		}
		if err := k.Set(path, items); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

// envAliases maps short environment variable names to config paths. These
// exist for operational convenience alongside the canonical MOTRIX_ prefix.
var envAliases = map[string]string{
	// Server
	"http_port":    "server.port",
	"http_host":    "server.host",
	"http_timeout": "server.timeout",
	"environment":  "server.environment",

	// Database
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	// Journal
	"journal_enabled": "journal.enabled",
	"journal_path":    "journal.path",

	// Redis
	"redis_enabled":  "redis.enabled",
	"redis_addr":     "redis.addr",
	"redis_password": "redis.password",
	"redis_db":       "redis.db",

	// Security
	"auth_enabled":       "security.auth_enabled",
	"jwt_secret":         "security.jwt_secret",
	"rate_limit_reqs":    "security.rate_limit_reqs",
	"disable_rate_limit": "security.rate_limit_disabled",
	"cors_origins":       "security.cors_origins",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config
// paths. Variables with the MOTRIX_ prefix map positionally onto the config
// tree; a small alias table covers common short names. Unknown variables are
// ignored so unrelated environment noise cannot leak into the config.
//
// Examples:
//   - MOTRIX_SERVER_PORT -> server.port
//   - MOTRIX_PIPELINE_HIGH_INTERVAL -> pipeline.high_interval
//   - HTTP_PORT -> server.port
//   - DUCKDB_PATH -> database.path
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	if path, ok := envAliases[key]; ok {
		return path
	}

	if rest, ok := strings.CutPrefix(key, "motrix_"); ok {
		return motrixEnvPath(rest)
	}

	return ""
}

// configSections lists top-level config keys used to split MOTRIX_ prefixed
// variables into section and field.
var configSections = []string{
	"server",
	"database",
	"journal",
	"redis",
	"security",
	"pipeline",
	"sessions",
	"learning",
	"recommend",
	"logging",
}

// motrixEnvPath maps the remainder of a MOTRIX_ variable onto a config path.
// The first underscore-delimited token selects the section; the rest is the
// field name with underscores preserved (MOTRIX_PIPELINE_HIGH_BATCH_SIZE ->
// pipeline.high_batch_size).
func motrixEnvPath(rest string) string {
	for _, section := range configSections {
		if field, ok := strings.CutPrefix(rest, section+"_"); ok && field != "" {
			return section + "." + field
		}
	}
	return ""
}
