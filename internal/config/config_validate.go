// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package config

import (
	"fmt"
	"strings"
)

// validLogLevels defines accepted logging levels.
var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validLogFormats defines accepted logging output formats.
var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateJournal(); err != nil {
		return err
	}

	if err := c.validateRedis(); err != nil {
		return err
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}

	if err := c.validatePipeline(); err != nil {
		return err
	}

	if err := c.validateSessions(); err != nil {
		return err
	}

	if err := c.validateLearning(); err != nil {
		return err
	}

	return c.validateLogging()
}

// validateServer validates HTTP server configuration.
func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("MOTRIX_SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("MOTRIX_SERVER_TIMEOUT must be positive, got %v", c.Server.Timeout)
	}
	env := strings.ToLower(c.Server.Environment)
	if env != "development" && env != "production" {
		return fmt.Errorf("MOTRIX_SERVER_ENVIRONMENT must be development or production, got %q", c.Server.Environment)
	}
	return nil
}

// validateDatabase validates DuckDB configuration.
func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("MOTRIX_DATABASE_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("MOTRIX_DATABASE_THREADS must be >= 0 (0 = all cores), got %d", c.Database.Threads)
	}
	return nil
}

// validateJournal validates journal configuration (only if enabled).
func (c *Config) validateJournal() error {
	if !c.Journal.Enabled {
		return nil
	}
	if c.Journal.Path == "" {
		return fmt.Errorf("MOTRIX_JOURNAL_PATH is required when MOTRIX_JOURNAL_ENABLED=true")
	}
	return nil
}

// validateRedis validates Redis configuration (only if enabled).
func (c *Config) validateRedis() error {
	if !c.Redis.Enabled {
		return nil
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("MOTRIX_REDIS_ADDR is required when MOTRIX_REDIS_ENABLED=true")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("MOTRIX_REDIS_DB must be >= 0, got %d", c.Redis.DB)
	}
	return nil
}

// validateSecurity validates authentication and rate limit configuration.
func (c *Config) validateSecurity() error {
	if c.Security.AuthEnabled {
		if c.Security.JWTSecret == "" {
			return fmt.Errorf("MOTRIX_SECURITY_JWT_SECRET is required when MOTRIX_SECURITY_AUTH_ENABLED=true")
		}
		if len(c.Security.JWTSecret) < 32 {
			return fmt.Errorf("MOTRIX_SECURITY_JWT_SECRET must be at least 32 characters, got %d", len(c.Security.JWTSecret))
		}
	}
	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs <= 0 {
			return fmt.Errorf("MOTRIX_SECURITY_RATE_LIMIT_REQS must be positive, got %d", c.Security.RateLimitReqs)
		}
		if c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("MOTRIX_SECURITY_RATE_LIMIT_WINDOW must be positive, got %v", c.Security.RateLimitWindow)
		}
	}
	return nil
}

// validatePipeline validates tier queue and batch configuration.
func (c *Config) validatePipeline() error {
	caps := []struct {
		name  string
		value int
	}{
		{"MOTRIX_PIPELINE_CRITICAL_CAPACITY", c.Pipeline.CriticalCapacity},
		{"MOTRIX_PIPELINE_HIGH_CAPACITY", c.Pipeline.HighCapacity},
		{"MOTRIX_PIPELINE_MEDIUM_CAPACITY", c.Pipeline.MediumCapacity},
		{"MOTRIX_PIPELINE_LOW_CAPACITY", c.Pipeline.LowCapacity},
		{"MOTRIX_PIPELINE_BACKGROUND_CAPACITY", c.Pipeline.BackgroundCapacity},
	}
	for _, capacity := range caps {
		if capacity.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", capacity.name, capacity.value)
		}
	}

	if c.Pipeline.CriticalTimeout <= 0 {
		return fmt.Errorf("MOTRIX_PIPELINE_CRITICAL_TIMEOUT must be positive, got %v", c.Pipeline.CriticalTimeout)
	}

	intervals := []struct {
		name  string
		value int64
	}{
		{"MOTRIX_PIPELINE_HIGH_INTERVAL", int64(c.Pipeline.HighInterval)},
		{"MOTRIX_PIPELINE_MEDIUM_INTERVAL", int64(c.Pipeline.MediumInterval)},
		{"MOTRIX_PIPELINE_LOW_INTERVAL", int64(c.Pipeline.LowInterval)},
		{"MOTRIX_PIPELINE_BACKGROUND_INTERVAL", int64(c.Pipeline.BackgroundInterval)},
	}
	for _, interval := range intervals {
		if interval.value <= 0 {
			return fmt.Errorf("%s must be positive", interval.name)
		}
	}

	batches := []struct {
		name  string
		value int
	}{
		{"MOTRIX_PIPELINE_HIGH_BATCH_SIZE", c.Pipeline.HighBatchSize},
		{"MOTRIX_PIPELINE_MEDIUM_BATCH_SIZE", c.Pipeline.MediumBatchSize},
		{"MOTRIX_PIPELINE_LOW_BATCH_SIZE", c.Pipeline.LowBatchSize},
	}
	for _, batch := range batches {
		if batch.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", batch.name, batch.value)
		}
	}

	if c.Pipeline.RetryAttempts < 0 {
		return fmt.Errorf("MOTRIX_PIPELINE_RETRY_ATTEMPTS must be >= 0, got %d", c.Pipeline.RetryAttempts)
	}
	if c.Pipeline.DedupWindow <= 0 {
		return fmt.Errorf("MOTRIX_PIPELINE_DEDUP_WINDOW must be positive, got %v", c.Pipeline.DedupWindow)
	}
	if c.Pipeline.DedupSize <= 0 {
		return fmt.Errorf("MOTRIX_PIPELINE_DEDUP_SIZE must be positive, got %d", c.Pipeline.DedupSize)
	}

	return nil
}

// validateSessions validates session tracking configuration.
func (c *Config) validateSessions() error {
	if c.Sessions.IdleTimeout <= 0 {
		return fmt.Errorf("MOTRIX_SESSIONS_IDLE_TIMEOUT must be positive, got %v", c.Sessions.IdleTimeout)
	}
	if c.Sessions.SweepInterval <= 0 {
		return fmt.Errorf("MOTRIX_SESSIONS_SWEEP_INTERVAL must be positive, got %v", c.Sessions.SweepInterval)
	}
	if c.Sessions.SweepInterval > c.Sessions.IdleTimeout {
		return fmt.Errorf("MOTRIX_SESSIONS_SWEEP_INTERVAL (%v) must not exceed MOTRIX_SESSIONS_IDLE_TIMEOUT (%v)",
			c.Sessions.SweepInterval, c.Sessions.IdleTimeout)
	}
	return nil
}

// validateLearning validates learning loop configuration (only if enabled).
func (c *Config) validateLearning() error {
	if !c.Learning.Enabled {
		return nil
	}
	if c.Learning.QueueCapacity <= 0 {
		return fmt.Errorf("MOTRIX_LEARNING_QUEUE_CAPACITY must be positive, got %d", c.Learning.QueueCapacity)
	}
	if c.Learning.BatchInterval <= 0 || c.Learning.EmbeddingInterval <= 0 || c.Learning.PreferenceInterval <= 0 {
		return fmt.Errorf("learning loop intervals must all be positive")
	}
	if c.Learning.LearningRate <= 0 || c.Learning.LearningRate >= 1 {
		return fmt.Errorf("MOTRIX_LEARNING_LEARNING_RATE must be in (0, 1), got %f", c.Learning.LearningRate)
	}
	if c.Learning.EmbeddingDim <= 0 {
		return fmt.Errorf("MOTRIX_LEARNING_EMBEDDING_DIM must be positive, got %d", c.Learning.EmbeddingDim)
	}
	if c.Learning.ImmediateThreshold < 0 || c.Learning.ImmediateThreshold > 1 {
		return fmt.Errorf("MOTRIX_LEARNING_IMMEDIATE_THRESHOLD must be in [0, 1], got %f", c.Learning.ImmediateThreshold)
	}
	if c.Learning.DecayFactor < 0 || c.Learning.DecayFactor > 1 {
		return fmt.Errorf("MOTRIX_LEARNING_DECAY_FACTOR must be in [0, 1], got %f", c.Learning.DecayFactor)
	}
	return nil
}

// validateLogging validates logging configuration.
func (c *Config) validateLogging() error {
	level := strings.ToLower(c.Logging.Level)
	if !validLogLevels[level] {
		return fmt.Errorf("MOTRIX_LOGGING_LEVEL must be one of trace, debug, info, warn, error; got %q", c.Logging.Level)
	}
	format := strings.ToLower(c.Logging.Format)
	if !validLogFormats[format] {
		return fmt.Errorf("MOTRIX_LOGGING_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
