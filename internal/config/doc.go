// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

/*
Package config provides centralized configuration management for Motrix.

Configuration is loaded with Koanf v2 from three layered sources, later
layers overriding earlier ones:

 1. Built-in defaults (defaultConfig)
 2. Optional YAML config file (config.yaml, or CONFIG_PATH)
 3. Environment variables

Environment variables use the MOTRIX_ prefix with underscore-separated
paths, or one of the short aliases kept for operational convenience:

	MOTRIX_SERVER_PORT=9000          # server.port
	MOTRIX_PIPELINE_HIGH_INTERVAL=30s # pipeline.high_interval
	HTTP_PORT=9000                   # alias for server.port
	DUCKDB_PATH=/data/events.duckdb  # alias for database.path
	LOG_LEVEL=debug                  # alias for logging.level

Example:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal("Failed to load config:", err)
	}
	fmt.Println(cfg.Server.Port, cfg.Pipeline.HighInterval)

Load validates the assembled configuration and fails fast on invalid
values, naming the offending environment variable in the error. The
returned Config is immutable and safe for concurrent reads.
*/
package config
