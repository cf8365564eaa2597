// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/motrixlab/motrix/internal/config"
	"github.com/motrixlab/motrix/internal/logging"
)

// opTimeout bounds store operations whose caller set no deadline.
const opTimeout = 30 * time.Second

// Store wraps the DuckDB connection and provides the durable side of the
// pipeline: behavior events, preference aggregates, vehicle popularity, and
// the terminal dead-letter table.
//
// Concurrency contract: the store is the only resource shared across the
// tier processors and the learning loops. Every cross-path write here is
// either an idempotent insert (ON CONFLICT DO NOTHING on the event id) or
// an additive accumulation (weight = weight + delta), so retries, the race
// between the immediate and batched persistence paths, and cross-tier
// reordering are all safe without coordination.
type Store struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig

	stmtCache   map[string]*sql.Stmt
	stmtCacheMu sync.RWMutex
}

// New opens the database, configures the connection pool, and bootstraps
// the schema.
func New(cfg *config.DatabaseConfig) (*Store, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	// Parent directory must exist for file-backed databases.
	if dbDir := filepath.Dir(cfg.Path); dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Auto-install/auto-load stays disabled so startup cannot hang on a
	// network fetch in restricted environments.
	params := []string{
		"access_mode=read_write",
		fmt.Sprintf("threads=%d", numThreads),
		"max_memory=" + cfg.MaxMemory,
		"preserve_insertion_order=" + strconv.FormatBool(cfg.PreserveInsertionOrder),
		"autoinstall_known_extensions=false",
		"autoload_known_extensions=false",
	}
	dsn := cfg.Path + "?" + strings.Join(params, "&")

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Path, err)
	}

	s := &Store{
		conn:      conn,
		cfg:       cfg,
		stmtCache: make(map[string]*sql.Stmt),
	}

	s.configureConnectionPool()

	if err := s.initialize(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Int("threads", numThreads).
		Str("max_memory", cfg.MaxMemory).
		Msg("STORE: Database ready")

	return s, nil
}

// configureConnectionPool sets connection pool parameters: NumCPU open
// connections for parallelism, a small idle pool, and bounded lifetimes so
// stale connections rotate out.
func (s *Store) configureConnectionPool() {
	s.conn.SetMaxOpenConns(runtime.NumCPU())
	s.conn.SetMaxIdleConns(2)
	s.conn.SetConnMaxLifetime(time.Hour)
	s.conn.SetConnMaxIdleTime(5 * time.Minute)
}

// initialize creates tables and indexes.
func (s *Store) initialize() error {
	if err := s.createTables(); err != nil {
		return err
	}
	if s.cfg != nil && s.cfg.SkipIndexes {
		return nil
	}
	return s.createIndexes()
}

// Conn returns the underlying SQL connection for packages that compose
// their own queries, such as the recommendation engine.
func (s *Store) Conn() *sql.DB {
	return s.conn
}

// Ping checks that the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if s.conn == nil {
		return errors.New("store has no open connection")
	}
	return s.conn.PingContext(ctx)
}

// Checkpoint forces a WAL checkpoint.
func (s *Store) Checkpoint(ctx context.Context) error {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	if _, err := s.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("failed to checkpoint: %w", err)
	}
	return nil
}

// Close closes cached statements and the connection. A best-effort
// checkpoint flushes the WAL first so the next startup does not replay it.
func (s *Store) Close() error {
	s.stmtCacheMu.Lock()
	for _, stmt := range s.stmtCache {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				logging.Warn().Err(err).Msg("STORE: Failed to close prepared statement")
			}
		}
	}
	s.stmtCache = make(map[string]*sql.Stmt)
	s.stmtCacheMu.Unlock()

	if s.conn == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	if err := s.Checkpoint(ctx); err != nil {
		logging.Warn().Err(err).Msg("STORE: Failed to checkpoint before close")
	}
	cancel()

	return s.conn.Close()
}

// ensureContext attaches opTimeout when the caller provided no deadline.
func (s *Store) ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, opTimeout)
}

// getOrPrepare returns a cached prepared statement for query, preparing it
// on first use. Statements live for the life of the connection.
func (s *Store) getOrPrepare(ctx context.Context, query string) (*sql.Stmt, error) {
	s.stmtCacheMu.RLock()
	stmt, ok := s.stmtCache[query]
	s.stmtCacheMu.RUnlock()
	if ok {
		return stmt, nil
	}

	s.stmtCacheMu.Lock()
	defer s.stmtCacheMu.Unlock()
	if stmt, ok := s.stmtCache[query]; ok {
		return stmt, nil
	}

	stmt, err := s.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	s.stmtCache[query] = stmt
	return stmt, nil
}

func closeQuietly(conn *sql.DB) {
	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		logging.Warn().Err(err).Msg("STORE: Failed to close connection")
	}
}
