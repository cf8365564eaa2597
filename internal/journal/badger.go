// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package journal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"

	"github.com/motrixlab/motrix/internal/behavior"
	"github.com/motrixlab/motrix/internal/config"
	"github.com/motrixlab/motrix/internal/logging"
	"github.com/motrixlab/motrix/internal/metrics"
)

// Key prefixes partition the keyspace into unconfirmed and confirmed
// entries. Keys are prefix + event ID.
const (
	prefixPending   = "pending:"
	prefixConfirmed = "confirmed:"
)

const (
	// entryTTL caps how long an entry can linger. It matches the ingest
	// window: an event too old to pass the quality gate has nothing left
	// to replay into.
	entryTTL = 24 * time.Hour

	compactInterval  = 1 * time.Hour
	closeTimeout     = 30 * time.Second
	memTableSize     = 16 << 20
	valueLogFileSize = 64 << 20
	gcDiscardRatio   = 0.5
)

// BadgerJournal stores entries in an embedded Badger database. All
// operations are safe for concurrent use.
type BadgerJournal struct {
	db *badger.DB

	mu     sync.Mutex
	closed bool

	totalAppends  atomic.Int64
	totalConfirms atomic.Int64
	totalReplayed atomic.Int64

	compactMu      sync.Mutex
	lastCompaction time.Time

	stopCompact chan struct{}
	wg          sync.WaitGroup
}

// Open returns a Badger-backed journal when cfg enables one and a Nop
// journal otherwise, so callers never branch on configuration.
func Open(cfg *config.JournalConfig) (Journal, error) {
	if cfg == nil || !cfg.Enabled {
		logging.Info().Msg("JOURNAL: Disabled, tier queues are in-memory only")
		return Nop{}, nil
	}
	if cfg.Path == "" {
		return nil, errors.New("journal path cannot be empty")
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.MemTableSize = memTableSize
	opts.ValueLogFileSize = valueLogFileSize
	opts.NumCompactors = 2
	opts.Compression = options.Snappy
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}

	j := &BadgerJournal{
		db:          db,
		stopCompact: make(chan struct{}),
	}

	pending := j.countPrefix(prefixPending)
	metrics.JournalPending.Set(float64(pending))

	j.wg.Add(1)
	go j.compactLoop()

	logging.Info().
		Str("path", cfg.Path).
		Bool("sync_writes", cfg.SyncWrites).
		Int64("pending", pending).
		Msg("JOURNAL: Ready")

	return j, nil
}

// Append records an admitted event under its event ID.
func (j *BadgerJournal) Append(ctx context.Context, ev *behavior.Event) error {
	if err := j.ensureOpen(); err != nil {
		return err
	}
	if ev == nil {
		return ErrNilEvent
	}
	if ev.ID == "" {
		return ErrEmptyEventID
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	data, err := json.Marshal(Entry{
		ID:        ev.ID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal journal entry %s: %w", ev.ID, err)
	}

	err = j.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(prefixPending+ev.ID), data).WithTTL(entryTTL)
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("append journal entry %s: %w", ev.ID, err)
	}

	j.totalAppends.Add(1)
	metrics.JournalPending.Inc()
	return nil
}

// Confirm moves the entry for the given event ID from the pending prefix
// to the confirmed prefix, where compaction will drop it.
func (j *BadgerJournal) Confirm(ctx context.Context, eventID string) error {
	if err := j.ensureOpen(); err != nil {
		return err
	}
	if eventID == "" {
		return ErrEmptyEventID
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := j.db.Update(func(txn *badger.Txn) error {
		pendingKey := []byte(prefixPending + eventID)
		item, err := txn.Get(pendingKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEntryNotFound
		}
		if err != nil {
			return fmt.Errorf("get pending entry: %w", err)
		}

		var entry Entry
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		}); err != nil {
			return fmt.Errorf("decode pending entry: %w", err)
		}

		now := time.Now().UTC()
		entry.Confirmed = true
		entry.ConfirmedAt = &now

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal confirmed entry: %w", err)
		}
		confirmed := badger.NewEntry([]byte(prefixConfirmed+eventID), data).WithTTL(entryTTL)
		if err := txn.SetEntry(confirmed); err != nil {
			return fmt.Errorf("write confirmed entry: %w", err)
		}
		return txn.Delete(pendingKey)
	})
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return ErrEntryNotFound
		}
		return fmt.Errorf("confirm journal entry %s: %w", eventID, err)
	}

	j.totalConfirms.Add(1)
	metrics.JournalPending.Dec()
	return nil
}

// Discard removes an entry without confirming it. Used when an event was
// journaled but could not be enqueued, so it must not replay later.
func (j *BadgerJournal) Discard(ctx context.Context, eventID string) error {
	if err := j.ensureOpen(); err != nil {
		return err
	}
	if eventID == "" {
		return ErrEmptyEventID
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	j.deleteEntry(eventID)
	metrics.JournalPending.Dec()
	return nil
}

// Replay feeds pending entries to enqueue in creation order. Accepted
// entries remain pending; their events carry the same IDs they were
// journaled under, so persistence confirms them through the normal path.
func (j *BadgerJournal) Replay(ctx context.Context, enqueue func(*behavior.Event) bool) (int, error) {
	if err := j.ensureOpen(); err != nil {
		return 0, err
	}

	var entries []Entry
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixPending)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var entry Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				logging.Warn().Err(err).
					Str("key", string(it.Item().Key())).
					Msg("JOURNAL: Skipping undecodable entry")
				continue
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan pending entries: %w", err)
	}

	// Oldest first, so queue capacity goes to the events that have
	// waited longest.
	sort.Slice(entries, func(a, b int) bool {
		return entries[a].CreatedAt.Before(entries[b].CreatedAt)
	})

	replayed := 0
	for i := range entries {
		ev, err := entries[i].Event()
		if err != nil {
			logging.Warn().Err(err).
				Str("entry_id", entries[i].ID).
				Msg("JOURNAL: Dropping corrupt entry")
			j.deleteEntry(entries[i].ID)
			continue
		}
		if !enqueue(ev) {
			continue
		}
		replayed++
	}

	if replayed > 0 {
		j.totalReplayed.Add(int64(replayed))
		metrics.JournalReplayed.Add(float64(replayed))
		logging.Info().
			Int("replayed", replayed).
			Int("pending", len(entries)).
			Msg("JOURNAL: Replayed pending events into tier queues")
	}
	return replayed, nil
}

// Stats counts entries by prefix and reports storage size. It also
// reconciles the pending gauge against the actual count.
func (j *BadgerJournal) Stats() Stats {
	if err := j.ensureOpen(); err != nil {
		return Stats{}
	}

	j.compactMu.Lock()
	lastCompaction := j.lastCompaction
	j.compactMu.Unlock()

	var pending, confirmed int64
	if err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		pendingPrefix := []byte(prefixPending)
		for it.Seek(pendingPrefix); it.ValidForPrefix(pendingPrefix); it.Next() {
			pending++
		}
		confirmedPrefix := []byte(prefixConfirmed)
		for it.Seek(confirmedPrefix); it.ValidForPrefix(confirmedPrefix); it.Next() {
			confirmed++
		}
		return nil
	}); err != nil {
		logging.Warn().Err(err).Msg("JOURNAL: Stats count failed")
	}

	lsm, vlog := j.db.Size()
	metrics.JournalPending.Set(float64(pending))

	return Stats{
		Pending:        pending,
		Confirmed:      confirmed,
		TotalAppends:   j.totalAppends.Load(),
		TotalConfirms:  j.totalConfirms.Load(),
		TotalReplayed:  j.totalReplayed.Load(),
		LastCompaction: lastCompaction,
		DBSizeBytes:    lsm + vlog,
	}
}

// Close stops the compaction loop and closes the database, bounded by
// closeTimeout so shutdown cannot hang on a stuck flush.
func (j *BadgerJournal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	j.mu.Unlock()

	close(j.stopCompact)
	j.wg.Wait()

	done := make(chan error, 1)
	go func() { done <- j.db.Close() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close journal database: %w", err)
		}
		logging.Info().Msg("JOURNAL: Closed")
		return nil
	case <-time.After(closeTimeout):
		return fmt.Errorf("journal close timed out after %v", closeTimeout)
	}
}

func (j *BadgerJournal) ensureOpen() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	return nil
}

// deleteEntry removes an entry from both prefixes, best effort. Badger
// deletes are blind writes, so missing keys are not an error.
func (j *BadgerJournal) deleteEntry(eventID string) {
	err := j.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(prefixPending + eventID)); err != nil {
			return err
		}
		return txn.Delete([]byte(prefixConfirmed + eventID))
	})
	if err != nil {
		logging.Warn().Err(err).
			Str("entry_id", eventID).
			Msg("JOURNAL: Failed to delete entry")
	}
}

func (j *BadgerJournal) countPrefix(prefix string) int64 {
	var count int64
	if err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			count++
		}
		return nil
	}); err != nil {
		logging.Warn().Err(err).Msg("JOURNAL: Entry count failed")
	}
	return count
}

func (j *BadgerJournal) compactLoop() {
	defer j.wg.Done()

	ticker := time.NewTicker(compactInterval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopCompact:
			return
		case <-ticker.C:
			j.compact()
		}
	}
}

// compact drops confirmed entries and reclaims value log space. Pending
// entries are left alone; their TTL bounds how long they can linger.
func (j *BadgerJournal) compact() {
	start := time.Now()

	dropped, err := j.dropConfirmed()
	if err != nil {
		logging.Error().Err(err).Msg("JOURNAL: Compaction failed to drop confirmed entries")
	}

	// Badger returns ErrNoRewrite once nothing is left to reclaim.
	for {
		if err := j.db.RunValueLogGC(gcDiscardRatio); err != nil {
			break
		}
	}

	j.compactMu.Lock()
	j.lastCompaction = time.Now()
	j.compactMu.Unlock()

	if dropped > 0 {
		logging.Info().
			Int64("dropped", dropped).
			Dur("duration", time.Since(start)).
			Msg("JOURNAL: Compaction removed confirmed entries")
	}
}

func (j *BadgerJournal) dropConfirmed() (int64, error) {
	var count int64
	err := j.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		// Collect first; keys cannot be deleted mid-iteration.
		var keys [][]byte
		prefix := []byte(prefixConfirmed)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := make([]byte, len(it.Item().Key()))
			copy(key, it.Item().Key())
			keys = append(keys, key)
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}
