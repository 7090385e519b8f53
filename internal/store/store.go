// Package store persists keyed JSON records in sqlite with debounced
// batch writes. In-memory state stays authoritative between flushes;
// persistence failures are reported but never fail the caller's
// state transition.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultFlushInterval is how often buffered writes hit disk.
const DefaultFlushInterval = 500 * time.Millisecond

type recordKey struct {
	Kind string
	Key  string
}

// Store buffers Put calls and writes them in batches. Critical
// transitions use PutSync to get an awaited flush.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	pending map[recordKey]json.RawMessage

	interval time.Duration
	stop     chan struct{}
	stopped  chan struct{}
	closed   bool
}

// Open opens (or creates) the store at path.
func Open(path string) (*Store, error) {
	return OpenWithInterval(path, DefaultFlushInterval)
}

// OpenWithInterval opens the store with a custom flush interval.
func OpenWithInterval(path string, interval time.Duration) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS records (
		kind TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (kind, key)
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create records table: %w", err)
	}
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	s := &Store{
		db:       db,
		pending:  make(map[recordKey]json.RawMessage),
		interval: interval,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go s.flushLoop()
	return s, nil
}

func (s *Store) flushLoop() {
	defer close(s.stopped)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				slog.Warn("Batched store flush failed", "error", err)
			}
		case <-s.stop:
			return
		}
	}
}

// Put buffers a record for the next batched flush.
func (s *Store) Put(kind, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal record %s/%s: %w", kind, key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	s.pending[recordKey{Kind: kind, Key: key}] = data
	return nil
}

// PutSync buffers a record and flushes immediately. Used for
// transitions that must survive a crash (task completion, plan
// approval).
func (s *Store) PutSync(kind, key string, value any) error {
	if err := s.Put(kind, key, value); err != nil {
		return err
	}
	return s.Flush()
}

// Get unmarshals a record into out, consulting unflushed writes first.
func (s *Store) Get(kind, key string, out any) (bool, error) {
	s.mu.Lock()
	if data, ok := s.pending[recordKey{Kind: kind, Key: key}]; ok {
		s.mu.Unlock()
		return true, json.Unmarshal(data, out)
	}
	s.mu.Unlock()

	var value string
	err := s.db.QueryRow(`SELECT value FROM records WHERE kind = ? AND key = ?`, kind, key).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read record %s/%s: %w", kind, key, err)
	}
	return true, json.Unmarshal([]byte(value), out)
}

// List returns the raw values of every flushed and pending record of a
// kind, pending values winning over flushed ones.
func (s *Store) List(kind string) ([]json.RawMessage, error) {
	merged := make(map[string]json.RawMessage)

	rows, err := s.db.Query(`SELECT key, value FROM records WHERE kind = ? ORDER BY key`, kind)
	if err != nil {
		return nil, fmt.Errorf("list records %s: %w", kind, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		merged[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	for rk, data := range s.pending {
		if rk.Kind == kind {
			merged[rk.Key] = data
		}
	}
	s.mu.Unlock()

	out := make([]json.RawMessage, 0, len(merged))
	for _, v := range merged {
		out = append(out, v)
	}
	return out, nil
}

// Flush writes all pending records in one transaction.
func (s *Store) Flush() error {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return nil
	}
	batch := s.pending
	s.pending = make(map[recordKey]json.RawMessage)
	s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		s.requeue(batch)
		return fmt.Errorf("begin flush: %w", err)
	}
	now := time.Now().UTC()
	for rk, data := range batch {
		if _, err := tx.Exec(
			`INSERT INTO records (kind, key, value, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(kind, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			rk.Kind, rk.Key, string(data), now,
		); err != nil {
			tx.Rollback()
			s.requeue(batch)
			return fmt.Errorf("flush record %s/%s: %w", rk.Kind, rk.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		s.requeue(batch)
		return fmt.Errorf("commit flush: %w", err)
	}
	return nil
}

// requeue puts a failed batch back without clobbering newer writes.
func (s *Store) requeue(batch map[recordKey]json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for rk, data := range batch {
		if _, ok := s.pending[rk]; !ok {
			s.pending[rk] = data
		}
	}
}

// Close stops the flush loop, performs a final awaited flush, and
// closes the database.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	select {
	case <-s.stopped:
	case <-ctx.Done():
		return ctx.Err()
	}
	flushErr := s.Flush()
	closeErr := s.db.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
