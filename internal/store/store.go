// Package store persists records in SQLite behind a kind-generic API.
// The payload column holds the full record JSON; denormalized columns
// and the side tables (tags, memberships, refs) exist so views and
// search never have to scan payloads.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/store/migrations"
)

// MemoryPath opens an ephemeral store that vanishes on close. Used when
// local storage is disabled.
const MemoryPath = ":memory:"

// ChangeOp distinguishes store notifications.
type ChangeOp string

const (
	OpPut    ChangeOp = "put"
	OpDelete ChangeOp = "delete"
)

// Change describes a committed mutation. Created is set when a put
// inserted a row that did not exist before.
type Change struct {
	Op      ChangeOp
	Kind    models.Kind
	Slug    string
	Status  models.SyncStatus
	Created bool
}

// Store wraps the SQLite handle.
type Store struct {
	db *sql.DB

	mu        sync.RWMutex
	listeners []func(Change)
}

// Open opens (or creates) the database at path and applies pending
// migrations. Pass MemoryPath for an ephemeral store.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	if path == MemoryPath {
		// A pooled connection would otherwise get its own empty db.
		dsn = "file::memory:?mode=memory&cache=shared&_busy_timeout=5000&_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("store: set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	if err := initFTS(db); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Subscribe registers a listener invoked after each committed change.
// Listeners run on the mutating goroutine and must not block.
func (s *Store) Subscribe(fn func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) emit(c Change) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, fn := range s.listeners {
		fn(c)
	}
}

// withTx runs fn inside a transaction, rolling back on error or panic.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback() //nolint:errcheck
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck // best-effort on failure path
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}
