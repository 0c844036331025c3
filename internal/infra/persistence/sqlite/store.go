// Package sqlite persists entity rows to one SQLite table per kind while
// reusing the in-memory store for transactions and rule evaluation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"spacenet/internal/codec"
	"spacenet/internal/infra/persistence/memory"
	"spacenet/internal/infra/persistence/sqlstore"
	"spacenet/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const defaultPath = "spacenet.db"

// Store writes every committed change set through to SQLite.
type Store struct {
	*memory.Store
	db     *sql.DB
	layout sqlstore.Layout
	mu     sync.Mutex
	path   string
}

// NewStore opens (creating when needed) the database at path, applies the
// table DDL and hydrates the in-memory state from the existing rows.
func NewStore(path string, enc *codec.Encoder, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps writes serialised and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	ctx := context.Background()
	if err := sqlstore.ApplyDDL(ctx, db, sqlstore.SQLite, enc); err != nil {
		_ = db.Close()
		return nil, err
	}
	snapshot, err := sqlstore.Load(ctx, db, enc)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	mem := memory.NewStore(engine)
	mem.ImportState(snapshot)
	s := &Store{Store: mem, db: db, layout: enc, path: path}
	mem.SetCommitHook(s.persist)
	return s, nil
}

func (s *Store) persist(ctx context.Context, changes []domain.Change, counters map[domain.EntityKind]memory.Counter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sqlstore.Apply(ctx, s.db, sqlstore.SQLite, s.layout, changes, counters)
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
