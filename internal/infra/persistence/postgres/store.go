// Package postgres provides a Postgres-backed persistent store that mirrors the
// in-memory semantics while applying the generated table DDL on startup.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"spacenet/internal/codec"
	"spacenet/internal/infra/persistence/memory"
	"spacenet/internal/infra/persistence/sqlstore"
	"spacenet/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/spacenet?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists rows to Postgres while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db     *sql.DB
	layout sqlstore.Layout
	mu     sync.Mutex
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN).
// It applies the table DDL and hydrates the in-memory store from the existing rows.
func NewStore(ctx context.Context, dsn string, enc *codec.Encoder, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := sqlstore.ApplyDDL(ctx, db, sqlstore.Postgres, enc); err != nil {
		return nil, err
	}
	snapshot, err := sqlstore.Load(ctx, db, enc)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore(engine)
	mem.ImportState(snapshot)
	s := &Store{Store: mem, db: db, layout: enc}
	mem.SetCommitHook(s.persist)
	return s, nil
}

func (s *Store) persist(ctx context.Context, changes []domain.Change, counters map[domain.EntityKind]memory.Counter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sqlstore.Apply(ctx, s.db, sqlstore.Postgres, s.layout, changes, counters)
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
