package postgres

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"spacenet/internal/codec"
	"spacenet/internal/infra/persistence/postgres/testutil"
	"spacenet/internal/infra/persistence/storetest"
	"spacenet/internal/mapping"
	"spacenet/internal/schema"
	"spacenet/pkg/domain"
)

func encoder(t *testing.T) *codec.Encoder {
	t.Helper()
	reg, err := schema.NewCatalogRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	m, err := mapping.New(reg)
	if err != nil {
		t.Fatalf("mapping: %v", err)
	}
	enc, err := codec.New(reg, m)
	if err != nil {
		t.Fatalf("encoder: %v", err)
	}
	return enc
}

func openWith(t *testing.T, db *sql.DB, engine *domain.RulesEngine) (*Store, error) {
	t.Helper()
	restore := OverrideSQLOpen(func(driverName, _ string) (*sql.DB, error) {
		if driverName != "pgx" {
			t.Fatalf("unexpected driver %q", driverName)
		}
		return db, nil
	})
	defer restore()
	return NewStore(context.Background(), "", encoder(t), engine)
}

func TestPostgresStoreContract(t *testing.T) {
	var db *sql.DB
	open := func(t *testing.T, engine *domain.RulesEngine) domain.PersistentStore {
		store, err := openWith(t, db, engine)
		if err != nil {
			t.Fatalf("new postgres store: %v", err)
		}
		return store
	}
	storetest.Run(t, storetest.Factory{
		Open: func(t *testing.T, engine *domain.RulesEngine) domain.PersistentStore {
			db, _ = testutil.NewStubDB()
			return open(t, engine)
		},
		Reopen: open,
	})
}

func TestPostgresStoreAppliesDDLAndWritesRows(t *testing.T) {
	db, conn := testutil.NewStubDB()
	store, err := openWith(t, db, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for _, kind := range domain.Kinds() {
		if !conn.Created[kind.Table()] {
			t.Fatalf("expected %s table to be created", kind.Table())
		}
	}
	var sawBigint bool
	for _, stmt := range conn.Execs {
		if strings.Contains(stmt, "BIGINT") {
			sawBigint = true
		}
	}
	if !sawBigint {
		t.Fatalf("expected postgres column types in ddl: %v", conn.Execs)
	}

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.Insert(domain.KindResource, domain.Row{
			Type: domain.ResourceContinuous,
			Columns: map[string]any{
				"name": "Water", "description": "potable", "class_of_supply": int64(2),
				"units": "kg", "unit_mass_f": 1.0, "unit_volume_f": 0.001,
			},
		})
		return err
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	rows := conn.Rows("resources")
	if len(rows) != 1 {
		t.Fatalf("expected one resource row, got %v", rows)
	}
	if rows[0]["unit_mass_f"] != 1.0 || rows[0]["unit_mass_i"] != nil || rows[0]["type"] != "Continuous" {
		t.Fatalf("unexpected stored row: %v", rows[0])
	}
	counters := conn.Rows("spacenet_counters")
	if len(counters) != 1 || counters[0]["kind"] != "resource" || counters[0]["last_id"] != int64(1) || counters[0]["last_position"] != int64(1) {
		t.Fatalf("unexpected counters: %v", counters)
	}
}

func TestPostgresStoreWriteFailureKeepsMemoryUnchanged(t *testing.T) {
	db, conn := testutil.NewStubDB()
	store, err := openWith(t, db, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	insert := func(tx domain.Transaction) error {
		_, err := tx.Insert(domain.KindEdge, domain.Row{
			Type:    domain.EdgeSurface,
			Columns: map[string]any{"name": "Traverse", "description": "rim", "origin_id": int64(1), "destination_id": int64(2), "distance": 12.5},
		})
		return err
	}

	conn.FailCommit = true
	if _, err := store.RunInTransaction(context.Background(), insert); err == nil {
		t.Fatalf("expected commit failure")
	}
	conn.FailCommit = false
	conn.FailBegin = true
	if _, err := store.RunInTransaction(context.Background(), insert); err == nil {
		t.Fatalf("expected begin failure")
	}
	conn.FailBegin = false
	conn.FailTables = map[string]bool{"edges": true}
	if _, err := store.RunInTransaction(context.Background(), insert); err == nil {
		t.Fatalf("expected exec failure")
	}
	_ = store.View(context.Background(), func(v domain.TransactionView) error {
		if v.Count(domain.KindEdge) != 0 {
			t.Fatalf("expected failed writes to leave memory untouched")
		}
		return nil
	})
}

func TestPostgresStoreOpenErrors(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailExec = true
	if _, err := openWith(t, db, nil); err == nil || !strings.Contains(err.Error(), "ping") {
		t.Fatalf("expected ping failure, got %v", err)
	}

	db, conn = testutil.NewStubDB()
	conn.FailTables = map[string]bool{"nodes": true}
	if _, err := openWith(t, db, nil); err == nil || !strings.Contains(err.Error(), "select nodes") {
		t.Fatalf("expected load failure, got %v", err)
	}
}
