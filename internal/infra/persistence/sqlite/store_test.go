package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"spacenet/internal/codec"
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

func open(t *testing.T, path string, engine *domain.RulesEngine) *Store {
	t.Helper()
	store, err := NewStore(path, encoder(t), engine)
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreContract(t *testing.T) {
	var path string
	storetest.Run(t, storetest.Factory{
		Open: func(t *testing.T, engine *domain.RulesEngine) domain.PersistentStore {
			path = filepath.Join(t.TempDir(), "state.db")
			return open(t, path, engine)
		},
		Reopen: func(t *testing.T, engine *domain.RulesEngine) domain.PersistentStore {
			return open(t, path, engine)
		},
	})
}

func TestSQLiteStoreAppliesTableDDL(t *testing.T) {
	store := open(t, filepath.Join(t.TempDir(), "nested", "state.db"), nil)
	for _, kind := range domain.Kinds() {
		var name string
		if err := store.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", kind.Table()).Scan(&name); err != nil {
			t.Fatalf("lookup %s table: %v", kind.Table(), err)
		}
	}
	if store.Path() == "" {
		t.Fatalf("expected path")
	}
}

func TestSQLiteStoreWritesSuffixedColumns(t *testing.T) {
	store := open(t, filepath.Join(t.TempDir(), "state.db"), nil)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.Insert(domain.KindResource, domain.Row{
			Type: domain.ResourceDiscrete,
			Columns: map[string]any{
				"name": "Spare", "description": "spare", "class_of_supply": int64(4),
				"units": "each", "unit_mass_i": int64(2), "unit_volume_i": int64(1),
			},
		})
		return err
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	var mass int64
	var massF any
	if err := store.DB().QueryRow("SELECT unit_mass_i, unit_mass_f FROM resources WHERE id = ?", "1").Scan(&mass, &massF); err != nil {
		t.Fatalf("select: %v", err)
	}
	if mass != 2 || massF != nil {
		t.Fatalf("unexpected stored values: %d %v", mass, massF)
	}
}
