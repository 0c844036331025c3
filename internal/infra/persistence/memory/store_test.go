package memory

import (
	"context"
	"errors"
	"testing"

	"spacenet/internal/infra/persistence/storetest"
	"spacenet/pkg/domain"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, storetest.Factory{
		Open: func(_ *testing.T, engine *domain.RulesEngine) domain.PersistentStore {
			return NewStore(engine)
		},
	})
}

func TestExportImportState(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		for i := 0; i < 3; i++ {
			if _, err := tx.Insert(domain.KindResource, Row{Type: domain.ResourceContinuous, Columns: map[string]any{"name": "LOX"}}); err != nil {
				return err
			}
		}
		_, err := tx.Delete(domain.KindResource, "3")
		return err
	})
	if err != nil {
		t.Fatalf("run transaction: %v", err)
	}
	snapshot := store.ExportState()
	if got := len(snapshot.Tables[domain.KindResource]); got != 2 {
		t.Fatalf("expected 2 resources in snapshot, got %d", got)
	}
	if snapshot.Sequences[domain.KindResource] != 3 || snapshot.Positions[domain.KindResource] != 3 {
		t.Fatalf("expected counters 3/3, got %d/%d", snapshot.Sequences[domain.KindResource], snapshot.Positions[domain.KindResource])
	}

	store.ImportState(Snapshot{})
	_ = store.View(ctx, func(v TransactionView) error {
		if v.Count(domain.KindResource) != 0 {
			t.Fatalf("expected cleared state")
		}
		return nil
	})

	store.ImportState(snapshot)
	_, err = store.RunInTransaction(ctx, func(tx Transaction) error {
		row, err := tx.Insert(domain.KindResource, Row{Type: domain.ResourceDiscrete, Columns: map[string]any{}})
		if err != nil {
			return err
		}
		if row.ID != "4" || row.Position != 4 {
			t.Fatalf("expected id 4 at position 4, got %s at %d", row.ID, row.Position)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("insert after import: %v", err)
	}
	if store.RulesEngine() == nil {
		t.Fatalf("expected rules engine")
	}
}

func TestImportStateKeepsDeletedCounters(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	snapshot := Snapshot{
		Tables: map[domain.EntityKind][]Row{
			domain.KindNode: {{ID: "2", Position: 2, Type: domain.NodeSurface, Columns: map[string]any{}}},
		},
	}
	snapshot.SetCounter(domain.KindNode, Counter{Sequence: 5, Position: 7})
	// Counters below the stored rows are raised to them.
	snapshot.SetCounter(domain.KindEdge, Counter{Sequence: 1, Position: 1})
	snapshot.Tables[domain.KindEdge] = []Row{{ID: "4", Position: 9, Type: domain.EdgeSpace, Columns: map[string]any{}}}
	store.ImportState(snapshot)

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		node, err := tx.Insert(domain.KindNode, Row{Type: domain.NodeOrbital, Columns: map[string]any{}})
		if err != nil {
			return err
		}
		if node.ID != "6" || node.Position != 8 {
			t.Fatalf("expected node 6 at position 8, got %s at %d", node.ID, node.Position)
		}
		edge, err := tx.Insert(domain.KindEdge, Row{Type: domain.EdgeSpace, Columns: map[string]any{}})
		if err != nil {
			return err
		}
		if edge.ID != "5" || edge.Position != 10 {
			t.Fatalf("expected edge 5 at position 10, got %s at %d", edge.ID, edge.Position)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("insert after import: %v", err)
	}
}

func TestRowsAreCopied(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	cols := map[string]any{"name": "LSP"}
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.Insert(domain.KindNode, Row{Type: domain.NodeSurface, Columns: cols})
		return err
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	cols["name"] = "mutated"
	_ = store.View(ctx, func(v TransactionView) error {
		row, ok := v.Find(domain.KindNode, "1")
		if !ok || row.Columns["name"] != "LSP" {
			t.Fatalf("stored row aliased caller map: %+v", row)
		}
		row.Columns["name"] = "mutated"
		again, _ := v.Find(domain.KindNode, "1")
		if again.Columns["name"] != "LSP" {
			t.Fatalf("view returned aliased row")
		}
		return nil
	})
}

func TestCommitHook(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	var (
		seen     []Change
		counters map[domain.EntityKind]Counter
	)
	store.SetCommitHook(func(_ context.Context, changes []Change, c map[domain.EntityKind]Counter) error {
		seen = append(seen, changes...)
		counters = c
		return nil
	})
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.Insert(domain.KindEdge, Row{Type: domain.EdgeSpace, Columns: map[string]any{}}); err != nil {
			return err
		}
		_, err := tx.Update(domain.KindEdge, "1", func(r *Row) error {
			r.Columns["duration"] = 3.0
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(seen) != 2 || seen[0].Action != domain.ActionCreate || seen[1].Action != domain.ActionUpdate {
		t.Fatalf("unexpected changes: %+v", seen)
	}
	if seen[1].Before == nil || seen[1].After.Columns["duration"] != 3.0 {
		t.Fatalf("expected before/after rows on update: %+v", seen[1])
	}
	if len(counters) != 1 || counters[domain.KindEdge] != (Counter{Sequence: 1, Position: 1}) {
		t.Fatalf("unexpected counters: %+v", counters)
	}

	failing := errors.New("disk full")
	store.SetCommitHook(func(context.Context, []Change, map[domain.EntityKind]Counter) error { return failing })
	_, err = store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.Delete(domain.KindEdge, "1")
		return err
	})
	if !errors.Is(err, failing) {
		t.Fatalf("expected hook error, got %v", err)
	}
	_ = store.View(ctx, func(v TransactionView) error {
		if _, ok := v.Find(domain.KindEdge, "1"); !ok {
			t.Fatalf("expected failed hook to keep the row")
		}
		return nil
	})
}

func TestCanceledContext(t *testing.T) {
	store := NewStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.RunInTransaction(ctx, func(Transaction) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if err := store.View(ctx, func(TransactionView) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestUnknownKind(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.Insert("planet", Row{})
		return err
	})
	if err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
