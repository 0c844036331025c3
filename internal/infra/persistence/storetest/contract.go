// Package storetest holds the behavioural contract every domain.PersistentStore
// implementation is tested against.
package storetest

import (
	"context"
	"errors"
	"testing"

	"spacenet/pkg/domain"
)

// Factory opens stores for the contract. Reopen returns a store over the same
// backing data and is nil for volatile backends.
type Factory struct {
	Open   func(t *testing.T, engine *domain.RulesEngine) domain.PersistentStore
	Reopen func(t *testing.T, engine *domain.RulesEngine) domain.PersistentStore
}

func node(name string, lat float64) domain.Row {
	return domain.Row{
		Type: domain.NodeSurface,
		Columns: map[string]any{
			"name": name, "description": name + " site", "body_1": "Moon",
			"latitude": lat, "longitude": 10.5,
		},
	}
}

func element(id string) domain.Row {
	return domain.Row{
		ID:   id,
		Type: domain.ElementHumanAgent,
		Columns: map[string]any{
			"name": "Crew", "description": "crew member", "class_of_supply": int64(0),
			"environment": "Pressurized", "accommodation_mass": 0.0, "mass": 100.0,
			"volume": 1.0, "active_time_fraction": 0.5,
		},
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "block_everything" }

func (blockingRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for range changes {
		res.Violations = append(res.Violations, domain.Violation{Rule: "block_everything", Severity: domain.SeverityBlock})
	}
	return res, nil
}

// Run exercises the contract against the factory.
func Run(t *testing.T, f Factory) {
	t.Helper()
	t.Run("InsertAssignsSequenceAndPosition", func(t *testing.T) { testInsert(t, f) })
	t.Run("UpdateKeepsIdentity", func(t *testing.T) { testUpdate(t, f) })
	t.Run("DeleteReturnsSnapshot", func(t *testing.T) { testDelete(t, f) })
	t.Run("FailedTransactionRollsBack", func(t *testing.T) { testRollback(t, f) })
	t.Run("BlockingRuleAborts", func(t *testing.T) { testBlockingRule(t, f) })
	if f.Reopen != nil {
		t.Run("ReopenRestoresState", func(t *testing.T) { testReopen(t, f) })
	}
}

func mustRun(t *testing.T, store domain.PersistentStore, fn func(domain.Transaction) error) {
	t.Helper()
	if _, err := store.RunInTransaction(context.Background(), fn); err != nil {
		t.Fatalf("run transaction: %v", err)
	}
}

func list(t *testing.T, store domain.PersistentStore, kind domain.EntityKind) []domain.Row {
	t.Helper()
	var rows []domain.Row
	if err := store.View(context.Background(), func(v domain.TransactionView) error {
		rows = v.List(kind)
		if v.Count(kind) != len(rows) {
			t.Fatalf("count %d does not match list %d", v.Count(kind), len(rows))
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	return rows
}

func testInsert(t *testing.T, f Factory) {
	store := f.Open(t, nil)
	mustRun(t, store, func(tx domain.Transaction) error {
		for _, name := range []string{"LSP", "Shackleton", "Malapert"} {
			if _, err := tx.Insert(domain.KindNode, node(name, -89)); err != nil {
				return err
			}
		}
		row, err := tx.Insert(domain.KindElement, element("7f9c0a52-31a4-4a8e-9d0e-6a1f1c2e5b10"))
		if err != nil {
			return err
		}
		if row.ID != "7f9c0a52-31a4-4a8e-9d0e-6a1f1c2e5b10" {
			t.Fatalf("expected supplied id to be kept, got %q", row.ID)
		}
		if _, err := tx.Insert(domain.KindElement, element(row.ID)); err == nil {
			t.Fatalf("expected duplicate id error")
		}
		return nil
	})
	rows := list(t, store, domain.KindNode)
	if len(rows) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(rows))
	}
	for i, want := range []string{"1", "2", "3"} {
		if rows[i].ID != want {
			t.Fatalf("row %d: expected id %s, got %s", i, want, rows[i].ID)
		}
		if rows[i].Position != int64(i+1) {
			t.Fatalf("row %d: expected position %d, got %d", i, i+1, rows[i].Position)
		}
	}
	if rows[1].Columns["name"] != "Shackleton" {
		t.Fatalf("unexpected row order: %+v", rows)
	}
	if got := list(t, store, domain.KindElement); len(got) != 1 {
		t.Fatalf("expected one element, got %d", len(got))
	}
}

func testUpdate(t *testing.T, f Factory) {
	store := f.Open(t, nil)
	var id string
	mustRun(t, store, func(tx domain.Transaction) error {
		row, err := tx.Insert(domain.KindNode, node("LSP", -89))
		id = row.ID
		return err
	})
	mustRun(t, store, func(tx domain.Transaction) error {
		_, err := tx.Update(domain.KindNode, id, func(r *domain.Row) error {
			r.ID = "hijack"
			r.Position = 99
			r.Columns["latitude"] = -85.5
			return nil
		})
		return err
	})
	rows := list(t, store, domain.KindNode)
	if len(rows) != 1 || rows[0].ID != id || rows[0].Position != 1 {
		t.Fatalf("identity changed by update: %+v", rows)
	}
	if rows[0].Columns["latitude"] != -85.5 {
		t.Fatalf("expected updated latitude, got %v", rows[0].Columns["latitude"])
	}
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.Update(domain.KindNode, "404", func(*domain.Row) error { return nil })
		return err
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func testDelete(t *testing.T, f Factory) {
	store := f.Open(t, nil)
	mustRun(t, store, func(tx domain.Transaction) error {
		_, err := tx.Insert(domain.KindNode, node("LSP", -89))
		return err
	})
	mustRun(t, store, func(tx domain.Transaction) error {
		removed, err := tx.Delete(domain.KindNode, "1")
		if err != nil {
			return err
		}
		if removed.Columns["name"] != "LSP" {
			t.Fatalf("expected deleted snapshot, got %+v", removed)
		}
		if _, ok := tx.Find(domain.KindNode, "1"); ok {
			t.Fatalf("expected row to be gone inside the transaction")
		}
		return nil
	})
	if rows := list(t, store, domain.KindNode); len(rows) != 0 {
		t.Fatalf("expected no nodes, got %d", len(rows))
	}
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.Delete(domain.KindNode, "1")
		return err
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func testRollback(t *testing.T, f Factory) {
	store := f.Open(t, nil)
	boom := errors.New("boom")
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.Insert(domain.KindNode, node("LSP", -89)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if rows := list(t, store, domain.KindNode); len(rows) != 0 {
		t.Fatalf("expected rollback, got %d rows", len(rows))
	}
}

func testBlockingRule(t *testing.T, f Factory) {
	engine := domain.NewRulesEngine()
	engine.Register(blockingRule{})
	store := f.Open(t, engine)
	res, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.Insert(domain.KindNode, node("LSP", -89))
		return err
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking result")
	}
	if rows := list(t, store, domain.KindNode); len(rows) != 0 {
		t.Fatalf("expected blocked insert to be discarded")
	}
}

func testReopen(t *testing.T, f Factory) {
	store := f.Open(t, nil)
	mustRun(t, store, func(tx domain.Transaction) error {
		for _, name := range []string{"LSP", "Shackleton"} {
			if _, err := tx.Insert(domain.KindNode, node(name, -89)); err != nil {
				return err
			}
		}
		_, err := tx.Insert(domain.KindElement, element("0b8d8f4e-7a0c-4f5e-9d44-2f1b3c4d5e6f"))
		return err
	})
	mustRun(t, store, func(tx domain.Transaction) error {
		_, err := tx.Delete(domain.KindNode, "1")
		return err
	})

	reopened := f.Reopen(t, nil)
	rows := list(t, reopened, domain.KindNode)
	if len(rows) != 1 || rows[0].ID != "2" || rows[0].Columns["name"] != "Shackleton" {
		t.Fatalf("unexpected nodes after reopen: %+v", rows)
	}
	if rows[0].Columns["latitude"] != -89.0 {
		t.Fatalf("expected float column to survive, got %T %v", rows[0].Columns["latitude"], rows[0].Columns["latitude"])
	}
	elements := list(t, reopened, domain.KindElement)
	if len(elements) != 1 || elements[0].Type != domain.ElementHumanAgent {
		t.Fatalf("unexpected elements after reopen: %+v", elements)
	}
	// The sequence continues after the highest stored id.
	mustRun(t, reopened, func(tx domain.Transaction) error {
		row, err := tx.Insert(domain.KindNode, node("Malapert", -86))
		if err != nil {
			return err
		}
		if row.ID != "3" {
			t.Fatalf("expected id 3 after reopen, got %s", row.ID)
		}
		return nil
	})

	// Deleting the highest row must not hand its id or position out again.
	mustRun(t, reopened, func(tx domain.Transaction) error {
		_, err := tx.Delete(domain.KindNode, "3")
		return err
	})
	again := f.Reopen(t, nil)
	mustRun(t, again, func(tx domain.Transaction) error {
		row, err := tx.Insert(domain.KindNode, node("Nobile", -85))
		if err != nil {
			return err
		}
		if row.ID != "4" || row.Position != 4 {
			t.Fatalf("expected id 4 at position 4 after deleting the highest row, got %s at %d", row.ID, row.Position)
		}
		return nil
	})
}
