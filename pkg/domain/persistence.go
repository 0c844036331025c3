package domain

import "context"

// Transaction exposes the record operations a persistence implementation must
// support within an atomic scope. Rows are copied in and out.
type Transaction interface {
	Snapshot() TransactionView
	// Insert stores a new row. An empty ID is assigned from the kind's sequence.
	Insert(kind EntityKind, row Row) (Row, error)
	// Update applies mutator to a copy of the stored row and stores the result.
	Update(kind EntityKind, id string, mutator func(*Row) error) (Row, error)
	// Delete removes a row and returns its last stored value.
	Delete(kind EntityKind, id string) (Row, error)
	Find(kind EntityKind, id string) (Row, bool)
}

// TransactionView provides read-only access to snapshot data for rules and reads.
type TransactionView interface {
	Find(kind EntityKind, id string) (Row, bool)
	// List returns all rows of a kind in insertion order.
	List(kind EntityKind) []Row
	Count(kind EntityKind) int
}

// PersistentStore is a minimal abstraction over durable backends.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	Close() error
}
