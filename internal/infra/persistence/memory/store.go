// Package memory provides an in-memory implementation of the record store used
// for tests, ephemeral environments and as the transactional core of the
// durable stores.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"spacenet/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Row aliases domain.Row.
	Row = domain.Row
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// Counter holds a kind's id sequence and insertion position high-water marks.
type Counter struct {
	Sequence int64 `json:"sequence"`
	Position int64 `json:"position"`
}

// CommitHook runs after rules pass and before the transaction state is
// published. An error aborts the transaction. Durable stores use it to write
// the change set through. counters carries the post-commit counter of every
// kind the change set inserted into.
type CommitHook func(ctx context.Context, changes []Change, counters map[domain.EntityKind]Counter) error

type table struct {
	rows     map[string]Row
	sequence int64
	position int64
}

func (t *table) clone() *table {
	cp := &table{rows: make(map[string]Row, len(t.rows)), sequence: t.sequence, position: t.position}
	for id, row := range t.rows {
		cp.rows[id] = row.Clone()
	}
	return cp
}

// ordered returns rows sorted by insertion position.
func (t *table) ordered() []Row {
	out := make([]Row, 0, len(t.rows))
	for _, row := range t.rows {
		out = append(out, row.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

type memoryState struct {
	tables map[domain.EntityKind]*table
}

func newMemoryState() memoryState {
	s := memoryState{tables: make(map[domain.EntityKind]*table)}
	for _, kind := range domain.Kinds() {
		s.tables[kind] = &table{rows: make(map[string]Row)}
	}
	return s
}

func (s memoryState) clone() memoryState {
	cp := memoryState{tables: make(map[domain.EntityKind]*table, len(s.tables))}
	for kind, t := range s.tables {
		cp.tables[kind] = t.clone()
	}
	return cp
}

func (s memoryState) table(kind domain.EntityKind) (*table, error) {
	t, ok := s.tables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	return t, nil
}

// Snapshot captures a point-in-time clone of the store state. Sequences and
// Positions keep the counters of deleted rows so ids and positions are never
// handed out twice.
type Snapshot struct {
	Tables    map[domain.EntityKind][]Row `json:"tables"`
	Sequences map[domain.EntityKind]int64 `json:"sequences"`
	Positions map[domain.EntityKind]int64 `json:"positions"`
}

// SetCounter records a kind's counters in the snapshot.
func (s *Snapshot) SetCounter(kind domain.EntityKind, c Counter) {
	if s.Sequences == nil {
		s.Sequences = make(map[domain.EntityKind]int64)
	}
	if s.Positions == nil {
		s.Positions = make(map[domain.EntityKind]int64)
	}
	s.Sequences[kind] = c.Sequence
	s.Positions[kind] = c.Position
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Tables:    make(map[domain.EntityKind][]Row, len(state.tables)),
		Sequences: make(map[domain.EntityKind]int64, len(state.tables)),
		Positions: make(map[domain.EntityKind]int64, len(state.tables)),
	}
	for kind, t := range state.tables {
		s.Tables[kind] = t.ordered()
		s.Sequences[kind] = t.sequence
		s.Positions[kind] = t.position
	}
	return s
}

// memoryStateFromSnapshot rebuilds state, raising each sequence and position
// counter to at least the largest value present in the rows.
func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for kind, t := range state.tables {
		t.sequence = s.Sequences[kind]
		t.position = s.Positions[kind]
	}
	for kind, rows := range s.Tables {
		t, ok := state.tables[kind]
		if !ok {
			continue
		}
		for _, row := range rows {
			t.rows[row.ID] = row.Clone()
			if row.Position > t.position {
				t.position = row.Position
			}
			if n, err := strconv.ParseInt(row.ID, 10, 64); err == nil && n > t.sequence {
				t.sequence = n
			}
		}
	}
	return state
}

// Store provides an in-memory transactional store for entity rows.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	hook   CommitHook
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
	}
}

// SetCommitHook installs the hook invoked with each transaction's changes.
func (s *Store) SetCommitHook(hook CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

type transaction struct {
	state   memoryState
	changes []Change
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// Find returns a copy of a row.
func (v transactionView) Find(kind domain.EntityKind, id string) (Row, bool) {
	t, ok := v.state.tables[kind]
	if !ok {
		return Row{}, false
	}
	row, ok := t.rows[id]
	if !ok {
		return Row{}, false
	}
	return row.Clone(), true
}

// List returns all rows of a kind in insertion order.
func (v transactionView) List(kind domain.EntityKind) []Row {
	t, ok := v.state.tables[kind]
	if !ok {
		return nil
	}
	return t.ordered()
}

// Count returns the number of rows of a kind.
func (v transactionView) Count(kind domain.EntityKind) int {
	t, ok := v.state.tables[kind]
	if !ok {
		return 0
	}
	return len(t.rows)
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{state: s.state.clone()}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if s.hook != nil && len(tx.changes) > 0 {
		if err := s.hook(ctx, tx.changes, tx.counters()); err != nil {
			return result, err
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// counters reports the counters of every kind the transaction inserted into.
func (tx *transaction) counters() map[domain.EntityKind]Counter {
	out := make(map[domain.EntityKind]Counter)
	for _, change := range tx.changes {
		if change.Action != domain.ActionCreate {
			continue
		}
		if t, ok := tx.state.tables[change.Kind]; ok {
			out[change.Kind] = Counter{Sequence: t.sequence, Position: t.position}
		}
	}
	return out
}

// helper to record and append change entries.
func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// Find looks up a row within the transaction scope.
func (tx *transaction) Find(kind domain.EntityKind, id string) (Row, bool) {
	return newTransactionView(&tx.state).Find(kind, id)
}

// Insert stores a new row, assigning the next sequence value when the ID is
// empty. Positions always follow insertion order.
func (tx *transaction) Insert(kind domain.EntityKind, row Row) (Row, error) {
	t, err := tx.state.table(kind)
	if err != nil {
		return Row{}, err
	}
	if row.ID == "" {
		t.sequence++
		row.ID = strconv.FormatInt(t.sequence, 10)
	} else if n, err := strconv.ParseInt(row.ID, 10, 64); err == nil && n > t.sequence {
		t.sequence = n
	}
	if _, exists := t.rows[row.ID]; exists {
		return Row{}, fmt.Errorf("%s %q already exists", kind, row.ID)
	}
	t.position++
	row.Position = t.position
	stored := row.Clone()
	t.rows[row.ID] = stored
	after := stored.Clone()
	tx.recordChange(Change{Kind: kind, Action: domain.ActionCreate, After: &after})
	return row.Clone(), nil
}

// Update mutates a row using the provided mutator function. Identity and
// position cannot be changed by the mutator.
func (tx *transaction) Update(kind domain.EntityKind, id string, mutator func(*Row) error) (Row, error) {
	t, err := tx.state.table(kind)
	if err != nil {
		return Row{}, err
	}
	current, ok := t.rows[id]
	if !ok {
		return Row{}, domain.NotFoundError{Kind: kind, ID: id}
	}
	before := current.Clone()
	next := current.Clone()
	if err := mutator(&next); err != nil {
		return Row{}, err
	}
	next.ID = id
	next.Position = before.Position
	t.rows[id] = next.Clone()
	after := next.Clone()
	tx.recordChange(Change{Kind: kind, Action: domain.ActionUpdate, Before: &before, After: &after})
	return next, nil
}

// Delete removes a row from the transaction state and returns it.
func (tx *transaction) Delete(kind domain.EntityKind, id string) (Row, error) {
	t, err := tx.state.table(kind)
	if err != nil {
		return Row{}, err
	}
	current, ok := t.rows[id]
	if !ok {
		return Row{}, domain.NotFoundError{Kind: kind, ID: id}
	}
	delete(t.rows, id)
	before := current.Clone()
	tx.recordChange(Change{Kind: kind, Action: domain.ActionDelete, Before: &before})
	return current.Clone(), nil
}
