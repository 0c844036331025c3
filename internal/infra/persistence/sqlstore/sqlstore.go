// Package sqlstore holds the table IO shared by the SQL-backed stores. It
// applies the DDL, hydrates a memory snapshot from the per-kind tables and
// the counters table, and writes committed change sets through.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"spacenet/internal/codec"
	"spacenet/internal/entitymodel/sqlbundle"
	"spacenet/internal/infra/persistence/memory"
	"spacenet/pkg/domain"
)

// Layout reports the columns of each kind's table.
type Layout interface {
	Layout(kind domain.EntityKind) []codec.Column
}

// Dialect captures the syntax differences between SQL engines.
type Dialect struct {
	Name        sqlbundle.Dialect
	Placeholder func(n int) string
}

// SQLite uses positional question marks.
var SQLite = Dialect{Name: sqlbundle.DialectSQLite, Placeholder: func(int) string { return "?" }}

// Postgres uses numbered placeholders.
var Postgres = Dialect{Name: sqlbundle.DialectPostgres, Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) }}

// ApplyDDL executes every statement of the generated bundle for the dialect.
func ApplyDDL(ctx context.Context, db *sql.DB, d Dialect, enc *codec.Encoder) error {
	ddl, err := sqlbundle.Generate(enc, d.Name)
	if err != nil {
		return err
	}
	for _, stmt := range sqlbundle.SplitStatements(ddl) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

func columnNames(cols []codec.Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// Load reads every kind's table and the stored counters into a memory
// snapshot.
func Load(ctx context.Context, db *sql.DB, layout Layout) (memory.Snapshot, error) {
	snapshot := memory.Snapshot{
		Tables:    make(map[domain.EntityKind][]domain.Row),
		Sequences: make(map[domain.EntityKind]int64),
		Positions: make(map[domain.EntityKind]int64),
	}
	for _, kind := range domain.Kinds() {
		rows, err := loadTable(ctx, db, kind, layout.Layout(kind))
		if err != nil {
			return memory.Snapshot{}, err
		}
		snapshot.Tables[kind] = rows
	}
	if err := loadCounters(ctx, db, &snapshot); err != nil {
		return memory.Snapshot{}, err
	}
	return snapshot, nil
}

func loadCounters(ctx context.Context, db *sql.DB, snapshot *memory.Snapshot) error {
	query := fmt.Sprintf("SELECT %s, %s, %s FROM %s",
		sqlbundle.CounterKind, sqlbundle.CounterSequence, sqlbundle.CounterPosition, sqlbundle.CountersTable)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("select %s: %w", sqlbundle.CountersTable, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			kind string
			c    memory.Counter
		)
		if err := rows.Scan(&kind, &c.Sequence, &c.Position); err != nil {
			return fmt.Errorf("scan %s: %w", sqlbundle.CountersTable, err)
		}
		snapshot.SetCounter(domain.EntityKind(kind), c)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", sqlbundle.CountersTable, err)
	}
	return nil
}

func loadTable(ctx context.Context, db *sql.DB, kind domain.EntityKind, cols []codec.Column) ([]domain.Row, error) {
	names := columnNames(cols)
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(names, ", "), kind.Table())
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", kind.Table(), err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Row
	for rows.Next() {
		values := make([]any, len(names))
		dest := make([]any, len(names))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind.Table(), err)
		}
		row, err := rowFromValues(names, values)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind.Table(), err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", kind.Table(), err)
	}
	return out, nil
}

func rowFromValues(names []string, values []any) (domain.Row, error) {
	row := domain.Row{Columns: make(map[string]any, len(names))}
	for i, name := range names {
		v := values[i]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		switch name {
		case codec.ColumnID:
			id, ok := v.(string)
			if !ok {
				return domain.Row{}, fmt.Errorf("id has type %T", v)
			}
			row.ID = id
		case codec.ColumnPosition:
			pos, ok := v.(int64)
			if !ok {
				return domain.Row{}, fmt.Errorf("position has type %T", v)
			}
			row.Position = pos
		case codec.ColumnType:
			disc, ok := v.(string)
			if !ok {
				return domain.Row{}, fmt.Errorf("type has type %T", v)
			}
			row.Type = domain.Discriminant(disc)
		default:
			if v != nil {
				row.Columns[name] = v
			}
		}
	}
	return row, nil
}

// UpsertStatement renders the insert-or-replace statement for a kind's table.
// The id column comes first so conflict handling keys on it.
func UpsertStatement(d Dialect, table string, cols []codec.Column) string {
	names := columnNames(cols)
	placeholders := make([]string, len(names))
	var sets []string
	for i, name := range names {
		placeholders[i] = d.Placeholder(i + 1)
		if name != codec.ColumnID {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", name, name))
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table, strings.Join(names, ", "), strings.Join(placeholders, ", "), codec.ColumnID, strings.Join(sets, ", "))
}

// CounterStatement renders the upsert of one kind's counters.
func CounterStatement(d Dialect) string {
	return fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES (%s, %s, %s) ON CONFLICT (%s) DO UPDATE SET %s = excluded.%s, %s = excluded.%s",
		sqlbundle.CountersTable,
		sqlbundle.CounterKind, sqlbundle.CounterSequence, sqlbundle.CounterPosition,
		d.Placeholder(1), d.Placeholder(2), d.Placeholder(3),
		sqlbundle.CounterKind,
		sqlbundle.CounterSequence, sqlbundle.CounterSequence,
		sqlbundle.CounterPosition, sqlbundle.CounterPosition)
}

// DeleteStatement renders the delete-by-id statement for a kind's table.
func DeleteStatement(d Dialect, table string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = %s", table, codec.ColumnID, d.Placeholder(1))
}

func rowArgs(row domain.Row, cols []codec.Column) []any {
	args := make([]any, len(cols))
	for i, c := range cols {
		switch c.Name {
		case codec.ColumnID:
			args[i] = row.ID
		case codec.ColumnPosition:
			args[i] = row.Position
		case codec.ColumnType:
			args[i] = string(row.Type)
		default:
			args[i] = row.Columns[c.Name]
		}
	}
	return args
}

// Apply writes a committed change set and the counters it advanced through
// in one SQL transaction.
func Apply(ctx context.Context, db *sql.DB, d Dialect, layout Layout, changes []domain.Change, counters map[domain.EntityKind]memory.Counter) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, change := range changes {
		table := change.Kind.Table()
		switch change.Action {
		case domain.ActionCreate, domain.ActionUpdate:
			if change.After == nil {
				return fmt.Errorf("%s %s without row", change.Action, change.Kind)
			}
			cols := layout.Layout(change.Kind)
			if _, err := tx.ExecContext(ctx, UpsertStatement(d, table, cols), rowArgs(*change.After, cols)...); err != nil {
				return fmt.Errorf("upsert %s %s: %w", table, change.After.ID, err)
			}
		case domain.ActionDelete:
			if change.Before == nil {
				return fmt.Errorf("delete %s without row", change.Kind)
			}
			if _, err := tx.ExecContext(ctx, DeleteStatement(d, table), change.Before.ID); err != nil {
				return fmt.Errorf("delete %s %s: %w", table, change.Before.ID, err)
			}
		default:
			return fmt.Errorf("unsupported action %q", change.Action)
		}
	}
	for _, kind := range domain.Kinds() {
		c, ok := counters[kind]
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, CounterStatement(d), string(kind), c.Sequence, c.Position); err != nil {
			return fmt.Errorf("upsert %s %s: %w", sqlbundle.CountersTable, kind, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}
