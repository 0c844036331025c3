// Package sqlbundle renders the per-kind table DDL from the encoder layout.
package sqlbundle

import (
	"bufio"
	"fmt"
	"strings"

	"spacenet/internal/codec"
	"spacenet/pkg/domain"
)

// Dialect selects the SQL flavour of the generated DDL.
type Dialect string

// Supported dialects.
const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// CountersTable keeps each kind's id sequence and insertion position so
// neither is reused after the highest row is deleted.
const CountersTable = "spacenet_counters"

// Columns of CountersTable.
const (
	CounterKind     = "kind"
	CounterSequence = "last_id"
	CounterPosition = "last_position"
)

var columnTypes = map[Dialect]map[codec.StorageClass]string{
	DialectSQLite: {
		codec.ClassText:    "TEXT",
		codec.ClassReal:    "REAL",
		codec.ClassInteger: "INTEGER",
	},
	DialectPostgres: {
		codec.ClassText:    "TEXT",
		codec.ClassReal:    "DOUBLE PRECISION",
		codec.ClassInteger: "BIGINT",
	},
}

// Generate renders CREATE TABLE and index statements for every kind plus the
// counters table.
func Generate(enc *codec.Encoder, dialect Dialect) (string, error) {
	types, ok := columnTypes[dialect]
	if !ok {
		return "", fmt.Errorf("unsupported dialect %q", dialect)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "-- spacenet entity tables (%s)\n", dialect)
	for _, kind := range domain.Kinds() {
		table := kind.Table()
		fmt.Fprintf(&b, "\n-- %s\n", kind)
		fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", table)
		cols := enc.Layout(kind)
		for i, col := range cols {
			def := fmt.Sprintf("    %s %s", col.Name, types[col.Class])
			switch col.Name {
			case codec.ColumnID:
				def += " PRIMARY KEY"
			case codec.ColumnPosition, codec.ColumnType:
				def += " NOT NULL"
			}
			if i < len(cols)-1 {
				def += ","
			}
			b.WriteString(def)
			b.WriteByte('\n')
		}
		b.WriteString(");\n")
		fmt.Fprintf(&b, "CREATE INDEX IF NOT EXISTS %s_position_idx ON %s (%s);\n", table, table, codec.ColumnPosition)
	}
	b.WriteString("\n-- counters\n")
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n    %s %s PRIMARY KEY,\n    %s %s NOT NULL,\n    %s %s NOT NULL\n);\n",
		CountersTable,
		CounterKind, types[codec.ClassText],
		CounterSequence, types[codec.ClassInteger],
		CounterPosition, types[codec.ClassInteger])
	return b.String(), nil
}

// SQLite returns the SQLite DDL.
func SQLite(enc *codec.Encoder) string {
	ddl, _ := Generate(enc, DialectSQLite)
	return ddl
}

// Postgres returns the Postgres DDL.
func Postgres(enc *codec.Encoder) string {
	ddl, _ := Generate(enc, DialectPostgres)
	return ddl
}

// SplitStatements splits a semicolon-terminated DDL script into executable statements.
// It drops blank lines and single-line comments that start with "--".
func SplitStatements(ddl string) []string {
	scanner := bufio.NewScanner(strings.NewReader(ddl))
	var stmts []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
		current.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}

	if tail := strings.TrimSpace(current.String()); tail != "" {
		stmts = append(stmts, tail)
	}

	return stmts
}
