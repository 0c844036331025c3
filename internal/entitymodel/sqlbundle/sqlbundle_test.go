package sqlbundle

import (
	"strings"
	"testing"

	"spacenet/internal/codec"
	"spacenet/internal/mapping"
	"spacenet/internal/schema"
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

func TestSplitStatements(t *testing.T) {
	stmts := SplitStatements(SQLite(encoder(t)))
	if len(stmts) != 9 {
		t.Fatalf("expected 9 statements (table + index per kind, counters), got %d", len(stmts))
	}
	for _, stmt := range stmts {
		if strings.HasPrefix(strings.TrimSpace(stmt), "--") {
			t.Fatalf("statement unexpectedly starts with comment: %q", stmt)
		}
		if !strings.HasSuffix(strings.TrimSpace(stmt), ";") {
			t.Fatalf("statement missing semicolon terminator: %q", stmt)
		}
	}
}

func TestSplitStatementsKeepsUnterminatedTail(t *testing.T) {
	stmts := SplitStatements("-- header\nCREATE TABLE a (x INTEGER);\n\nSELECT 1")
	if len(stmts) != 2 || stmts[1] != "SELECT 1" {
		t.Fatalf("unexpected statements: %#v", stmts)
	}
}

func TestSQLiteTables(t *testing.T) {
	ddl := SQLite(encoder(t))
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS nodes (",
		"CREATE TABLE IF NOT EXISTS edges (",
		"CREATE TABLE IF NOT EXISTS elements (",
		"CREATE TABLE IF NOT EXISTS resources (",
		"id TEXT PRIMARY KEY",
		"unit_mass_f REAL",
		"unit_mass_i INTEGER",
		"lp_number INTEGER",
		"CREATE TABLE IF NOT EXISTS spacenet_counters (",
		"last_id INTEGER NOT NULL",
	} {
		if !strings.Contains(ddl, want) {
			t.Fatalf("expected sqlite DDL to contain %q:\n%s", want, ddl)
		}
	}
}

func TestPostgresBundle(t *testing.T) {
	ddl := Postgres(encoder(t))
	if !strings.Contains(ddl, "CREATE TABLE") {
		t.Fatal("expected postgres DDL to contain CREATE TABLE")
	}
	if !strings.Contains(ddl, "unit_volume_f DOUBLE PRECISION") || !strings.Contains(ddl, "position BIGINT NOT NULL") {
		t.Fatalf("expected postgres column types:\n%s", ddl)
	}
}

func TestGenerateRejectsUnknownDialect(t *testing.T) {
	if _, err := Generate(encoder(t), "oracle"); err == nil {
		t.Fatal("expected error for unknown dialect")
	}
}
