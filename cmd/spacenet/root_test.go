package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, db string) string {
	t.Helper()
	path := filepath.Join(dir, db+".yaml")
	cfg := fmt.Sprintf(`storage:
  driver: sqlite
  sqlite_path: %s
blob:
  driver: fs
  fs_root: %s
log:
  level: error
`, filepath.Join(dir, db+".db"), filepath.Join(dir, "blobs"))
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("spacenet %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestCheckPrintsCatalog(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), "check")
	out := mustRun(t, "--config", cfg, "check")
	for _, want := range []string{"node      Surface, Orbital, Lagrange", "shapes    45", "version   sha256:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestDDLAndOpenAPI(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), "gen")
	ddl := mustRun(t, "--config", cfg, "ddl", "--dialect", "postgres")
	if !strings.Contains(ddl, "CREATE TABLE IF NOT EXISTS resources") || !strings.Contains(ddl, "BIGINT") {
		t.Fatalf("unexpected ddl:\n%s", ddl)
	}
	if _, err := run(t, "--config", cfg, "ddl", "--dialect", "oracle"); err == nil {
		t.Fatalf("expected unsupported dialect error")
	}
	out := mustRun(t, "--config", cfg, "openapi", "--format", "json")
	var doc map[string]any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("openapi json: %v", err)
	}
	if _, ok := doc["components"]; !ok {
		t.Fatalf("expected components in openapi document")
	}
	if yml := mustRun(t, "--config", cfg, "openapi"); !strings.Contains(yml, "SurfaceNode") {
		t.Fatalf("expected yaml document to name SurfaceNode")
	}
}

func TestRecordCommands(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "crud")

	out := mustRun(t, "--config", cfg, "seed")
	if !strings.HasPrefix(out, "seeded 18 records (6 nodes, 4 edges, 5 elements, 3 resources)") {
		t.Fatalf("unexpected seed output: %s", out)
	}

	var nodes []map[string]any
	if err := json.Unmarshal([]byte(mustRun(t, "--config", cfg, "list", "node", "--offset", "1", "--limit", "2")), &nodes); err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(nodes) != 2 || nodes[0]["name"] != "LEO" || nodes[1]["name"] != "LLO" {
		t.Fatalf("unexpected page: %v", nodes)
	}

	out = mustRun(t, "--config", cfg, "update", "node", "4", "--data", `{"type":"Surface","latitude":-85.5}`)
	if !strings.Contains(out, `"latitude": -85.5`) || !strings.Contains(out, `"name": "Lunar South Pole"`) {
		t.Fatalf("unexpected update output: %s", out)
	}
	if _, err := run(t, "--config", cfg, "update", "node", "4", "--data", `{"type":"Orbital","apoapsis":1}`); err == nil || !strings.Contains(err.Error(), "cannot update type") {
		t.Fatalf("expected conflict error, got %v", err)
	}

	out = mustRun(t, "--config", cfg, "create", "resource", "--data", `{"type":"Discrete","name":"Tools","description":"hand tools","class_of_supply":4,"units":"kit","unit_mass":3,"unit_volume":1}`)
	if !strings.Contains(out, `"id": 4`) {
		t.Fatalf("expected fourth resource id, got %s", out)
	}

	// A new process sees what the previous ones stored.
	out = mustRun(t, "--config", cfg, "get", "node", "4")
	if !strings.Contains(out, `"latitude": -85.5`) {
		t.Fatalf("expected persisted update, got %s", out)
	}
	mustRun(t, "--config", cfg, "delete", "node", "4")
	if _, err := run(t, "--config", cfg, "get", "node", "4"); err == nil {
		t.Fatalf("expected not found after delete")
	}
	if _, err := run(t, "--config", cfg, "get", "planet", "1"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
	if _, err := run(t, "--config", cfg, "list", "node", "--limit", "0"); err == nil {
		t.Fatalf("expected validation error for limit 0")
	}
}

func TestExportImport(t *testing.T) {
	dir := t.TempDir()
	source := writeConfig(t, dir, "source")
	target := writeConfig(t, dir, "target")

	mustRun(t, "--config", source, "seed")
	out := mustRun(t, "--config", source, "export", "campaigns/lunar.yaml")
	if !strings.HasPrefix(out, "exported 18 records to campaigns/lunar.yaml") {
		t.Fatalf("unexpected export output: %s", out)
	}
	if _, err := run(t, "--config", source, "export", "campaigns/lunar.yaml"); err == nil {
		t.Fatalf("expected existing export to be kept")
	}
	mustRun(t, "--config", source, "export", "campaigns/lunar.yaml", "--overwrite")
	if _, err := os.Stat(filepath.Join(dir, "blobs", "campaigns", "lunar.yaml")); err != nil {
		t.Fatalf("expected export on disk: %v", err)
	}

	out = mustRun(t, "--config", target, "import", "campaigns/lunar.yaml")
	if !strings.HasPrefix(out, "imported 18 records") {
		t.Fatalf("unexpected import output: %s", out)
	}
	if got := mustRun(t, "--config", target, "get", "element", "6a9e3f71-0c2d-4b58-8e14-d7f5a2b3c946"); !strings.Contains(got, "Commander") {
		t.Fatalf("expected imported crew member, got %s", got)
	}
}

func TestConfigurationErrorsFail(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("storage:\n  driver: cassandra\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := run(t, "--config", bad, "check"); err == nil || !strings.Contains(err.Error(), "cassandra") {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := run(t, "--config", filepath.Join(dir, "missing.yaml"), "check"); err == nil {
		t.Fatalf("expected missing config error")
	}
}
