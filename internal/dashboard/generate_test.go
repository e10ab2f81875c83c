package dashboard

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testTables() Tables {
	return Tables{Database: "public", Snapshots: "ground_telemetry", Commands: "ground_command", Links: "ground_link"}
}

func TestRenderMissingEnv(t *testing.T) {
	t.Setenv("GREPTIMEDB_DATASOURCE_UID", "")
	if err := Render(t.TempDir(), testTables()); err == nil {
		t.Fatalf("expected error for missing env vars")
	}
}

func TestRenderSuccess(t *testing.T) {
	t.Setenv("GREPTIMEDB_DATASOURCE_UID", "uid1")

	dir := t.TempDir()
	if err := Render(dir, testTables()); err != nil {
		t.Fatalf("render failed: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "ground-dashboard.json"))
	if err != nil {
		t.Fatalf("read dashboard: %v", err)
	}
	if !json.Valid(b) {
		t.Fatalf("rendered dashboard is not valid JSON")
	}
	out := string(b)
	if !strings.Contains(out, `"uid": "uid1"`) {
		t.Fatalf("greptime uid not rendered")
	}
	for _, table := range []string{"public.ground_telemetry", "public.ground_command", "public.ground_link"} {
		if !strings.Contains(out, table) {
			t.Errorf("dashboard does not query %s", table)
		}
	}
}
