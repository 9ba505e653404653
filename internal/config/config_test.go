package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("driver should default to sqlite, got %q", cfg.Storage.Driver)
	}
	if cfg.Vision.TimeoutSeconds != 180 {
		t.Errorf("vision timeout should default to 180, got %d", cfg.Vision.TimeoutSeconds)
	}
	if !cfg.Vision.GenerateDiagramsOrDefault() {
		t.Error("generate_diagrams should default to true")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_generateDiagramsFalse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
vision:
  generate_diagrams: false
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Vision.GenerateDiagramsOrDefault() {
		t.Error("generate_diagrams false should be preserved")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: "./data/kokuban.db"
  search_index_path: "./data/notes-index"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "data", "kokuban.db")
	if cfg.Storage.DatabasePath != want {
		t.Errorf("expected %s, got %s", want, cfg.Storage.DatabasePath)
	}
}

func TestLoad_envFallbacks(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "or-key")
	t.Setenv("SUPABASE_KEY", "sb-key")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("debug: true\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Vision.APIKey != "or-key" {
		t.Errorf("vision api key should fall back to env, got %q", cfg.Vision.APIKey)
	}
	if cfg.ObjectStore.SupabaseKey != "sb-key" {
		t.Errorf("supabase key should fall back to env, got %q", cfg.ObjectStore.SupabaseKey)
	}
}

func TestLoad_missingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Error("expected error for missing config file")
	}
}
