package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load(filepath.Join(home, "missing.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.Path != filepath.Join(home, DefaultDBFile) {
		t.Fatalf("unexpected database defaults: %+v", cfg.Database)
	}
	if cfg.AI.Provider != "ollama" || cfg.AI.Model != "codellama:13b" || cfg.AI.NumCtx != 4096 || cfg.AI.NumPredict != 1024 {
		t.Fatalf("unexpected ai defaults: %+v", cfg.AI)
	}
	s := cfg.Scan
	if s.MaxFileWorkers != 20 || s.ChunkSize != 2048 || s.ChunkOverlap != 300 || s.ChunkBatchSize != 5 || !s.CacheEnabled {
		t.Fatalf("unexpected scan defaults: %+v", s)
	}
	if s.ThrottlePause != time.Second || s.LoadSampleInterval != 100*time.Millisecond {
		t.Fatalf("durations not decoded: %+v", s)
	}
	if cfg.Locator.SimilarityThreshold != 0.6 || cfg.Gateway.Port != 6080 {
		t.Fatalf("unexpected locator/gateway defaults: %+v %+v", cfg.Locator, cfg.Gateway)
	}
}

func TestLoadFileOverridesAndExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, "config.json")
	body := `{
  "ai": {"provider": "openai", "model": "gpt-4o-mini"},
  "knowledge": {"path": "~/kb"},
  "scan": {"max_file_workers": 4, "throttle_pause": "2s"},
  "schedules": [{"name": "nightly", "expr": "0 2 * * *", "path": "~/src/app"}]
}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AI.Provider != "openai" || cfg.AI.Model != "gpt-4o-mini" {
		t.Fatalf("file values not applied: %+v", cfg.AI)
	}
	if cfg.Scan.MaxFileWorkers != 4 || cfg.Scan.ThrottlePause != 2*time.Second || cfg.Scan.ChunkSize != 2048 {
		t.Fatalf("unexpected scan config: %+v", cfg.Scan)
	}
	if cfg.Knowledge.Path != filepath.Join(home, "kb") {
		t.Fatalf("knowledge path not expanded: %q", cfg.Knowledge.Path)
	}
	if len(cfg.Schedules) != 1 || cfg.Schedules[0].Path != filepath.Join(home, "src/app") {
		t.Fatalf("unexpected schedules: %+v", cfg.Schedules)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for malformed config")
	}
}

func TestEnvOverridesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CODESENSE_AI_MODEL", "llama3:8b")

	cfg, err := Load(filepath.Join(home, "none.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AI.Model != "llama3:8b" {
		t.Fatalf("env override not applied: %q", cfg.AI.Model)
	}
}

func TestSaveThenLoad(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, "nested", "config.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Gateway.Port = 7070
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load saved: %v", err)
	}
	if got.Gateway.Port != 7070 {
		t.Fatalf("saved port not reloaded: %d", got.Gateway.Port)
	}
}
