package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qguardarr.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalTrackers = `
trackers:
  - id: default
    pattern: ".*"
    max_upload_speed: -1
    priority: 1
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, minimalTrackers)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Global.UpdateInterval != 300 {
		t.Errorf("expected default update_interval 300, got %d", cfg.Global.UpdateInterval)
	}
	if cfg.Global.AllocationStrategy != "equal" {
		t.Errorf("expected default strategy equal, got %s", cfg.Global.AllocationStrategy)
	}
	if cfg.QBittorrent.Port != 8080 {
		t.Errorf("expected default qbittorrent port 8080, got %d", cfg.QBittorrent.Port)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("QGUARDARR_TEST_PASSWORD", "secretvalue")
	body := minimalTrackers + "\nqbittorrent:\n  password: \"${QGUARDARR_TEST_PASSWORD}\"\n"
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.QBittorrent.Password != "secretvalue" {
		t.Errorf("expected env substitution, got %q", cfg.QBittorrent.Password)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateRequiresAtLeastOneTracker(t *testing.T) {
	cfg := &Config{Global: GlobalSettings{AllocationStrategy: "equal"}}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for empty tracker list")
	}
}

func TestValidateRequiresCatchAllLast(t *testing.T) {
	cfg := &Config{
		Global: GlobalSettings{AllocationStrategy: "equal"},
		Trackers: []TrackerConfig{
			{ID: "catchall", Pattern: CatchAllPattern},
			{ID: "specific", Pattern: "example.com"},
		},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error when catch-all is not last")
	}
}

func TestValidateRejectsDuplicateIDs(t *testing.T) {
	cfg := &Config{
		Global: GlobalSettings{AllocationStrategy: "equal"},
		Trackers: []TrackerConfig{
			{ID: "dup", Pattern: "a.example.com"},
			{ID: "dup", Pattern: CatchAllPattern},
		},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for duplicate tracker ids")
	}
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	cfg := &Config{
		Global:   GlobalSettings{AllocationStrategy: "bogus"},
		Trackers: []TrackerConfig{{ID: "default", Pattern: CatchAllPattern}},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown allocation strategy")
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := &Config{
		Global: GlobalSettings{AllocationStrategy: "soft"},
		Trackers: []TrackerConfig{
			{ID: "private", Pattern: "example.com"},
			{ID: "default", Pattern: CatchAllPattern},
		},
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("expected valid config to pass, got %v", err)
	}
}
