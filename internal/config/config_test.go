package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Planning.GranularityMinutes != 15 {
		t.Fatalf("granularity = %d, want 15", cfg.Planning.GranularityMinutes)
	}
	if cfg.Planning.PreferenceID != "default" {
		t.Fatalf("preference id = %q", cfg.Planning.PreferenceID)
	}
}

func TestLoadMissingFileFallsBackToDefault(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:8787" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	body := "planning:\n  granularity_minutes: 30\nserver:\n  addr: 0.0.0.0:9000\n"
	if err := os.WriteFile(filepath.Join(dir, "cognical.yml"), []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Planning.GranularityMinutes != 30 {
		t.Fatalf("granularity = %d, want 30", cfg.Planning.GranularityMinutes)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	// untouched sections keep defaults
	if cfg.Planning.CacheTTLHours != 24 {
		t.Fatalf("ttl = %d, want 24", cfg.Planning.CacheTTLHours)
	}
}

func TestValidateRejectsBadGranularity(t *testing.T) {
	for _, g := range []int{0, -5, 61, 7} {
		cfg := Default()
		cfg.Planning.GranularityMinutes = g
		if err := cfg.Validate(); err == nil {
			t.Fatalf("granularity %d accepted", g)
		}
	}
}

func TestFromYAMLRejectsGarbage(t *testing.T) {
	if _, err := FromYAML([]byte("planning: [nope")); err == nil {
		t.Fatal("expected parse error")
	}
}
