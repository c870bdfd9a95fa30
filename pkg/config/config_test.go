package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
market:
  collection: drifella_iii
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("server port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Market.PageLimit != 100 {
		t.Errorf("page limit = %d, want 100", cfg.Market.PageLimit)
	}
	if cfg.Market.MinInterval != 500*time.Millisecond {
		t.Errorf("min interval = %s, want 500ms", cfg.Market.MinInterval)
	}
	if cfg.Market.MaxPerMinute != 120 {
		t.Errorf("max per minute = %d, want 120", cfg.Market.MaxPerMinute)
	}
	if cfg.Sync.PriceEpsilon != 10_000_000 {
		t.Errorf("price epsilon = %d, want 10000000", cfg.Sync.PriceEpsilon)
	}
	if cfg.Sync.BlankValueID != 217 {
		t.Errorf("blank value id = %d, want 217", cfg.Sync.BlankValueID)
	}
}

func TestLoad_IntervalFloors(t *testing.T) {
	path := writeConfig(t, `
market:
  collection: drifella_iii
sync:
  interval: 5s
cache:
  refresh_interval: 1s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Sync.Interval != MinSyncInterval {
		t.Errorf("sync interval = %s, want raised to %s", cfg.Sync.Interval, MinSyncInterval)
	}
	if cfg.Cache.RefreshInterval != MinRefreshInterval {
		t.Errorf("refresh interval = %s, want raised to %s", cfg.Cache.RefreshInterval, MinRefreshInterval)
	}
}

func TestLoad_MissingCollection(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing market.collection")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
