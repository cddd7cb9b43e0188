package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "collector.yaml")
	if err := os.WriteFile(path, []byte(`
config_store:
 dsn: fleet.db
redis:
 addr: "10.0.0.9:6379"
`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if cfg.ConfigStore.DSN != "fleet.db" {
		t.Errorf("DSN = %q, want fleet.db (explicit value should survive defaulting)", cfg.ConfigStore.DSN)
	}
	if cfg.Redis.Addr != "10.0.0.9:6379" {
		t.Errorf("Redis.Addr = %q, want 10.0.0.9:6379", cfg.Redis.Addr)
	}
	if cfg.Pipeline.Capacity != 10_000 {
		t.Errorf("Pipeline.Capacity default = %d, want 10000", cfg.Pipeline.Capacity)
	}
	if cfg.Processing.PoolSize != 2 {
		t.Errorf("Processing.PoolSize default = %d, want 2", cfg.Processing.PoolSize)
	}
	if cfg.VirtualPoints.Shards != 4 {
		t.Errorf("VirtualPoints.Shards default = %d, want 4", cfg.VirtualPoints.Shards)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Log defaults = %+v, want info/text", cfg.Log)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestDurationHelpers(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)

	if got := cfg.redisDialTimeout(); got <= 0 {
		t.Errorf("redisDialTimeout() = %v, want > 0", got)
	}
	if got := cfg.reconcileInterval(); got <= 0 {
		t.Errorf("reconcileInterval() = %v, want > 0", got)
	}
}
