package node

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := []byte("network: testnet\nchain_id: 99\ndata_dir: /tmp/animica-test\nlog_level: debug\nverify_workers: 4\n")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Network != "testnet" || cfg.ChainID != 99 || cfg.VerifyWorkers != 4 {
		t.Fatalf("config mangled: %+v", cfg)
	}
	// Unset keys keep their defaults.
	if !cfg.UseLocalClock {
		t.Fatalf("default not layered")
	}
}

func TestLoadConfig_RejectsBadLogLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("log_level: loud\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("bad log level accepted")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default invalid: %v", err)
	}
	cfg.DataDir = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("empty data dir accepted")
	}
}
