package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Data.Source != "csv" {
		t.Errorf("source = %q, want csv", cfg.Data.Source)
	}
	if cfg.Backtest.InitialBalance != "10000" {
		t.Errorf("initial balance = %q, want 10000", cfg.Backtest.InitialBalance)
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
server:
  addr: ":9090"
data:
  source: clickhouse
backtest:
  initial_balance: "50000"
  max_workers: 4
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BACKTEST_ADDR", ":7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("addr = %q, want env override :7070", cfg.Server.Addr)
	}
	if cfg.Data.Source != "clickhouse" {
		t.Errorf("source = %q, want clickhouse", cfg.Data.Source)
	}
	if cfg.Backtest.MaxWorkers != 4 {
		t.Errorf("max workers = %d, want 4", cfg.Backtest.MaxWorkers)
	}
}

func TestLoadRejectsUnknownSource(t *testing.T) {
	t.Setenv("BACKTEST_DATA_SOURCE", "postgres")
	if _, err := Load(""); err == nil {
		t.Fatal("want error for unknown data source")
	}
}
