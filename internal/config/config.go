// Package config loads server and runner configuration from a YAML file,
// with a .env file and environment variables layered on top.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"strategy-backtester/internal/barsource"
)

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DataConfig struct {
	// Source selects where bars come from: "csv" or "clickhouse".
	Source     string                     `yaml:"source"`
	CSVDir     string                     `yaml:"csv_dir"`
	ClickHouse barsource.ClickHouseConfig `yaml:"clickhouse"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type BacktestConfig struct {
	InitialBalance string `yaml:"initial_balance"`
	MaxWorkers     int    `yaml:"max_workers"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Data     DataConfig     `yaml:"data"`
	Store    StoreConfig    `yaml:"store"`
	Backtest BacktestConfig `yaml:"backtest"`
}

// Load reads the YAML config at path and applies environment overrides. A
// missing file yields defaults; a missing .env is ignored.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server:   ServerConfig{Addr: ":8080"},
		Data:     DataConfig{Source: "csv", CSVDir: "./data"},
		Store:    StoreConfig{Path: "./backtests.db"},
		Backtest: BacktestConfig{InitialBalance: "10000", MaxWorkers: 0},
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: %w", err)
			}
		} else if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if v := os.Getenv("BACKTEST_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("BACKTEST_DATA_SOURCE"); v != "" {
		cfg.Data.Source = v
	}
	if v := os.Getenv("BACKTEST_CSV_DIR"); v != "" {
		cfg.Data.CSVDir = v
	}
	if v := os.Getenv("BACKTEST_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("BACKTEST_INITIAL_BALANCE"); v != "" {
		cfg.Backtest.InitialBalance = v
	}
	if v := os.Getenv("BACKTEST_MAX_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: BACKTEST_MAX_WORKERS: %w", err)
		}
		cfg.Backtest.MaxWorkers = n
	}

	switch cfg.Data.Source {
	case "csv", "clickhouse":
	default:
		return nil, fmt.Errorf("config: unknown data source %q", cfg.Data.Source)
	}
	return cfg, nil
}
