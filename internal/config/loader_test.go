package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultAppliesAllDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Redis.Port != 6379 {
		t.Errorf("Redis.Port = %d, want 6379", cfg.Redis.Port)
	}
	if cfg.Redis.CacheTTLHours != 168 {
		t.Errorf("Redis.CacheTTLHours = %d, want 168", cfg.Redis.CacheTTLHours)
	}
	if cfg.Defaults.Symbol != "BTC/USDT" || cfg.Defaults.Timeframe != "1m" {
		t.Errorf("Defaults = %+v", cfg.Defaults)
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("Metrics.Addr = %q, want :9090", cfg.Metrics.Addr)
	}
	if cfg.Debug.Addr != ":9091" {
		t.Errorf("Debug.Addr = %q, want :9091", cfg.Debug.Addr)
	}
	if cfg.Momentum.LookbackBuckets != 12 || cfg.Momentum.ThresholdPercent != 0.5 {
		t.Errorf("Momentum defaults = %+v", cfg.Momentum)
	}
	if !anyExchangeSet(cfg.Exchanges) {
		t.Error("expected all exchanges enabled by default")
	}
}

func TestLoadConfigPreservesExplicitExchangeSubset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "exchanges:\n  binance: true\n  okx: false\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewConfigLoader().LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.Exchanges.Binance {
		t.Error("expected binance enabled")
	}
	if cfg.Exchanges.Bitget {
		t.Error("expected bitget to remain disabled, not defaulted on, since binance was explicitly set")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := NewConfigLoader().LoadConfig("/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestGetRedisAddress(t *testing.T) {
	cfg := Default()
	cfg.Redis.Host = "localhost"
	cfg.Redis.Port = 6380
	if got := cfg.GetRedisAddress(); got != "localhost:6380" {
		t.Errorf("GetRedisAddress() = %q, want localhost:6380", got)
	}
}
