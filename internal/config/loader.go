package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ConfigLoader reads a YAML file into Config and fills in defaults for
// fields an operator is likely to omit.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (cl *ConfigLoader) LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a Config with every default applied, for callers that
// run without a config file on disk.
func Default() *Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.CacheTTLHours == 0 {
		cfg.Redis.CacheTTLHours = 168 // 7 days
	}
	if cfg.Defaults.Symbol == "" {
		cfg.Defaults.Symbol = "BTC/USDT"
	}
	if cfg.Defaults.Timeframe == "" {
		cfg.Defaults.Timeframe = "1m"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Debug.Addr == "" {
		cfg.Debug.Addr = ":9091"
	}
	if cfg.Momentum.LookbackBuckets == 0 {
		cfg.Momentum.LookbackBuckets = 12
	}
	if cfg.Momentum.ThresholdPercent == 0 {
		cfg.Momentum.ThresholdPercent = 0.5
	}

	// Absent exchanges block enables every adapter by default.
	if !anyExchangeSet(cfg.Exchanges) {
		cfg.Exchanges = ExchangesConfig{
			Binance: true, OKX: true, Bitget: true,
			Coinbase: true, Bitstamp: true, Kraken: true, Bitvavo: true,
		}
	}
}

func anyExchangeSet(e ExchangesConfig) bool {
	return e.Binance || e.OKX || e.Bitget || e.Coinbase || e.Bitstamp || e.Kraken || e.Bitvavo
}

// GetRedisAddress returns host:port for dialing Redis.
func (c *Config) GetRedisAddress() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
