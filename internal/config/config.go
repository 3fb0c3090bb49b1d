// Package config defines the worker's YAML configuration: a plain struct
// tree with yaml tags, defaults applied post-unmarshal rather than via
// struct tags.
package config

// Config is the complete worker configuration.
type Config struct {
	Redis     RedisConfig     `yaml:"redis"`
	Exchanges ExchangesConfig `yaml:"exchanges"`
	StateDir  string          `yaml:"state_dir"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Debug     DebugConfig     `yaml:"debug"`
	Momentum  MomentumConfig  `yaml:"momentum"`
}

// RedisConfig configures the optional backfill-result cache and outbound
// event mirror. Redis is not required for core operation: if Host is
// empty, the worker runs without it.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	// CacheTTLHours controls how long cached backfill results survive in
	// Redis before expiring.
	CacheTTLHours int `yaml:"cache_ttl_hours"`
}

// ExchangesConfig toggles venue adapters independently of the symbol's
// default adapter set, so an operator can disable a flaky venue without
// touching code.
type ExchangesConfig struct {
	Binance  bool `yaml:"binance"`
	OKX      bool `yaml:"okx"`
	Bitget   bool `yaml:"bitget"`
	Coinbase bool `yaml:"coinbase"`
	Bitstamp bool `yaml:"bitstamp"`
	Kraken   bool `yaml:"kraken"`
	Bitvavo  bool `yaml:"bitvavo"`
}

// DefaultsConfig gives the controller's initial symbol/timeframe when no
// persisted selection exists.
type DefaultsConfig struct {
	Symbol    string `yaml:"symbol"`
	Timeframe string `yaml:"timeframe"`
}

// MetricsConfig configures the Prometheus HTTP exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// DebugConfig configures the optional local WebSocket broadcaster that
// mirrors outbound message-port events for developer inspection.
type DebugConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// MomentumConfig configures the supplemented momentum-watch feature
// (internal/momentum).
type MomentumConfig struct {
	Enabled          bool    `yaml:"enabled"`
	LookbackBuckets  int     `yaml:"lookback_buckets"`
	ThresholdPercent float64 `yaml:"threshold_percent"`
}
