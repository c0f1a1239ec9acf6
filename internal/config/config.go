package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the engine and benchmark configuration.
type Config struct {
	// Engine
	PartitionCount   int    `toml:"partition-count"`
	LogicalWorkers   int    `toml:"logical-workers"`
	ChangelogDir     string `toml:"changelog-dir"`
	ChangelogMaxSize int64  `toml:"changelog-max-size"`

	// Admin server
	AdminAddr string `toml:"admin-addr"`

	// Logging
	LogLevel string `toml:"log-level"`

	// Tracing
	TracingEnabled bool   `toml:"tracing-enabled"`
	JaegerEndpoint string `toml:"jaeger-endpoint"`

	// Benchmark workload
	Warehouses     int           `toml:"warehouses"`
	DistrictsPerWh int           `toml:"districts-per-warehouse"`
	CustomersPerD  int           `toml:"customers-per-district"`
	Items          int           `toml:"items"`
	NewOrderPct    int           `toml:"new-order-pct"`
	TxPerWorker    int           `toml:"tx-per-worker"`
	Seed           int64         `toml:"seed"`
	Duration       time.Duration `toml:"-"`
	DurationStr    string        `toml:"duration"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		PartitionCount: 16,
		LogicalWorkers: 4,
		AdminAddr:      ":8080",
		LogLevel:       "info",
		JaegerEndpoint: "http://localhost:14268/api/traces",
		Warehouses:     4,
		DistrictsPerWh: 10,
		CustomersPerD:  30,
		Items:          100,
		NewOrderPct:    50,
		TxPerWorker:    1000,
		Seed:           1,
	}
}

// Load reads a TOML file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %v", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config keys: %v", undecoded)
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) finish() error {
	if c.DurationStr != "" {
		d, err := time.ParseDuration(c.DurationStr)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %v", c.DurationStr, err)
		}
		c.Duration = d
	}
	return c.Validate()
}

// Validate checks the configuration for impossible values.
func (c *Config) Validate() error {
	if c.PartitionCount <= 0 {
		return fmt.Errorf("partition-count must be positive, got %d", c.PartitionCount)
	}
	if c.LogicalWorkers <= 0 {
		return fmt.Errorf("logical-workers must be positive, got %d", c.LogicalWorkers)
	}
	if c.NewOrderPct < 0 || c.NewOrderPct > 100 {
		return fmt.Errorf("new-order-pct must be in [0, 100], got %d", c.NewOrderPct)
	}
	return nil
}
