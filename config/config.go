package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/ini.v1"

	"github.com/mevdschee/tqloader/resolver"
	"github.com/mevdschee/tqloader/store"
)

// Config holds the loader configuration
type Config struct {
	Store    store.Options
	Resolver resolver.Config
	Metrics  MetricsConfig
}

// MetricsConfig holds configuration for the metrics endpoint
type MetricsConfig struct {
	Listen string // Empty disables the endpoint
}

// Default returns the configuration used when no file is given
func Default() *Config {
	config := &Config{
		Store:    store.Options{Driver: "sqlite3"},
		Resolver: resolver.DefaultConfig(),
	}
	applyEnv(config)
	return config
}

// Load reads configuration from an INI file with environment variable overrides
func Load(path string) (*Config, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	resolverConfig, err := loadResolverConfig(cfg.Section("resolver"))
	if err != nil {
		return nil, err
	}

	config := &Config{
		Store:    loadStoreConfig(cfg.Section("store")),
		Resolver: resolverConfig,
		Metrics: MetricsConfig{
			Listen: cfg.Section("metrics").Key("listen").String(),
		},
	}
	applyEnv(config)
	return config, nil
}

func applyEnv(config *Config) {
	if v := os.Getenv("TQLOADER_STORE_DRIVER"); v != "" {
		config.Store.Driver = v
	}
	if v := os.Getenv("TQLOADER_STORE_DSN"); v != "" {
		config.Store.DSN = v
	}
	if v := os.Getenv("TQLOADER_METRICS_LISTEN"); v != "" {
		config.Metrics.Listen = v
	}
	if v := os.Getenv("TQLOADER_RESOLVER_MANUAL"); v != "" {
		if manual, err := strconv.ParseBool(v); err == nil {
			config.Resolver.Manual = manual
		}
	}
}

func loadStoreConfig(sec *ini.Section) store.Options {
	// Parse replicas (replica1, replica2, etc.)
	var replicas []string
	for i := 1; i <= 10; i++ { // Support up to 10 replicas
		replica := sec.Key("replica" + strconv.Itoa(i)).String()
		if replica != "" {
			replicas = append(replicas, replica)
		}
	}

	return store.Options{
		Driver:   sec.Key("driver").MustString("sqlite3"),
		DSN:      sec.Key("dsn").String(),
		Replicas: replicas,
	}
}

func loadResolverConfig(sec *ini.Section) (resolver.Config, error) {
	defaults := resolver.DefaultConfig()
	config := resolver.Config{
		InitialDelayMs:     sec.Key("initial_delay_ms").MustInt(defaults.InitialDelayMs),
		MinDelayMs:         sec.Key("min_delay_ms").MustInt(defaults.MinDelayMs),
		MaxDelayMs:         sec.Key("max_delay_ms").MustInt(defaults.MaxDelayMs),
		MaxBatchSize:       sec.Key("max_batch_size").MustInt(defaults.MaxBatchSize),
		Manual:             sec.Key("manual").MustBool(defaults.Manual),
		FetchTimeoutMs:     sec.Key("fetch_timeout_ms").MustInt(defaults.FetchTimeoutMs),
		LoadThreshold:      sec.Key("load_threshold").MustInt(defaults.LoadThreshold),
		AdaptiveStep:       sec.Key("adaptive_step").MustFloat64(defaults.AdaptiveStep),
		MetricsIntervalSec: sec.Key("metrics_interval").MustInt(defaults.MetricsIntervalSec),
	}

	if config.MinDelayMs > config.MaxDelayMs {
		return config, fmt.Errorf("resolver: min_delay_ms (%d) exceeds max_delay_ms (%d)", config.MinDelayMs, config.MaxDelayMs)
	}
	if config.MaxBatchSize < 0 {
		return config, fmt.Errorf("resolver: max_batch_size must not be negative, got %d", config.MaxBatchSize)
	}
	return config, nil
}
