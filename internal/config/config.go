// Package config loads service configuration from file, environment and flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. AUTOLINK_HTTP_ADDR.
const EnvPrefix = "AUTOLINK"

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config is the complete service configuration.
type Config struct {
	Storage  StorageConfig `mapstructure:"storage"`
	HTTP     HTTPConfig    `mapstructure:"http"`
	Engine   EngineConfig  `mapstructure:"engine"`
	Sweeper  SweeperConfig `mapstructure:"sweeper"`
	Stats    StatsConfig   `mapstructure:"stats"`
	Log      LogConfig     `mapstructure:"log"`
	SeedFile string        `mapstructure:"seed_file"`
}

// StorageConfig selects and connects the stores.
type StorageConfig struct {
	Backend       string `mapstructure:"backend"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickHouseDSN string `mapstructure:"clickhouse_dsn"` // optional transition analytics sink
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// EngineConfig tunes evaluation and commits.
type EngineConfig struct {
	Workers            int           `mapstructure:"workers"`
	LockHoldTimeout    time.Duration `mapstructure:"lock_hold_timeout"`
	MaxConflictRetries int           `mapstructure:"max_conflict_retries"`
}

// SweeperConfig tunes the expiration loop.
type SweeperConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	BatchLimit int           `mapstructure:"batch_limit"`
}

// StatsConfig tunes the stats aggregator.
type StatsConfig struct {
	Lookback time.Duration `mapstructure:"lookback"`
}

// SetDefaults registers every key with its default value. Keys must be known
// to viper for environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.clickhouse_dsn", "")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 15*time.Second)
	v.SetDefault("engine.workers", 8)
	v.SetDefault("engine.lock_hold_timeout", 5*time.Second)
	v.SetDefault("engine.max_conflict_retries", 3)
	v.SetDefault("sweeper.interval", time.Minute)
	v.SetDefault("sweeper.batch_limit", 500)
	v.SetDefault("stats.lookback", 24*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("seed_file", "")
}

// Load reads configuration into v and returns the validated result.
// configFile is optional; without it ./autolink.yaml is used when present.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("autolink")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q must be %s or %s", c.Storage.Backend, BackendMemory, BackendPostgres))
	}

	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr must not be empty"))
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("http.shutdown_timeout must be positive"))
	}
	if c.Engine.Workers < 1 {
		errs = append(errs, errors.New("engine.workers must be at least 1"))
	}
	if c.Engine.LockHoldTimeout <= 0 {
		errs = append(errs, errors.New("engine.lock_hold_timeout must be positive"))
	}
	if c.Engine.MaxConflictRetries < 1 {
		errs = append(errs, errors.New("engine.max_conflict_retries must be at least 1"))
	}
	if c.Sweeper.Interval <= 0 {
		errs = append(errs, errors.New("sweeper.interval must be positive"))
	}
	if c.Sweeper.BatchLimit < 1 {
		errs = append(errs, errors.New("sweeper.batch_limit must be at least 1"))
	}
	if c.Stats.Lookback <= 0 {
		errs = append(errs, errors.New("stats.lookback must be positive"))
	}
	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
