// Package config loads process settings from a YAML file, PLACEHARVEST_*
// environment variables and command-line flags, in increasing priority.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const EnvPrefix = "PLACEHARVEST"

type Config struct {
	DatabasePath string         `mapstructure:"database_path" validate:"required"`
	MetricsAddr  string         `mapstructure:"metrics_addr"`
	Geonames     GeonamesConfig `mapstructure:"geonames"`
	Browser      BrowserConfig  `mapstructure:"browser"`
	Pool         PoolConfig     `mapstructure:"pool"`
	Runner       RunnerConfig   `mapstructure:"runner"`
	Log          LogConfig      `mapstructure:"log"`
}

type GeonamesConfig struct {
	URL     string        `mapstructure:"url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type BrowserConfig struct {
	Image string `mapstructure:"image"`
	// Endpoint attaches to an already running browser instead of starting
	// containers.
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`
	Headless bool   `mapstructure:"headless"`
	Timeout  int    `mapstructure:"timeout" validate:"gt=0"`
	Locale   string `mapstructure:"locale" validate:"required"`
}

type PoolConfig struct {
	Workers       int           `mapstructure:"workers" validate:"gte=0"`
	MaxConcurrent int64         `mapstructure:"max_concurrent" validate:"gte=0"`
	StaggerMin    time.Duration `mapstructure:"stagger_min" validate:"gte=0"`
	StaggerMax    time.Duration `mapstructure:"stagger_max" validate:"gtefield=StaggerMin"`
	MaxPasses     int           `mapstructure:"max_passes" validate:"gt=0"`
}

type RunnerConfig struct {
	SettleDelay      time.Duration `mapstructure:"settle_delay" validate:"gte=0"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval" validate:"gte=0"`
	MaxSnapshots     int           `mapstructure:"max_snapshots" validate:"gt=0"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gt=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
}

// New returns a viper instance with every key defaulted, so environment
// variables are picked up for all of them.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("database_path", "placeharvest.duckdb")
	v.SetDefault("metrics_addr", "")

	v.SetDefault("geonames.url", "http://localhost:8000")
	v.SetDefault("geonames.timeout", 30*time.Second)

	v.SetDefault("browser.image", "ghcr.io/browserless/chromium:latest")
	v.SetDefault("browser.endpoint", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.timeout", 30)
	v.SetDefault("browser.locale", "en-US")

	v.SetDefault("pool.workers", 0)
	v.SetDefault("pool.max_concurrent", 0)
	v.SetDefault("pool.stagger_min", 2*time.Second)
	v.SetDefault("pool.stagger_max", 5*time.Second)
	v.SetDefault("pool.max_passes", 10)

	v.SetDefault("runner.settle_delay", 2*time.Second)
	v.SetDefault("runner.snapshot_interval", 3*time.Second)
	v.SetDefault("runner.max_snapshots", 30)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file into v and returns the validated
// settings. An empty path skips the file.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
