// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/silkcrawl/internal/pipeline"
	"github.com/JakeFAU/silkcrawl/internal/proxy"
)

// EnvPrefix prefixes every environment override, e.g. SILKCRAWL_CRAWLER_MODE.
const EnvPrefix = "SILKCRAWL"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Proxies  []string       `mapstructure:"proxies"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// CrawlerConfig governs the pipeline and coordinators.
type CrawlerConfig struct {
	Mode                  string   `mapstructure:"mode"`
	UserAgent             string   `mapstructure:"user_agent"`
	RequestTimeoutSeconds int      `mapstructure:"request_timeout_seconds"`
	MaxBodyBytes          int      `mapstructure:"max_body_bytes"`
	Seeds                 []string `mapstructure:"seeds"`
	Workers               int      `mapstructure:"workers"`
}

// HeadlessConfig configures the browser tier.
type HeadlessConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	ExecPath      string `mapstructure:"exec_path"`
}

// StorageConfig selects where fetched pages are persisted. Both fields empty
// disables persistence.
type StorageConfig struct {
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.mode", string(pipeline.ModeEscalate))
	v.SetDefault("crawler.user_agent", "silkcrawl/0.1")
	v.SetDefault("crawler.request_timeout_seconds", 15)
	v.SetDefault("crawler.max_body_bytes", 10<<20)
	v.SetDefault("crawler.workers", 1)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("storage.prefix", "pages")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	mode, err := pipeline.ParseMode(c.Crawler.Mode)
	if err != nil {
		return fmt.Errorf("crawler.mode: %w", err)
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Crawler.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.request_timeout_seconds must be > 0")
	}
	if c.Crawler.MaxBodyBytes < 0 {
		return fmt.Errorf("crawler.max_body_bytes must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.NavTimeoutSec <= 0 {
		return fmt.Errorf("headless.nav_timeout_seconds must be > 0 when headless is enabled")
	}
	if mode == pipeline.ModeDynamic && !c.Headless.Enabled {
		return fmt.Errorf("crawler.mode %q requires headless.enabled", mode)
	}
	if c.Storage.LocalDir != "" && c.Storage.GCSBucket != "" {
		return fmt.Errorf("storage.local_dir and storage.gcs_bucket are mutually exclusive")
	}
	if _, err := proxy.ParseAll(c.Proxies); err != nil {
		return fmt.Errorf("proxies: %w", err)
	}
	return nil
}

// Mode returns the validated pipeline mode.
func (c Config) Mode() pipeline.Mode {
	mode, err := pipeline.ParseMode(c.Crawler.Mode)
	if err != nil {
		return pipeline.ModeEscalate
	}
	return mode
}

// RequestTimeout converts the static fetch timeout to a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Crawler.RequestTimeoutSeconds) * time.Second
}

// NavTimeout converts the browser navigation timeout to a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}

// ProxyPool parses the configured proxy descriptors.
func (c Config) ProxyPool() (*proxy.Pool, error) {
	pool, err := proxy.ParseAll(c.Proxies)
	if err != nil {
		return nil, fmt.Errorf("parse proxies: %w", err)
	}
	return pool, nil
}
