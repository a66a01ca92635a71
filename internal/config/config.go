// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
	Catalog CatalogConfig `mapstructure:"catalog" yaml:"catalog"`
	// Capture gets its marching orders from CLI flags, not the config file.
	Capture CaptureConfig `mapstructure:"-" yaml:"-"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names used for console log levels.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless     bool     `mapstructure:"headless" yaml:"headless"`
	DisableCache bool     `mapstructure:"disable_cache" yaml:"disable_cache"`
	Concurrency  int      `mapstructure:"concurrency" yaml:"concurrency"`
	Args         []string `mapstructure:"args" yaml:"args"`
	UserAgent    string   `mapstructure:"user_agent" yaml:"user_agent"`
}

// NetworkConfig tunes navigation timing and the per-run watchdog.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	TaskTimeout       time.Duration `mapstructure:"task_timeout" yaml:"task_timeout"`
	// NavigationsPerSecond caps how fast tabs targeting the same provider
	// are allowed to open; zero disables pacing.
	NavigationsPerSecond float64 `mapstructure:"navigations_per_second" yaml:"navigations_per_second"`
}

// CatalogConfig points at an optional on-disk catalog that overrides the
// embedded provider/source definitions.
type CatalogConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// CaptureConfig holds settings populated from CLI flags for a capture job.
type CaptureConfig struct {
	ProviderID   string
	SourceID     string
	Options      map[string]string
	SourceParams map[string]string
	ArticleFile  string
	JSONOutput   bool
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "citewright")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_cache", true)
	v.SetDefault("browser.concurrency", 3)

	v.SetDefault("network.navigation_timeout", "60s")
	v.SetDefault("network.task_timeout", "3m")
	v.SetDefault("network.navigations_per_second", 2.0)

	v.SetDefault("catalog.path", "")
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with our own defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Browser.Concurrency <= 0 {
		return fmt.Errorf("browser.concurrency must be a positive integer")
	}
	if c.Network.NavigationTimeout <= 0 {
		return fmt.Errorf("network.navigation_timeout must be a positive duration")
	}
	if c.Network.TaskTimeout <= 0 {
		return fmt.Errorf("network.task_timeout must be a positive duration")
	}
	if c.Network.NavigationsPerSecond < 0 {
		return fmt.Errorf("network.navigations_per_second cannot be negative")
	}
	return nil
}
