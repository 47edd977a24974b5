// Package config provides YAML-based configuration loading for tick runner hosts.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	yaml "go.yaml.in/yaml/v3"
)

// Config is the root application configuration.
type Config struct {
	// Driver controls the tick driver
	Driver DriverConfig `mapstructure:"driver" yaml:"driver"`

	// Log holds logging configuration
	Log LogConfig `mapstructure:"log" yaml:"log"`

	// Metrics controls the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// DriverConfig defines tick driver settings. Durations are Go duration strings.
type DriverConfig struct {
	TickInterval      string `mapstructure:"tick_interval" yaml:"tick_interval"`
	WorkQueueSize     int    `mapstructure:"work_queue_size" yaml:"work_queue_size"`
	HistoryCapacity   int    `mapstructure:"history_capacity" yaml:"history_capacity"`
	RejectLogInterval string `mapstructure:"reject_log_interval" yaml:"reject_log_interval"`
	// RecoverPanics installs a panic handler so one failing callback does not stop the driver
	RecoverPanics bool `mapstructure:"recover_panics" yaml:"recover_panics"`

	tick      time.Duration
	rejectLog time.Duration
}

// Tick returns the parsed tick interval. Valid after Load.
func (c DriverConfig) Tick() time.Duration { return c.tick }

// RejectLog returns the parsed reject log interval. Valid after Load.
func (c DriverConfig) RejectLog() time.Duration { return c.rejectLog }

// LogConfig defines logger settings.
type LogConfig struct {
	// Backend: zerolog or zap
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Level: debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
	// Format: console or json
	Format string `mapstructure:"format" yaml:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs" yaml:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development" yaml:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool `mapstructure:"enable" yaml:"enable"`
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// MetricsConfig defines the Prometheus exporter settings.
type MetricsConfig struct {
	Enable       bool   `mapstructure:"enable" yaml:"enable"`
	Addr         string `mapstructure:"addr" yaml:"addr"`
	Namespace    string `mapstructure:"namespace" yaml:"namespace"`
	PollInterval string `mapstructure:"poll_interval" yaml:"poll_interval"`

	poll time.Duration
}

// Poll returns the parsed snapshot poll interval. Valid after Load.
func (c MetricsConfig) Poll() time.Duration { return c.poll }

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Driver: DriverConfig{
			TickInterval:      "16ms",
			WorkQueueSize:     100,
			HistoryCapacity:   100,
			RejectLogInterval: "1s",
			RecoverPanics:     true,
		},
		Log: LogConfig{
			Backend: "zerolog",
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Metrics: MetricsConfig{
			Enable:       false,
			Addr:         ":9090",
			Namespace:    "tickrunner",
			PollInterval: "1s",
		},
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix TICKRUNNER and `.`/`-` are replaced with `_`.
// Example: TICKRUNNER_DRIVER_TICK_INTERVAL=10ms
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TICKRUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("driver.tick_interval", cfg.Driver.TickInterval)
	v.SetDefault("driver.work_queue_size", cfg.Driver.WorkQueueSize)
	v.SetDefault("driver.history_capacity", cfg.Driver.HistoryCapacity)
	v.SetDefault("driver.reject_log_interval", cfg.Driver.RejectLogInterval)
	v.SetDefault("driver.recover_panics", cfg.Driver.RecoverPanics)
	v.SetDefault("log.backend", cfg.Log.Backend)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("metrics.enable", cfg.Metrics.Enable)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
	v.SetDefault("metrics.namespace", cfg.Metrics.Namespace)
	v.SetDefault("metrics.poll_interval", cfg.Metrics.PollInterval)

	// Choose config file
	if path == "" {
		if envPath := os.Getenv("TICKRUNNER_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tickrunner")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".tickrunner"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var viperConfigFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &viperConfigFileNotFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) validate() error {
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
		// ok
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}

	c.Log.Backend = strings.ToLower(strings.TrimSpace(c.Log.Backend))
	switch c.Log.Backend {
	case "":
		c.Log.Backend = "zerolog"
	case "zerolog", "zap":
		// ok
	default:
		return fmt.Errorf("invalid log.backend: %q", c.Log.Backend)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}

	var err error
	if c.Driver.tick, err = ParseDurationOrDefault("driver.tick_interval", c.Driver.TickInterval, 16*time.Millisecond); err != nil {
		return err
	}
	if c.Driver.rejectLog, err = ParseDurationOrDefault("driver.reject_log_interval", c.Driver.RejectLogInterval, time.Second); err != nil {
		return err
	}
	if c.Driver.WorkQueueSize < 0 {
		return fmt.Errorf("driver.work_queue_size must be >= 0")
	}
	if c.Driver.HistoryCapacity < 0 {
		return fmt.Errorf("driver.history_capacity must be >= 0")
	}
	if c.Metrics.poll, err = ParseDurationOrDefault("metrics.poll_interval", c.Metrics.PollInterval, time.Second); err != nil {
		return err
	}
	if c.Metrics.Enable && strings.TrimSpace(c.Metrics.Addr) == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	return nil
}

// Dump renders cfg as YAML.
func Dump(cfg *Config) ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("yaml marshal: %w", err)
	}
	return out, nil
}
