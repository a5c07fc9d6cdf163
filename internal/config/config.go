// Package config loads gainlink's settings through viper.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/justyntemme/gainlink/pkg/framework/broadcast"
	"github.com/justyntemme/gainlink/pkg/framework/connection"
	"github.com/justyntemme/gainlink/pkg/shared"
)

// EnvPrefix prefixes environment overrides, e.g. GAINLINK_REGISTRY_PATH.
const EnvPrefix = "GAINLINK"

// Config is the complete gainlink configuration.
type Config struct {
	Registry RegistryConfig `mapstructure:"registry"`
	Timing   TimingConfig   `mapstructure:"timing"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Simulate SimulateConfig `mapstructure:"simulate"`
}

// RegistryConfig locates the shared registry.
type RegistryConfig struct {
	// Path is the file every instance maps.
	Path string `mapstructure:"path"`
}

// TimingConfig holds the windows and intervals the instances agree on.
// Changing them only makes sense when every instance uses the same values.
type TimingConfig struct {
	// ReclaimAfter is how long a silent slot keeps its owner.
	ReclaimAfter time.Duration `mapstructure:"reclaim_after"`
	// Freshness is how long a broadcast stays binding.
	Freshness time.Duration `mapstructure:"freshness"`
	// LiveWindow selects the slots a broadcast reaches.
	LiveWindow time.Duration `mapstructure:"live_window"`
	// ActiveWindow selects the slots listed and counted as active.
	ActiveWindow time.Duration `mapstructure:"active_window"`
	// BroadcastInterval is the minimum time between unchanged pushes.
	BroadcastInterval time.Duration `mapstructure:"broadcast_interval"`
	// KeepaliveInterval is how often a participant refreshes its slot
	// without audio.
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval"`
}

// LoggingConfig controls logging.
type LoggingConfig struct {
	// Level is one of ValidLogLevels.
	Level string `mapstructure:"level"`
	// File, when set, receives the log instead of stderr.
	File string `mapstructure:"file"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Address to serve /metrics on; empty disables it.
	Address string `mapstructure:"address"`
}

// SimulateConfig drives the simulate command.
type SimulateConfig struct {
	Participants int           `mapstructure:"participants"`
	Duration     time.Duration `mapstructure:"duration"`
	SampleRate   float64       `mapstructure:"sample_rate"`
	BlockSize    int           `mapstructure:"block_size"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Registry: RegistryConfig{
			Path: shared.DefaultPath(),
		},
		Timing: TimingConfig{
			ReclaimAfter:      shared.ReclaimAfter,
			Freshness:         shared.FreshnessWindow,
			LiveWindow:        shared.LiveWindow,
			ActiveWindow:      shared.ActiveWindow,
			BroadcastInterval: broadcast.DefaultInterval,
			KeepaliveInterval: connection.KeepaliveInterval,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Simulate: SimulateConfig{
			Participants: 4,
			Duration:     10 * time.Second,
			SampleRate:   48000,
			BlockSize:    512,
		},
	}
}

// SetDefaults registers Default with viper so that every key is known even
// without a config file.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("registry.path", defaults.Registry.Path)

	viper.SetDefault("timing.reclaim_after", defaults.Timing.ReclaimAfter)
	viper.SetDefault("timing.freshness", defaults.Timing.Freshness)
	viper.SetDefault("timing.live_window", defaults.Timing.LiveWindow)
	viper.SetDefault("timing.active_window", defaults.Timing.ActiveWindow)
	viper.SetDefault("timing.broadcast_interval", defaults.Timing.BroadcastInterval)
	viper.SetDefault("timing.keepalive_interval", defaults.Timing.KeepaliveInterval)

	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.file", defaults.Logging.File)

	viper.SetDefault("metrics.address", defaults.Metrics.Address)

	viper.SetDefault("simulate.participants", defaults.Simulate.Participants)
	viper.SetDefault("simulate.duration", defaults.Simulate.Duration)
	viper.SetDefault("simulate.sample_rate", defaults.Simulate.SampleRate)
	viper.SetDefault("simulate.block_size", defaults.Simulate.BlockSize)
}

// Load reads the configuration from viper and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// ConfigDir returns the user's gainlink config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "gainlink")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gainlink"
	}
	return filepath.Join(home, ".config", "gainlink")
}

// ConfigFile returns the default config file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
