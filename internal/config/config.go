// Package config loads roamsync settings from file, environment, and
// defaults.
//
// Precedence, highest first: ROAMSYNC_* environment variables, the
// config file ($ROAMSYNC_CONFIG or ~/.config/roamsync/config.yaml),
// built-in defaults. The token and graph name have no default and must
// be provided.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every setting the CLI and daemon need.
type Config struct {
	// Backend access.
	APIURL string `mapstructure:"api_url"`
	Graph  string `mapstructure:"graph"`
	Token  string `mapstructure:"token"`

	// Rendering.
	ResolveLevel int `mapstructure:"resolve_level"`

	// Cache.
	CachePath string        `mapstructure:"cache_path"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`

	// Watch daemon.
	WatchDir string        `mapstructure:"watch_dir"`
	Debounce time.Duration `mapstructure:"debounce"`
	LogFile  string        `mapstructure:"log_file"`

	// Dashboard.
	DashboardAddr string `mapstructure:"dashboard_addr"`
}

// Load reads configuration from the config file and environment.
// A missing config file is not an error; the environment and defaults
// still apply.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("api_url", "https://api.roamresearch.com")
	v.SetDefault("resolve_level", 1)
	v.SetDefault("cache_path", defaultCachePath())
	v.SetDefault("cache_ttl", 15*time.Minute)
	v.SetDefault("watch_dir", ".")
	v.SetDefault("debounce", 2*time.Second)
	v.SetDefault("dashboard_addr", "localhost:8737")

	v.SetEnvPrefix("ROAMSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Keys without defaults are invisible to Unmarshal unless bound.
	for _, key := range []string{"graph", "token", "log_file"} {
		_ = v.BindEnv(key)
	}

	if path := os.Getenv("ROAMSYNC_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "roamsync"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that every required field is usable. Errors name the
// offending field.
func (c *Config) Validate() error {
	if c.Graph == "" {
		return fmt.Errorf("graph is required (set graph in config or ROAMSYNC_GRAPH)")
	}
	if c.Token == "" {
		return fmt.Errorf("token is required (set token in config or ROAMSYNC_TOKEN)")
	}
	if c.APIURL == "" {
		return fmt.Errorf("api_url must not be empty")
	}
	if c.ResolveLevel < 0 {
		return fmt.Errorf("resolve_level must be >= 0, got %d", c.ResolveLevel)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("debounce must be >= 0, got %v", c.Debounce)
	}
	return nil
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "roamsync", "blocks.db")
}
