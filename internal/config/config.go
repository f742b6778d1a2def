// Package config loads engine settings from a YAML file with environment
// overrides, falling back to defaults when neither is present.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces all environment overrides.
const EnvPrefix = "QUIVER_"

// Config holds every tunable of the cache engine. Zero values mean
// "use the default"; Load fills them in.
type Config struct {
	// DBPath is the SQLite database file. Parent directories are created
	// on open.
	DBPath string `yaml:"db_path"`

	// TTLMinutes is the project staleness window.
	TTLMinutes int `yaml:"ttl_minutes"`

	// MarketplaceTTLMinutes is the marketplace staleness window.
	MarketplaceTTLMinutes int `yaml:"marketplace_ttl_minutes"`

	// CountTTLSeconds is the collection-count cache lifetime.
	CountTTLSeconds int `yaml:"count_ttl_seconds"`

	// DebounceMs is the watcher's coalescing window.
	DebounceMs int `yaml:"debounce_ms"`

	// WatchPaths are project roots watched at startup.
	WatchPaths []string `yaml:"watch_paths"`

	Refresh RefreshConfig `yaml:"refresh"`
}

// RefreshConfig tunes the background refresh job.
type RefreshConfig struct {
	IntervalHours int `yaml:"interval_hours"`
	MaxConcurrent int `yaml:"max_concurrent"`

	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig bounds transient-failure backoff during refresh.
type RetryConfig struct {
	Attempts int `yaml:"attempts"`
	BaseMs   int `yaml:"base_ms"`
	MaxMs    int `yaml:"max_ms"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DBPath:                defaultDBPath(),
		TTLMinutes:            60,
		MarketplaceTTLMinutes: 24 * 60,
		CountTTLSeconds:       300,
		DebounceMs:            100,
		Refresh: RefreshConfig{
			IntervalHours: 1,
			MaxConcurrent: 4,
			Retry:         RetryConfig{Attempts: 3, BaseMs: 100, MaxMs: 2000},
		},
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "quiver.db"
	}
	return filepath.Join(home, ".quiver", "cache.db")
}

// Load reads the YAML file at path, layers environment overrides on top,
// and validates the result. A missing file is not an error; defaults plus
// environment apply. An empty path skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults apply.
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays QUIVER_* environment variables. Unset and malformed
// values are ignored; Validate catches out-of-range results.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		c.DBPath = v
	}
	envInt(EnvPrefix+"TTL_MINUTES", &c.TTLMinutes)
	envInt(EnvPrefix+"MARKETPLACE_TTL_MINUTES", &c.MarketplaceTTLMinutes)
	envInt(EnvPrefix+"COUNT_TTL_SECONDS", &c.CountTTLSeconds)
	envInt(EnvPrefix+"DEBOUNCE_MS", &c.DebounceMs)
	envInt(EnvPrefix+"REFRESH_INTERVAL_HOURS", &c.Refresh.IntervalHours)
	envInt(EnvPrefix+"REFRESH_MAX_CONCURRENT", &c.Refresh.MaxConcurrent)
	envInt(EnvPrefix+"RETRY_ATTEMPTS", &c.Refresh.Retry.Attempts)
	envInt(EnvPrefix+"RETRY_BASE_MS", &c.Refresh.Retry.BaseMs)
	envInt(EnvPrefix+"RETRY_MAX_MS", &c.Refresh.Retry.MaxMs)
	if v := os.Getenv(EnvPrefix + "WATCH_PATHS"); v != "" {
		var paths []string
		for _, p := range strings.Split(v, string(os.PathListSeparator)) {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, p)
			}
		}
		c.WatchPaths = paths
	}
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path must not be empty")
	}
	if c.TTLMinutes <= 0 {
		return fmt.Errorf("config: ttl_minutes must be positive, got %d", c.TTLMinutes)
	}
	if c.MarketplaceTTLMinutes <= 0 {
		return fmt.Errorf("config: marketplace_ttl_minutes must be positive, got %d", c.MarketplaceTTLMinutes)
	}
	if c.CountTTLSeconds <= 0 {
		return fmt.Errorf("config: count_ttl_seconds must be positive, got %d", c.CountTTLSeconds)
	}
	if c.DebounceMs <= 0 {
		return fmt.Errorf("config: debounce_ms must be positive, got %d", c.DebounceMs)
	}
	if c.Refresh.IntervalHours <= 0 {
		return fmt.Errorf("config: refresh.interval_hours must be positive, got %d", c.Refresh.IntervalHours)
	}
	if c.Refresh.MaxConcurrent <= 0 {
		return fmt.Errorf("config: refresh.max_concurrent must be positive, got %d", c.Refresh.MaxConcurrent)
	}
	if c.Refresh.Retry.Attempts <= 0 {
		return fmt.Errorf("config: refresh.retry.attempts must be positive, got %d", c.Refresh.Retry.Attempts)
	}
	if c.Refresh.Retry.BaseMs <= 0 || c.Refresh.Retry.MaxMs < c.Refresh.Retry.BaseMs {
		return fmt.Errorf("config: refresh.retry window invalid: base %dms, max %dms",
			c.Refresh.Retry.BaseMs, c.Refresh.Retry.MaxMs)
	}
	return nil
}

// TTL returns the project staleness window as a duration.
func (c Config) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// MarketplaceTTL returns the marketplace staleness window as a duration.
func (c Config) MarketplaceTTL() time.Duration {
	return time.Duration(c.MarketplaceTTLMinutes) * time.Minute
}

// CountTTL returns the collection-count cache lifetime as a duration.
func (c Config) CountTTL() time.Duration {
	return time.Duration(c.CountTTLSeconds) * time.Second
}

// Debounce returns the watcher coalescing window as a duration.
func (c Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// RetryBase returns the refresh retry backoff base as a duration.
func (c Config) RetryBase() time.Duration {
	return time.Duration(c.Refresh.Retry.BaseMs) * time.Millisecond
}

// RetryMax returns the refresh retry backoff cap as a duration.
func (c Config) RetryMax() time.Duration {
	return time.Duration(c.Refresh.Retry.MaxMs) * time.Millisecond
}

// RefreshInterval returns the scheduler period as a duration.
func (c Config) RefreshInterval() time.Duration {
	return time.Duration(c.Refresh.IntervalHours) * time.Hour
}
