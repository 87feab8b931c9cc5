// Package config loads the TOML configuration of the vthreads command
// and builds the components it describes.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration.
type Config struct {
	Host          string        `toml:"host"`
	Port          int           `toml:"port"`
	Sentinel      string        `toml:"sentinel"`
	Echo          bool          `toml:"echo"`
	DrainTimeout  time.Duration `toml:"drain_timeout"`
	MaxConns      int           `toml:"max_conns"`
	BulkTasks     int           `toml:"bulk_tasks"`
	BulkMode      string        `toml:"bulk_mode"`
	BulkBatchSize int           `toml:"bulk_batch_size"`
	MaxUnits      int           `toml:"max_units"`
	LogLevel      string        `toml:"log_level"`
	Stats         Stats         `toml:"stats"`
}

// Stats configures where runtime events are recorded.
type Stats struct {
	// Backend is one of "none", "memory", or "redis".
	Backend       string        `toml:"backend"`
	RedisAddr     string        `toml:"redis_addr"`
	RedisPassword string        `toml:"redis_password"`
	RedisDB       int           `toml:"redis_db"`
	Prefix        string        `toml:"prefix"`
	TTL           time.Duration `toml:"ttl"`
	Bucket        string        `toml:"bucket"`
	TrackConns    bool          `toml:"track_conns"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Host:          "localhost",
		Port:          8080,
		Sentinel:      "exit",
		DrainTimeout:  5 * time.Second,
		BulkTasks:     10_000,
		BulkMode:      "goroutine",
		BulkBatchSize: 128,
		LogLevel:      "info",
		Stats: Stats{
			Backend:   "none",
			RedisAddr: "localhost:6379",
			Prefix:    "vthreads:stats",
			TTL:       24 * time.Hour,
			Bucket:    "minute",
		},
	}
}

// Load reads the file at path over Default. A missing file yields the
// defaults; unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("config: %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	return cfg, cfg.Validate()
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("config: port %d out of range", c.Port)
	case c.Sentinel == "":
		return errors.New("config: sentinel must not be empty")
	case c.DrainTimeout < 0:
		return fmt.Errorf("config: negative drain_timeout %s", c.DrainTimeout)
	case c.BulkTasks < 0:
		return fmt.Errorf("config: negative bulk_tasks %d", c.BulkTasks)
	case c.BulkMode != "goroutine" && c.BulkMode != "fiber":
		return fmt.Errorf("config: unknown bulk_mode %q", c.BulkMode)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.Stats.Backend {
	case "", "none", "memory":
	case "redis":
		if c.Stats.RedisAddr == "" {
			return errors.New("config: stats.redis_addr required for the redis backend")
		}
	default:
		return fmt.Errorf("config: unknown stats.backend %q", c.Stats.Backend)
	}
	return nil
}
