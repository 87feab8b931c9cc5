package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmp/vthreads/stats"
	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vthreads.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	r := require.New(t)
	cfg := Default()
	r.NoError(cfg.Validate())
	r.Equal(8080, cfg.Port)
	r.Equal("exit", cfg.Sentinel)
	r.Equal(10_000, cfg.BulkTasks)
}

func TestLoad(t *testing.T) {
	r := require.New(t)

	path := writeFile(t, `
port = 9090
host = "127.0.0.1"
echo = true
drain_timeout = "250ms"
bulk_mode = "fiber"
bulk_batch_size = 64
log_level = "debug"

[stats]
backend = "memory"
ttl = "1h"
`)

	cfg, err := Load(path)
	r.NoError(err)
	r.Equal(9090, cfg.Port)
	r.Equal("127.0.0.1", cfg.Host)
	r.True(cfg.Echo)
	r.Equal(250*time.Millisecond, cfg.DrainTimeout)
	r.Equal("fiber", cfg.BulkMode)
	r.Equal(64, cfg.BulkBatchSize)
	r.Equal("debug", cfg.LogLevel)
	r.Equal("memory", cfg.Stats.Backend)
	r.Equal(time.Hour, cfg.Stats.TTL)

	// untouched keys keep their defaults
	r.Equal("exit", cfg.Sentinel)
	r.Equal(10_000, cfg.BulkTasks)
	r.Equal("vthreads:stats", cfg.Stats.Prefix)
}

func TestLoadMissingFile(t *testing.T) {
	r := require.New(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	r.NoError(err)
	r.Equal(Default(), cfg)

	cfg, err = Load("")
	r.NoError(err)
	r.Equal(Default(), cfg)
}

func TestLoadUnknownKeys(t *testing.T) {
	r := require.New(t)

	_, err := Load(writeFile(t, "port = 1\nbogus = 2\n[stats]\nnope = true\n"))
	r.ErrorContains(err, "unknown keys: bogus, stats.nope")
}

func TestLoadSyntaxError(t *testing.T) {
	r := require.New(t)

	_, err := Load(writeFile(t, "port = \n"))
	r.Error(err)
}

func TestValidate(t *testing.T) {
	for name, tc := range map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"port":        {func(c *Config) { c.Port = 70000 }, "port 70000 out of range"},
		"sentinel":    {func(c *Config) { c.Sentinel = "" }, "sentinel must not be empty"},
		"drain":       {func(c *Config) { c.DrainTimeout = -time.Second }, "negative drain_timeout"},
		"bulk tasks":  {func(c *Config) { c.BulkTasks = -1 }, "negative bulk_tasks"},
		"bulk mode":   {func(c *Config) { c.BulkMode = "threads" }, `unknown bulk_mode "threads"`},
		"log level":   {func(c *Config) { c.LogLevel = "loud" }, `unknown log level "loud"`},
		"backend":     {func(c *Config) { c.Stats.Backend = "kafka" }, `unknown stats.backend "kafka"`},
		"redis addr":  {func(c *Config) { c.Stats.Backend = "redis"; c.Stats.RedisAddr = "" }, "redis_addr required"},
		"ephemeral":   {func(c *Config) { c.Port = 0 }, ""},
		"fiber":       {func(c *Config) { c.BulkMode = "fiber" }, ""},
		"no backend":  {func(c *Config) { c.Stats.Backend = "" }, ""},
		"redis valid": {func(c *Config) { c.Stats.Backend = "redis" }, ""},
	} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.want == "" {
				require.NoError(t, err)
			} else {
				require.ErrorContains(t, err, tc.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	r := require.New(t)

	for in, want := range map[string]logiface.Level{
		"":        logiface.LevelInformational,
		"INFO":    logiface.LevelInformational,
		"warn":    logiface.LevelWarning,
		"err":     logiface.LevelError,
		"error":   logiface.LevelError,
		" debug ": logiface.LevelDebug,
		"trace":   logiface.LevelTrace,
		"off":     logiface.LevelDisabled,
	} {
		got, err := ParseLevel(in)
		r.NoError(err, in)
		r.Equal(want, got, in)
	}

	_, err := ParseLevel("verbose")
	r.Error(err)
}

func TestNewLogger(t *testing.T) {
	r := require.New(t)

	var buf bytes.Buffer
	logger := NewLogger(&buf, logiface.LevelInformational)
	logger.Info().Str("component", "test").Log("hello")
	logger.Debug().Log("hidden")

	out := buf.String()
	r.Equal(1, strings.Count(out, "\n"))
	r.Contains(out, `"msg":"hello"`)
	r.Contains(out, `"component":"test"`)
	r.NotContains(out, "hidden")
}

func TestOpenRecorder(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	rec, closer, err := Stats{Backend: "none"}.OpenRecorder(ctx)
	r.NoError(err)
	r.Equal(stats.Discard, rec)
	r.NoError(closer())

	rec, closer, err = Stats{Backend: "memory"}.OpenRecorder(ctx)
	r.NoError(err)
	r.IsType(&stats.Memory{}, rec)
	r.NoError(closer())

	_, closer, err = Stats{Backend: "redis", RedisAddr: "127.0.0.1:1"}.OpenRecorder(ctx)
	r.ErrorContains(err, "redis stats ping")
	r.NotNil(closer)

	_, _, err = Stats{Backend: "kafka"}.OpenRecorder(ctx)
	r.Error(err)
}
