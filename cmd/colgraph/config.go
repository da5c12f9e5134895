package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mstrYoda/colgraph"
)

// defaultConfigFile is read from the working directory when --config is
// not given.
const defaultConfigFile = "colgraph.yaml"

// Config is the CLI configuration. Precedence: flag > env > file > default.
type Config struct {
	Dir                string        `yaml:"dir"`
	LogLevel           string        `yaml:"log_level"`
	Output             string        `yaml:"output"` // table, tsv, json; "" = table on a terminal, tsv otherwise
	NoSync             bool          `yaml:"no_sync"`
	LoadBatchSize      int           `yaml:"load_batch_size"`
	LoadWorkers        int           `yaml:"load_workers"`
	MaxResultRows      int           `yaml:"max_result_rows"`
	QueryTimeout       time.Duration `yaml:"query_timeout"`
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold"`
	PostgresDSN        string        `yaml:"postgres_dsn"`
}

func defaultConfig() Config {
	return Config{
		Dir:      "./colgraph-data",
		LogLevel: "warn",
	}
}

// loadConfig loads .env (if present), then the YAML file, then COLGRAPH_*
// environment overrides. A missing default config file is not an error.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = os.Getenv("COLGRAPH_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		path = defaultConfigFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	case explicit || !errors.Is(err, fs.ErrNotExist):
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays COLGRAPH_* variables.
func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("COLGRAPH_DIR"); v != "" {
		c.Dir = v
	}
	if v := getenv("COLGRAPH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("COLGRAPH_OUTPUT"); v != "" {
		c.Output = v
	}
	if v := getenv("COLGRAPH_PG_DSN"); v != "" {
		c.PostgresDSN = v
	}
	if v := getenv("COLGRAPH_NO_SYNC"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("COLGRAPH_NO_SYNC: %w", err)
		}
		c.NoSync = b
	}
	if v := getenv("COLGRAPH_LOAD_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("COLGRAPH_LOAD_WORKERS: %w", err)
		}
		c.LoadWorkers = n
	}
	if v := getenv("COLGRAPH_QUERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("COLGRAPH_QUERY_TIMEOUT: %w", err)
		}
		c.QueryTimeout = d
	}
	return nil
}

// options converts the configuration into database options.
func (c Config) options(logger *slog.Logger) colgraph.Options {
	opts := colgraph.DefaultOptions()
	opts.Logger = logger
	opts.NoSync = c.NoSync
	if c.LoadBatchSize > 0 {
		opts.LoadBatchSize = c.LoadBatchSize
	}
	if c.LoadWorkers > 0 {
		opts.LoadWorkers = c.LoadWorkers
	}
	opts.MaxResultRows = c.MaxResultRows
	opts.DefaultQueryTimeout = c.QueryTimeout
	opts.SlowQueryThreshold = c.SlowQueryThreshold
	return opts
}

// newLogger returns a text logger writing to w at the named level.
func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info", "":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}
