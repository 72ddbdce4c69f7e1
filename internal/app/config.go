package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds process-level settings. Every field has an environment
// variable; the CLI overrides them with flags.
type Config struct {
	DataDir        string        // PIPELINE_DATA_DIR
	DBPath         string        // PIPELINE_DB, defaults to <DataDir>/pipeline.db
	PushgatewayURL string        // PIPELINE_PUSHGATEWAY_URL
	StatsdAddr     string        // PIPELINE_STATSD_ADDR
	LogLevel       string        // PIPELINE_LOG_LEVEL: debug, info, warn, error
	LogFormat      string        // PIPELINE_LOG_FORMAT: text or json
	RunTimeout     time.Duration // PIPELINE_RUN_TIMEOUT, e.g. "30m"
}

// ConfigFromEnv reads Config from the environment, applying defaults.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		DataDir:        os.Getenv("PIPELINE_DATA_DIR"),
		DBPath:         os.Getenv("PIPELINE_DB"),
		PushgatewayURL: os.Getenv("PIPELINE_PUSHGATEWAY_URL"),
		StatsdAddr:     os.Getenv("PIPELINE_STATSD_ADDR"),
		LogLevel:       os.Getenv("PIPELINE_LOG_LEVEL"),
		LogFormat:      os.Getenv("PIPELINE_LOG_FORMAT"),
		RunTimeout:     30 * time.Minute,
	}
	if cfg.DataDir == "" {
		homeDir, _ := os.UserHomeDir()
		cfg.DataDir = filepath.Join(homeDir, ".local", "share", "pipeline")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if v := os.Getenv("PIPELINE_RUN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("PIPELINE_RUN_TIMEOUT: %w", err)
		}
		cfg.RunTimeout = d
	}
	return cfg, nil
}

// HistoryPath is the SQLite file holding definitions and run history.
func (c Config) HistoryPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.DataDir, "pipeline.db")
}

// NewLogger builds the process logger writing to w.
func (c Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(c.LogFormat) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", c.LogFormat)
	}
}
