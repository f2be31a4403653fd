// Package config loads service configuration from an optional YAML file and
// SKILLS_ environment variables, and builds the process logger.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Feaskye/SkyeAI-sub001/internal/telemetry"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nesting levels: SKILLS_EXECUTION__TIMEOUT_SECONDS sets
// execution.timeout_seconds.
const EnvPrefix = "SKILLS_"

// Config holds application configuration.
type Config struct {
	ListenAddr string          `koanf:"listen_addr"`
	DBPath     string          `koanf:"db_path"`
	Log        LogConfig       `koanf:"log"`
	Execution  ExecutionConfig `koanf:"execution"`
	Tools      ToolsConfig     `koanf:"tools"`
	Telemetry  TelemetryConfig `koanf:"telemetry"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
	File   string `koanf:"file"`   // rotated log file; stderr when empty
}

// ExecutionConfig sizes the executor.
type ExecutionConfig struct {
	TimeoutSeconds       int `koanf:"timeout_seconds"`
	MaxConcurrent        int `koanf:"max_concurrent"`
	CoreWorkers          int `koanf:"core_workers"`
	QueueSize            int `koanf:"queue_size"`
	ShutdownGraceSeconds int `koanf:"shutdown_grace_seconds"`
	RetainedExecutions   int `koanf:"retained_executions"`
	RetentionMinutes     int `koanf:"retention_minutes"`
}

// ToolsConfig controls the tool adapter.
type ToolsConfig struct {
	File            string `koanf:"file"`
	LoadDefaults    bool   `koanf:"load_defaults"`
	RatePerMinute   int    `koanf:"rate_per_minute"`
	CacheTTLSeconds int    `koanf:"cache_ttl_seconds"`
	TimeoutSeconds  int    `koanf:"timeout_seconds"`
}

// TelemetryConfig selects the trace exporter.
type TelemetryConfig struct {
	Traces       string `koanf:"traces"` // none, stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

// Timeout returns the synchronous execution bound.
func (c ExecutionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ShutdownGrace returns how long shutdown waits for running executions.
func (c ExecutionConfig) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}

// Retention returns how long finished executions stay queryable in memory.
func (c ExecutionConfig) Retention() time.Duration {
	return time.Duration(c.RetentionMinutes) * time.Minute
}

// CacheTTL returns the lifetime of cached tool results.
func (c ToolsConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Timeout returns the HTTP timeout for tool endpoints.
func (c ToolsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

var defaults = map[string]any{
	"listen_addr":                      ":8080",
	"db_path":                          "skills.db",
	"log.level":                        "info",
	"log.format":                       "json",
	"log.file":                         "",
	"execution.timeout_seconds":        30,
	"execution.max_concurrent":         10,
	"execution.core_workers":           5,
	"execution.queue_size":             0,
	"execution.shutdown_grace_seconds": 60,
	"execution.retained_executions":    10000,
	"execution.retention_minutes":      60,
	"tools.file":                       "",
	"tools.load_defaults":              true,
	"tools.rate_per_minute":            60,
	"tools.cache_ttl_seconds":          300,
	"tools.timeout_seconds":            30,
	"telemetry.traces":                 "none",
	"telemetry.otlp_endpoint":          "",
	"telemetry.otlp_insecure":          false,
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty), then SKILLS_ environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	for key, v := range defaults {
		if err := k.Set(key, v); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps SKILLS_EXECUTION__MAX_CONCURRENT to execution.max_concurrent.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	var errs []error
	e := c.Execution
	if e.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("execution.timeout_seconds must be positive"))
	}
	if e.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("execution.max_concurrent must be positive"))
	}
	if e.CoreWorkers <= 0 || e.CoreWorkers > e.MaxConcurrent {
		errs = append(errs, errors.New("execution.core_workers must be between 1 and execution.max_concurrent"))
	}
	if e.QueueSize < 0 {
		errs = append(errs, errors.New("execution.queue_size must not be negative"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not json or text", c.Log.Format))
	}
	switch strings.ToLower(c.Telemetry.Traces) {
	case telemetry.ExporterNone, telemetry.ExporterStdout, telemetry.ExporterOTLP:
	default:
		errs = append(errs, fmt.Errorf("telemetry.traces %q is not none, stdout or otlp", c.Telemetry.Traces))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ParseLogLevel maps a level name to a slog level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Log file rotation limits.
const (
	logMaxSizeMB  = 10
	logMaxBackups = 10
	logMaxAgeDays = 30
)

// Writer returns the log destination: a rotating file when File is set,
// fallback otherwise. The returned closer releases the file.
func (c LogConfig) Writer(fallback io.Writer) (io.Writer, func() error) {
	if c.File == "" {
		return fallback, func() error { return nil }
	}
	lj := &lumberjack.Logger{
		Filename:   c.File,
		MaxSize:    logMaxSizeMB,
		MaxBackups: logMaxBackups,
		MaxAge:     logMaxAgeDays,
		Compress:   true,
	}
	return lj, lj.Close
}

// NewLogger creates a structured logger writing to w at the given level.
// Records logged with a span in context carry trace and span ids.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(telemetry.NewTraceHandler(h))
}
