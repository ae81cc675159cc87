package config

import (
	"fmt"
	"time"

	"mercator-hq/ratelimiter/pkg/limits/ratelimit"
)

// Config is the root configuration structure for the rate limiter.
type Config struct {
	// Limiter defines the windows enforced by the limiter.
	Limiter LimiterConfig `yaml:"limiter"`

	// Server contains HTTP server configuration.
	Server ServerConfig `yaml:"server"`

	// Journal contains configuration for the decision journal.
	Journal JournalConfig `yaml:"journal"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// Limiter modes.
const (
	// ModeMultiWindow enforces all windows on one limiter.
	ModeMultiWindow = "multi_window"

	// ModeComposite builds one limiter per window and chains them broadest first.
	ModeComposite = "composite"
)

// LimiterConfig defines the limiter.
type LimiterConfig struct {
	// Name labels the limiter in logs, metrics and the journal.
	// Default: "default"
	Name string `yaml:"name"`

	// Mode selects how windows are combined.
	// Options: "multi_window", "composite"
	// Default: "multi_window"
	Mode string `yaml:"mode"`

	// Windows lists the windows in registration order.
	// Default: 3 per minute, 5 per hour, 9 per day
	Windows []WindowConfig `yaml:"windows"`
}

// WindowConfig is one window. Exactly one of Duration or Unit is set.
type WindowConfig struct {
	// Duration is the window length (e.g., "90s", "1h").
	Duration time.Duration `yaml:"duration"`

	// Unit is a named window length: second, minute, hour or day.
	Unit string `yaml:"unit"`

	// Capacity is the maximum number of events admitted in the window.
	Capacity int `yaml:"capacity"`
}

// Window converts the configuration into a limiter window.
func (w WindowConfig) Window() (ratelimit.Window, error) {
	if w.Unit == "" {
		return ratelimit.Window{Duration: w.Duration, Capacity: w.Capacity}, nil
	}
	if w.Duration != 0 {
		return ratelimit.Window{}, fmt.Errorf("window sets both duration %s and unit %q", w.Duration, w.Unit)
	}

	unit, err := ratelimit.ParseTimeUnit(w.Unit)
	if err != nil {
		return ratelimit.Window{}, err
	}
	return ratelimit.UnitLimit{Unit: unit, Count: w.Capacity}.Window()
}

// ToWindows converts every configured window, preserving order.
func (c LimiterConfig) ToWindows() ([]ratelimit.Window, error) {
	windows := make([]ratelimit.Window, 0, len(c.Windows))
	for i, wc := range c.Windows {
		w, err := wc.Window()
		if err != nil {
			return nil, fmt.Errorf("limiter.windows[%d]: %w", i, err)
		}
		windows = append(windows, w)
	}
	return windows, nil
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// AdminKeys protect /v1/decisions and /v1/reset. When empty, those
	// routes are open.
	AdminKeys []AdminKeyConfig `yaml:"admin_keys"`
}

// AdminKeyConfig is one API key accepted on the administrative routes.
type AdminKeyConfig struct {
	// Name identifies the key in logs.
	Name string `yaml:"name"`

	// Key is the secret presented as a bearer token or X-API-Key header.
	Key string `yaml:"key"`

	// Disabled rejects the key without removing it.
	Disabled bool `yaml:"disabled"`
}

// Journal backends.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// JournalConfig contains configuration for the decision journal.
type JournalConfig struct {
	// Backend selects the journal storage.
	// Options: "none", "memory", "sqlite"
	// Default: "memory"
	Backend string `yaml:"backend"`

	// Memory configures the in-memory backend.
	Memory MemoryJournalConfig `yaml:"memory"`

	// SQLite configures the SQLite backend.
	SQLite SQLiteJournalConfig `yaml:"sqlite"`

	// Retention configures pruning of old records.
	Retention RetentionConfig `yaml:"retention"`
}

// MemoryJournalConfig configures the in-memory journal.
type MemoryJournalConfig struct {
	// MaxEntries is the number of records kept before the oldest is dropped.
	// Default: 10000
	MaxEntries int `yaml:"max_entries"`
}

// SQLiteJournalConfig configures the SQLite journal.
type SQLiteJournalConfig struct {
	// Path is the database file.
	// Default: "data/decisions.db"
	Path string `yaml:"path"`

	// Driver selects the database/sql driver.
	// Options: "sqlite" (pure Go), "sqlite3" (cgo)
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// BusyTimeout is how long to wait for database locks.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// CheckpointInterval is how often the WAL is checkpointed.
	// Default: 5m
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

// RetentionConfig configures journal pruning.
type RetentionConfig struct {
	// MaxAge is how long records are kept. A negative value keeps them forever.
	// Default: 168h (7 days)
	MaxAge time.Duration `yaml:"max_age"`

	// Schedule is a standard cron expression.
	// Default: "0 3 * * *"
	Schedule string `yaml:"schedule"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text", "console"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and served.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "ratelimiter"
	Namespace string `yaml:"namespace"`
}

// IsEnabled reports whether metrics are enabled.
func (m MetricsConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}
