package config

import "time"

// Default values for configuration fields.
const (
	// Limiter defaults
	DefaultLimiterName = "default"
	DefaultLimiterMode = ModeMultiWindow

	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// Journal defaults
	DefaultJournalBackend           = BackendMemory
	DefaultJournalMemoryMaxEntries  = 10000
	DefaultJournalSQLitePath        = "data/decisions.db"
	DefaultJournalSQLiteDriver      = "sqlite"
	DefaultJournalSQLiteBusyTimeout = 5 * time.Second
	DefaultJournalSQLiteCheckpoint  = 5 * time.Minute
	DefaultJournalRetentionMaxAge   = 7 * 24 * time.Hour
	DefaultJournalRetentionSchedule = "0 3 * * *"

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "ratelimiter"
)

// DefaultWindows returns the windows used when none are configured:
// 3 requests per minute, 5 per hour and 9 per day.
func DefaultWindows() []WindowConfig {
	return []WindowConfig{
		{Unit: "minute", Capacity: 3},
		{Unit: "hour", Capacity: 5},
		{Unit: "day", Capacity: 9},
	}
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Limiter defaults
	if cfg.Limiter.Name == "" {
		cfg.Limiter.Name = DefaultLimiterName
	}
	if cfg.Limiter.Mode == "" {
		cfg.Limiter.Mode = DefaultLimiterMode
	}
	if len(cfg.Limiter.Windows) == 0 {
		cfg.Limiter.Windows = DefaultWindows()
	}

	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	// Journal defaults
	if cfg.Journal.Backend == "" {
		cfg.Journal.Backend = DefaultJournalBackend
	}
	if cfg.Journal.Memory.MaxEntries == 0 {
		cfg.Journal.Memory.MaxEntries = DefaultJournalMemoryMaxEntries
	}
	if cfg.Journal.SQLite.Path == "" {
		cfg.Journal.SQLite.Path = DefaultJournalSQLitePath
	}
	if cfg.Journal.SQLite.Driver == "" {
		cfg.Journal.SQLite.Driver = DefaultJournalSQLiteDriver
	}
	if cfg.Journal.SQLite.BusyTimeout == 0 {
		cfg.Journal.SQLite.BusyTimeout = DefaultJournalSQLiteBusyTimeout
	}
	if cfg.Journal.SQLite.CheckpointInterval == 0 {
		cfg.Journal.SQLite.CheckpointInterval = DefaultJournalSQLiteCheckpoint
	}
	if cfg.Journal.Retention.MaxAge == 0 {
		cfg.Journal.Retention.MaxAge = DefaultJournalRetentionMaxAge
	}
	if cfg.Journal.Retention.Schedule == "" {
		cfg.Journal.Retention.Schedule = DefaultJournalRetentionSchedule
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
}

// NewDefaultConfig returns a configuration with every default applied.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
