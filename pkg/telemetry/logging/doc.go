// Package logging provides structured logging built on log/slog.
//
// # Overview
//
// The logging package configures a *slog.Logger from the telemetry section:
//   - JSON, text and console formats
//   - Configurable log levels (debug, info, warn, error)
//   - A *slog.LevelVar so the level can change at runtime
//   - Context-aware logging with request IDs and limiter names
//
// # Usage
//
//	logger, levelVar, err := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	// Raise verbosity after a config reload
//	_ = logging.SetLevel(levelVar, "debug")
//
//	// Attach request fields
//	ctx = logging.WithRequestID(ctx, "req-123")
//	logging.FromContext(ctx, logger).Info("request blocked")
package logging
