// Package config provides configuration management for the rate limiter.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention RATELIMITER_SECTION_FIELD.
// For example:
//
//   - RATELIMITER_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - RATELIMITER_JOURNAL_BACKEND overrides journal.backend
//   - RATELIMITER_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//   - RATELIMITER_SERVER_ADMIN_KEY appends an entry to server.admin_keys
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Limiter Windows
//
// Windows are listed in registration order. Each window names either a
// duration or a unit (second, minute, hour, day) and a capacity:
//
//	limiter:
//	  name: console
//	  mode: multi_window
//	  windows:
//	    - unit: minute
//	      capacity: 3
//	    - duration: 1h
//	      capacity: 5
//
// With mode "composite" every window becomes its own limiter and the chain
// is evaluated broadest window first.
//
// # Singleton Pattern
//
// For application-wide configuration access:
//
//	if err := config.Initialize("config.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//	cfg := config.GetConfig()
//
// The singleton holds configuration only. Limiters are built from it and
// owned by their host.
//
// # Hot Reload
//
// Watcher reloads the file when it changes and hands the new configuration
// to a callback. Hosts apply what can change at runtime (the log level and
// admin keys); window definitions take effect on restart.
package config
