package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mercator-hq/ratelimiter/pkg/cli"
	"mercator-hq/ratelimiter/pkg/config"
	"mercator-hq/ratelimiter/pkg/limits"
	"mercator-hq/ratelimiter/pkg/limits/storage"
	"mercator-hq/ratelimiter/pkg/security/auth"
	"mercator-hq/ratelimiter/pkg/telemetry/logging"
)

// app holds the components shared by the commands that admit requests.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	levelVar *slog.LevelVar
	registry *prometheus.Registry
	journal  storage.Backend
	guard    *limits.Guard
	keys     *auth.KeyValidator
}

// loadConfig initializes the global configuration from --config, or from
// the defaults when no file is given.
func loadConfig() (*config.Config, error) {
	if err := config.Initialize(cfgFile); err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) && len(verr.Errors) > 0 {
			return nil, cli.NewConfigError(verr.Errors[0].Field, err.Error())
		}
		return nil, cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	return config.GetConfig(), nil
}

// newLogger builds the process logger and installs it as the slog default.
// --verbose forces debug level.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, *slog.LevelVar, error) {
	logger, levelVar, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging, w))
	if err != nil {
		return nil, nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	if verbose {
		levelVar.Set(slog.LevelDebug)
	}
	slog.SetDefault(logger)
	return logger, levelVar, nil
}

// newApp opens the journal and builds the guard described by cfg.
func newApp(cfg *config.Config, logger *slog.Logger, levelVar *slog.LevelVar) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		levelVar: levelVar,
		keys:     auth.NewKeyValidator(adminKeys(cfg.Server.AdminKeys)),
	}

	var metrics *limits.Metrics
	if cfg.Telemetry.Metrics.IsEnabled() {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = limits.NewMetrics(a.registry, cfg.Telemetry.Metrics.Namespace)
	}

	journal, err := limits.NewJournalFromConfig(cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("failed to open decision journal: %w", err)
	}
	a.journal = journal

	guard, err := limits.NewGuardFromConfig(cfg.Limiter, limits.GuardConfig{
		Journal: journal,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		if journal != nil {
			journal.Close()
		}
		return nil, cli.NewConfigError("limiter", err.Error())
	}
	a.guard = guard

	logger.Debug("limiter ready",
		"limiter", guard.Name(),
		"mode", cfg.Limiter.Mode,
		"windows", len(cfg.Limiter.Windows),
		"journal", cfg.Journal.Backend,
	)

	return a, nil
}

// adminKeys converts configured admin keys for the validator.
func adminKeys(keys []config.AdminKeyConfig) []*auth.KeyInfo {
	infos := make([]*auth.KeyInfo, 0, len(keys))
	for _, k := range keys {
		infos = append(infos, &auth.KeyInfo{Name: k.Name, Key: k.Key, Enabled: !k.Disabled})
	}
	return infos
}

// Close closes the journal.
func (a *app) Close() error {
	return a.guard.Close()
}
