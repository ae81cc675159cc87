package main

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mercator-hq/ratelimiter/pkg/cli"
	"mercator-hq/ratelimiter/pkg/config"
	"mercator-hq/ratelimiter/pkg/limits/retention"
	"mercator-hq/ratelimiter/pkg/server"
	"mercator-hq/ratelimiter/pkg/telemetry/logging"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	noWatch       bool
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the rate limiter HTTP server",
	Long: `Start the HTTP server with the specified configuration.

Each POST /v1/attempt is admitted or rejected by the configured limiter.
When a config file is given it is watched, and changed log levels and admin
keys are applied without a restart. Changes to the limiter windows require a restart.

Examples:
  # Start with default config
  ratelimiter run

  # Start with custom config
  ratelimiter run --config /etc/ratelimiter/config.yaml

  # Override listen address
  ratelimiter run --listen 0.0.0.0:8080

  # Validate config without starting server
  ratelimiter run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.noWatch, "no-watch", false, "do not watch the config file for changes")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	logger, levelVar, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	if runFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		return nil
	}

	a, err := newApp(cfg, logger, levelVar)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	if err := serve(ctx, a); err != nil {
		return cli.NewCommandError("run", err)
	}
	return nil
}

// serve runs the HTTP server, the journal retention scheduler and the
// config watcher until ctx is cancelled or one of them fails.
func serve(ctx context.Context, a *app) error {
	cfg := a.cfg

	opts := []server.Option{
		server.WithLogger(a.logger),
		server.WithVersion(Version, GitCommit, BuildDate),
		server.WithAdminKeys(a.keys),
	}
	if a.registry != nil {
		opts = append(opts, server.WithMetrics(a.registry, cfg.Telemetry.Metrics.Path))
	}
	srv := server.NewServer(cfg.Server, a.guard, opts...)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Start(gctx)
	})

	if a.journal != nil {
		pruner := retention.NewPruner(a.journal, &retention.Config{
			MaxAge:   cfg.Journal.Retention.MaxAge,
			Schedule: cfg.Journal.Retention.Schedule,
		}, retention.WithLogger(a.logger))
		if err := pruner.Start(gctx); err != nil {
			a.logger.Warn("failed to start retention scheduler", "error", err)
		} else {
			defer pruner.Stop()
			if next := pruner.NextPruning(); next != nil {
				a.logger.Debug("journal retention scheduler started", "next_pruning", next)
			}
		}
	}

	if cfgFile != "" && !runFlags.noWatch {
		watcher, err := config.NewWatcher(cfgFile, config.DefaultDebounceInterval, a.logger)
		if err != nil {
			a.logger.Warn("config watching disabled", "error", err)
		} else {
			g.Go(func() error {
				return watcher.Watch(gctx, func(next *config.Config) {
					applyReload(a, next)
				})
			})
		}
	}

	return g.Wait()
}

// applyReload applies the hot-reloadable parts of next: the log level and
// the admin keys.
// Limiter windows are fixed for the life of the process.
func applyReload(a *app, next *config.Config) {
	if !verbose {
		if err := logging.SetLevel(a.levelVar, next.Telemetry.Logging.Level); err != nil {
			a.logger.Warn("ignoring invalid log level", "level", next.Telemetry.Logging.Level, "error", err)
		} else {
			a.logger.Info("log level updated", "level", next.Telemetry.Logging.Level)
		}
	}

	a.keys.Replace(adminKeys(next.Server.AdminKeys))
	a.logger.Debug("admin keys updated", "count", a.keys.Len())

	if limiterChanged(a.cfg.Limiter, next.Limiter) {
		a.logger.Warn("limiter configuration changed, restart to apply",
			"limiter", next.Limiter.Name,
			"mode", next.Limiter.Mode,
		)
	}
}

func limiterChanged(old, next config.LimiterConfig) bool {
	return old.Name != next.Name ||
		old.Mode != next.Mode ||
		!slices.Equal(old.Windows, next.Windows)
}
