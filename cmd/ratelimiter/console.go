package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/ratelimiter/pkg/cli"
	"mercator-hq/ratelimiter/pkg/console"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Make requests interactively",
	Long: `Make requests interactively through the configured limiter.

Press Enter to make a request and Q to quit. Each request prints whether it
was allowed, or how many seconds remain until it would be.

Examples:
  # Interactive session with the default 3/minute, 5/hour, 9/day limits
  ratelimiter console

  # Scripted session
  printf '\n\n\n\nq\n' | ratelimiter console`,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, levelVar, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	// Decision logs would interleave with the prompts.
	if !verbose {
		levelVar.Set(slog.LevelWarn)
	}

	a, err := newApp(cfg, logger, levelVar)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	stats, err := console.New(a.guard, cmd.InOrStdin(), cmd.OutOrStdout()).Run(ctx)
	logger.Debug("console session ended", "allowed", stats.Allowed, "blocked", stats.Blocked)
	if err != nil && !errors.Is(err, context.Canceled) {
		return cli.NewCommandError("console", err)
	}
	return nil
}
