package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mercator-hq/ratelimiter/pkg/cli"
	"mercator-hq/ratelimiter/pkg/config"
	"mercator-hq/ratelimiter/pkg/limits"
	"mercator-hq/ratelimiter/pkg/limits/ratelimit"
)

var validateFlags struct {
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long: `Load and validate the configuration, then print the limiter it describes.

Windows are listed in the order they are checked: registration order for
mode multi_window, broadest window first for mode composite.

Examples:
  # Validate a config file
  ratelimiter validate --config config.yaml

  # Print the effective limiter as JSON
  ratelimiter validate --config config.yaml --format json`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

type windowSummary struct {
	Window   string `json:"window"`
	Duration string `json:"duration"`
	Capacity int    `json:"capacity"`
}

type validateResult struct {
	Valid   bool            `json:"valid"`
	Limiter string          `json:"limiter"`
	Mode    string          `json:"mode"`
	Windows []windowSummary `json:"windows"`
	Journal string          `json:"journal"`
	Listen  string          `json:"listen_address"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(validateFlags.format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	result, err := describeConfig(cfg)
	if err != nil {
		return err
	}

	return writeValidateResult(cmd.OutOrStdout(), format, result)
}

// describeConfig builds the limiter cfg describes and summarizes it.
func describeConfig(cfg *config.Config) (*validateResult, error) {
	admitter, err := limits.NewAdmitterFromConfig(cfg.Limiter, nil)
	if err != nil {
		return nil, cli.NewConfigError("limiter", err.Error())
	}

	var windows []ratelimit.Window
	switch a := admitter.(type) {
	case *ratelimit.Limiter:
		windows = a.Windows()
	case *ratelimit.Composite:
		windows = a.Windows()
	}

	result := &validateResult{
		Valid:   true,
		Limiter: cfg.Limiter.Name,
		Mode:    cfg.Limiter.Mode,
		Journal: cfg.Journal.Backend,
		Listen:  cfg.Server.ListenAddress,
	}
	for _, w := range windows {
		result.Windows = append(result.Windows, windowSummary{
			Window:   w.String(),
			Duration: w.Duration.String(),
			Capacity: w.Capacity,
		})
	}
	return result, nil
}

func writeValidateResult(w io.Writer, format cli.OutputFormat, result *validateResult) error {
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(w, result)
	}

	fmt.Fprintln(w, "✓ Configuration valid")
	fmt.Fprintf(w, "Limiter: %s (%s)\n", result.Limiter, result.Mode)
	for i, win := range result.Windows {
		fmt.Fprintf(w, "  %d. %s\n", i+1, win.Window)
	}
	fmt.Fprintf(w, "Journal: %s\n", result.Journal)
	fmt.Fprintf(w, "Listen:  %s\n", result.Listen)
	return nil
}
