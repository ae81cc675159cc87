package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/ratelimiter/pkg/cli"
	"mercator-hq/ratelimiter/pkg/config"
	"mercator-hq/ratelimiter/pkg/limits"
	"mercator-hq/ratelimiter/pkg/limits/storage"
)

var decisionsFlags struct {
	limiter  string
	allowed  bool
	rejected bool
	since    string
	until    string
	limit    int
	count    bool
	format   string
}

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Query the decision journal",
	Long: `Query admission decisions recorded by the sqlite journal, newest first.

--since and --until accept an RFC 3339 timestamp or a duration before now
(for example 90m or 24h).

Examples:
  # Last 100 decisions
  ratelimiter decisions --config config.yaml

  # Rejections in the last hour as JSON
  ratelimiter decisions --rejected --since 1h --format json

  # Count admissions of one limiter
  ratelimiter decisions --limiter api --allowed --count`,
	RunE: runDecisions,
}

func init() {
	rootCmd.AddCommand(decisionsCmd)

	decisionsCmd.Flags().StringVar(&decisionsFlags.limiter, "limiter", "", "only decisions of this limiter")
	decisionsCmd.Flags().BoolVar(&decisionsFlags.allowed, "allowed", false, "only admissions")
	decisionsCmd.Flags().BoolVar(&decisionsFlags.rejected, "rejected", false, "only rejections")
	decisionsCmd.Flags().StringVar(&decisionsFlags.since, "since", "", "only decisions at or after (RFC 3339 or duration ago)")
	decisionsCmd.Flags().StringVar(&decisionsFlags.until, "until", "", "only decisions at or before (RFC 3339 or duration ago)")
	decisionsCmd.Flags().IntVar(&decisionsFlags.limit, "limit", storage.DefaultQueryLimit, "maximum number of decisions")
	decisionsCmd.Flags().BoolVar(&decisionsFlags.count, "count", false, "print only the number of matching decisions")
	decisionsCmd.Flags().StringVar(&decisionsFlags.format, "format", "text", "output format: text, json, csv")
	decisionsCmd.MarkFlagsMutuallyExclusive("allowed", "rejected")
}

// decisionTable renders decision records as rows.
type decisionTable []*storage.DecisionRecord

func (t decisionTable) Headers() []string {
	return []string{"TIME", "LIMITER", "RESULT", "WINDOW", "REMAINING", "RETRY AFTER", "REQUEST ID"}
}

func (t decisionTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, r := range t {
		result := "allowed"
		retryAfter := "-"
		if !r.Allowed {
			result = "blocked"
			retryAfter = r.RetryAfter.Round(time.Millisecond).String()
		}
		requestID := r.RequestID
		if requestID == "" {
			requestID = "-"
		}
		rows = append(rows, []string{
			r.Timestamp.Format(time.RFC3339),
			r.Limiter,
			result,
			fmt.Sprintf("%d per %s", r.Capacity, r.Window),
			strconv.FormatInt(r.Remaining, 10),
			retryAfter,
			requestID,
		})
	}
	return rows
}

func runDecisions(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(decisionsFlags.format)
	if err != nil {
		return err
	}

	filter, err := decisionsFilter(time.Now())
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	journal, err := openJournal(cfg.Journal)
	if err != nil {
		return err
	}
	defer journal.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if decisionsFlags.count {
		n, err := journal.Count(ctx, filter)
		if err != nil {
			return cli.NewCommandError("decisions", err)
		}
		fmt.Fprintln(out, n)
		return nil
	}

	records, err := journal.Query(ctx, filter)
	if err != nil {
		return cli.NewCommandError("decisions", err)
	}

	if format == cli.FormatText && len(records) == 0 {
		fmt.Fprintln(out, "No decisions found")
		return nil
	}
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(out, records)
	}
	return cli.NewFormatter(format).FormatTo(out, decisionTable(records))
}

// openJournal opens the configured journal for reading. Only the sqlite
// backend outlives the process that wrote it.
func openJournal(cfg config.JournalConfig) (storage.Backend, error) {
	if cfg.Backend != config.BackendSQLite {
		return nil, cli.NewConfigError("journal.backend",
			fmt.Sprintf("backend %q is not persistent, set it to %q to query decisions", cfg.Backend, config.BackendSQLite))
	}
	journal, err := limits.NewJournalFromConfig(cfg)
	if err != nil {
		return nil, cli.NewCommandError("decisions", err)
	}
	return journal, nil
}

func decisionsFilter(now time.Time) (storage.Filter, error) {
	filter := storage.Filter{
		Limiter: decisionsFlags.limiter,
		Limit:   decisionsFlags.limit,
	}

	switch {
	case decisionsFlags.allowed:
		allowed := true
		filter.Allowed = &allowed
	case decisionsFlags.rejected:
		allowed := false
		filter.Allowed = &allowed
	}

	var err error
	if filter.Since, err = parseTimeFlag("since", decisionsFlags.since, now); err != nil {
		return filter, err
	}
	if filter.Until, err = parseTimeFlag("until", decisionsFlags.until, now); err != nil {
		return filter, err
	}
	if !filter.Since.IsZero() && !filter.Until.IsZero() && filter.Until.Before(filter.Since) {
		return filter, fmt.Errorf("--until must not be before --since")
	}

	return filter, nil
}

// parseTimeFlag accepts an RFC 3339 timestamp or a duration before now.
func parseTimeFlag(name, value string, now time.Time) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return now.Add(-d), nil
	}
	return time.Time{}, fmt.Errorf("invalid --%s %q: expected RFC 3339 timestamp or duration", name, value)
}
