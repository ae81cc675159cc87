/*
Package cli provides command-line interface utilities for the ratelimiter
command.

Output Formatting:

Command results can be rendered as text, JSON or CSV. Values implementing
Table are rendered as aligned columns in text mode and as rows in CSV mode:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, decisions); err != nil {
		return err
	}

Progress Reporting:

For bursts of requests, use the progress reporter:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(int64(total))
	for i := 0; i < total; i++ {
		// Do work
		progress.Increment()
	}
	progress.Finish()

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

Exit Codes:

ExitCode maps errors returned by commands to process exit codes: 0 for
success, 2 for configuration errors and 1 for everything else.
*/
package cli
