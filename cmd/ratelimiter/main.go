// Ratelimiter admits requests through multi-tier sliding-window rate limits.
//
// A request is admitted only if every configured window (for example 3 per
// minute, 5 per hour and 9 per day) has room for it. Rejected requests are
// told how long to wait before the oldest blocking request leaves its window.
//
// Usage:
//
//	# Start the HTTP server with default configuration
//	ratelimiter run
//
//	# Start with custom configuration file
//	ratelimiter run --config /path/to/config.yaml
//
//	# Press Enter to make requests interactively
//	ratelimiter console
//
//	# Fire a burst of requests and summarize the outcomes
//	ratelimiter burst --requests 20 --concurrency 4
//
//	# Query the decision journal
//	ratelimiter decisions --rejected --since 1h
//
//	# Validate a configuration file
//	ratelimiter validate --config config.yaml
package main

import (
	"fmt"
	"os"

	"mercator-hq/ratelimiter/pkg/cli"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}
