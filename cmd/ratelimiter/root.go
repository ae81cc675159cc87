package main

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ratelimiter",
	Short: "Multi-tier sliding-window rate limiter",
	Long: `Ratelimiter admits requests through several sliding windows at once.

A request is admitted only if every window has room for it. Rejections report
how long to wait until the oldest blocking request leaves its window.

Without --config the built-in defaults are used: 3 requests per minute,
5 per hour and 9 per day. Any setting can be overridden with RATELIMITER_*
environment variables.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults are used when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
