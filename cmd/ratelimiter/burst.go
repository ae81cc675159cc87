package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mercator-hq/ratelimiter/pkg/cli"
)

var burstFlags struct {
	requests    int
	concurrency int
	interval    time.Duration
	target      string
	format      string
	quiet       bool
}

var burstCmd = &cobra.Command{
	Use:   "burst",
	Short: "Fire a burst of requests and summarize the outcomes",
	Long: `Send a number of requests through the limiter and report how many were
allowed and blocked, the shortest advised wait and the decision latency.

Without --target the limiter from the configuration runs in-process. With
--target the requests go to a running server's POST /v1/attempt.

Examples:
  # Ten back-to-back requests against the configured limiter
  ratelimiter burst

  # Concurrent burst against a running server
  ratelimiter burst --target http://127.0.0.1:8080 --requests 50 --concurrency 8

  # One request per second, JSON summary
  ratelimiter burst --requests 5 --interval 1s --format json`,
	RunE: runBurstCmd,
}

func init() {
	rootCmd.AddCommand(burstCmd)

	burstCmd.Flags().IntVarP(&burstFlags.requests, "requests", "n", 10, "number of requests")
	burstCmd.Flags().IntVar(&burstFlags.concurrency, "concurrency", 1, "concurrent clients")
	burstCmd.Flags().DurationVar(&burstFlags.interval, "interval", 0, "delay between request starts")
	burstCmd.Flags().StringVar(&burstFlags.target, "target", "", "server URL (in-process when empty)")
	burstCmd.Flags().StringVar(&burstFlags.format, "format", "text", "output format: text, json")
	burstCmd.Flags().BoolVarP(&burstFlags.quiet, "quiet", "q", false, "do not report progress")
}

// attemptFunc makes one request and reports the admission outcome.
type attemptFunc func(ctx context.Context) (allowed bool, retryAfter time.Duration, err error)

type burstOptions struct {
	requests    int
	concurrency int
	interval    time.Duration
}

type burstResults struct {
	Requests      int           `json:"requests"`
	Allowed       int           `json:"allowed"`
	Blocked       int           `json:"blocked"`
	Failed        int           `json:"failed"`
	MinRetryAfter time.Duration `json:"min_retry_after_ns,omitempty"`
	Duration      time.Duration `json:"duration_ns"`
	LatencyP50    time.Duration `json:"latency_p50_ns"`
	LatencyP99    time.Duration `json:"latency_p99_ns"`
	LatencyMax    time.Duration `json:"latency_max_ns"`
}

func runBurstCmd(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(burstFlags.format)
	if err != nil {
		return err
	}
	if burstFlags.requests < 1 {
		return fmt.Errorf("--requests must be at least 1")
	}
	if burstFlags.concurrency < 1 {
		return fmt.Errorf("--concurrency must be at least 1")
	}

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	var attempt attemptFunc
	if burstFlags.target != "" {
		attempt = httpAttempt(&http.Client{Timeout: 10 * time.Second}, burstFlags.target)
	} else {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, levelVar, err := newLogger(cfg, os.Stderr)
		if err != nil {
			return err
		}
		a, err := newApp(cfg, logger, levelVar)
		if err != nil {
			return err
		}
		defer a.Close()

		attempt = func(ctx context.Context) (bool, time.Duration, error) {
			d := a.guard.Check(ctx)
			return d.Allowed, d.RetryAfter, nil
		}
	}

	var progress cli.ProgressReporter
	if !burstFlags.quiet {
		progress = cli.NewProgressReporter(cmd.ErrOrStderr())
	}

	results, err := runBurst(ctx, attempt, burstOptions{
		requests:    burstFlags.requests,
		concurrency: burstFlags.concurrency,
		interval:    burstFlags.interval,
	}, progress)
	if err != nil {
		return cli.NewCommandError("burst", err)
	}

	return writeBurstResults(cmd.OutOrStdout(), format, results)
}

// runBurst starts opts.requests attempts, at most opts.concurrency at a
// time and at least opts.interval apart.
func runBurst(ctx context.Context, attempt attemptFunc, opts burstOptions, progress cli.ProgressReporter) (*burstResults, error) {
	results := &burstResults{Requests: opts.requests}
	latencies := make([]time.Duration, 0, opts.requests)

	var mu sync.Mutex
	record := func(allowed bool, retryAfter, latency time.Duration, err error) {
		mu.Lock()
		defer mu.Unlock()

		latencies = append(latencies, latency)
		switch {
		case err != nil:
			results.Failed++
		case allowed:
			results.Allowed++
		default:
			results.Blocked++
			if results.MinRetryAfter == 0 || retryAfter < results.MinRetryAfter {
				results.MinRetryAfter = retryAfter
			}
		}
	}

	if progress != nil {
		progress.Start(int64(opts.requests))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency)

	start := time.Now()
	for i := 0; i < opts.requests; i++ {
		if i > 0 && opts.interval > 0 {
			select {
			case <-gctx.Done():
			case <-time.After(opts.interval):
			}
		}
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			reqStart := time.Now()
			allowed, retryAfter, err := attempt(gctx)
			record(allowed, retryAfter, time.Since(reqStart), err)
			if progress != nil {
				progress.Increment()
			}
			return nil
		})
	}
	_ = g.Wait()
	results.Duration = time.Since(start)

	if progress != nil {
		progress.Finish()
	}

	if err := ctx.Err(); err != nil {
		return results, err
	}

	if len(latencies) > 0 {
		slices.Sort(latencies)
		results.LatencyP50 = latencies[len(latencies)/2]
		results.LatencyP99 = latencies[int(float64(len(latencies)-1)*0.99)]
		results.LatencyMax = latencies[len(latencies)-1]
	}

	return results, nil
}

// httpAttempt posts to target's /v1/attempt. 200 is an admission and 429 a
// rejection; anything else is a failure.
func httpAttempt(client *http.Client, target string) attemptFunc {
	url := strings.TrimRight(target, "/") + "/v1/attempt"

	return func(ctx context.Context) (bool, time.Duration, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
		if err != nil {
			return false, 0, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return false, 0, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		switch resp.StatusCode {
		case http.StatusOK:
			return true, 0, nil
		case http.StatusTooManyRequests:
			var seconds int
			fmt.Sscanf(resp.Header.Get("Retry-After"), "%d", &seconds)
			return false, time.Duration(seconds) * time.Second, nil
		default:
			return false, 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
	}
}

func writeBurstResults(w io.Writer, format cli.OutputFormat, r *burstResults) error {
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(w, r)
	}

	fmt.Fprintln(w, "Results:")
	fmt.Fprintln(w, "--------")
	fmt.Fprintf(w, "Requests:        %d total, %d allowed, %d blocked, %d failed\n",
		r.Requests, r.Allowed, r.Blocked, r.Failed)
	fmt.Fprintf(w, "Duration:        %.2fs\n", r.Duration.Seconds())
	if r.Blocked > 0 {
		fmt.Fprintf(w, "Next slot in:    %s\n", r.MinRetryAfter.Round(time.Millisecond))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Latency:")
	fmt.Fprintf(w, "  p50:     %s\n", r.LatencyP50)
	fmt.Fprintf(w, "  p99:     %s\n", r.LatencyP99)
	fmt.Fprintf(w, "  Max:     %s\n", r.LatencyMax)
	return nil
}
