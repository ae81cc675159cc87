package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"mercator-hq/ratelimiter/pkg/limits"
)

const (
	promptUsage   = "Press Enter to make a request. Press 'Q' to quit."
	promptWaiting = "Waiting for user input..."
	promptInvalid = "Invalid input. " + promptUsage
	promptExit    = "Exiting the program..."
)

// Stats summarizes a console session.
type Stats struct {
	Allowed int
	Blocked int
}

// Console reads commands from in and writes outcomes to out.
type Console struct {
	guard *limits.Guard
	in    io.Reader
	out   io.Writer
}

// New creates a console for guard.
func New(guard *limits.Guard, in io.Reader, out io.Writer) *Console {
	return &Console{guard: guard, in: in, out: out}
}

// Run loops until the user quits, the input ends or ctx is cancelled.
// An empty line makes a request, "q" or "Q" quits and anything else
// prints usage.
func (c *Console) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	c.println(promptUsage)

	for {
		c.println(promptWaiting)

		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case line, ok = <-lines:
		}
		if !ok {
			select {
			case err := <-scanErr:
				if err != nil {
					return stats, fmt.Errorf("failed to read input: %w", err)
				}
			default:
			}
			return stats, nil
		}

		switch strings.TrimSpace(line) {
		case "":
			decision := c.guard.Check(ctx)
			if decision.Allowed {
				stats.Allowed++
				c.println("Request allowed.")
			} else {
				stats.Blocked++
				c.println(fmt.Sprintf("Request blocked. Time remaining: %s seconds.", formatSeconds(decision.RetryAfter.Seconds())))
			}
		case "q", "Q":
			c.println(promptExit)
			return stats, nil
		default:
			c.println(promptInvalid)
		}
	}
}

func (c *Console) println(s string) {
	fmt.Fprintln(c.out, s)
}

// formatSeconds prints seconds without trailing zeros: 30, 42.5, 0.001.
func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}
