package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"mercator-hq/ratelimiter/pkg/limits/storage"
)

// Config contains configuration for the journal pruner.
type Config struct {
	// MaxAge is how long decision records are kept.
	// 0 means keep records forever.
	MaxAge time.Duration

	// Schedule is a cron expression for scheduling pruning.
	// Example: "0 3 * * *" (daily at 3 AM)
	Schedule string
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxAge:   7 * 24 * time.Hour,
		Schedule: "0 3 * * *",
	}
}

// Pruner enforces the retention policy on a journal backend.
type Pruner struct {
	backend   storage.Backend
	config    *Config
	clock     clockwork.Clock
	logger    *slog.Logger
	scheduler *Scheduler
}

// Option configures a Pruner.
type Option func(*Pruner)

// WithClock sets the clock used to compute the cutoff.
func WithClock(clock clockwork.Clock) Option {
	return func(p *Pruner) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pruner) {
		if logger != nil {
			p.logger = logger.With("component", "journal.retention")
		}
	}
}

// NewPruner creates a new journal pruner.
func NewPruner(backend storage.Backend, config *Config, opts ...Option) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}

	pruner := &Pruner{
		backend: backend,
		config:  config,
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default().With("component", "journal.retention"),
	}
	for _, opt := range opts {
		opt(pruner)
	}

	pruner.scheduler = NewScheduler(pruner)

	return pruner
}

// Cutoff returns the instant before which records are pruned.
// The zero time is returned when retention is unlimited.
func (p *Pruner) Cutoff() time.Time {
	if p.config.MaxAge <= 0 {
		return time.Time{}
	}
	return p.clock.Now().Add(-p.config.MaxAge)
}

// Prune deletes records older than MaxAge and returns how many were removed.
func (p *Pruner) Prune(ctx context.Context) (int, error) {
	cutoff := p.Cutoff()
	if cutoff.IsZero() {
		p.logger.Debug("retention unlimited, nothing to prune")
		return 0, nil
	}

	deleted, err := p.backend.Cleanup(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune by age failed: %w", err)
	}

	if deleted > 0 {
		p.logger.Info("journal pruning completed",
			"deleted_count", deleted,
			"cutoff_time", cutoff,
			"max_age", p.config.MaxAge,
		)
	} else {
		p.logger.Debug("no records pruned", "cutoff_time", cutoff)
	}

	return deleted, nil
}

// Start starts the automatic pruning scheduler.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the automatic pruning scheduler.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the time of the next scheduled pruning.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
