package limits

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"mercator-hq/ratelimiter/pkg/limits/ratelimit"
	"mercator-hq/ratelimiter/pkg/limits/storage"
	"mercator-hq/ratelimiter/pkg/telemetry/logging"
)

// DefaultGuardName is used when neither the config nor the limiter names the guard.
const DefaultGuardName = "default"

// GuardConfig contains the collaborators of a Guard. Every field is optional.
type GuardConfig struct {
	// Name labels decisions, logs and metrics. Defaults to the limiter's
	// name, then DefaultGuardName.
	Name string

	// Journal receives every decision. Nil disables journaling.
	Journal storage.Backend

	// Metrics records checks and rejections. Nil disables metrics.
	Metrics *Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Clock supplies the decision instant. It is read under the limiter's
	// lock. Defaults to the real clock.
	Clock clockwork.Clock
}

// Guard admits host actions through a limiter and records each decision.
//
// # Example
//
//	guard, err := limits.NewGuard(limiter, limits.GuardConfig{Name: "api"})
//	decision := guard.Check(ctx)
//	if !decision.Allowed {
//	    // reject, retry after decision.RetryAfter
//	}
type Guard struct {
	admitter ratelimit.Admitter
	name     string
	journal  storage.Backend
	metrics  *Metrics
	logger   *slog.Logger
	clock    clockwork.Clock
}

type named interface {
	Name() string
}

// NewGuard wraps admitter. A nil admitter, including a nil *Limiter or
// *Composite, is rejected with ErrNilAdmitter.
func NewGuard(admitter ratelimit.Admitter, cfg GuardConfig) (*Guard, error) {
	if isNilAdmitter(admitter) {
		return nil, ErrNilAdmitter
	}

	name := cfg.Name
	if name == "" {
		if n, ok := admitter.(named); ok {
			name = n.Name()
		}
	}
	if name == "" {
		name = DefaultGuardName
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Guard{
		admitter: admitter,
		name:     name,
		journal:  cfg.Journal,
		metrics:  cfg.Metrics,
		logger:   logger.With("component", "limits.guard", "limiter", name),
		clock:    clock,
	}, nil
}

func isNilAdmitter(admitter ratelimit.Admitter) bool {
	switch a := admitter.(type) {
	case nil:
		return true
	case *ratelimit.Limiter:
		return a == nil
	case *ratelimit.Composite:
		return a == nil
	}
	return false
}

// Name returns the guard's name.
func (g *Guard) Name() string {
	return g.name
}

// Admitter returns the wrapped limiter.
func (g *Guard) Admitter() ratelimit.Admitter {
	return g.admitter
}

// Check decides whether one action is admitted now.
//
// The decision is final once the limiter returns: metrics, logging and the
// journal observe it but cannot change it.
func (g *Guard) Check(ctx context.Context) *Decision {
	start := time.Now()

	result := g.admitter.CheckNow(g.clock)

	decision := &Decision{
		ID:          uuid.NewString(),
		Limiter:     g.name,
		RequestID:   logging.GetRequestID(ctx),
		Timestamp:   result.At,
		CheckResult: *result,
	}

	if g.metrics != nil {
		g.metrics.RecordCheck(g.name, decision.Allowed, time.Since(start))
		if !decision.Allowed {
			g.metrics.RecordRejection(g.name, decision.Window, decision.RetryAfter)
		}
		g.metrics.UpdateWindowUsage(g.name, g.admitter.Status(result.At))
	}

	logger := logging.FromContext(ctx, g.logger)
	if decision.Allowed {
		logger.Debug("request allowed",
			"decision_id", decision.ID,
			"window", decision.Window.String(),
			"remaining", decision.Remaining,
		)
	} else {
		logger.Info("request blocked",
			"decision_id", decision.ID,
			"reason", decision.Reason,
			"retry_after_ms", decision.RetryAfter.Milliseconds(),
		)
	}

	if g.journal != nil {
		if err := g.journal.Append(ctx, decision.Record()); err != nil {
			logger.Warn("failed to journal decision",
				"decision_id", decision.ID,
				"error", err,
			)
			if g.metrics != nil {
				g.metrics.RecordJournalError(g.name)
			}
		}
	}

	return decision
}

// Status reports per-window occupancy at the current instant.
func (g *Guard) Status(ctx context.Context) []ratelimit.WindowStatus {
	statuses := g.admitter.Status(g.clock.Now())
	if g.metrics != nil {
		g.metrics.UpdateWindowUsage(g.name, statuses)
	}
	return statuses
}

// Decisions queries the journal.
func (g *Guard) Decisions(ctx context.Context, filter storage.Filter) ([]*storage.DecisionRecord, error) {
	if g.journal == nil {
		return nil, ErrNoJournal
	}
	return g.journal.Query(ctx, filter)
}

// Journal returns the decision journal, or nil.
func (g *Guard) Journal() storage.Backend {
	return g.journal
}

// Reset clears the limiter's windows. The journal is kept.
func (g *Guard) Reset() {
	g.admitter.Reset()
	g.logger.Info("limiter reset")
}

// Close closes the journal.
func (g *Guard) Close() error {
	if g.journal == nil {
		return nil
	}
	return g.journal.Close()
}
