package limits

import (
	"fmt"

	"github.com/jonboulle/clockwork"

	"mercator-hq/ratelimiter/pkg/config"
	"mercator-hq/ratelimiter/pkg/limits/ratelimit"
	"mercator-hq/ratelimiter/pkg/limits/storage"
)

// NewAdmitterFromConfig builds the limiter described by cfg.
//
// Mode "multi_window" builds one Limiter that checks windows in the
// configured order. Mode "composite" builds one Limiter per window and
// chains them broadest window first.
func NewAdmitterFromConfig(cfg config.LimiterConfig, clock clockwork.Clock) (ratelimit.Admitter, error) {
	windows, err := cfg.ToWindows()
	if err != nil {
		return nil, err
	}

	opts := []ratelimit.Option{ratelimit.WithName(cfg.Name)}
	if clock != nil {
		opts = append(opts, ratelimit.WithClock(clock))
	}

	switch cfg.Mode {
	case config.ModeMultiWindow, "":
		return ratelimit.NewLimiter(windows, opts...)
	case config.ModeComposite:
		return ratelimit.NewCompositeFromWindows(windows, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
	}
}

// NewGuardFromConfig builds the limiter described by cfg and wraps it in a
// Guard. gc supplies the journal, metrics, logger and clock; its Name
// defaults to cfg.Name.
func NewGuardFromConfig(cfg config.LimiterConfig, gc GuardConfig) (*Guard, error) {
	admitter, err := NewAdmitterFromConfig(cfg, gc.Clock)
	if err != nil {
		return nil, fmt.Errorf("failed to build limiter %q: %w", cfg.Name, err)
	}
	if gc.Name == "" {
		gc.Name = cfg.Name
	}
	return NewGuard(admitter, gc)
}

// NewJournalFromConfig opens the configured journal backend. It returns nil
// without error for backend "none".
func NewJournalFromConfig(cfg config.JournalConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case config.BackendNone:
		return nil, nil
	case config.BackendMemory, "":
		return storage.NewMemoryBackendWithConfig(storage.MemoryBackendConfig{
			MaxEntries: cfg.Memory.MaxEntries,
		}), nil
	case config.BackendSQLite:
		backend, err := storage.NewSQLiteBackendWithConfig(storage.SQLiteBackendConfig{
			DBPath:             cfg.SQLite.Path,
			Driver:             cfg.SQLite.Driver,
			BusyTimeout:        cfg.SQLite.BusyTimeout,
			CheckpointInterval: cfg.SQLite.CheckpointInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite journal: %w", err)
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
