package limits

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"mercator-hq/ratelimiter/pkg/config"
	"mercator-hq/ratelimiter/pkg/limits/ratelimit"
	"mercator-hq/ratelimiter/pkg/limits/storage"
)

func TestNewAdmitterFromConfig(t *testing.T) {
	windows := []config.WindowConfig{
		{Unit: "minute", Capacity: 3},
		{Unit: "day", Capacity: 9},
		{Duration: time.Hour, Capacity: 5},
	}

	t.Run("multi window keeps order", func(t *testing.T) {
		admitter, err := NewAdmitterFromConfig(config.LimiterConfig{Name: "mw", Mode: config.ModeMultiWindow, Windows: windows}, nil)
		if err != nil {
			t.Fatalf("NewAdmitterFromConfig() error = %v", err)
		}
		limiter, ok := admitter.(*ratelimit.Limiter)
		if !ok {
			t.Fatalf("Expected *ratelimit.Limiter, got %T", admitter)
		}
		got := limiter.Windows()
		if got[0].Duration != time.Minute || got[1].Duration != 24*time.Hour || got[2].Duration != time.Hour {
			t.Errorf("Expected configured order, got %v", got)
		}
		if limiter.Name() != "mw" {
			t.Errorf("Expected name mw, got %q", limiter.Name())
		}
	})

	t.Run("composite sorts broadest first", func(t *testing.T) {
		admitter, err := NewAdmitterFromConfig(config.LimiterConfig{Name: "c", Mode: config.ModeComposite, Windows: windows}, nil)
		if err != nil {
			t.Fatalf("NewAdmitterFromConfig() error = %v", err)
		}
		composite, ok := admitter.(*ratelimit.Composite)
		if !ok {
			t.Fatalf("Expected *ratelimit.Composite, got %T", admitter)
		}
		got := composite.Windows()
		if got[0].Duration != 24*time.Hour || got[1].Duration != time.Hour || got[2].Duration != time.Minute {
			t.Errorf("Expected broadest first, got %v", got)
		}
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := NewAdmitterFromConfig(config.LimiterConfig{Mode: "leaky", Windows: windows}, nil)
		if !errors.Is(err, ErrUnknownMode) {
			t.Errorf("Expected ErrUnknownMode, got %v", err)
		}
	})

	t.Run("invalid window", func(t *testing.T) {
		_, err := NewAdmitterFromConfig(config.LimiterConfig{Windows: []config.WindowConfig{{Unit: "week", Capacity: 1}}}, nil)
		if !errors.Is(err, ratelimit.ErrUnknownTimeUnit) {
			t.Errorf("Expected ErrUnknownTimeUnit, got %v", err)
		}
	})
}

func TestNewGuardFromConfig_UsesClock(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	cfg := config.LimiterConfig{
		Name:    "console",
		Mode:    config.ModeMultiWindow,
		Windows: []config.WindowConfig{{Unit: "minute", Capacity: 1}},
	}

	guard, err := NewGuardFromConfig(cfg, GuardConfig{Clock: clock})
	if err != nil {
		t.Fatalf("NewGuardFromConfig() error = %v", err)
	}
	if guard.Name() != "console" {
		t.Errorf("Expected name console, got %q", guard.Name())
	}

	ctx := context.Background()
	if !guard.Check(ctx).Allowed {
		t.Fatal("Expected first check to be allowed")
	}
	if guard.Check(ctx).Allowed {
		t.Fatal("Expected second check to be blocked")
	}

	clock.Advance(time.Minute + time.Second)
	if !guard.Check(ctx).Allowed {
		t.Error("Expected admission after the fake clock advanced")
	}
}

func TestNewJournalFromConfig(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		backend, err := NewJournalFromConfig(config.JournalConfig{Backend: config.BackendNone})
		if err != nil || backend != nil {
			t.Errorf("Expected nil backend, got %v, %v", backend, err)
		}
	})

	t.Run("memory", func(t *testing.T) {
		backend, err := NewJournalFromConfig(config.JournalConfig{
			Backend: config.BackendMemory,
			Memory:  config.MemoryJournalConfig{MaxEntries: 5},
		})
		if err != nil {
			t.Fatalf("NewJournalFromConfig() error = %v", err)
		}
		defer backend.Close()
		if _, ok := backend.(*storage.MemoryBackend); !ok {
			t.Errorf("Expected *storage.MemoryBackend, got %T", backend)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		backend, err := NewJournalFromConfig(config.JournalConfig{
			Backend: config.BackendSQLite,
			SQLite: config.SQLiteJournalConfig{
				Path:   filepath.Join(t.TempDir(), "nested", "decisions.db"),
				Driver: storage.DriverPureGo,
			},
		})
		if err != nil {
			t.Fatalf("NewJournalFromConfig() error = %v", err)
		}
		defer backend.Close()
		if _, ok := backend.(*storage.SQLiteBackend); !ok {
			t.Errorf("Expected *storage.SQLiteBackend, got %T", backend)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewJournalFromConfig(config.JournalConfig{Backend: "redis"})
		if !errors.Is(err, ErrUnknownBackend) {
			t.Errorf("Expected ErrUnknownBackend, got %v", err)
		}
	})
}
