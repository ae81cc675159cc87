package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mercator-hq/ratelimiter/pkg/config"
	"mercator-hq/ratelimiter/pkg/limits"
	"mercator-hq/ratelimiter/pkg/limits/storage"
	"mercator-hq/ratelimiter/pkg/security/auth"
	"mercator-hq/ratelimiter/pkg/telemetry/health"
)

// Server is the HTTP host of a Guard.
type Server struct {
	config      config.ServerConfig
	guard       *limits.Guard
	logger      *slog.Logger
	health      *health.Checker
	gatherer    prometheus.Gatherer
	metricsPath string
	version     health.VersionInfo
	adminKeys   *auth.KeyValidator

	httpServer   *http.Server
	addr         net.Addr
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for request logs and lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics serves gatherer at path in the Prometheus text format.
func WithMetrics(gatherer prometheus.Gatherer, path string) Option {
	return func(s *Server) {
		s.gatherer = gatherer
		s.metricsPath = path
	}
}

// WithHealthChecker replaces the default health checker.
func WithHealthChecker(checker *health.Checker) Option {
	return func(s *Server) {
		if checker != nil {
			s.health = checker
		}
	}
}

// WithVersion sets the build information served at /version.
func WithVersion(version, commit, buildTime string) Option {
	return func(s *Server) {
		s.version = health.VersionInfo{Version: version, Commit: commit, BuildTime: buildTime}
	}
}

// WithAdminKeys requires one of validator's keys on /v1/decisions and
// /v1/reset. While the validator holds no keys those routes stay open.
func WithAdminKeys(validator *auth.KeyValidator) Option {
	return func(s *Server) {
		s.adminKeys = validator
	}
}

// NewServer creates a server for guard. When the guard has a journal, a
// "journal" readiness check is registered.
func NewServer(cfg config.ServerConfig, guard *limits.Guard, opts ...Option) *Server {
	s := &Server{
		config:  cfg,
		guard:   guard,
		logger:  slog.Default(),
		health:  health.New(0),
		version: health.VersionInfo{Version: "dev"},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.With("component", "server")

	if journal := guard.Journal(); journal != nil {
		s.health.RegisterCheck("journal", func(ctx context.Context) error {
			_, err := journal.Count(ctx, storage.Filter{Limit: 1})
			return err
		})
	}

	return s
}

// Start listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}

	listener, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}

	s.httpServer = &http.Server{
		Handler:        s.setupRoutes(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}
	s.addr = listener.Addr()
	s.isRunning = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"address", listener.Addr().String(),
			"limiter", s.guard.Name(),
		)

		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	}
}

// Shutdown gracefully shuts down the server, waiting at most
// ShutdownTimeout for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		running := s.isRunning
		s.mu.RUnlock()
		if !running {
			return
		}

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx := ctx
		if s.config.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			shutdownCtx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
			defer cancel()
		}

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("server stopped")
	})

	return shutdownErr
}

// setupRoutes configures HTTP routes and middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /v1/attempt", Middleware(s.guard)(attemptHandler()))
	mux.Handle("GET /v1/status", statusHandler(s.guard))
	mux.Handle("GET /v1/decisions", s.adminOnly(decisionsHandler(s.guard)))
	mux.Handle("POST /v1/reset", s.adminOnly(resetHandler(s.guard, s.logger)))

	mux.Handle("GET /healthz", s.health.LivenessHandler())
	mux.Handle("GET /readyz", s.health.ReadinessHandler())
	mux.Handle("GET /version", health.VersionHandler(s.version.Version, s.version.Commit, s.version.BuildTime))

	if s.gatherer != nil && s.metricsPath != "" {
		mux.Handle("GET "+s.metricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	var handler http.Handler = mux
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RequestIDMiddleware(handler)
	handler = RecoveryMiddleware(s.logger)(handler)

	return handler
}

// adminOnly guards next with the admin keys, if any are configured.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	if s.adminKeys == nil {
		return next
	}
	protected := auth.NewKeyMiddleware(s.adminKeys, nil, s.logger).Handle(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminKeys.Len() == 0 {
			next.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	})
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the address the server listens on, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}
