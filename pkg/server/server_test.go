package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/ratelimiter/pkg/config"
	"mercator-hq/ratelimiter/pkg/limits"
	"mercator-hq/ratelimiter/pkg/limits/ratelimit"
	"mercator-hq/ratelimiter/pkg/limits/storage"
	"mercator-hq/ratelimiter/pkg/security/auth"
	"mercator-hq/ratelimiter/pkg/telemetry/logging"
)

var epoch = time.Date(2025, 11, 19, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGuard(t *testing.T, clock clockwork.Clock, journal storage.Backend, metrics *limits.Metrics, windows ...ratelimit.Window) *limits.Guard {
	t.Helper()

	limiter, err := ratelimit.NewLimiter(windows)
	if err != nil {
		t.Fatalf("NewLimiter() error = %v", err)
	}
	guard, err := limits.NewGuard(limiter, limits.GuardConfig{
		Name:    "http",
		Journal: journal,
		Metrics: metrics,
		Logger:  quietLogger(),
		Clock:   clock,
	})
	if err != nil {
		t.Fatalf("NewGuard() error = %v", err)
	}
	return guard
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

// ============================================================================
// Attempt
// ============================================================================

func TestAttempt_AllowsThenBlocks(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	guard := newTestGuard(t, clock, nil, nil, ratelimit.Window{Duration: time.Minute, Capacity: 2})
	h := NewServer(config.ServerConfig{}, guard, WithLogger(quietLogger())).Handler()

	for i := 0; i < 2; i++ {
		rec := do(t, h, http.MethodPost, "/v1/attempt")
		if rec.Code != http.StatusOK {
			t.Fatalf("Attempt %d: expected 200, got %d", i, rec.Code)
		}

		var body attemptResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("Failed to decode body: %v", err)
		}
		if !body.Allowed || body.Limiter != "http" || body.DecisionID == "" {
			t.Errorf("Unexpected body %+v", body)
		}
		if body.Remaining != int64(1-i) {
			t.Errorf("Expected remaining %d, got %d", 1-i, body.Remaining)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "2" {
			t.Errorf("Expected X-RateLimit-Limit 2, got %q", got)
		}
	}

	clock.Advance(20 * time.Second)

	rec := do(t, h, http.MethodPost, "/v1/attempt")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "40" {
		t.Errorf("Expected Retry-After 40, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("Expected X-RateLimit-Remaining 0, got %q", got)
	}
	wantReset := fmt.Sprintf("%d", epoch.Add(time.Minute).Unix())
	if got := rec.Header().Get("X-RateLimit-Reset"); got != wantReset {
		t.Errorf("Expected X-RateLimit-Reset %s, got %q", wantReset, got)
	}

	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	if body.Error.Type != "rate_limit_exceeded" {
		t.Errorf("Expected rate_limit_exceeded, got %q", body.Error.Type)
	}
	if !strings.Contains(body.Error.Message, "2 requests per 1m0s") {
		t.Errorf("Unexpected message %q", body.Error.Message)
	}
}

func TestAttempt_RetryAfterRoundsUp(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	guard := newTestGuard(t, clock, nil, nil, ratelimit.Window{Duration: time.Minute, Capacity: 1})
	h := NewServer(config.ServerConfig{}, guard, WithLogger(quietLogger())).Handler()

	do(t, h, http.MethodPost, "/v1/attempt")
	clock.Advance(59*time.Second + 500*time.Millisecond)

	rec := do(t, h, http.MethodPost, "/v1/attempt")
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Expected Retry-After 1, got %q", got)
	}
}

func TestAttempt_MethodNotAllowed(t *testing.T) {
	guard := newTestGuard(t, clockwork.NewFakeClockAt(epoch), nil, nil, ratelimit.Window{Duration: time.Minute, Capacity: 1})
	h := NewServer(config.ServerConfig{}, guard, WithLogger(quietLogger())).Handler()

	rec := do(t, h, http.MethodGet, "/v1/attempt")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}

	// A refused method does not consume a slot.
	if rec := do(t, h, http.MethodPost, "/v1/attempt"); rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

// ============================================================================
// Middleware
// ============================================================================

func TestMiddleware_BlockedRequestsDoNotReachHandler(t *testing.T) {
	guard := newTestGuard(t, clockwork.NewFakeClockAt(epoch), nil, nil, ratelimit.Window{Duration: time.Hour, Capacity: 1})

	calls := 0
	h := Middleware(guard)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if _, ok := DecisionFromContext(r.Context()); !ok {
			t.Error("Expected decision in context")
		}
	}))

	do(t, h, http.MethodGet, "/upload")
	do(t, h, http.MethodGet, "/upload")

	if calls != 1 {
		t.Errorf("Expected handler to be called once, got %d", calls)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "client-id")
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "client-id" {
		t.Errorf("Expected client request id to be echoed, got %q", got)
	}
	if seen != "client-id" {
		t.Errorf("Expected request id in context, got %q", seen)
	}

	rec = do(t, h, http.MethodGet, "/")
	if got := rec.Header().Get(RequestIDHeader); len(got) != 36 {
		t.Errorf("Expected generated UUID, got %q", got)
	}
}

func TestAttempt_JournalCarriesRequestID(t *testing.T) {
	journal := storage.NewMemoryBackend()
	defer journal.Close()

	guard := newTestGuard(t, clockwork.NewFakeClockAt(epoch), journal, nil, ratelimit.Window{Duration: time.Minute, Capacity: 1})
	h := NewServer(config.ServerConfig{}, guard, WithLogger(quietLogger())).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/attempt", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	h.ServeHTTP(httptest.NewRecorder(), req)

	records, err := journal.Query(context.Background(), storage.Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(records) != 1 || records[0].RequestID != "req-42" {
		t.Errorf("Expected journaled request id req-42, got %+v", records)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := do(t, h, http.MethodGet, "/")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Error("Expected panic value to be hidden from clients")
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := RequestIDMiddleware(LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})))

	req := httptest.NewRequest(http.MethodPost, "/v1/attempt", nil)
	req.Header.Set(RequestIDHeader, "req-7")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to decode log entry: %v", err)
	}
	if entry["level"] != "WARN" {
		t.Errorf("Expected WARN, got %v", entry["level"])
	}
	if entry["status"] != float64(http.StatusTooManyRequests) {
		t.Errorf("Expected status 429, got %v", entry["status"])
	}
	if entry["request_id"] != "req-7" {
		t.Errorf("Expected request_id req-7, got %v", entry["request_id"])
	}
}

// ============================================================================
// Status, decisions and reset
// ============================================================================

func TestStatus(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	guard := newTestGuard(t, clock, nil, nil,
		ratelimit.Window{Duration: time.Minute, Capacity: 3},
		ratelimit.Window{Duration: time.Hour, Capacity: 5},
	)
	h := NewServer(config.ServerConfig{}, guard, WithLogger(quietLogger())).Handler()

	do(t, h, http.MethodPost, "/v1/attempt")

	rec := do(t, h, http.MethodGet, "/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if len(body.Windows) != 2 {
		t.Fatalf("Expected 2 windows, got %d", len(body.Windows))
	}
	if body.Windows[0].Window != "3 per 1m0s" || body.Windows[0].Used != 1 || body.Windows[0].Remaining != 2 {
		t.Errorf("Unexpected minute window %+v", body.Windows[0])
	}
	if body.Windows[1].Remaining != 4 {
		t.Errorf("Expected 4 remaining in hour window, got %d", body.Windows[1].Remaining)
	}
}

func TestDecisions(t *testing.T) {
	journal := storage.NewMemoryBackend()
	defer journal.Close()

	guard := newTestGuard(t, clockwork.NewFakeClockAt(epoch), journal, nil, ratelimit.Window{Duration: time.Minute, Capacity: 1})
	h := NewServer(config.ServerConfig{}, guard, WithLogger(quietLogger())).Handler()

	for i := 0; i < 3; i++ {
		do(t, h, http.MethodPost, "/v1/attempt")
	}

	tests := []struct {
		name      string
		target    string
		wantCode  int
		wantCount int
	}{
		{name: "all", target: "/v1/decisions", wantCode: http.StatusOK, wantCount: 3},
		{name: "rejections", target: "/v1/decisions?allowed=false", wantCode: http.StatusOK, wantCount: 2},
		{name: "limit", target: "/v1/decisions?limit=1", wantCode: http.StatusOK, wantCount: 1},
		{name: "other limiter", target: "/v1/decisions?limiter=console", wantCode: http.StatusOK, wantCount: 0},
		{name: "since", target: "/v1/decisions?since=2025-11-19T12:00:01Z", wantCode: http.StatusOK, wantCount: 0},
		{name: "bad allowed", target: "/v1/decisions?allowed=maybe", wantCode: http.StatusBadRequest},
		{name: "bad since", target: "/v1/decisions?since=yesterday", wantCode: http.StatusBadRequest},
		{name: "bad limit", target: "/v1/decisions?limit=0", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.target)
			if rec.Code != tt.wantCode {
				t.Fatalf("Expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}

			var body decisionsResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("Failed to decode body: %v", err)
			}
			if body.Count != tt.wantCount {
				t.Errorf("Expected %d decisions, got %d", tt.wantCount, body.Count)
			}
		})
	}
}

func TestDecisions_NoJournal(t *testing.T) {
	guard := newTestGuard(t, clockwork.NewFakeClockAt(epoch), nil, nil, ratelimit.Window{Duration: time.Minute, Capacity: 1})
	h := NewServer(config.ServerConfig{}, guard, WithLogger(quietLogger())).Handler()

	if rec := do(t, h, http.MethodGet, "/v1/decisions"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestReset(t *testing.T) {
	guard := newTestGuard(t, clockwork.NewFakeClockAt(epoch), nil, nil, ratelimit.Window{Duration: time.Hour, Capacity: 1})
	h := NewServer(config.ServerConfig{}, guard, WithLogger(quietLogger())).Handler()

	do(t, h, http.MethodPost, "/v1/attempt")
	if rec := do(t, h, http.MethodPost, "/v1/attempt"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429 before reset, got %d", rec.Code)
	}

	if rec := do(t, h, http.MethodPost, "/v1/reset"); rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}

	if rec := do(t, h, http.MethodPost, "/v1/attempt"); rec.Code != http.StatusOK {
		t.Errorf("Expected 200 after reset, got %d", rec.Code)
	}
}

func TestAdminKeys(t *testing.T) {
	journal := storage.NewMemoryBackend()
	defer journal.Close()
	guard := newTestGuard(t, clockwork.NewFakeClockAt(epoch), journal, nil, ratelimit.Window{Duration: time.Hour, Capacity: 1})

	keys := auth.NewKeyValidator([]*auth.KeyInfo{{Name: "ops", Key: "rl-ops", Enabled: true}})
	h := NewServer(config.ServerConfig{}, guard, WithLogger(quietLogger()), WithAdminKeys(keys)).Handler()

	if rec := do(t, h, http.MethodPost, "/v1/reset"); rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without key, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/v1/decisions"); rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without key, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/v1/attempt"); rec.Code != http.StatusOK {
		t.Errorf("Expected attempt to stay open, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/v1/status"); rec.Code != http.StatusOK {
		t.Errorf("Expected status to stay open, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/reset", nil)
	req.Header.Set("Authorization", "Bearer rl-ops")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 with key, got %d", rec.Code)
	}

	// An emptied key set reopens the routes.
	keys.Replace(nil)
	if rec := do(t, h, http.MethodGet, "/v1/decisions"); rec.Code != http.StatusOK {
		t.Errorf("Expected 200 once keys are cleared, got %d", rec.Code)
	}
}

// ============================================================================
// Health and metrics
// ============================================================================

func TestHealthEndpoints(t *testing.T) {
	journal := storage.NewMemoryBackend()
	guard := newTestGuard(t, clockwork.NewFakeClockAt(epoch), journal, nil, ratelimit.Window{Duration: time.Minute, Capacity: 1})
	h := NewServer(config.ServerConfig{}, guard, WithLogger(quietLogger()), WithVersion("1.2.3", "abc", "now")).Handler()

	if rec := do(t, h, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("Expected healthz 200, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("Expected readyz 200, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/version"); !strings.Contains(rec.Body.String(), `"version":"1.2.3"`) {
		t.Errorf("Unexpected version body %s", rec.Body.String())
	}

	journal.Close()
	if rec := do(t, h, http.MethodGet, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected readyz 503 with closed journal, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := limits.NewMetrics(registry, "")
	guard := newTestGuard(t, clockwork.NewFakeClockAt(epoch), nil, metrics, ratelimit.Window{Duration: time.Minute, Capacity: 1})
	h := NewServer(config.ServerConfig{}, guard,
		WithLogger(quietLogger()),
		WithMetrics(registry, "/metrics"),
	).Handler()

	do(t, h, http.MethodPost, "/v1/attempt")
	do(t, h, http.MethodPost, "/v1/attempt")

	rec := do(t, h, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`ratelimiter_checks_total{limiter="http",result="allowed"} 1`,
		`ratelimiter_checks_total{limiter="http",result="blocked"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected metrics to contain %q", want)
		}
	}
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	guard := newTestGuard(t, clockwork.NewFakeClockAt(epoch), nil, nil, ratelimit.Window{Duration: time.Minute, Capacity: 1})
	h := NewServer(config.ServerConfig{}, guard, WithLogger(quietLogger())).Handler()

	if rec := do(t, h, http.MethodGet, "/metrics"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestServer_StartAndShutdown(t *testing.T) {
	guard := newTestGuard(t, clockwork.NewRealClock(), nil, nil, ratelimit.Window{Duration: time.Minute, Capacity: 5})
	srv := NewServer(config.ServerConfig{
		ListenAddress:   "127.0.0.1:0",
		ShutdownTimeout: time.Second,
	}, guard, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("Server did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if !srv.IsRunning() {
		t.Error("Expected server to be running")
	}

	resp, err := http.Post("http://"+srv.Addr().String()+"/v1/attempt", "application/json", nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Server did not shut down")
	}

	if srv.IsRunning() {
		t.Error("Expected server to be stopped")
	}
}

func TestServer_StartInvalidAddress(t *testing.T) {
	guard := newTestGuard(t, clockwork.NewRealClock(), nil, nil, ratelimit.Window{Duration: time.Minute, Capacity: 1})
	srv := NewServer(config.ServerConfig{ListenAddress: "256.0.0.1:99999"}, guard, WithLogger(quietLogger()))

	if err := srv.Start(context.Background()); err == nil {
		t.Error("Expected error for invalid listen address")
	}
	if srv.IsRunning() {
		t.Error("Expected server not to be running")
	}
}
