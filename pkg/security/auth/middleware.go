package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// KeySource defines where to extract API keys from.
type KeySource struct {
	Type   string // header, query
	Name   string // Header name or query param
	Scheme string // "Bearer", etc. (optional)
}

// DefaultSources reads a bearer token from Authorization, then X-API-Key.
func DefaultSources() []KeySource {
	return []KeySource{
		{Type: "header", Name: "Authorization", Scheme: "Bearer"},
		{Type: "header", Name: "X-API-Key"},
	}
}

// KeyMiddleware is HTTP middleware for API key authentication.
type KeyMiddleware struct {
	validator *KeyValidator
	sources   []KeySource
	logger    *slog.Logger
}

// NewKeyMiddleware creates a new API key authentication middleware.
// A nil sources list uses DefaultSources; a nil logger uses slog.Default().
func NewKeyMiddleware(validator *KeyValidator, sources []KeySource, logger *slog.Logger) *KeyMiddleware {
	if sources == nil {
		sources = DefaultSources()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyMiddleware{
		validator: validator,
		sources:   sources,
		logger:    logger,
	}
}

// Handle wraps an HTTP handler with API key authentication. Rejected
// requests get 401 with a JSON error body.
func (m *KeyMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := m.validator.Validate(m.extractKey(r))
		if err != nil {
			m.logger.Warn("API key rejected",
				"error", err,
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			unauthorized(w, err)
			return
		}

		m.logger.Debug("API key authenticated",
			"key_name", info.Name,
			"path", r.URL.Path,
		)

		next.ServeHTTP(w, r.WithContext(WithKeyInfo(r.Context(), info)))
	})
}

// extractKey returns the first key found in the configured sources.
func (m *KeyMiddleware) extractKey(r *http.Request) string {
	for _, source := range m.sources {
		switch source.Type {
		case "header":
			value := r.Header.Get(source.Name)
			if value == "" {
				continue
			}
			if source.Scheme == "" {
				return value
			}
			if rest, ok := strings.CutPrefix(value, source.Scheme+" "); ok {
				return rest
			}

		case "query":
			if value := r.URL.Query().Get(source.Name); value != "" {
				return value
			}
		}
	}
	return ""
}

func unauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="ratelimiter"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)

	body := map[string]map[string]string{
		"error": {"message": err.Error(), "type": "authentication_error"},
	}
	_ = json.NewEncoder(w).Encode(body)
}

type contextKey string

// #nosec G101 - This is a context key constant, not a credential
const keyInfoKey contextKey = "api_key_info"

// WithKeyInfo stores info in ctx.
func WithKeyInfo(ctx context.Context, info *KeyInfo) context.Context {
	return context.WithValue(ctx, keyInfoKey, info)
}

// KeyInfoFromContext retrieves the authenticated key from ctx.
func KeyInfoFromContext(ctx context.Context) (*KeyInfo, bool) {
	info, ok := ctx.Value(keyInfoKey).(*KeyInfo)
	return info, ok
}
