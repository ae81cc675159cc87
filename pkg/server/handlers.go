package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"mercator-hq/ratelimiter/pkg/limits"
	"mercator-hq/ratelimiter/pkg/limits/ratelimit"
	"mercator-hq/ratelimiter/pkg/limits/storage"
	"mercator-hq/ratelimiter/pkg/security/auth"
	"mercator-hq/ratelimiter/pkg/telemetry/logging"
)

// MaxDecisionsLimit caps the limit query parameter of /v1/decisions.
const MaxDecisionsLimit = 1000

type attemptResponse struct {
	Allowed    bool   `json:"allowed"`
	DecisionID string `json:"decision_id"`
	Limiter    string `json:"limiter"`
	Window     string `json:"window"`
	Remaining  int64  `json:"remaining"`
}

type windowResponse struct {
	Window    string     `json:"window"`
	Duration  string     `json:"duration"`
	Capacity  int        `json:"capacity"`
	Used      int        `json:"used"`
	Remaining int        `json:"remaining"`
	Reset     *time.Time `json:"reset,omitempty"`
}

type statusResponse struct {
	Limiter string           `json:"limiter"`
	Windows []windowResponse `json:"windows"`
}

type decisionsResponse struct {
	Decisions []*storage.DecisionRecord `json:"decisions"`
	Count     int                       `json:"count"`
}

// attemptHandler reports the admission made by Middleware.
func attemptHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decision, ok := DecisionFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusInternalServerError, "no admission decision for request", "server_error")
			return
		}

		writeJSON(w, http.StatusOK, attemptResponse{
			Allowed:    decision.Allowed,
			DecisionID: decision.ID,
			Limiter:    decision.Limiter,
			Window:     decision.Window.String(),
			Remaining:  decision.Remaining,
		})
	}
}

func statusHandler(guard *limits.Guard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statusResponse{
			Limiter: guard.Name(),
			Windows: windowsResponse(guard.Status(r.Context())),
		})
	}
}

func windowsResponse(statuses []ratelimit.WindowStatus) []windowResponse {
	out := make([]windowResponse, 0, len(statuses))
	for _, s := range statuses {
		wr := windowResponse{
			Window:    s.Window.String(),
			Duration:  s.Window.Duration.String(),
			Capacity:  s.Window.Capacity,
			Used:      s.Used,
			Remaining: s.Remaining,
		}
		if !s.Reset.IsZero() {
			reset := s.Reset
			wr.Reset = &reset
		}
		out = append(out, wr)
	}
	return out
}

func decisionsHandler(guard *limits.Guard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "invalid_request")
			return
		}

		records, err := guard.Decisions(r.Context(), filter)
		if errors.Is(err, limits.ErrNoJournal) {
			writeError(w, http.StatusNotFound, err.Error(), "not_found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to query decisions", "server_error")
			return
		}

		writeJSON(w, http.StatusOK, decisionsResponse{Decisions: records, Count: len(records)})
	}
}

func resetHandler(guard *limits.Guard, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guard.Reset()

		attrs := []any{"limiter", guard.Name()}
		if info, ok := auth.KeyInfoFromContext(r.Context()); ok {
			attrs = append(attrs, "key_name", info.Name)
		}
		logging.FromContext(r.Context(), logger).Info("limiter reset", attrs...)

		w.WriteHeader(http.StatusNoContent)
	}
}

// parseFilter reads a journal filter from the query string:
// limiter, allowed (true|false), since and until (RFC 3339) and limit.
func parseFilter(r *http.Request) (storage.Filter, error) {
	q := r.URL.Query()
	filter := storage.Filter{Limiter: q.Get("limiter")}

	if v := q.Get("allowed"); v != "" {
		allowed, err := strconv.ParseBool(v)
		if err != nil {
			return filter, fmt.Errorf("invalid allowed %q: must be true or false", v)
		}
		filter.Allowed = &allowed
	}

	for _, p := range []struct {
		name string
		dst  *time.Time
	}{
		{"since", &filter.Since},
		{"until", &filter.Until},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("invalid %s %q: must be RFC 3339", p.name, v)
		}
		*p.dst = t
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > MaxDecisionsLimit {
			return filter, fmt.Errorf("invalid limit %q: must be between 1 and %d", v, MaxDecisionsLimit)
		}
		filter.Limit = limit
	}

	return filter, nil
}
