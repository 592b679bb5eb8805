// Package monitor exposes the renewal history over http so an uptime
// checker or the operator's dashboard can watch the daemon: current
// per-server state, recent attempts and a liveness probe.
package monitor

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/uzx-v/renewbot/lib/expiry"
	"github.com/uzx-v/renewbot/lib/renewstore"
	"github.com/uzx-v/renewbot/lib/serviceutil"
	"github.com/uzx-v/renewbot/lib/timezone"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("services/monitor")

type Options struct {
	Store renewstore.Store
	// AccessToken guards the api endpoints when set. The health probe is
	// always open.
	AccessToken string
}

type Service struct {
	opts Options
}

func NewService(opts Options) Service {
	return Service{opts: opts}
}

// Register mounts the monitor's handlers on mux.
func (s Service) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/api/status", serviceutil.VerifyAccessToken(s.opts.AccessToken, http.HandlerFunc(s.handleStatus)))
	mux.Handle("/api/history", serviceutil.VerifyAccessToken(s.opts.AccessToken, http.HandlerFunc(s.handleHistory)))
}

func writeJson(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		slog.Warn("failed to encode response", "err", err)
	}
}

func (s Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

type serverStatus struct {
	Provider   string `json:"provider"`
	Target     string `json:"target"`
	LastStatus string `json:"last_status"`
	ExpiresAt  string `json:"expires_at,omitempty"`
	Remaining  string `json:"remaining,omitempty"`
	UpdatedAt  string `json:"updated_at"`
}

func (s Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleStatus")
	defer span.End()

	states, err := s.opts.Store.ProviderStates(ctx)
	if err != nil {
		span.RecordError(err)
		writeJson(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	out := make([]serverStatus, 0, len(states))
	for _, state := range states {
		status := serverStatus{
			Provider:   state.Provider,
			Target:     state.Target,
			LastStatus: state.LastStatus,
			UpdatedAt:  state.UpdatedAt.Format(time.RFC3339),
		}
		if !state.ExpiresAt.IsZero() {
			status.ExpiresAt = state.ExpiresAt.Format(time.RFC3339)
			status.Remaining = expiry.Humanize(state.ExpiresAt.Sub(timezone.Now()))
		}
		out = append(out, status)
	}
	writeJson(w, http.StatusOK, out)
}

type historyEntry struct {
	Provider    string `json:"provider"`
	Target      string `json:"target"`
	Status      string `json:"status"`
	Detail      string `json:"detail,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
	DaysLeft    int64  `json:"days_left"`
	AttemptedAt string `json:"attempted_at"`
}

func (s Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleHistory")
	defer span.End()

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJson(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	attempts, err := s.opts.Store.ListAttempts(ctx, r.URL.Query().Get("provider"), limit)
	if err != nil {
		span.RecordError(err)
		writeJson(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	out := make([]historyEntry, 0, len(attempts))
	for _, attempt := range attempts {
		entry := historyEntry{
			Provider:    attempt.Provider,
			Target:      attempt.Target,
			Status:      attempt.Status,
			Detail:      attempt.Detail,
			DaysLeft:    attempt.DaysLeft,
			AttemptedAt: attempt.AttemptedAt.Format(time.RFC3339),
		}
		if !attempt.ExpiresAt.IsZero() {
			entry.ExpiresAt = attempt.ExpiresAt.Format(time.RFC3339)
		}
		out = append(out, entry)
	}
	writeJson(w, http.StatusOK, out)
}
