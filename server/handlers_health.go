package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/onairlab/studio-core/db"
)

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DB.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with detailed checks.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.deps.DB.PingContext(r.Context()) }},
		{"egress", func() error { return h.deps.Cfg.ValidateBroadcastReady() }},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status": "not_ready",
				"check":  check.name,
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleStatus reports a coarse operational summary.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	active, err := h.deps.Orchestrator.ListActive(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	var templates, destinations int
	_ = h.deps.DB.QueryRowContext(r.Context(), `SELECT COUNT(*) FROM templates`).Scan(&templates)
	_ = h.deps.DB.QueryRowContext(r.Context(), `SELECT COUNT(*) FROM destinations`).Scan(&destinations)
	heartbeat, _ := db.GetKV(r.Context(), h.deps.DB, "comment_supervisor_heartbeat")
	writeJSON(w, http.StatusOK, map[string]any{
		"time":                 time.Now().UTC(),
		"live_broadcasts":      len(active),
		"templates":            templates,
		"destinations":         destinations,
		"supervisor_heartbeat": heartbeat,
		"output":               map[string]int{"width": h.deps.Cfg.OutputWidth, "height": h.deps.Cfg.OutputHeight},
		"tick_rate":            h.deps.Cfg.TickRate,
	})
}
