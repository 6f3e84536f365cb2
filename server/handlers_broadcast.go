package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/onairlab/studio-core/broadcast"
	"github.com/onairlab/studio-core/destination"
	"github.com/onairlab/studio-core/scene"
)

type startBroadcastRequest struct {
	ProfileID      string   `json:"profile_id"`
	TemplateID     string   `json:"template_id,omitempty"`
	RoomID         string   `json:"room_id"`
	Title          string   `json:"title,omitempty"`
	ThumbnailURL   string   `json:"thumbnail_url,omitempty"`
	EventID        string   `json:"event_id,omitempty"`
	DestinationIDs []string `json:"destination_ids,omitempty"`
}

// HandleBroadcasts starts a broadcast (POST /broadcasts).
func (h *Handlers) HandleBroadcasts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req startBroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.ProfileID == "" || req.RoomID == "" {
		http.Error(w, "profile_id and room_id required", http.StatusBadRequest)
		return
	}
	b, err := h.deps.Orchestrator.Start(r.Context(), broadcast.StartInput{
		ProfileID:      req.ProfileID,
		TemplateID:     req.TemplateID,
		RoomID:         req.RoomID,
		Title:          req.Title,
		ThumbnailURL:   req.ThumbnailURL,
		EventID:        req.EventID,
		DestinationIDs: req.DestinationIDs,
	})
	if err != nil {
		switch {
		case errors.Is(err, broadcast.ErrMissingTracks),
			errors.Is(err, broadcast.ErrNoDestinations),
			errors.Is(err, scene.ErrNotFound),
			errors.Is(err, destination.ErrNotFound):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, broadcast.ErrStartInProgress):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusBadGateway)
		}
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// HandleBroadcastsDispatcher routes /broadcasts/{id}[/...] requests.
func (h *Handlers) HandleBroadcastsDispatcher(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/broadcasts/")
	parts := strings.Split(rest, "/")
	id := parts[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleBroadcastGet(w, r, id)
	case len(parts) == 2 && parts[1] == "stop" && r.Method == http.MethodPost:
		h.handleBroadcastStop(w, r, id)
	case len(parts) == 2 && parts[1] == "comments" && r.Method == http.MethodGet:
		h.handleCommentsList(w, r, id)
	case len(parts) == 3 && parts[1] == "comments" && parts[2] == "ws":
		h.handleCommentsFeed(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handlers) handleBroadcastGet(w http.ResponseWriter, r *http.Request, id string) {
	b, err := h.deps.Orchestrator.Get(r.Context(), id)
	if errors.Is(err, broadcast.ErrNotFound) {
		http.Error(w, "broadcast not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	fanouts, err := h.deps.Orchestrator.FanOuts(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"broadcast":    b,
		"state":        b.State(),
		"destinations": fanouts,
	})
}

func (h *Handlers) handleBroadcastStop(w http.ResponseWriter, r *http.Request, id string) {
	err := h.deps.Orchestrator.Stop(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
	case errors.Is(err, broadcast.ErrAlreadyEnded):
		http.Error(w, "broadcast already ended", http.StatusConflict)
	case errors.Is(err, broadcast.ErrNotFound):
		http.Error(w, "broadcast not found", http.StatusNotFound)
	default:
		// The broadcast may still have ended; report partial failure detail.
		b, getErr := h.deps.Orchestrator.Get(r.Context(), id)
		if getErr == nil && b.EndedAt != nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"status":            "ended",
				"finalize_failures": err.Error(),
			})
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}
