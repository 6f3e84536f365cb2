package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/onairlab/studio-core/destination"
)

// HandleDestinationsList lists a profile's linked destinations
// (GET /destinations?profile_id=...) or links a raw RTMP endpoint (POST).
func (h *Handlers) HandleDestinationsList(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		h.HandleRTMPLink(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	profileID := r.URL.Query().Get("profile_id")
	if profileID == "" {
		http.Error(w, "profile_id required", http.StatusBadRequest)
		return
	}
	list, err := h.deps.Destinations.ListByProfile(r.Context(), profileID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []destination.Destination{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"destinations": list})
}

// HandleDestinationsDispatcher routes /destinations/{id} requests.
func (h *Handlers) HandleDestinationsDispatcher(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/destinations/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		d, err := h.deps.Destinations.Get(r.Context(), id)
		if errors.Is(err, destination.ErrNotFound) {
			http.Error(w, "destination not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, d)
	case http.MethodDelete:
		err := h.deps.Destinations.Unlink(r.Context(), id)
		if errors.Is(err, destination.ErrNotFound) {
			http.Error(w, "destination not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "unlinked"})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
