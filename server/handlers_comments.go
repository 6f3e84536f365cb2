package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onairlab/studio-core/broadcast"
	"github.com/onairlab/studio-core/telemetry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The studio frontend runs on a different origin in development.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleCommentsList serves a cursor page of comments
// (GET /broadcasts/{id}/comments?cursor=&limit=).
func (h *Handlers) handleCommentsList(w http.ResponseWriter, r *http.Request, broadcastID string) {
	cursor := r.URL.Query().Get("cursor")
	limit := parseIntQuery(r, "limit", 50)
	list, next, err := h.deps.Comments.ListAfter(r.Context(), broadcastID, cursor, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"comments": list,
		"cursor":   next,
	})
}

// handleCommentsFeed streams new comments over a websocket. The feed tails
// the store with the same cursor the REST read uses, so a client can hand
// its REST cursor to the socket and miss nothing.
func (h *Handlers) handleCommentsFeed(w http.ResponseWriter, r *http.Request, broadcastID string) {
	cursor := r.URL.Query().Get("cursor")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("websocket close error", slog.Any("err", err))
		}
	}()
	log := telemetry.LoggerWithCorr(r.Context()).With(
		slog.String("component", "http"), slog.String("broadcast_id", broadcastID))
	log.Info("comment feed connected")

	// Reader goroutine only to detect client close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case <-ticker.C:
			list, next, err := h.deps.Comments.ListAfter(r.Context(), broadcastID, cursor, 100)
			if err != nil {
				log.Warn("comment feed read failed", slog.Any("err", err))
				return
			}
			for _, c := range list {
				if err := conn.WriteJSON(c); err != nil {
					return
				}
			}
			cursor = next

			// Close the feed once the broadcast ends and the tail is drained.
			if len(list) == 0 {
				b, err := h.deps.Orchestrator.Get(r.Context(), broadcastID)
				if err != nil {
					if errors.Is(err, broadcast.ErrNotFound) {
						return
					}
					continue
				}
				if b.EndedAt != nil {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "broadcast ended"),
						time.Now().Add(time.Second))
					return
				}
			}
		}
	}
}
