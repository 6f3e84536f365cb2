package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/onairlab/studio-core/compose"
	"github.com/onairlab/studio-core/scene"
)

// HandleTemplates creates a template (POST /templates).
func (h *Handlers) HandleTemplates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var tpl scene.Template
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if tpl.ProfileID == "" {
		http.Error(w, "profile_id required", http.StatusBadRequest)
		return
	}
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	if len(tpl.Scenes) == 0 {
		tpl.Scenes = []scene.Scene{{ID: uuid.NewString(), Title: "Scene 1", Layout: scene.LayoutSolo}}
	}
	tpl.Normalize()
	if err := h.deps.Scenes.Create(r.Context(), &tpl); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, tpl)
}

// HandleTemplatesDispatcher routes /templates/{id}[/...] requests.
func (h *Handlers) HandleTemplatesDispatcher(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/templates/")
	parts := strings.Split(rest, "/")
	id := parts[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleTemplateGet(w, r, id)
	case len(parts) == 2 && parts[1] == "edits" && r.Method == http.MethodPost:
		h.handleTemplateEdit(w, r, id)
	case len(parts) == 2 && parts[1] == "destinations" && r.Method == http.MethodPut:
		h.handleTemplateDestinations(w, r, id)
	case len(parts) == 2 && parts[1] == "destinations" && r.Method == http.MethodGet:
		h.handleTemplateDestinationsList(w, r, id)
	case len(parts) == 2 && parts[1] == "preview" && r.Method == http.MethodGet:
		h.handleTemplatePreview(w, r, id)
	case len(parts) == 2 && parts[1] == "session" && r.Method == http.MethodDelete:
		h.deps.Scenes.DiscardSession(id)
		writeJSON(w, http.StatusOK, map[string]string{"status": "discarded"})
	default:
		http.NotFound(w, r)
	}
}

func (h *Handlers) handleTemplateGet(w http.ResponseWriter, r *http.Request, id string) {
	tpl, err := h.deps.Scenes.Get(r.Context(), id)
	if errors.Is(err, scene.ErrNotFound) {
		http.Error(w, "template not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

type sceneEditRequest struct {
	Op      string          `json:"op"`
	Persist bool            `json:"persist"`
	Args    json.RawMessage `json:"args"`
}

func (h *Handlers) handleTemplateEdit(w http.ResponseWriter, r *http.Request, id string) {
	var req sceneEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	cmd, err := decodeSceneCommand(req.Op, req.Args)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mode := scene.Ephemeral
	if req.Persist {
		mode = scene.Persist
	}
	tpl, err := h.deps.Scenes.ApplySceneEdit(r.Context(), id, cmd, mode)
	switch {
	case errors.Is(err, scene.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case err != nil:
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		writeJSON(w, http.StatusOK, tpl)
	}
}

// decodeSceneCommand maps an edit operation name to its command.
func decodeSceneCommand(op string, args json.RawMessage) (scene.Command, error) {
	if args == nil {
		args = json.RawMessage("{}")
	}
	unmarshal := func(v any) error {
		if err := json.Unmarshal(args, v); err != nil {
			return fmt.Errorf("invalid args for op %q: %w", op, err)
		}
		return nil
	}
	switch op {
	case "select_scene":
		var c struct {
			SceneID string `json:"scene_id"`
		}
		if err := unmarshal(&c); err != nil {
			return nil, err
		}
		return scene.SelectScene{SceneID: c.SceneID}, nil
	case "set_layout":
		var c struct {
			SceneID string       `json:"scene_id"`
			Layout  scene.Layout `json:"layout"`
		}
		if err := unmarshal(&c); err != nil {
			return nil, err
		}
		return scene.SetLayout{SceneID: c.SceneID, Layout: c.Layout}, nil
	case "toggle_banner":
		var c struct {
			SceneID  string `json:"scene_id"`
			BannerID string `json:"banner_id"`
		}
		if err := unmarshal(&c); err != nil {
			return nil, err
		}
		return scene.ToggleBanner{SceneID: c.SceneID, BannerID: c.BannerID}, nil
	case "toggle_ticker":
		var c struct {
			SceneID  string `json:"scene_id"`
			TickerID string `json:"ticker_id"`
		}
		if err := unmarshal(&c); err != nil {
			return nil, err
		}
		return scene.ToggleTicker{SceneID: c.SceneID, TickerID: c.TickerID}, nil
	case "select_comment":
		var c struct {
			SceneID string                 `json:"scene_id"`
			Comment *scene.SelectedComment `json:"comment"`
		}
		if err := unmarshal(&c); err != nil {
			return nil, err
		}
		return scene.SelectComment{SceneID: c.SceneID, Comment: c.Comment}, nil
	case "set_countdown":
		var c struct {
			SceneID   string           `json:"scene_id"`
			Countdown *scene.Countdown `json:"countdown"`
		}
		if err := unmarshal(&c); err != nil {
			return nil, err
		}
		return scene.SetCountdown{SceneID: c.SceneID, Countdown: c.Countdown}, nil
	case "set_media":
		var c struct {
			SceneID string          `json:"scene_id"`
			Kind    scene.MediaKind `json:"kind"`
			URL     string          `json:"url"`
		}
		if err := unmarshal(&c); err != nil {
			return nil, err
		}
		return scene.SetMedia{SceneID: c.SceneID, Kind: c.Kind, URL: c.URL}, nil
	case "set_theme":
		var c struct {
			PrimaryColor string `json:"primary_color"`
			FontFamily   string `json:"font_family"`
		}
		if err := unmarshal(&c); err != nil {
			return nil, err
		}
		return scene.SetTheme{PrimaryColor: c.PrimaryColor, FontFamily: c.FontFamily}, nil
	case "add_scene":
		var c struct {
			Scene scene.Scene `json:"scene"`
		}
		if err := unmarshal(&c); err != nil {
			return nil, err
		}
		return scene.AddScene{Scene: c.Scene}, nil
	case "remove_scene":
		var c struct {
			SceneID string `json:"scene_id"`
		}
		if err := unmarshal(&c); err != nil {
			return nil, err
		}
		return scene.RemoveScene{SceneID: c.SceneID}, nil
	default:
		return nil, fmt.Errorf("unknown edit op %q", op)
	}
}

// noImages is the preview's image resolver: nothing is fetched server side, so
// media layers degrade to "no draw" and sources render as placeholder tiles.
type noImages struct{}

func (noImages) Resolve(string) image.Image { return nil }

// handleTemplatePreview renders the template's selected scene at the configured
// output resolution (GET /templates/{id}/preview?sources=N). The session
// overlay is included, so the editor sees unpersisted edits in the preview.
func (h *Handlers) handleTemplatePreview(w http.ResponseWriter, r *http.Request, id string) {
	tpl, err := h.deps.Scenes.Get(r.Context(), id)
	if errors.Is(err, scene.ErrNotFound) {
		http.Error(w, "template not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	cfg := h.deps.Cfg
	stage := compose.Stage{Width: float64(cfg.OutputWidth), Height: float64(cfg.OutputHeight)}
	var regions []compose.SourceRegion
	if sc := tpl.SelectedScene(); sc != nil {
		if n := parseIntQuery(r, "sources", 0); n > 0 {
			for i, rect := range compose.LayoutRegions(sc.Layout, n, stage) {
				regions = append(regions, compose.SourceRegion{
					SourceID: fmt.Sprintf("source-%d", i+1),
					Label:    fmt.Sprintf("Source %d", i+1),
					Rect:     rect,
				})
			}
		}
	}
	c := compose.NewComposer(cfg.OutputWidth, cfg.OutputHeight, cfg.TickRate, noImages{})
	c.Tick()
	frame := c.Compose(tpl, regions, stage)
	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, frame); err != nil {
		slog.Warn("template preview encode failed", slog.Any("err", err), slog.String("component", "server"))
	}
}

func (h *Handlers) handleTemplateDestinations(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		DestinationIDs []string `json:"destination_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := h.deps.Scenes.ReplaceDestinations(r.Context(), id, req.DestinationIDs); err != nil {
		if errors.Is(err, scene.ErrNotFound) {
			http.Error(w, "template not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"destination_ids": req.DestinationIDs})
}

func (h *Handlers) handleTemplateDestinationsList(w http.ResponseWriter, r *http.Request, id string) {
	ids, err := h.deps.Scenes.LinkedDestinationIDs(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"destination_ids": ids})
}
