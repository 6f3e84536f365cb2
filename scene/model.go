// Package scene holds the scene graph: templates, their scenes, and the studio
// edit commands that mutate them. Persistence is explicit: every edit names a
// write mode (session-local or persisted) instead of an ambient write-through.
package scene

// Layout enumerates the source arrangements a scene can render.
type Layout string

const (
	LayoutSolo             Layout = "solo"
	LayoutGrid             Layout = "grid"
	LayoutSideBySide       Layout = "side-by-side"
	LayoutPictureInPicture Layout = "picture-in-picture"
	LayoutSpotlight        Layout = "spotlight"
)

// Valid reports whether l is a known layout.
func (l Layout) Valid() bool {
	switch l {
	case LayoutSolo, LayoutGrid, LayoutSideBySide, LayoutPictureInPicture, LayoutSpotlight:
		return true
	}
	return false
}

// Banner is a lower-third with a title and optional subtitle.
type Banner struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
}

// Ticker is a continuously scrolling text track.
type Ticker struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Countdown overlays a timer on the scene.
type Countdown struct {
	DurationSeconds int    `json:"duration_seconds"`
	Color           string `json:"color,omitempty"`
	Font            string `json:"font,omitempty"`
}

// SelectedComment is a viewer comment pinned onto the scene by the host.
type SelectedComment struct {
	ID      string `json:"id"`
	Author  string `json:"author"`
	Content string `json:"content"`
}

// Scene is one selectable visual configuration within a template. A scene owns
// at most one active banner, ticker and comment at a time.
type Scene struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	Layout          Layout           `json:"layout"`
	BackgroundURL   string           `json:"background_url,omitempty"`
	OverlayURL      string           `json:"overlay_url,omitempty"`
	LogoURL         string           `json:"logo_url,omitempty"`
	Countdown       *Countdown       `json:"countdown,omitempty"`
	CurrentBannerID string           `json:"current_banner_id,omitempty"`
	CurrentTickerID string           `json:"current_ticker_id,omitempty"`
	CurrentComment  *SelectedComment `json:"current_comment,omitempty"`
}

// TemplateConfig carries template-wide styling and the active scene pointer.
type TemplateConfig struct {
	Banners         []Banner `json:"banners"`
	Tickers         []Ticker `json:"tickers"`
	PrimaryColor    string   `json:"primary_color,omitempty"`
	FontFamily      string   `json:"font_family,omitempty"`
	SelectedSceneID string   `json:"selected_scene_id,omitempty"`
}

// Template is the root of the scene graph, owned by a profile.
type Template struct {
	ID          string         `json:"id"`
	ProfileID   string         `json:"profile_id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Scenes      []Scene        `json:"scenes"`
	Config      TemplateConfig `json:"config"`
}

// SelectedScene resolves the active scene, defaulting to the first scene when
// SelectedSceneID is absent or dangling. Returns nil for a template with no scenes.
func (t *Template) SelectedScene() *Scene {
	if len(t.Scenes) == 0 {
		return nil
	}
	for i := range t.Scenes {
		if t.Scenes[i].ID == t.Config.SelectedSceneID {
			return &t.Scenes[i]
		}
	}
	return &t.Scenes[0]
}

// FindScene returns the scene with the given id, or nil.
func (t *Template) FindScene(id string) *Scene {
	for i := range t.Scenes {
		if t.Scenes[i].ID == id {
			return &t.Scenes[i]
		}
	}
	return nil
}

// Normalize repairs the selected-scene invariant: SelectedSceneID must reference
// a scene present in Scenes, defaulting to the first one.
func (t *Template) Normalize() {
	if len(t.Scenes) == 0 {
		t.Config.SelectedSceneID = ""
		return
	}
	if t.FindScene(t.Config.SelectedSceneID) == nil {
		t.Config.SelectedSceneID = t.Scenes[0].ID
	}
}

// Banner looks up a banner in the template config.
func (t *Template) Banner(id string) *Banner {
	for i := range t.Config.Banners {
		if t.Config.Banners[i].ID == id {
			return &t.Config.Banners[i]
		}
	}
	return nil
}

// Ticker looks up a ticker in the template config.
func (t *Template) Ticker(id string) *Ticker {
	for i := range t.Config.Tickers {
		if t.Config.Tickers[i].ID == id {
			return &t.Config.Tickers[i]
		}
	}
	return nil
}

// Clone returns a deep copy so session-local edits never alias persisted state.
func (t *Template) Clone() *Template {
	out := *t
	out.Scenes = make([]Scene, len(t.Scenes))
	copy(out.Scenes, t.Scenes)
	for i := range out.Scenes {
		if c := t.Scenes[i].Countdown; c != nil {
			cc := *c
			out.Scenes[i].Countdown = &cc
		}
		if c := t.Scenes[i].CurrentComment; c != nil {
			cc := *c
			out.Scenes[i].CurrentComment = &cc
		}
	}
	out.Config.Banners = make([]Banner, len(t.Config.Banners))
	copy(out.Config.Banners, t.Config.Banners)
	out.Config.Tickers = make([]Ticker, len(t.Config.Tickers))
	copy(out.Config.Tickers, t.Config.Tickers)
	return &out
}
