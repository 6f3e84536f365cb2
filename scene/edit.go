package scene

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a template, scene, or config item is missing.
var ErrNotFound = errors.New("scene: not found")

// Command is a single studio edit applied to a template. Commands mutate the
// template in memory; the store decides whether the result is persisted.
type Command interface {
	Apply(t *Template) error
}

// SelectScene makes a scene the active one.
type SelectScene struct {
	SceneID string
}

func (c SelectScene) Apply(t *Template) error {
	if t.FindScene(c.SceneID) == nil {
		return fmt.Errorf("%w: scene %q", ErrNotFound, c.SceneID)
	}
	t.Config.SelectedSceneID = c.SceneID
	return nil
}

// SetLayout changes a scene's source arrangement.
type SetLayout struct {
	SceneID string
	Layout  Layout
}

func (c SetLayout) Apply(t *Template) error {
	if !c.Layout.Valid() {
		return fmt.Errorf("invalid layout %q", c.Layout)
	}
	s := t.FindScene(c.SceneID)
	if s == nil {
		return fmt.Errorf("%w: scene %q", ErrNotFound, c.SceneID)
	}
	s.Layout = c.Layout
	return nil
}

// ToggleBanner selects a banner on a scene; re-selecting the active banner
// clears it (exclusive selection, toggle semantics).
type ToggleBanner struct {
	SceneID  string
	BannerID string
}

func (c ToggleBanner) Apply(t *Template) error {
	s := t.FindScene(c.SceneID)
	if s == nil {
		return fmt.Errorf("%w: scene %q", ErrNotFound, c.SceneID)
	}
	if s.CurrentBannerID == c.BannerID {
		s.CurrentBannerID = ""
		return nil
	}
	if t.Banner(c.BannerID) == nil {
		return fmt.Errorf("%w: banner %q", ErrNotFound, c.BannerID)
	}
	s.CurrentBannerID = c.BannerID
	return nil
}

// ToggleTicker selects a ticker on a scene with the same toggle semantics.
type ToggleTicker struct {
	SceneID  string
	TickerID string
}

func (c ToggleTicker) Apply(t *Template) error {
	s := t.FindScene(c.SceneID)
	if s == nil {
		return fmt.Errorf("%w: scene %q", ErrNotFound, c.SceneID)
	}
	if s.CurrentTickerID == c.TickerID {
		s.CurrentTickerID = ""
		return nil
	}
	if t.Ticker(c.TickerID) == nil {
		return fmt.Errorf("%w: ticker %q", ErrNotFound, c.TickerID)
	}
	s.CurrentTickerID = c.TickerID
	return nil
}

// SelectComment pins a viewer comment onto a scene; pinning the currently
// pinned comment clears it.
type SelectComment struct {
	SceneID string
	Comment *SelectedComment
}

func (c SelectComment) Apply(t *Template) error {
	s := t.FindScene(c.SceneID)
	if s == nil {
		return fmt.Errorf("%w: scene %q", ErrNotFound, c.SceneID)
	}
	if c.Comment != nil && s.CurrentComment != nil && s.CurrentComment.ID == c.Comment.ID {
		s.CurrentComment = nil
		return nil
	}
	s.CurrentComment = c.Comment
	return nil
}

// SetCountdown sets or clears a scene's countdown overlay.
type SetCountdown struct {
	SceneID   string
	Countdown *Countdown
}

func (c SetCountdown) Apply(t *Template) error {
	s := t.FindScene(c.SceneID)
	if s == nil {
		return fmt.Errorf("%w: scene %q", ErrNotFound, c.SceneID)
	}
	if c.Countdown != nil && c.Countdown.DurationSeconds <= 0 {
		return fmt.Errorf("countdown duration must be positive")
	}
	s.Countdown = c.Countdown
	return nil
}

// MediaKind names the media slots a scene owns.
type MediaKind string

const (
	MediaBackground MediaKind = "background"
	MediaOverlay    MediaKind = "overlay"
	MediaLogo       MediaKind = "logo"
)

// SetMedia sets or clears (empty URL) a media slot on a scene.
type SetMedia struct {
	SceneID string
	Kind    MediaKind
	URL     string
}

func (c SetMedia) Apply(t *Template) error {
	s := t.FindScene(c.SceneID)
	if s == nil {
		return fmt.Errorf("%w: scene %q", ErrNotFound, c.SceneID)
	}
	switch c.Kind {
	case MediaBackground:
		s.BackgroundURL = c.URL
	case MediaOverlay:
		s.OverlayURL = c.URL
	case MediaLogo:
		s.LogoURL = c.URL
	default:
		return fmt.Errorf("unknown media kind %q", c.Kind)
	}
	return nil
}

// SetTheme updates the template-wide styling.
type SetTheme struct {
	PrimaryColor string
	FontFamily   string
}

func (c SetTheme) Apply(t *Template) error {
	if c.PrimaryColor != "" {
		t.Config.PrimaryColor = c.PrimaryColor
	}
	if c.FontFamily != "" {
		t.Config.FontFamily = c.FontFamily
	}
	return nil
}

// AddScene appends a new scene; an invalid layout falls back to solo.
type AddScene struct {
	Scene Scene
}

func (c AddScene) Apply(t *Template) error {
	if c.Scene.ID == "" {
		return fmt.Errorf("scene id required")
	}
	if t.FindScene(c.Scene.ID) != nil {
		return fmt.Errorf("scene %q already exists", c.Scene.ID)
	}
	if !c.Scene.Layout.Valid() {
		c.Scene.Layout = LayoutSolo
	}
	t.Scenes = append(t.Scenes, c.Scene)
	t.Normalize()
	return nil
}

// RemoveScene deletes a scene and repairs the selected-scene invariant.
type RemoveScene struct {
	SceneID string
}

func (c RemoveScene) Apply(t *Template) error {
	for i := range t.Scenes {
		if t.Scenes[i].ID == c.SceneID {
			t.Scenes = append(t.Scenes[:i], t.Scenes[i+1:]...)
			t.Normalize()
			return nil
		}
	}
	return fmt.Errorf("%w: scene %q", ErrNotFound, c.SceneID)
}
