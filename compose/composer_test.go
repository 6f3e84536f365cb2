package compose

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/onairlab/studio-core/scene"
)

type mapResolver map[string]image.Image

func (m mapResolver) Resolve(url string) image.Image { return m[url] }

func testTemplate() *scene.Template {
	tpl := &scene.Template{
		ID: "tpl-1",
		Scenes: []scene.Scene{
			{ID: "main", Title: "Main", Layout: scene.LayoutSolo},
		},
		Config: scene.TemplateConfig{
			Banners:         []scene.Banner{{ID: "b1", Title: "Welcome", Subtitle: "Day one"}},
			Tickers:         []scene.Ticker{{ID: "t1", Text: "Breaking news rolling by"}},
			PrimaryColor:    "#3366cc",
			SelectedSceneID: "main",
		},
	}
	tpl.Normalize()
	return tpl
}

func solidFrame(w, h int, col color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = col.R
		img.Pix[i+1] = col.G
		img.Pix[i+2] = col.B
		img.Pix[i+3] = col.A
	}
	return img
}

func TestComposeDeterministic(t *testing.T) {
	tpl := testTemplate()
	tpl.Scenes[0].CurrentBannerID = "b1"
	tpl.Scenes[0].CurrentTickerID = "t1"

	stage := Stage{Width: 1280, Height: 720}
	regions := []SourceRegion{{
		SourceID: "cam-1",
		Label:    "Host",
		Rect:     Rect{X: 0, Y: 0, W: 1280, H: 720},
		Frame:    solidFrame(640, 360, color.RGBA{200, 40, 40, 255}),
	}}

	render := func() *image.RGBA {
		c := NewComposer(320, 180, 30, mapResolver{})
		c.Tick()
		c.Tick()
		return c.Compose(tpl, regions, stage)
	}

	a, b := render(), render()
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Error("identical inputs and tick counts produced different frames")
	}
}

func TestComposeMissingImagesSkipsLayers(t *testing.T) {
	tpl := testTemplate()
	tpl.Scenes[0].BackgroundURL = "https://cdn.example/bg.png"
	tpl.Scenes[0].OverlayURL = "https://cdn.example/overlay.png"

	c := NewComposer(64, 36, 30, mapResolver{})
	out := c.Compose(tpl, nil, Stage{Width: 64, Height: 36})

	// Unresolved background falls back to the solid fill, never an error.
	got := out.RGBAAt(0, 0)
	if got != fallbackFill {
		t.Errorf("corner pixel = %v, want fallback fill %v", got, fallbackFill)
	}
}

func TestComposeNilFrameDrawsPlaceholder(t *testing.T) {
	tpl := testTemplate()
	c := NewComposer(64, 36, 30, mapResolver{})
	regions := []SourceRegion{{
		SourceID: "cam-1",
		Rect:     Rect{X: 0, Y: 0, W: 64, H: 36},
	}}
	out := c.Compose(tpl, regions, Stage{Width: 64, Height: 36})
	if out == nil {
		t.Fatal("frame should still render with a nil source frame")
	}
}

func TestTickerAdvancesWithTicks(t *testing.T) {
	tpl := testTemplate()
	tpl.Scenes[0].CurrentTickerID = "t1"
	stage := Stage{Width: 320, Height: 180}

	c := NewComposer(320, 180, 30, mapResolver{})
	first := c.Compose(tpl, nil, stage)
	for i := 0; i < 10; i++ {
		c.Tick()
	}
	later := c.Compose(tpl, nil, stage)

	if bytes.Equal(first.Pix, later.Pix) {
		t.Error("ticker band should move between tick counts")
	}
}

func TestCountdownAnchorsAtFirstRender(t *testing.T) {
	tpl := testTemplate()
	tpl.Scenes[0].Countdown = &scene.Countdown{DurationSeconds: 10}
	stage := Stage{Width: 320, Height: 180}

	c := NewComposer(320, 180, 30, mapResolver{})
	c.Compose(tpl, nil, stage)
	if _, ok := c.countdownStart["main"]; !ok {
		t.Fatal("countdown start tick not recorded")
	}

	// Clearing the countdown drops the anchor so a later one restarts.
	tpl.Scenes[0].Countdown = nil
	c.Compose(tpl, nil, stage)
	if _, ok := c.countdownStart["main"]; ok {
		t.Error("countdown anchor should be cleared when countdown ends")
	}
}

func TestParseHexColor(t *testing.T) {
	fallback := color.RGBA{1, 2, 3, 255}
	tests := []struct {
		in   string
		want color.RGBA
	}{
		{"#3366cc", color.RGBA{0x33, 0x66, 0xcc, 255}},
		{"#fff", color.RGBA{0xff, 0xff, 0xff, 255}},
		{"", fallback},
		{"not-a-color", fallback},
	}
	for _, tt := range tests {
		if got := parseHexColor(tt.in, fallback); got != tt.want {
			t.Errorf("parseHexColor(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
