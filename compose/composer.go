package compose

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/onairlab/studio-core/scene"
)

// SourceRegion is one live video source placed on the stage.
type SourceRegion struct {
	SourceID string
	Label    string // participant name tag; empty disables the tag
	Rect     Rect   // target rectangle in stage coordinates
	Frame    image.Image
}

// ImageResolver resolves a media URL to a previously loaded image. A nil result
// means not loaded yet; the layer is skipped for the frame, never an error.
type ImageResolver interface {
	Resolve(url string) image.Image
}

// Composer turns scene state plus source regions into composited frames. It is
// pure per tick apart from the ticker offset and countdown anchors, both of
// which are monotonic functions of elapsed ticks.
type Composer struct {
	outW, outH  int
	tickRate    int
	images      ImageResolver
	tickerSpeed float64 // pixels of ticker travel per tick

	ticks          uint64
	countdownStart map[string]uint64
}

// NewComposer builds a composer for the given output resolution and tick rate.
func NewComposer(outW, outH, tickRate int, images ImageResolver) *Composer {
	return &Composer{
		outW:           outW,
		outH:           outH,
		tickRate:       tickRate,
		images:         images,
		tickerSpeed:    4,
		countdownStart: make(map[string]uint64),
	}
}

// Tick advances the elapsed-tick counter that drives ticker and countdown motion.
func (c *Composer) Tick() { c.ticks++ }

// Ticks returns the elapsed tick count.
func (c *Composer) Ticks() uint64 { return c.ticks }

var (
	fallbackFill = color.RGBA{16, 16, 20, 255}
	labelFill    = color.RGBA{0, 0, 0, 200}
	textColor    = color.RGBA{255, 255, 255, 255}
)

// Compose renders one frame. For fixed inputs and a fixed tick count, pixel
// placement is reproducible. A missing or unloaded image degrades to "no draw"
// for that layer; it never aborts the frame.
func (c *Composer) Compose(tpl *scene.Template, regions []SourceRegion, stage Stage) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, c.outW, c.outH))
	m := NewMapper(stage, c.outW, c.outH)

	sc := tpl.SelectedScene()
	accent := parseHexColor(tpl.Config.PrimaryColor, color.RGBA{64, 64, 200, 255})

	c.drawBackground(out, sc)

	for _, r := range regions {
		c.drawSource(out, m, r)
	}

	if sc != nil {
		if banner := activeBanner(tpl, sc); banner != nil {
			c.drawBanner(out, banner, accent)
		}
		if sc.CurrentComment != nil {
			c.drawComment(out, sc.CurrentComment)
		}
		if ticker := activeTicker(tpl, sc); ticker != nil {
			c.drawTicker(out, ticker, accent)
		}
		if sc.LogoURL != "" {
			c.drawLogo(out, sc.LogoURL)
		}
		if sc.Countdown != nil {
			c.drawCountdown(out, sc)
		} else {
			delete(c.countdownStart, sc.ID)
		}
		if sc.OverlayURL != "" {
			if img := c.images.Resolve(sc.OverlayURL); img != nil {
				xdraw.ApproxBiLinear.Scale(out, out.Bounds(), img, img.Bounds(), xdraw.Over, nil)
			}
		}
	}
	return out
}

func activeBanner(tpl *scene.Template, sc *scene.Scene) *scene.Banner {
	if sc.CurrentBannerID == "" {
		return nil
	}
	return tpl.Banner(sc.CurrentBannerID)
}

func activeTicker(tpl *scene.Template, sc *scene.Scene) *scene.Ticker {
	if sc.CurrentTickerID == "" {
		return nil
	}
	return tpl.Ticker(sc.CurrentTickerID)
}

func (c *Composer) drawBackground(out *image.RGBA, sc *scene.Scene) {
	if sc != nil && sc.BackgroundURL != "" {
		if img := c.images.Resolve(sc.BackgroundURL); img != nil {
			// Background stretches into the full output rect.
			xdraw.ApproxBiLinear.Scale(out, out.Bounds(), img, img.Bounds(), xdraw.Src, nil)
			return
		}
	}
	draw.Draw(out, out.Bounds(), image.NewUniform(fallbackFill), image.Point{}, draw.Src)
}

func (c *Composer) drawSource(out *image.RGBA, m Mapper, r SourceRegion) {
	dst := m.Map(r.Rect).Intersect(out.Bounds())
	if dst.Empty() {
		return
	}
	if r.Frame != nil {
		sb := r.Frame.Bounds()
		crop := CoverCrop(sb.Dx(), sb.Dy(), float64(dst.Dx()), float64(dst.Dy())).Add(sb.Min)
		// Scaling into exactly dst clips the draw to the target rectangle.
		xdraw.ApproxBiLinear.Scale(out, dst, r.Frame, crop, xdraw.Src, nil)
	} else {
		draw.Draw(out, dst, image.NewUniform(color.RGBA{32, 32, 36, 255}), image.Point{}, draw.Src)
	}
	if r.Label != "" {
		h := 26
		label := image.Rect(dst.Min.X+8, dst.Max.Y-h-8, dst.Min.X+8+textWidth(r.Label)+16, dst.Max.Y-8)
		c.drawLabel(out, label.Intersect(out.Bounds()), r.Label, labelFill)
	}
}

func (c *Composer) drawBanner(out *image.RGBA, b *scene.Banner, accent color.RGBA) {
	y := c.outH - c.outH/6
	title := image.Rect(c.outW/16, y, c.outW/16+textWidth(b.Title)+24, y+34)
	c.drawLabel(out, title, b.Title, accent)
	if b.Subtitle != "" {
		sub := image.Rect(c.outW/16, y+36, c.outW/16+textWidth(b.Subtitle)+24, y+62)
		c.drawLabel(out, sub, b.Subtitle, labelFill)
	}
}

func (c *Composer) drawComment(out *image.RGBA, cm *scene.SelectedComment) {
	y := c.outH / 8
	name := image.Rect(c.outW/16, y, c.outW/16+textWidth(cm.Author)+24, y+28)
	c.drawLabel(out, name, cm.Author, labelFill)
	body := image.Rect(c.outW/16, y+30, c.outW/16+textWidth(cm.Content)+24, y+58)
	c.drawLabel(out, body, cm.Content, labelFill)
}

// drawTicker scrolls the ticker text leftwards by a fixed pixel speed per tick,
// wrapping from off-right once it has fully passed off-left.
func (c *Composer) drawTicker(out *image.RGBA, tk *scene.Ticker, accent color.RGBA) {
	h := 36
	strip := image.Rect(0, c.outH-h, c.outW, c.outH)
	fillRect(out, strip, accent)

	w := textWidth(tk.Text)
	span := float64(c.outW + w)
	offset := float64(c.ticks) * c.tickerSpeed
	x := c.outW - int(offset)%int(span)
	drawText(out, x, c.outH-12, tk.Text, textColor)
}

func (c *Composer) drawLogo(out *image.RGBA, url string) {
	img := c.images.Resolve(url)
	if img == nil {
		return
	}
	size := c.outH / 10
	dst := image.Rect(c.outW-size-24, 24, c.outW-24, 24+size)
	xdraw.ApproxBiLinear.Scale(out, dst, img, img.Bounds(), xdraw.Over, nil)
}

func (c *Composer) drawCountdown(out *image.RGBA, sc *scene.Scene) {
	start, ok := c.countdownStart[sc.ID]
	if !ok {
		start = c.ticks
		c.countdownStart[sc.ID] = start
	}
	elapsed := int(c.ticks-start) / c.tickRate
	remaining := sc.Countdown.DurationSeconds - elapsed
	if remaining < 0 {
		remaining = 0
	}
	text := fmt.Sprintf("%02d:%02d", remaining/60, remaining%60)
	col := parseHexColor(sc.Countdown.Color, textColor)
	w := textWidth(text)
	drawText(out, (c.outW-w)/2, c.outH/2, text, col)
}

// drawLabel paints a rounded background then baseline-aligned text inside it.
func (c *Composer) drawLabel(out *image.RGBA, rect image.Rectangle, text string, bg color.RGBA) {
	if rect.Empty() {
		return
	}
	fillRoundedRect(out, rect, bg, 6)
	baseline := rect.Max.Y - (rect.Dy()-13)/2 - 2
	drawText(out, rect.Min.X+8, baseline, text, textColor)
}

var face = basicfont.Face7x13

func textWidth(s string) int {
	return font.MeasureString(face, s).Ceil()
}

func drawText(out *image.RGBA, x, baseline int, s string, col color.RGBA) {
	d := font.Drawer{
		Dst:  out,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(x, baseline),
	}
	d.DrawString(s)
}

func fillRect(out *image.RGBA, r image.Rectangle, col color.RGBA) {
	draw.Draw(out, r.Intersect(out.Bounds()), image.NewUniform(col), image.Point{}, draw.Over)
}

// fillRoundedRect fills r with col, skipping the pixels outside the corner radius.
func fillRoundedRect(out *image.RGBA, r image.Rectangle, col color.RGBA, radius int) {
	r = r.Intersect(out.Bounds())
	if r.Empty() {
		return
	}
	if radius > r.Dx()/2 {
		radius = r.Dx() / 2
	}
	if radius > r.Dy()/2 {
		radius = r.Dy() / 2
	}
	src := image.NewUniform(col)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		inset := 0
		if dy := y - r.Min.Y; dy < radius {
			inset = cornerInset(radius, radius-dy-1)
		} else if dy := r.Max.Y - 1 - y; dy < radius {
			inset = cornerInset(radius, radius-dy-1)
		}
		row := image.Rect(r.Min.X+inset, y, r.Max.X-inset, y+1)
		draw.Draw(out, row, src, image.Point{}, draw.Over)
	}
}

func cornerInset(radius, dy int) int {
	// Horizontal inset for a quarter-circle corner at vertical offset dy.
	for dx := 0; dx <= radius; dx++ {
		x := radius - dx
		if x*x+dy*dy <= radius*radius {
			return dx
		}
	}
	return radius
}

// parseHexColor parses #rgb or #rrggbb, falling back on any parse failure.
func parseHexColor(s string, fallback color.RGBA) color.RGBA {
	if len(s) == 0 || s[0] != '#' {
		return fallback
	}
	hex := s[1:]
	var r, g, b uint8
	switch len(hex) {
	case 3:
		if n, err := fmt.Sscanf(hex, "%1x%1x%1x", &r, &g, &b); n != 3 || err != nil {
			return fallback
		}
		r, g, b = r*17, g*17, b*17
	case 6:
		if n, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); n != 3 || err != nil {
			return fallback
		}
	default:
		return fallback
	}
	return color.RGBA{r, g, b, 255}
}
