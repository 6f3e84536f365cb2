// Package compose renders the scene graph plus live source frames into a single
// composited raster at the studio's fixed output resolution. The coordinate
// model is explicit: regions are rectangles in stage (editor display) space and
// are mapped through independent horizontal/vertical scale factors, so the
// interactive editor and the headless compositor place pixels identically.
package compose

import (
	"image"
	"math"

	"github.com/onairlab/studio-core/scene"
)

// Rect is an axis-aligned rectangle in stage coordinates.
type Rect struct {
	X, Y, W, H float64
}

// Stage is the displayed size of the editor canvas the regions were measured on.
type Stage struct {
	Width  float64
	Height float64
}

// Mapper converts stage coordinates into output-canvas pixels.
type Mapper struct {
	ScaleX float64
	ScaleY float64
}

// NewMapper computes independent horizontal/vertical scale factors from the
// stage display size to the fixed output resolution.
func NewMapper(stage Stage, outW, outH int) Mapper {
	if stage.Width <= 0 || stage.Height <= 0 {
		return Mapper{ScaleX: 1, ScaleY: 1}
	}
	return Mapper{
		ScaleX: float64(outW) / stage.Width,
		ScaleY: float64(outH) / stage.Height,
	}
}

// Map converts a stage rect into an integer pixel rectangle on the output canvas.
func (m Mapper) Map(r Rect) image.Rectangle {
	x0 := int(math.Round(r.X * m.ScaleX))
	y0 := int(math.Round(r.Y * m.ScaleY))
	x1 := int(math.Round((r.X + r.W) * m.ScaleX))
	y1 := int(math.Round((r.Y + r.H) * m.ScaleY))
	return image.Rect(x0, y0, x1, y1)
}

// CoverCrop returns the source sub-rectangle to sample so the source fills the
// target box completely while preserving its aspect ratio. The relatively wider
// dimension is cropped symmetrically about the center.
func CoverCrop(srcW, srcH int, dstW, dstH float64) image.Rectangle {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return image.Rect(0, 0, srcW, srcH)
	}
	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := dstW / dstH
	if srcAspect > dstAspect {
		// Source relatively wider: keep full height, crop left/right excess.
		cropW := int(math.Round(float64(srcH) * dstAspect))
		x0 := (srcW - cropW) / 2
		return image.Rect(x0, 0, x0+cropW, srcH)
	}
	// Source relatively taller: keep full width, crop top/bottom excess.
	cropH := int(math.Round(float64(srcW) / dstAspect))
	y0 := (srcH - cropH) / 2
	return image.Rect(0, y0, srcW, y0+cropH)
}

// LayoutRegions yields the normalized (0..1) rectangles for n sources under the
// given layout, scaled to the stage. Deterministic for fixed inputs.
func LayoutRegions(l scene.Layout, n int, stage Stage) []Rect {
	norm := normalizedRegions(l, n)
	out := make([]Rect, len(norm))
	for i, r := range norm {
		out[i] = Rect{
			X: r.X * stage.Width,
			Y: r.Y * stage.Height,
			W: r.W * stage.Width,
			H: r.H * stage.Height,
		}
	}
	return out
}

func normalizedRegions(l scene.Layout, n int) []Rect {
	if n <= 0 {
		return nil
	}
	switch l {
	case scene.LayoutSolo:
		return []Rect{{0, 0, 1, 1}}
	case scene.LayoutSideBySide:
		out := make([]Rect, n)
		w := 1.0 / float64(n)
		for i := range out {
			out[i] = Rect{X: float64(i) * w, Y: 0.25, W: w, H: 0.5}
		}
		if n <= 2 {
			for i := range out {
				out[i].Y, out[i].H = 0, 1
			}
		}
		return out
	case scene.LayoutPictureInPicture:
		out := []Rect{{0, 0, 1, 1}}
		if n > 1 {
			out = append(out, Rect{X: 0.70, Y: 0.68, W: 0.27, H: 0.27})
		}
		// Further sources stack up the right edge.
		for i := 2; i < n; i++ {
			out = append(out, Rect{X: 0.70, Y: 0.68 - float64(i-1)*0.30, W: 0.27, H: 0.27})
		}
		return out
	case scene.LayoutSpotlight:
		if n == 1 {
			return []Rect{{0, 0, 1, 1}}
		}
		out := []Rect{{0, 0, 0.75, 1}}
		h := 1.0 / float64(n-1)
		for i := 1; i < n; i++ {
			out = append(out, Rect{X: 0.76, Y: float64(i-1) * h, W: 0.24, H: h * 0.96})
		}
		return out
	default: // grid
		cols := int(math.Ceil(math.Sqrt(float64(n))))
		rows := int(math.Ceil(float64(n) / float64(cols)))
		w := 1.0 / float64(cols)
		h := 1.0 / float64(rows)
		out := make([]Rect, 0, n)
		for i := 0; i < n; i++ {
			c := i % cols
			r := i / cols
			out = append(out, Rect{X: float64(c) * w, Y: float64(r) * h, W: w, H: h})
		}
		return out
	}
}
