package compose

import (
	"image"
	"testing"

	"github.com/onairlab/studio-core/scene"
)

func TestNewMapperScaleFactors(t *testing.T) {
	m := NewMapper(Stage{Width: 960, Height: 540}, 1920, 1080)
	if m.ScaleX != 2 || m.ScaleY != 2 {
		t.Errorf("scale = %v/%v, want 2/2", m.ScaleX, m.ScaleY)
	}

	// Independent axes: a letterboxed stage maps anisotropically.
	m = NewMapper(Stage{Width: 960, Height: 270}, 1920, 1080)
	if m.ScaleX != 2 || m.ScaleY != 4 {
		t.Errorf("scale = %v/%v, want 2/4", m.ScaleX, m.ScaleY)
	}

	got := m.Map(Rect{X: 10, Y: 10, W: 100, H: 50})
	want := image.Rect(20, 40, 220, 240)
	if got != want {
		t.Errorf("Map() = %v, want %v", got, want)
	}
}

func TestCoverCrop(t *testing.T) {
	tests := []struct {
		name       string
		srcW, srcH int
		dstW, dstH float64
		want       image.Rectangle
	}{
		{
			// 16:9 source into a 2:1 box: source is relatively taller, so the
			// crop removes top/bottom symmetrically and keeps the full width.
			name: "16x9 into 2x1 crops top and bottom",
			srcW: 1920, srcH: 1080,
			dstW: 200, dstH: 100,
			want: image.Rect(0, 60, 1920, 1020),
		},
		{
			name: "wide source into square crops left and right",
			srcW: 1920, srcH: 1080,
			dstW: 100, dstH: 100,
			want: image.Rect(420, 0, 1500, 1080),
		},
		{
			name: "matching aspect keeps full frame",
			srcW: 1280, srcH: 720,
			dstW: 640, dstH: 360,
			want: image.Rect(0, 0, 1280, 720),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CoverCrop(tt.srcW, tt.srcH, tt.dstW, tt.dstH)
			if got != tt.want {
				t.Errorf("CoverCrop() = %v, want %v", got, tt.want)
			}
			// Cover semantics never change the target aspect: crop aspect
			// must match the destination aspect.
			cropAspect := float64(got.Dx()) / float64(got.Dy())
			dstAspect := tt.dstW / tt.dstH
			if diff := cropAspect - dstAspect; diff > 0.01 || diff < -0.01 {
				t.Errorf("crop aspect %v != dst aspect %v", cropAspect, dstAspect)
			}
		})
	}
}

func TestLayoutRegions(t *testing.T) {
	stage := Stage{Width: 1000, Height: 500}

	t.Run("solo fills the stage", func(t *testing.T) {
		rs := LayoutRegions(scene.LayoutSolo, 1, stage)
		if len(rs) != 1 || rs[0] != (Rect{0, 0, 1000, 500}) {
			t.Errorf("solo = %v", rs)
		}
	})

	t.Run("side by side splits width", func(t *testing.T) {
		rs := LayoutRegions(scene.LayoutSideBySide, 2, stage)
		if len(rs) != 2 {
			t.Fatalf("len = %d", len(rs))
		}
		if rs[0].W != 500 || rs[1].X != 500 {
			t.Errorf("side-by-side = %v", rs)
		}
	})

	t.Run("grid covers all sources", func(t *testing.T) {
		for n := 1; n <= 9; n++ {
			rs := LayoutRegions(scene.LayoutGrid, n, stage)
			if len(rs) != n {
				t.Errorf("grid n=%d produced %d regions", n, len(rs))
			}
		}
	})

	t.Run("picture in picture overlays", func(t *testing.T) {
		rs := LayoutRegions(scene.LayoutPictureInPicture, 2, stage)
		if len(rs) != 2 {
			t.Fatalf("len = %d", len(rs))
		}
		if rs[0] != (Rect{0, 0, 1000, 500}) {
			t.Errorf("main tile should be full bleed, got %v", rs[0])
		}
		if rs[1].X <= 500 {
			t.Errorf("inset tile should sit right of center, got %v", rs[1])
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		a := LayoutRegions(scene.LayoutSpotlight, 4, stage)
		b := LayoutRegions(scene.LayoutSpotlight, 4, stage)
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("regions differ at %d: %v vs %v", i, a[i], b[i])
			}
		}
	})
}
