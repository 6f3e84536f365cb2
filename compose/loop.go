package compose

import (
	"context"
	"image"
	"log/slog"
	"time"

	"github.com/onairlab/studio-core/scene"
	"github.com/onairlab/studio-core/telemetry"
)

// FrameSink receives composited frames (typically the egress pipeline's input).
type FrameSink interface {
	WriteFrame(frame *image.RGBA) error
}

// SceneSource yields the scene state and source regions for the next tick.
// Implementations read the scene store and the room's track list; they must not
// block.
type SceneSource interface {
	Snapshot() (*scene.Template, []SourceRegion, Stage)
}

// Runner drives the composer on a single-threaded fixed-interval loop. One tick
// renders one frame; a tick whose work overruns the interval causes the next
// tick to be skipped, never queued.
type Runner struct {
	Composer *Composer
	Source   SceneSource
	Sink     FrameSink
	TickRate int
}

// Run loops until ctx is cancelled. Frame composition happens synchronously on
// this goroutine; time.Ticker drops missed ticks, which gives the skip (not
// queue) semantics.
func (r *Runner) Run(ctx context.Context) {
	interval := time.Second / time.Duration(r.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	slog.Info("composer loop starting", slog.Duration("interval", interval), slog.String("component", "compose"))
	for {
		select {
		case <-ctx.Done():
			slog.Info("composer loop stopped", slog.String("component", "compose"))
			return
		case <-ticker.C:
			r.tickOnce()
		}
	}
}

func (r *Runner) tickOnce() {
	tpl, regions, stage := r.Source.Snapshot()
	if tpl == nil {
		return
	}
	r.Composer.Tick()
	var frame *image.RGBA
	telemetry.TimeFunc(telemetry.FrameDuration, func() {
		frame = r.Composer.Compose(tpl, regions, stage)
	})
	telemetry.FramesComposited.Inc()
	if err := r.Sink.WriteFrame(frame); err != nil {
		slog.Warn("frame sink write failed", slog.Any("err", err), slog.String("component", "compose"))
	}
}
