// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	BroadcastsStarted      prometheus.Counter
	BroadcastsEnded        prometheus.Counter
	BroadcastStartFailures prometheus.Counter
	FinalizeFailures       prometheus.Counter
	FramesComposited       prometheus.Counter
	CommentsIngested       prometheus.Counter
	CommentPollErrors      prometheus.Counter

	// Histograms (seconds)
	FrameDuration          prometheus.Observer
	BroadcastStartDuration prometheus.Observer

	// Gauges
	LiveBroadcastsGauge prometheus.Gauge
	ActivePollersGauge  prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		BroadcastsStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "studio_broadcasts_started_total", Help: "Number of broadcasts started"})
		BroadcastsEnded = promauto.NewCounter(prometheus.CounterOpts{Name: "studio_broadcasts_ended_total", Help: "Number of broadcasts ended"})
		BroadcastStartFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "studio_broadcast_start_failures_total", Help: "Number of failed broadcast start attempts"})
		FinalizeFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "studio_destination_finalize_failures_total", Help: "Number of per-destination finalize failures during stop"})
		FramesComposited = promauto.NewCounter(prometheus.CounterOpts{Name: "studio_frames_composited_total", Help: "Number of frames composited"})
		CommentsIngested = promauto.NewCounter(prometheus.CounterOpts{Name: "studio_comments_ingested_total", Help: "Number of viewer comments persisted"})
		CommentPollErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "studio_comment_poll_errors_total", Help: "Number of comment poll cycles that errored"})
		FrameDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "studio_frame_duration_seconds", Help: "Frame composition duration seconds", Buckets: prometheus.DefBuckets})
		BroadcastStartDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "studio_broadcast_start_duration_seconds", Help: "Broadcast start transition duration seconds", Buckets: prometheus.DefBuckets})
		LiveBroadcastsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "studio_live_broadcasts", Help: "Current number of live broadcasts"})
		ActivePollersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "studio_active_comment_pollers", Help: "Current number of running comment pollers"})
	})
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
