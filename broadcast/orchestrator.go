package broadcast

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onairlab/studio-core/crypto"
	"github.com/onairlab/studio-core/destination"
	"github.com/onairlab/studio-core/egress"
	"github.com/onairlab/studio-core/scene"
	"github.com/onairlab/studio-core/telemetry"
)

// EventSource resolves a linked external event (a scheduled show on the
// profile's calendar). Optional; a nil source means events are not wired.
type EventSource interface {
	EventTitle(ctx context.Context, eventID string) (string, error)
}

// Orchestrator owns the broadcast lifecycle. All external side effects
// (adapter create, egress start, finalize) flow through it.
type Orchestrator struct {
	db           *sql.DB
	templates    *scene.Store
	destinations *destination.Store
	registry     *destination.Registry
	egress       egress.Client
	tracks       egress.TrackProvider
	events       EventSource
	storageBase  string

	mu       sync.Mutex
	starting map[string]bool // room id -> start in flight
}

// New builds an orchestrator.
func New(db *sql.DB, templates *scene.Store, dests *destination.Store, registry *destination.Registry,
	eg egress.Client, tracks egress.TrackProvider, events EventSource, storageBase string) *Orchestrator {
	return &Orchestrator{
		db:           db,
		templates:    templates,
		destinations: dests,
		registry:     registry,
		egress:       eg,
		tracks:       tracks,
		events:       events,
		storageBase:  storageBase,
		starting:     make(map[string]bool),
	}
}

// StartInput describes one go-live request.
type StartInput struct {
	ProfileID      string
	TemplateID     string
	RoomID         string
	Title          string // optional; falls back to event then template title
	ThumbnailURL   string
	EventID        string
	DestinationIDs []string // optional override of the template's linked set
}

// Start runs the full start transition: validate tracks and destinations,
// create external broadcasts and fan-out rows in one transaction, then start
// the egress job and persist its id plus the derived output URLs.
//
// Any adapter failure rolls the transaction back; no partial broadcast is
// ever persisted.
func (o *Orchestrator) Start(ctx context.Context, in StartInput) (*Broadcast, error) {
	if !o.claimStart(in.RoomID) {
		return nil, ErrStartInProgress
	}
	defer o.releaseStart(in.RoomID)

	started := time.Now()
	b, err := o.start(ctx, in)
	if err != nil {
		telemetry.BroadcastStartFailures.Inc()
		return nil, err
	}
	telemetry.BroadcastsStarted.Inc()
	telemetry.LiveBroadcastsGauge.Inc()
	telemetry.BroadcastStartDuration.Observe(time.Since(started).Seconds())
	return b, nil
}

func (o *Orchestrator) start(ctx context.Context, in StartInput) (*Broadcast, error) {
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "broadcast"))

	tracks, err := o.tracks.ListTracks(ctx, in.RoomID)
	if err != nil {
		return nil, fmt.Errorf("list room tracks: %w", err)
	}
	video, okV := egress.FindTrack(tracks, egress.TrackCompositeVideo)
	audio, okA := egress.FindTrack(tracks, egress.TrackMixedAudio)
	if !okV || !okA {
		return nil, ErrMissingTracks
	}

	destIDs := in.DestinationIDs
	if len(destIDs) == 0 && in.TemplateID != "" {
		destIDs, err = o.templates.LinkedDestinationIDs(ctx, in.TemplateID)
		if err != nil {
			return nil, fmt.Errorf("load linked destinations: %w", err)
		}
	}
	if len(destIDs) == 0 && in.EventID == "" {
		return nil, ErrNoDestinations
	}

	title, err := o.resolveTitle(ctx, in)
	if err != nil {
		return nil, err
	}

	// Adapter inputs are gathered before the transaction opens so the write
	// window stays short; the adapter calls themselves happen inside it so a
	// failure rolls everything back.
	type target struct {
		dest  destination.Destination
		creds crypto.Credentials
		ad    destination.Adapter
	}
	targets := make([]target, 0, len(destIDs))
	for _, id := range destIDs {
		d, err := o.destinations.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("destination %s: %w", id, err)
		}
		creds, err := o.destinations.Credentials(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("destination %s credentials: %w", id, err)
		}
		ad, err := o.registry.Adapter(d.Provider)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target{dest: d, creds: creds, ad: ad})
	}

	now := time.Now().UTC()
	b := &Broadcast{
		ID:           uuid.NewString(),
		ProfileID:    in.ProfileID,
		TemplateID:   in.TemplateID,
		EventID:      in.EventID,
		Title:        title,
		ThumbnailURL: in.ThumbnailURL,
		StartedAt:    &now,
		CreatedAt:    now,
	}

	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin broadcast tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO broadcasts
		(id, profile_id, template_id, event_id, title, thumbnail_url, started_at, created_at)
		VALUES ($1,$2,NULLIF($3,''),NULLIF($4,''),$5,$6,$7,$8)`,
		b.ID, b.ProfileID, b.TemplateID, b.EventID, b.Title, b.ThumbnailURL, b.StartedAt, b.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert broadcast: %w", err)
	}

	var ingestURLs []string
	for _, tgt := range targets {
		eb, err := tgt.ad.CreateBroadcast(ctx, tgt.creds, destination.BroadcastParams{
			Title:        title,
			ThumbnailURL: in.ThumbnailURL,
			ScheduledFor: now,
		})
		if err != nil {
			log.Error("external broadcast create failed, aborting start",
				slog.String("destination", tgt.dest.ID),
				slog.String("provider", string(tgt.dest.Provider)),
				slog.Any("err", err))
			return nil, fmt.Errorf("create external broadcast on %s: %w", tgt.dest.Provider, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO broadcast_destinations
			(id, broadcast_id, destination_id, external_broadcast_id, external_stream_id, external_chat_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			uuid.NewString(), b.ID, tgt.dest.ID, eb.BroadcastID, eb.StreamID, eb.ChatID, now); err != nil {
			return nil, fmt.Errorf("insert fan-out row: %w", err)
		}
		ingestURLs = append(ingestURLs, eb.IngestURL)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit broadcast tx: %w", err)
	}

	egressID, err := o.egress.StartComposite(ctx, egress.StartRequest{
		RoomID:       in.RoomID,
		VideoTrackID: video.ID,
		AudioTrackID: audio.ID,
		IngestURLs:   ingestURLs,
		SegmentPath:  SegmentPath(b.ID),
		SnapshotPath: SnapshotPath(b.ID),
	})
	if err != nil {
		// The fan-out is committed but nothing is on air. End the broadcast
		// so it cannot linger half-started.
		if _, endErr := o.markEnded(ctx, b.ID); endErr != nil && !errors.Is(endErr, ErrAlreadyEnded) {
			log.Error("failed to end broadcast after egress failure", slog.Any("err", endErr))
		}
		return nil, fmt.Errorf("start egress job: %w", err)
	}

	b.EgressID = egressID
	b.LiveURL = LiveURL(o.storageBase, b.ID)
	b.VODURL = VODURL(o.storageBase, b.ID)
	if b.ThumbnailURL == "" {
		b.ThumbnailURL = ThumbnailURL(o.storageBase, b.ID)
	}
	if _, err := o.db.ExecContext(ctx, `UPDATE broadcasts
		SET egress_id = $2, live_url = $3, vod_url = $4, thumbnail_url = $5 WHERE id = $1`,
		b.ID, b.EgressID, b.LiveURL, b.VODURL, b.ThumbnailURL); err != nil {
		return nil, fmt.Errorf("persist egress artifacts: %w", err)
	}

	log.Info("broadcast live",
		slog.String("broadcast_id", b.ID),
		slog.String("egress_id", egressID),
		slog.Int("destinations", len(targets)))
	return b, nil
}

func (o *Orchestrator) resolveTitle(ctx context.Context, in StartInput) (string, error) {
	if in.Title != "" {
		return in.Title, nil
	}
	if in.EventID != "" && o.events != nil {
		title, err := o.events.EventTitle(ctx, in.EventID)
		if err != nil {
			return "", fmt.Errorf("resolve event title: %w", err)
		}
		if title != "" {
			return title, nil
		}
	}
	if in.TemplateID != "" {
		tpl, err := o.templates.Get(ctx, in.TemplateID)
		if err != nil {
			return "", fmt.Errorf("resolve template title: %w", err)
		}
		return tpl.Title, nil
	}
	return "", nil
}

// Stop runs the stop transition: halt the egress job, finalize every managed
// destination, and write ended_at exactly once. Per-destination finalize
// failures are accumulated and returned, but never prevent the terminal
// write; callers that receive an error should check the broadcast state
// before assuming it is still live.
func (o *Orchestrator) Stop(ctx context.Context, broadcastID string) error {
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "broadcast"))

	b, err := o.Get(ctx, broadcastID)
	if err != nil {
		return err
	}
	if b.EndedAt != nil {
		return ErrAlreadyEnded
	}

	var failures []error
	if b.EgressID != "" {
		if err := o.egress.Stop(ctx, b.EgressID); err != nil {
			log.Warn("egress stop failed", slog.String("egress_id", b.EgressID), slog.Any("err", err))
			failures = append(failures, fmt.Errorf("stop egress: %w", err))
		}
	}

	fanouts, err := o.FanOuts(ctx, broadcastID)
	if err != nil {
		return err
	}
	for _, fo := range fanouts {
		if err := o.finalizeOne(ctx, fo); err != nil {
			telemetry.FinalizeFailures.Inc()
			log.Warn("destination finalize failed",
				slog.String("destination", fo.DestinationID),
				slog.Any("err", err))
			failures = append(failures, fmt.Errorf("finalize destination %s: %w", fo.DestinationID, err))
		}
	}

	ended, err := o.markEnded(ctx, broadcastID)
	if err != nil {
		return err
	}
	if ended {
		telemetry.BroadcastsEnded.Inc()
		telemetry.LiveBroadcastsGauge.Dec()
		log.Info("broadcast ended", slog.String("broadcast_id", broadcastID), slog.Int("finalize_failures", len(failures)))
	}
	return errors.Join(failures...)
}

func (o *Orchestrator) finalizeOne(ctx context.Context, fo FanOut) error {
	// Raw ingest rows carry no external broadcast object; nothing to finalize.
	if fo.ExternalBroadcastID == "" {
		return nil
	}
	d, err := o.destinations.Get(ctx, fo.DestinationID)
	if err != nil {
		return err
	}
	creds, err := o.destinations.Credentials(ctx, fo.DestinationID)
	if err != nil {
		return err
	}
	ad, err := o.registry.Adapter(d.Provider)
	if err != nil {
		return err
	}
	return ad.Finalize(ctx, creds, destination.ExternalBroadcast{
		BroadcastID: fo.ExternalBroadcastID,
		StreamID:    fo.ExternalStreamID,
		ChatID:      fo.ExternalChatID,
	})
}

// markEnded writes ended_at only if it is still null. The conditional update
// is what makes the terminal transition exactly-once.
func (o *Orchestrator) markEnded(ctx context.Context, broadcastID string) (bool, error) {
	res, err := o.db.ExecContext(ctx,
		`UPDATE broadcasts SET ended_at = NOW() WHERE id = $1 AND ended_at IS NULL`, broadcastID)
	if err != nil {
		return false, fmt.Errorf("mark broadcast ended: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, ErrAlreadyEnded
	}
	return true, nil
}

// Get loads one broadcast row.
func (o *Orchestrator) Get(ctx context.Context, id string) (*Broadcast, error) {
	row := o.db.QueryRowContext(ctx, `SELECT id, profile_id, COALESCE(template_id,''),
		COALESCE(event_id,''), COALESCE(title,''), COALESCE(thumbnail_url,''),
		COALESCE(egress_id,''), COALESCE(live_url,''), COALESCE(vod_url,''),
		started_at, ended_at, created_at
		FROM broadcasts WHERE id = $1`, id)
	var b Broadcast
	err := row.Scan(&b.ID, &b.ProfileID, &b.TemplateID, &b.EventID, &b.Title, &b.ThumbnailURL,
		&b.EgressID, &b.LiveURL, &b.VODURL, &b.StartedAt, &b.EndedAt, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load broadcast: %w", err)
	}
	return &b, nil
}

// FanOuts lists the per-destination rows of a broadcast.
func (o *Orchestrator) FanOuts(ctx context.Context, broadcastID string) ([]FanOut, error) {
	rows, err := o.db.QueryContext(ctx, `SELECT id, broadcast_id, destination_id,
		COALESCE(external_broadcast_id,''), COALESCE(external_stream_id,''),
		COALESCE(external_chat_id,''), COALESCE(next_page_token,'')
		FROM broadcast_destinations WHERE broadcast_id = $1 ORDER BY created_at`, broadcastID)
	if err != nil {
		return nil, fmt.Errorf("list fan-out rows: %w", err)
	}
	defer rows.Close()
	var out []FanOut
	for rows.Next() {
		var fo FanOut
		if err := rows.Scan(&fo.ID, &fo.BroadcastID, &fo.DestinationID,
			&fo.ExternalBroadcastID, &fo.ExternalStreamID, &fo.ExternalChatID, &fo.NextPageToken); err != nil {
			return nil, err
		}
		out = append(out, fo)
	}
	return out, rows.Err()
}

// ListActive returns broadcasts that have started and not yet ended.
func (o *Orchestrator) ListActive(ctx context.Context) ([]Broadcast, error) {
	rows, err := o.db.QueryContext(ctx, `SELECT id, profile_id, COALESCE(template_id,''),
		COALESCE(event_id,''), COALESCE(title,''), COALESCE(thumbnail_url,''),
		COALESCE(egress_id,''), COALESCE(live_url,''), COALESCE(vod_url,''),
		started_at, ended_at, created_at
		FROM broadcasts WHERE started_at IS NOT NULL AND ended_at IS NULL ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("list active broadcasts: %w", err)
	}
	defer rows.Close()
	var out []Broadcast
	for rows.Next() {
		var b Broadcast
		if err := rows.Scan(&b.ID, &b.ProfileID, &b.TemplateID, &b.EventID, &b.Title, &b.ThumbnailURL,
			&b.EgressID, &b.LiveURL, &b.VODURL, &b.StartedAt, &b.EndedAt, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (o *Orchestrator) claimStart(roomID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.starting[roomID] {
		return false
	}
	o.starting[roomID] = true
	return true
}

func (o *Orchestrator) releaseStart(roomID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.starting, roomID)
}
