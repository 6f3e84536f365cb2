package comments

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/onairlab/studio-core/db"
	"github.com/onairlab/studio-core/destination"
)

// Supervisor watches live broadcasts and keeps one chat ingester per fan-out
// row with a chat id: a cursor poller for YouTube, an IRC recorder for Twitch.
// Ingesters for ended broadcasts are cancelled on the next scan.
type Supervisor struct {
	DB           *sql.DB
	Store        *Store
	Destinations *destination.Store
	YouTube      *destination.YouTubeAdapter
	ScanInterval time.Duration
	PollInterval time.Duration
	BotUsername  string
	BotOAuth     string

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

type chatRow struct {
	fanOutID      string
	destinationID string
	provider      destination.Provider
	chatID        string
}

// Run scans until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	log := slog.With(slog.String("component", "comments"))
	interval := s.ScanInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s.mu.Lock()
	if s.running == nil {
		s.running = make(map[string]context.CancelFunc)
	}
	s.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Info("comment supervisor starting", slog.Duration("scan_interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			log.Info("comment supervisor stopped")
			return
		case <-ticker.C:
			if err := s.scan(ctx); err != nil {
				log.Warn("comment supervisor scan failed", slog.Any("err", err))
				continue
			}
			if err := db.SetKV(ctx, s.DB, "comment_supervisor_heartbeat", time.Now().UTC().Format(time.RFC3339)); err != nil {
				log.Warn("heartbeat write failed", slog.Any("err", err))
			}
		}
	}
}

func (s *Supervisor) scan(ctx context.Context) error {
	rows, err := s.DB.QueryContext(ctx, `SELECT bd.id, bd.destination_id, d.provider, bd.external_chat_id
		FROM broadcast_destinations bd
		JOIN broadcasts b ON b.id = bd.broadcast_id
		JOIN destinations d ON d.id = bd.destination_id
		WHERE b.ended_at IS NULL AND COALESCE(bd.external_chat_id,'') <> ''`)
	if err != nil {
		return err
	}
	defer rows.Close()

	live := make(map[string]chatRow)
	for rows.Next() {
		var r chatRow
		var provider string
		if err := rows.Scan(&r.fanOutID, &r.destinationID, &provider, &r.chatID); err != nil {
			return err
		}
		r.provider = destination.Provider(provider)
		live[r.fanOutID] = r
	}
	if err := rows.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cancel := range s.running {
		if _, ok := live[id]; !ok {
			cancel()
			delete(s.running, id)
		}
	}
	for id, r := range live {
		if _, ok := s.running[id]; ok {
			continue
		}
		runCtx, cancel := context.WithCancel(ctx)
		s.running[id] = cancel
		go s.ingest(runCtx, r)
	}
	return nil
}

func (s *Supervisor) ingest(ctx context.Context, r chatRow) {
	switch r.provider {
	case destination.ProviderYouTube:
		creds, err := s.Destinations.Credentials(ctx, r.destinationID)
		if err != nil {
			slog.Warn("cannot load credentials for chat poller",
				slog.String("destination", r.destinationID), slog.Any("err", err),
				slog.String("component", "comments"))
			return
		}
		p := &Poller{
			DB:       s.DB,
			Store:    s.Store,
			Source:   &YouTubeChatSource{Adapter: s.YouTube, Creds: creds},
			FanOutID: r.fanOutID,
			ChatID:   r.chatID,
			Interval: s.PollInterval,
		}
		p.Run(ctx)
	case destination.ProviderTwitch:
		StartTwitchRecorder(ctx, s.Store, r.fanOutID, r.chatID, s.BotUsername, s.BotOAuth)
	}
}

func (s *Supervisor) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cancel := range s.running {
		cancel()
		delete(s.running, id)
	}
}
