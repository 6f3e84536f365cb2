package comments

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/onairlab/studio-core/telemetry"
)

// ChatSource fetches one page of chat messages for an external chat id. full
// reports whether the page was complete, meaning another page should be
// fetched immediately.
type ChatSource interface {
	FetchPage(ctx context.Context, chatID, pageToken string) (msgs []Message, nextToken string, full bool, err error)
}

// Poller polls one fan-out row's chat feed on a fixed interval. The cursor is
// checkpointed after each successful batch; a restarted poller resumes from
// the stored cursor and relies on external-id dedup to absorb replays.
type Poller struct {
	DB       *sql.DB
	Store    *Store
	Source   ChatSource
	FanOutID string
	ChatID   string
	Interval time.Duration
}

// Run polls until the parent broadcast ends or ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	log := slog.With(slog.String("component", "comments"), slog.String("fanout_id", p.FanOutID))
	interval := p.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	telemetry.ActivePollersGauge.Inc()
	defer telemetry.ActivePollersGauge.Dec()
	log.Info("comment poller starting", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("comment poller stopped")
			return
		case <-ticker.C:
			ended, err := p.broadcastEnded(ctx)
			if err != nil {
				log.Warn("poller end check failed", slog.Any("err", err))
				continue
			}
			if ended {
				log.Info("broadcast ended, poller exiting")
				return
			}
			if err := p.pollOnce(ctx); err != nil {
				telemetry.CommentPollErrors.Inc()
				log.Warn("comment poll cycle failed", slog.Any("err", err))
			}
		}
	}
}

// pollOnce drains pages starting at the stored cursor until a partial page.
func (p *Poller) pollOnce(ctx context.Context) error {
	token, err := p.loadCursor(ctx)
	if err != nil {
		return err
	}
	for {
		msgs, next, full, err := p.Source.FetchPage(ctx, p.ChatID, token)
		if err != nil {
			return fmt.Errorf("fetch chat page: %w", err)
		}
		inserted, err := p.Store.InsertBatch(ctx, p.FanOutID, msgs)
		if err != nil {
			return err
		}
		if inserted > 0 {
			telemetry.CommentsIngested.Add(float64(inserted))
		}
		// Checkpoint only after the batch landed, so a crash replays the page
		// instead of skipping it.
		if err := p.saveCursor(ctx, next); err != nil {
			return err
		}
		token = next
		if !full {
			return nil
		}
	}
}

func (p *Poller) loadCursor(ctx context.Context) (string, error) {
	var token string
	err := p.DB.QueryRowContext(ctx,
		`SELECT COALESCE(next_page_token,'') FROM broadcast_destinations WHERE id = $1`,
		p.FanOutID).Scan(&token)
	if err != nil {
		return "", fmt.Errorf("load cursor: %w", err)
	}
	return token, nil
}

func (p *Poller) saveCursor(ctx context.Context, token string) error {
	_, err := p.DB.ExecContext(ctx,
		`UPDATE broadcast_destinations SET next_page_token = $2 WHERE id = $1`,
		p.FanOutID, token)
	if err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}

func (p *Poller) broadcastEnded(ctx context.Context) (bool, error) {
	var ended sql.NullTime
	err := p.DB.QueryRowContext(ctx, `SELECT b.ended_at FROM broadcasts b
		JOIN broadcast_destinations bd ON bd.broadcast_id = b.id
		WHERE bd.id = $1`, p.FanOutID).Scan(&ended)
	if err != nil {
		return false, fmt.Errorf("check broadcast end: %w", err)
	}
	return ended.Valid, nil
}
