package comments

import (
	"context"
	"log/slog"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onairlab/studio-core/telemetry"
)

// StartTwitchRecorder records a channel's IRC chat into the comment store for
// one fan-out row. Twitch pushes messages instead of exposing a cursor feed,
// so the recorder runs for the whole broadcast and blocks until ctx ends.
// Reading chat anonymously uses the justinfan convention; a bot account with
// an oauth token works the same way.
func StartTwitchRecorder(ctx context.Context, store *Store, fanOutID, channel, botUsername, botOAuth string) {
	log := slog.With(slog.String("component", "comments"),
		slog.String("channel", channel), slog.String("fanout_id", fanOutID))
	if channel == "" {
		log.Info("no channel login on fan-out row; skipping chat recorder")
		return
	}

	var client *twitch.Client
	if botUsername != "" && botOAuth != "" {
		client = twitch.NewClient(botUsername, botOAuth)
	} else {
		client = twitch.NewAnonymousClient()
	}

	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		_, isMod := msg.User.Badges["moderator"]
		_, isBroadcaster := msg.User.Badges["broadcaster"]
		inserted, err := store.Insert(ctx, fanOutID, Message{
			ExternalID:  msg.ID,
			Author:      msg.User.DisplayName,
			Content:     msg.Message,
			IsAdmin:     isMod || isBroadcaster,
			PublishedAt: msg.Time.UTC(),
		})
		if err != nil {
			log.Error("failed to insert chat message", slog.Any("err", err))
			return
		}
		if inserted {
			telemetry.CommentsIngested.Inc()
		}
	})

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		_ = client.Disconnect()
		close(done)
	}()

	client.Join(channel)
	log.Info("twitch chat recorder connecting")
	if err := client.Connect(); err != nil {
		log.Error("twitch chat connect error", slog.Any("err", err))
	}
	<-done
}
