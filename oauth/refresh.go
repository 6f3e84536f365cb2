// Package oauth provides token refresh scheduling for linked destinations
// whose credentials are sealed in the destinations table. It performs jittered
// checks and refreshes rows whose expiry falls within a configured window.
package oauth

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/onairlab/studio-core/crypto"
	"github.com/onairlab/studio-core/destination"
)

// RefreshFunc performs a provider-specific refresh grant and returns
// (access, refresh, expiry, scopes).
type RefreshFunc func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error)

// StartRefresher launches a goroutine that periodically scans one provider's
// destinations and refreshes credentials nearing expiry.
// interval: how often to wake up and check.
// window: refresh when remaining lifetime <= window.
func StartRefresher(ctx context.Context, store *destination.Store, provider destination.Provider,
	interval, window time.Duration, fn RefreshFunc) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	log := slog.With(slog.String("component", "oauth"), slog.String("provider", string(provider)))
	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(interval / 2)))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			// Per-iteration jitter (about 20% of interval) for scheduling diversity.
			jitterRange := int64(interval / 5)
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			nextSleep := interval + jitter
			if nextSleep < interval/2 {
				nextSleep = interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}
			refreshExpiring(ctx, store, provider, window, fn, log)
		}
	}()
}

func refreshExpiring(ctx context.Context, store *destination.Store, provider destination.Provider,
	window time.Duration, fn RefreshFunc, log *slog.Logger) {
	dests, err := store.ExpiringCredentials(ctx, window)
	if err != nil {
		log.Warn("expiring credential scan failed", slog.Any("err", err))
		return
	}
	for _, d := range dests {
		if d.Provider != provider {
			continue
		}
		if err := RefreshOne(ctx, store, d.ID, fn); err != nil {
			log.Warn("token refresh failed", slog.String("destination", d.ID), slog.Any("err", err))
			continue
		}
		log.Info("token refreshed", slog.String("destination", d.ID))
	}
}

// RefreshOne refreshes a single destination's credentials and re-seals them.
func RefreshOne(ctx context.Context, store *destination.Store, destinationID string, fn RefreshFunc) error {
	creds, err := store.Credentials(ctx, destinationID)
	if err != nil {
		return err
	}
	if creds.RefreshToken == "" {
		return nil
	}
	// Small pre-refresh jitter to avoid stampedes when many pods see same expiry.
	//nolint:gosec // G404: math/rand is sufficient for jitter, not used for security
	pre := time.Duration(rand.Int63n(int64(2 * time.Second)))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(pre):
	}
	refreshCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	access, refresh, expiry, scopes, err := fn(refreshCtx, creds.RefreshToken)
	if err != nil {
		return err
	}
	if refresh == "" {
		refresh = creds.RefreshToken
	}
	if scopes == "" {
		scopes = creds.Scopes
	}
	return store.UpdateCredentials(ctx, destinationID, crypto.Credentials{
		AccessToken:  access,
		RefreshToken: refresh,
		Expiry:       expiry,
		Scopes:       scopes,
		IngestURL:    creds.IngestURL,
		StreamKey:    creds.StreamKey,
	})
}
