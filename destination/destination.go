// Package destination models linked streaming accounts and the per-provider
// adapters that create, bind and finalize remote live broadcasts on them.
package destination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/onairlab/studio-core/crypto"
)

// Provider identifies a streaming platform.
type Provider string

const (
	ProviderYouTube Provider = "youtube"
	ProviderTwitch  Provider = "twitch"
	ProviderRTMP    Provider = "rtmp"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderYouTube, ProviderTwitch, ProviderRTMP:
		return true
	}
	return false
}

// ErrAlreadyLinked is returned when the same external account is linked twice
// for one profile and provider.
var ErrAlreadyLinked = errors.New("destination already linked")

// ErrNotFound is returned when a destination id does not exist.
var ErrNotFound = errors.New("destination not found")

// Destination is one linked streaming account. Credentials live encrypted in
// the store and are only materialized through the vault.
type Destination struct {
	ID          string    `json:"id"`
	ProfileID   string    `json:"profile_id"`
	Provider    Provider  `json:"provider"`
	ExternalID  string    `json:"external_id"`
	DisplayName string    `json:"display_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ExternalBroadcast is what a provider hands back when a broadcast is created
// on its side. IngestURL is always set; the ids depend on the provider.
type ExternalBroadcast struct {
	IngestURL   string
	BroadcastID string
	StreamID    string
	ChatID      string
	WatchURL    string
}

// BroadcastParams carries the studio-side metadata a provider needs to create
// its remote broadcast object.
type BroadcastParams struct {
	Title        string
	Description  string
	ThumbnailURL string
	ScheduledFor time.Time
}

// Adapter creates and finalizes broadcasts on one provider. Implementations
// must tolerate Finalize being called after a partially failed start.
type Adapter interface {
	Provider() Provider
	// CreateBroadcast provisions the remote broadcast and returns the ingest
	// endpoint the egress job should push to.
	CreateBroadcast(ctx context.Context, creds crypto.Credentials, p BroadcastParams) (ExternalBroadcast, error)
	// Finalize transitions the remote broadcast to its ended state. Providers
	// without a lifecycle API implement this as a no-op.
	Finalize(ctx context.Context, creds crypto.Credentials, eb ExternalBroadcast) error
}

// Registry resolves adapters by provider.
type Registry struct {
	adapters map[Provider]Adapter
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[Provider]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Provider()] = a
	}
	return r
}

// Adapter returns the adapter for a provider.
func (r *Registry) Adapter(p Provider) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %q", p)
	}
	return a, nil
}
