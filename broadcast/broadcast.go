// Package broadcast drives the live session state machine: validate source
// tracks, fan a broadcast out to linked destinations transactionally, start
// the egress job, and tear everything down exactly once on stop.
package broadcast

import (
	"errors"
	"time"
)

// State describes where a broadcast sits in its lifecycle. Ended is terminal
// per broadcast id; rows are never reused.
type State string

const (
	StateIdle           State = "idle"
	StateAwaitingTracks State = "awaiting_tracks"
	StatePublishing     State = "publishing"
	StateLive           State = "live"
	StateStopping       State = "stopping"
	StateEnded          State = "ended"
)

// ErrAlreadyEnded is returned on a second stop attempt for the same broadcast.
var ErrAlreadyEnded = errors.New("broadcast already ended")

// ErrNotFound is returned when a broadcast id does not exist.
var ErrNotFound = errors.New("broadcast not found")

// ErrMissingTracks is returned when the room lacks the composited video or
// mixed audio track. Not retried; the caller re-attempts once tracks publish.
var ErrMissingTracks = errors.New("composite video and mixed audio tracks required")

// ErrNoDestinations is returned when neither a linked destination nor a
// linked event is available to broadcast to.
var ErrNoDestinations = errors.New("at least one destination or linked event required")

// ErrStartInProgress guards the awaiting-tracks window: a second start for the
// same room while the first is still publishing is rejected rather than
// double-published.
var ErrStartInProgress = errors.New("broadcast start already in progress for room")

// Broadcast is one go-live session. EndedAt is written exactly once; a row
// with EndedAt set is immutable.
type Broadcast struct {
	ID           string     `json:"id"`
	ProfileID    string     `json:"profile_id"`
	TemplateID   string     `json:"template_id,omitempty"`
	EventID      string     `json:"event_id,omitempty"`
	Title        string     `json:"title"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty"`
	EgressID     string     `json:"egress_id,omitempty"`
	LiveURL      string     `json:"live_url,omitempty"`
	VODURL       string     `json:"vod_url,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// State derives the lifecycle state from the persisted row.
func (b *Broadcast) State() State {
	switch {
	case b.EndedAt != nil:
		return StateEnded
	case b.EgressID != "":
		return StateLive
	case b.StartedAt != nil:
		return StatePublishing
	default:
		return StateIdle
	}
}

// FanOut is one broadcast-to-destination row. The external ids come from the
// provider adapter; NextPageToken is the comment poller's checkpoint cursor.
type FanOut struct {
	ID                  string `json:"id"`
	BroadcastID         string `json:"broadcast_id"`
	DestinationID       string `json:"destination_id"`
	ExternalBroadcastID string `json:"external_broadcast_id,omitempty"`
	ExternalStreamID    string `json:"external_stream_id,omitempty"`
	ExternalChatID      string `json:"external_chat_id,omitempty"`
	NextPageToken       string `json:"-"`
}
