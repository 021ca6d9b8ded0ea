// Package playback defines the boundary to the external playback core.
//
// The engine never touches audio itself: it drives a player (Mopidy in
// production) through this interface and reacts to the callbacks the
// player delivers. Implementations live under internal/infra.
package playback

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/partybox/partybox/internal/domain/track"
)

// ErrUnresolvable is returned by enqueue operations when the playback
// core rejects a uri (for example a remote item that cannot be resolved).
var ErrUnresolvable = errors.New("track could not be resolved by the playback core")

// TransportState is the player's transport state.
type TransportState int

const (
	TransportStopped TransportState = iota
	TransportPlaying
)

// String returns the string representation of the transport state.
func (s TransportState) String() string {
	switch s {
	case TransportStopped:
		return "stopped"
	case TransportPlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// Core is the playback engine the orchestrator schedules against.
type Core interface {
	// EnqueueAtFront inserts a track at the head of the play queue.
	// Returns ErrUnresolvable if the core rejects the uri.
	EnqueueAtFront(ctx context.Context, uri string) error
	// EnqueueAtEnd appends a track to the play queue.
	EnqueueAtEnd(ctx context.Context, uri string) error
	// RemoveByURI removes all queue entries with the given uri.
	RemoveByURI(ctx context.Context, uri string) error
	// QueueLength returns the number of tracks in the play queue.
	QueueLength(ctx context.Context) (int, error)
	// QueueContains reports whether the play queue holds the given uri.
	QueueContains(ctx context.Context, uri string) (bool, error)
	// QueueTracks returns the tracks currently in the play queue, in order.
	QueueTracks(ctx context.Context) ([]track.Ref, error)
	// TransportState returns the player's transport state.
	TransportState(ctx context.Context) (TransportState, error)
	// Play starts playback of the queue head.
	Play(ctx context.Context) error
	// Stop halts the transport.
	Stop(ctx context.Context) error
	// ClearQueue removes every track from the play queue.
	ClearQueue(ctx context.Context) error
	// SetConsume puts the player queue into consume mode, where tracks
	// leave the queue as they play.
	SetConsume(ctx context.Context, on bool) error
	// BrowseLocalLibrary lists the player's local library tracks.
	BrowseLocalLibrary(ctx context.Context) ([]track.Ref, error)
	// PlaylistItems returns the items of a playlist, in playlist order.
	PlaylistItems(ctx context.Context, playlistURI string) ([]track.Ref, error)
	// LookupTracks resolves uris to full track references. Unresolvable
	// uris are silently absent from the result.
	LookupTracks(ctx context.Context, uris []string) ([]track.Ref, error)
}

// TrackEnded is the callback payload for a finished (or failed) track.
// Elapsed is how long the track actually played; Length is the track's
// reported duration, zero if unknown.
type TrackEnded struct {
	URI     string
	Length  time.Duration
	Elapsed time.Duration
}
