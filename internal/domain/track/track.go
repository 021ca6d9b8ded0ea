// Package track provides the track domain entities.
package track

import "time"

// Ref is a lightweight reference to a track known to the playback core.
// Length is zero when the backend does not report a duration.
type Ref struct {
	URI    string        `json:"uri"`
	Name   string        `json:"name"`
	Length time.Duration `json:"length"`
}

// SourceKind describes why a track is in the queue.
type SourceKind string

const (
	SourcePlaylist SourceKind = "playlist"
	SourceUser     SourceKind = "user"
)

// Source records the provenance of a queued track: the playlist it was
// drawn from, or the nickname of the user who requested it.
type Source struct {
	Kind SourceKind `json:"type"`
	Name string     `json:"name"`
}

// Candidate is a track eligible for automatic selection, tagged with the
// name of the playlist (or library) it came from.
type Candidate struct {
	Ref      Ref
	Playlist string
}

// QueueView is the per-user view of one queued track.
type QueueView struct {
	Ref       Ref  `json:"info"`
	Votes     int  `json:"votes"`
	Voted     bool `json:"voted"`
	AddedByMe bool `json:"added_by_me"`
}
