// Package session provides the session manager.
package session

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/partybox/partybox/internal/app/userqueue"
	"github.com/partybox/partybox/internal/domain/playlist"
	"github.com/partybox/partybox/internal/domain/track"
)

var (
	ErrNoActiveSession      = errors.New("no active session")
	ErrNoPlaylistsSelected  = errors.New("at least one playlist must be selected")
	ErrInvalidSkipThreshold = errors.New("skip threshold must be at least 1")
)

// Manager owns the session lifecycle and every collection scoped to it:
// the played set, the denylist, manual-queue bookkeeping, track
// provenance, and the persisted suggestion history.
//
// The session is a singleton reset in place at session end, never
// destroyed. Access is serialized by the orchestrator; the mutex guards
// read-only snapshots taken outside the worker.
type Manager struct {
	mu sync.RWMutex

	started       bool
	startTime     *time.Time
	skipThreshold int
	playlists     []playlist.Playlist
	shuffle       bool
	offline       bool

	played    []string
	playedSet map[string]struct{}
	denylist  map[string]struct{}
	remaining []string
	sources   map[string]track.Source

	seedDenylist []string
	manual       *userqueue.Limiter
	history      []string
	store        *HistoryStore
}

// NewManager creates a session manager. seedDenylist is the set of uris
// permanently excluded from selection; offline selects the local-library
// candidate source for all sessions.
func NewManager(store *HistoryStore, manual *userqueue.Limiter, seedDenylist []string, offline bool) *Manager {
	m := &Manager{
		seedDenylist: seedDenylist,
		manual:       manual,
		store:        store,
		offline:      offline,
	}
	m.resetLocked()
	return m
}

// Start begins a session. The suggestion history is loaded from durable
// storage; all ephemeral collections start empty and the denylist is
// reset to its seed set.
func (m *Manager) Start(skipThreshold int, playlists []playlist.Playlist, shuffle bool) error {
	if skipThreshold < 1 {
		return ErrInvalidSkipThreshold
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetLocked()

	now := time.Now().UTC()
	m.started = true
	m.startTime = &now
	m.skipThreshold = skipThreshold
	m.playlists = playlists
	m.shuffle = shuffle

	history, err := m.store.Load()
	if err != nil {
		zlog.Error().Msgf("failed to load queue history, starting with none: %v", err)
		history = nil
	}
	m.history = history

	zlog.Info().Msgf("session started: skip_threshold=%d playlists=%d shuffle=%t offline=%t",
		skipThreshold, len(playlists), shuffle, m.offline)
	return nil
}

// UpdatePlaylists replaces the session's playlist selection, preserving
// all other session state. The caller must recompute the candidate queue
// afterward.
func (m *Manager) UpdatePlaylists(playlists []playlist.Playlist) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return ErrNoActiveSession
	}
	if len(playlists) == 0 {
		return ErrNoPlaylistsSelected
	}

	zlog.Info().Msgf("session playlists updated: old=%v new=%v",
		playlist.Names(m.playlists), playlist.Names(playlists))
	m.playlists = playlists
	return nil
}

// End appends this session's manually-queued, non-denylisted uris to the
// suggestion history, persists it, and resets all ephemeral state. A
// persistence failure is returned but the reset still happens.
func (m *Manager) End() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return ErrNoActiveSession
	}

	history := m.history
	for _, uri := range m.manual.All() {
		if _, banned := m.denylist[uri]; !banned {
			history = append(history, uri)
		}
	}

	saveErr := m.store.Save(history)
	if saveErr != nil {
		zlog.Error().Msgf("failed to persist queue history: %v", saveErr)
	}

	m.resetLocked()
	zlog.Info().Msg("session ended")
	return saveErr
}

// MarkPlayed records a successfully played track and drops it from all
// manual-queue bookkeeping.
func (m *Manager) MarkPlayed(uri string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.playedSet[uri]; !ok {
		m.played = append(m.played, uri)
		m.playedSet[uri] = struct{}{}
	}
	m.manual.Release(uri)
}

// DenylistAdd excludes a uri from selection for the rest of the session.
// Idempotent.
func (m *Manager) DenylistAdd(uri string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.denylist[uri]; !ok {
		m.denylist[uri] = struct{}{}
		zlog.Info().Msgf("added to denylist: uri=%s", uri)
	}
}

// Denylisted reports whether the uri is excluded from selection.
func (m *Manager) Denylisted(uri string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.denylist[uri]
	return ok
}

// CanPlay reports whether the uri is neither played nor denylisted.
func (m *Manager) CanPlay(uri string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.playedSet[uri]; ok {
		return false
	}
	_, banned := m.denylist[uri]
	return !banned
}

// WasPlayed reports whether the uri was played this session.
func (m *Manager) WasPlayed(uri string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.playedSet[uri]
	return ok
}

// SetTrackSource records provenance for a queued uri, overwriting any
// previous entry.
func (m *Manager) SetTrackSource(uri string, kind track.SourceKind, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[uri] = track.Source{Kind: kind, Name: name}
}

// SetRemaining stores the current candidate uris for snapshot use.
func (m *Manager) SetRemaining(uris []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remaining = uris
}

// Started reports whether a session is active.
func (m *Manager) Started() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started
}

// SkipThreshold returns the votes required to skip a track.
func (m *Manager) SkipThreshold() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.skipThreshold
}

// Playlists returns the session's playlist selection.
func (m *Manager) Playlists() []playlist.Playlist {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]playlist.Playlist, len(m.playlists))
	copy(out, m.playlists)
	return out
}

// Shuffle reports whether candidate order is shuffled.
func (m *Manager) Shuffle() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.shuffle
}

// Offline reports whether candidates come from the local library.
func (m *Manager) Offline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.offline
}

// Suggestions returns history uris that have not been played this
// session, oldest first.
func (m *Manager) Suggestions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for _, uri := range m.history {
		if _, played := m.playedSet[uri]; !played {
			out = append(out, uri)
		}
	}
	return out
}

// Snapshot is an immutable view of the session for display and API use.
type Snapshot struct {
	Started                 bool                    `json:"started"`
	StartTime               *time.Time              `json:"startTime"`
	SkipThreshold           int                     `json:"skipThreshold"`
	Playlists               []playlist.Playlist     `json:"playlists"`
	Shuffle                 bool                    `json:"shuffle"`
	Offline                 bool                    `json:"offline"`
	PlayedTracks            []string                `json:"playedTracks"`
	RemainingPlaylistTracks []string                `json:"remainingPlaylistTracks"`
	TrackSources            map[string]track.Source `json:"trackSources"`
}

// Snapshot returns a copy of all session state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	played := make([]string, len(m.played))
	copy(played, m.played)
	remaining := make([]string, len(m.remaining))
	copy(remaining, m.remaining)
	playlists := make([]playlist.Playlist, len(m.playlists))
	copy(playlists, m.playlists)
	sources := make(map[string]track.Source, len(m.sources))
	for uri, src := range m.sources {
		sources[uri] = src
	}

	return Snapshot{
		Started:                 m.started,
		StartTime:               m.startTime,
		SkipThreshold:           m.skipThreshold,
		Playlists:               playlists,
		Shuffle:                 m.shuffle,
		Offline:                 m.offline,
		PlayedTracks:            played,
		RemainingPlaylistTracks: remaining,
		TrackSources:            sources,
	}
}

// resetLocked restores the idle state: session stopped, ephemeral
// collections empty, denylist back to its seed set.
func (m *Manager) resetLocked() {
	m.started = false
	m.startTime = nil
	m.skipThreshold = 1
	m.playlists = nil
	m.shuffle = false
	m.played = nil
	m.playedSet = make(map[string]struct{})
	m.remaining = nil
	m.sources = make(map[string]track.Source)
	m.history = nil
	m.denylist = make(map[string]struct{}, len(m.seedDenylist))
	for _, uri := range m.seedDenylist {
		m.denylist[uri] = struct{}{}
	}
	m.manual.Reset()
}
