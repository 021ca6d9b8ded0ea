// Package orchestrator provides the queue scheduler at the heart of the
// engine.
//
// All session, queue, and vote state is owned by a single worker
// goroutine that processes one operation at a time in arrival order.
// Public methods submit a closure and wait for its completion with a
// bounded timeout; a caller that gives up waiting does not cancel the
// operation, which still completes and becomes visible to later reads.
// Playback-core callbacks enter the same queue, interleaved with
// user-triggered operations.
package orchestrator

import (
	"context"
	"math/rand"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/partybox/partybox/internal/app/admission"
	"github.com/partybox/partybox/internal/app/nickname"
	"github.com/partybox/partybox/internal/app/notification"
	"github.com/partybox/partybox/internal/app/playback"
	"github.com/partybox/partybox/internal/app/session"
	"github.com/partybox/partybox/internal/app/userqueue"
	"github.com/partybox/partybox/internal/app/vote"
	"github.com/partybox/partybox/internal/domain/playlist"
	"github.com/partybox/partybox/internal/domain/track"
)

// Config holds orchestrator configuration.
type Config struct {
	// SubmitTimeout bounds how long a caller waits for an operation.
	SubmitTimeout time.Duration
	// GraceDelay is the pause before re-checking transport state after a
	// play command, to let the player process it.
	GraceDelay time.Duration
	// FailureElapsed is the playback duration below which an ended track
	// is suspected to have failed.
	FailureElapsed time.Duration
	// MinTrackLength is the track length above which an early end is
	// implausible for a real listen.
	MinTrackLength time.Duration
	// LocalLibraryName is the provenance name for offline candidates.
	LocalLibraryName string
	// EasterEggURIs is the special track list: when one of these ends and
	// the queue is empty, the first entry plays next.
	EasterEggURIs []string
	// EnabledFilters toggles optional admission filters by name. A nil
	// map enables all of them; the played and queued checks always run.
	EnabledFilters map[string]bool
}

// op is one unit of work for the worker.
type op struct {
	fn   func()
	done chan struct{}
}

// Orchestrator derives the candidate queue, decides what plays next, and
// recovers from playback failures. It owns no session state itself; it
// mutates the session manager, vote ledger, and manual-queue limiter, and
// issues commands to the external playback core.
type Orchestrator struct {
	cfg Config

	core      playback.Core
	sessions  *session.Manager
	votes     *vote.Ledger
	manual    *userqueue.Limiter
	nicknames *nickname.Registry
	notifier  *notification.Manager
	chain     *admission.Chain

	rng *rand.Rand

	// lastSelected is the uri most recently inserted by selectNext, used
	// to attribute silent start failures.
	lastSelected string

	ops    chan op
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an orchestrator and starts its worker. The playback core's
// queue is put into consume mode so tracks leave it as they play.
func New(
	cfg Config,
	core playback.Core,
	sessions *session.Manager,
	votes *vote.Ledger,
	manual *userqueue.Limiter,
	nicknames *nickname.Registry,
	notifier *notification.Manager,
) *Orchestrator {
	if cfg.SubmitTimeout == 0 {
		cfg.SubmitTimeout = 15 * time.Second
	}
	if cfg.GraceDelay == 0 {
		cfg.GraceDelay = 300 * time.Millisecond
	}
	if cfg.FailureElapsed == 0 {
		cfg.FailureElapsed = 2 * time.Second
	}
	if cfg.MinTrackLength == 0 {
		cfg.MinTrackLength = 10 * time.Second
	}
	if cfg.LocalLibraryName == "" {
		cfg.LocalLibraryName = "Local Library"
	}

	ctx, cancel := context.WithCancel(context.Background())

	o := &Orchestrator{
		cfg:       cfg,
		core:      core,
		sessions:  sessions,
		votes:     votes,
		manual:    manual,
		nicknames: nicknames,
		notifier:  notifier,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		ops:       make(chan op, 16),
		ctx:       ctx,
		cancel:    cancel,
	}

	o.chain = admission.NewChain()
	o.chain.Add(admission.NewPlayedTrackFilter(sessions.WasPlayed))
	o.chain.Add(admission.NewQueuedTrackFilter(core))
	if cfg.EnabledFilters == nil || cfg.EnabledFilters["user_limit_filter"] {
		o.chain.Add(admission.NewUserLimitFilter(manual))
	}

	if err := core.SetConsume(ctx, true); err != nil {
		zlog.Warn().Msgf("failed to enable consume mode: %v", err)
	}

	go o.worker()
	return o
}

// Close stops the worker. Pending operations are abandoned.
func (o *Orchestrator) Close() {
	o.cancel()
	o.notifier.Close()
}

// worker drains the operation queue, one operation at a time.
func (o *Orchestrator) worker() {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("orchestrator worker panicked: %v", r)
			// Restart loop to prevent a zombie engine
			zlog.Info().Msg("restarting orchestrator worker")
			go o.worker()
		}
	}()

	for {
		select {
		case <-o.ctx.Done():
			return
		case op := <-o.ops:
			op.fn()
			close(op.done)
		}
	}
}

// submit queues fn on the worker and waits for it with a bounded timeout.
// A timeout abandons the wait only; an accepted operation still runs.
func (o *Orchestrator) submit(ctx context.Context, fn func()) error {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.SubmitTimeout)
	defer cancel()

	done := make(chan struct{})
	select {
	case o.ops <- op{fn: fn, done: done}:
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "operation not accepted")
	case <-o.ctx.Done():
		return ErrClosed
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "timed out waiting for operation")
	case <-o.ctx.Done():
		return ErrClosed
	}
}

// StartSession starts a session. With autoStart, the first candidate is
// queued and playback begins immediately.
func (o *Orchestrator) StartSession(ctx context.Context, skipThreshold int, playlists []playlist.Playlist, shuffle, autoStart bool) error {
	var opErr error
	err := o.submit(ctx, func() {
		if opErr = o.sessions.Start(skipThreshold, playlists, shuffle); opErr != nil {
			return
		}
		o.votes.Reset()
		o.lastSelected = ""
		o.refreshCandidates()
		o.notifier.Broadcast(notification.Event{
			Type:    notification.EventSessionStarted,
			Payload: o.sessions.Snapshot(),
		})
		if autoStart {
			if o.selectNext() {
				o.ensurePlaying()
			}
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

// UpdatePlaylists replaces the playlist selection of the active session
// and recomputes the candidate queue.
func (o *Orchestrator) UpdatePlaylists(ctx context.Context, playlists []playlist.Playlist) error {
	var opErr error
	err := o.submit(ctx, func() {
		if opErr = o.sessions.UpdatePlaylists(playlists); opErr != nil {
			return
		}
		remaining := o.refreshCandidates()
		zlog.Info().Msgf("session playlists updated: remaining=%d", remaining)
		o.notifier.Broadcast(notification.Event{
			Type:    notification.EventSessionPlaylistsUpdated,
			Payload: o.sessions.Snapshot(),
		})
	})
	if err != nil {
		return err
	}
	return opErr
}

// EndSession stops playback, clears the play queue, and ends the session.
func (o *Orchestrator) EndSession(ctx context.Context) error {
	var opErr error
	err := o.submit(ctx, func() {
		if err := o.core.Stop(o.ctx); err != nil {
			zlog.Warn().Msgf("failed to stop playback: %v", err)
		}
		if err := o.core.ClearQueue(o.ctx); err != nil {
			zlog.Warn().Msgf("failed to clear play queue: %v", err)
		}
		opErr = o.endSession()
	})
	if err != nil {
		return err
	}
	return opErr
}

// AddTrack queues a track on behalf of a user.
func (o *Orchestrator) AddTrack(ctx context.Context, fingerprint, uri string) error {
	var opErr error
	err := o.submit(ctx, func() {
		opErr = o.addTrack(fingerprint, uri)
	})
	if err != nil {
		return err
	}
	return opErr
}

// RemoveTrack withdraws a track the user previously added. The track is
// not denylisted; an owner removal is not a failure.
func (o *Orchestrator) RemoveTrack(ctx context.Context, fingerprint, uri string) error {
	var opErr error
	err := o.submit(ctx, func() {
		opErr = o.removeTrack(fingerprint, uri)
	})
	if err != nil {
		return err
	}
	return opErr
}

// CastVote registers a skip vote. When the tally reaches the session's
// skip threshold the track is removed from the queue and denylisted.
func (o *Orchestrator) CastVote(ctx context.Context, fingerprint, uri string) error {
	var opErr error
	err := o.submit(ctx, func() {
		opErr = o.castVote(fingerprint, uri)
	})
	if err != nil {
		return err
	}
	return opErr
}

// QueuedTracks returns the live play queue annotated for one user.
func (o *Orchestrator) QueuedTracks(ctx context.Context, fingerprint string) ([]track.QueueView, error) {
	var (
		views []track.QueueView
		opErr error
	)
	err := o.submit(ctx, func() {
		refs, err := o.core.QueueTracks(o.ctx)
		if err != nil {
			opErr = errors.Wrap(err, "failed to read play queue")
			return
		}
		views = make([]track.QueueView, 0, len(refs))
		for _, ref := range refs {
			views = append(views, track.QueueView{
				Ref:       ref,
				Votes:     o.votes.Votes(ref.URI),
				Voted:     o.votes.HasVoted(fingerprint, ref.URI),
				AddedByMe: o.manual.Owns(fingerprint, ref.URI),
			})
		}
	})
	if err != nil {
		return nil, err
	}
	return views, opErr
}

// Suggestions returns up to n unplayed, unqueued tracks from the
// persisted suggestion history, resolved through the playback core.
func (o *Orchestrator) Suggestions(ctx context.Context, n int) ([]track.Ref, error) {
	var (
		refs  []track.Ref
		opErr error
	)
	err := o.submit(ctx, func() {
		refs, opErr = o.suggestions(n)
	})
	if err != nil {
		return nil, err
	}
	return refs, opErr
}

// Snapshot returns an immutable view of the session.
func (o *Orchestrator) Snapshot(ctx context.Context) (session.Snapshot, error) {
	var snap session.Snapshot
	err := o.submit(ctx, func() {
		snap = o.sessions.Snapshot()
	})
	return snap, err
}

// VoteCooldown returns how many seconds until the user may vote again.
func (o *Orchestrator) VoteCooldown(ctx context.Context, fingerprint string) (int, error) {
	var seconds int
	err := o.submit(ctx, func() {
		seconds = o.votes.CooldownSeconds(fingerprint, time.Now().UTC())
	})
	return seconds, err
}

// Nickname returns the user's stable pseudonym.
func (o *Orchestrator) Nickname(fingerprint string) string {
	return o.nicknames.NicknameFor(fingerprint)
}

// HandleTrackEnded is the playback-core callback for a finished track.
// It is delivered as an ordinary serialized operation.
func (o *Orchestrator) HandleTrackEnded(ev playback.TrackEnded) {
	if err := o.submit(context.Background(), func() {
		o.onTrackEnded(ev)
	}); err != nil {
		zlog.Error().Msgf("track ended callback dropped: uri=%s err=%v", ev.URI, err)
	}
}

// HandleTrackStarted is the playback-core callback for a started track.
func (o *Orchestrator) HandleTrackStarted(uri string) {
	zlog.Info().Msgf("track playback started: uri=%s", uri)
}

// addTrack implements manual-queue admission. Runs on the worker.
func (o *Orchestrator) addTrack(fingerprint, uri string) error {
	result := o.chain.Execute(o.ctx, admission.Request{Fingerprint: fingerprint, URI: uri})
	if !result.Accepted {
		zlog.Info().Msgf("track addition rejected: uri=%s fingerprint=%s code=%s", uri, fingerprint, result.Code)
		switch result.Code {
		case admission.CodeAlreadyPlayed:
			return ErrAlreadyPlayed
		case admission.CodeAlreadyQueued:
			return ErrAlreadyQueued
		case admission.CodeUserQueueLimit:
			return ErrUserQueueLimit
		default:
			return errors.Newf("track addition rejected: %s", result.Code)
		}
	}

	if !o.manual.TryReserve(fingerprint, uri) {
		return ErrUserQueueLimit
	}

	if err := o.core.EnqueueAtEnd(o.ctx, uri); err != nil {
		o.manual.Release(uri)
		return errors.Wrap(err, "failed to enqueue track")
	}

	o.sessions.SetTrackSource(uri, track.SourceUser, o.nicknames.NicknameFor(fingerprint))
	zlog.Info().Msgf("user queued track: uri=%s fingerprint=%s", uri, fingerprint)
	return nil
}

// removeTrack implements owner withdrawal. Runs on the worker.
func (o *Orchestrator) removeTrack(fingerprint, uri string) error {
	if !o.manual.Owns(fingerprint, uri) {
		return ErrNotOwner
	}

	if err := o.core.RemoveByURI(o.ctx, uri); err != nil {
		zlog.Warn().Msgf("failed to remove track from play queue: uri=%s err=%v", uri, err)
	}

	o.votes.ClearTrack(uri)
	o.manual.Release(uri)
	zlog.Info().Msgf("user removed own track: uri=%s fingerprint=%s", uri, fingerprint)
	return nil
}

// castVote implements vote tallying and skip triggering. Runs on the
// worker, so a vote processed after a skip-triggering vote for the same
// track observes the cleared tally.
func (o *Orchestrator) castVote(fingerprint, uri string) error {
	if o.votes.HasVoted(fingerprint, uri) {
		return ErrAlreadyVoted
	}

	count, err := o.votes.RegisterVote(fingerprint, uri, time.Now().UTC())
	if err != nil {
		return err
	}

	threshold := o.sessions.SkipThreshold()
	zlog.Info().Msgf("vote added: uri=%s fingerprint=%s count=%d/%d", uri, fingerprint, count, threshold)

	if count >= threshold {
		zlog.Info().Msgf("skipping track due to votes: uri=%s", uri)
		if err := o.core.RemoveByURI(o.ctx, uri); err != nil {
			zlog.Warn().Msgf("failed to remove skipped track from play queue: uri=%s err=%v", uri, err)
		}
		o.votes.ClearTrack(uri)
		o.sessions.DenylistAdd(uri)
		o.manual.Release(uri)
		o.refreshCandidates()
	}

	o.notifier.Broadcast(notification.Event{
		Type:    notification.EventVoteAdded,
		Payload: struct{}{},
	})
	return nil
}

// onTrackEnded classifies a track end as a failure or normal completion
// and continues the session. Runs on the worker.
func (o *Orchestrator) onTrackEnded(ev playback.TrackEnded) {
	if !o.sessions.Started() {
		return
	}

	queueLen, err := o.core.QueueLength(o.ctx)
	if err != nil {
		zlog.Error().Msgf("failed to read queue length after track end: %v", err)
		queueLen = -1
	}

	// A genuine early failure leaves the queue empty (a manual skip to
	// something else does not), and the track was long enough that a
	// sub-2s listen is implausible.
	failure := ev.Elapsed >= 0 && ev.Elapsed < o.cfg.FailureElapsed &&
		queueLen == 0 &&
		(ev.Length == 0 || ev.Length > o.cfg.MinTrackLength)

	if failure {
		zlog.Warn().Msgf("track ended after only %v (length %v), treating as playback failure: uri=%s",
			ev.Elapsed, ev.Length, ev.URI)
		o.sessions.DenylistAdd(ev.URI)
	} else {
		o.sessions.MarkPlayed(ev.URI)
		o.votes.ClearTrack(ev.URI)
	}

	if o.isEasterEgg(ev.URI) && queueLen == 0 {
		if err := o.core.EnqueueAtFront(o.ctx, o.cfg.EasterEggURIs[0]); err != nil {
			zlog.Warn().Msgf("failed to queue easter egg track: %v", err)
			return
		}
		zlog.Info().Msg("Meow")
		o.ensurePlaying()
		return
	}

	if queueLen == 0 {
		if o.selectNext() {
			o.ensurePlaying()
		}
	}
}

// refreshCandidates recomputes the candidate queue and publishes the
// remaining uris to the session snapshot. Returns the candidate count.
func (o *Orchestrator) refreshCandidates() int {
	candidates := o.computeCandidates()
	uris := make([]string, len(candidates))
	for i, c := range candidates {
		uris[i] = c.Ref.URI
	}
	o.sessions.SetRemaining(uris)
	return len(candidates)
}

// computeCandidates derives the ordered candidate queue: the flattened
// union of the session playlists (or the local library when offline),
// shuffled if requested, with played and denylisted uris filtered out and
// duplicates dropped keeping the first occurrence.
func (o *Orchestrator) computeCandidates() []track.Candidate {
	var items []track.Candidate

	if o.sessions.Offline() {
		refs, err := o.core.BrowseLocalLibrary(o.ctx)
		if err != nil {
			zlog.Error().Msgf("failed to browse local library: %v", err)
		}
		for _, ref := range refs {
			items = append(items, track.Candidate{Ref: ref, Playlist: o.cfg.LocalLibraryName})
		}
	} else {
		for _, pl := range o.sessions.Playlists() {
			refs, err := o.core.PlaylistItems(o.ctx, pl.URI)
			if err != nil {
				zlog.Error().Msgf("failed to load playlist items: playlist=%s err=%v", pl.URI, err)
				continue
			}
			for _, ref := range refs {
				items = append(items, track.Candidate{Ref: ref, Playlist: pl.Name})
			}
		}
	}

	if o.sessions.Shuffle() {
		o.rng.Shuffle(len(items), func(i, j int) {
			items[i], items[j] = items[j], items[i]
		})
	}

	seen := make(map[string]struct{}, len(items))
	candidates := items[:0]
	for _, c := range items {
		if _, dup := seen[c.Ref.URI]; dup {
			continue
		}
		seen[c.Ref.URI] = struct{}{}
		if !o.sessions.CanPlay(c.Ref.URI) {
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates
}

// selectNext takes the head of the candidate queue and inserts it at the
// front of the play queue. An unresolvable head is denylisted and the
// next candidate tried; the loop is bounded because every failed attempt
// shrinks the candidate set. Returns false when the session concluded
// because no candidates remain.
func (o *Orchestrator) selectNext() bool {
	for {
		candidates := o.computeCandidates()

		uris := make([]string, len(candidates))
		for i, c := range candidates {
			uris[i] = c.Ref.URI
		}
		o.sessions.SetRemaining(uris)

		if len(candidates) == 0 {
			zlog.Info().Msg("no more tracks to play, ending session")
			if err := o.endSession(); err != nil {
				zlog.Error().Msgf("failed to end session cleanly: %v", err)
			}
			return false
		}

		head := candidates[0]
		if err := o.core.EnqueueAtFront(o.ctx, head.Ref.URI); err != nil {
			zlog.Warn().Msgf("failed to queue %s, denylisting and trying next: %v", head.Ref.URI, err)
			o.sessions.DenylistAdd(head.Ref.URI)
			continue
		}

		o.sessions.SetTrackSource(head.Ref.URI, track.SourcePlaylist, head.Playlist)
		o.lastSelected = head.Ref.URI
		zlog.Info().Msgf("auto-queued %s (%s) from %q", head.Ref.Name, head.Ref.URI, head.Playlist)
		return true
	}
}

// ensurePlaying starts the transport if it is stopped. If playback
// silently fails to start (transport still stopped with an empty queue
// after the grace delay), the last selected track is denylisted and the
// next candidate tried. Bounded by the shrinking candidate set.
func (o *Orchestrator) ensurePlaying() {
	for {
		state, err := o.core.TransportState(o.ctx)
		if err != nil {
			zlog.Error().Msgf("failed to read transport state: %v", err)
			return
		}
		if state != playback.TransportStopped {
			return
		}

		if err := o.core.Play(o.ctx); err != nil {
			zlog.Warn().Msgf("play command failed: %v", err)
		} else {
			zlog.Info().Msg("started playback")
		}

		// Let the player process the play command before re-checking.
		time.Sleep(o.cfg.GraceDelay)

		state, err = o.core.TransportState(o.ctx)
		if err != nil {
			zlog.Error().Msgf("failed to re-check transport state: %v", err)
			return
		}
		queueLen, err := o.core.QueueLength(o.ctx)
		if err != nil {
			zlog.Error().Msgf("failed to read queue length: %v", err)
			return
		}
		if state != playback.TransportStopped || queueLen > 0 {
			return
		}

		zlog.Warn().Msg("playback failed to start (track may be unavailable), trying next track")
		if o.lastSelected != "" {
			o.sessions.DenylistAdd(o.lastSelected)
			o.lastSelected = ""
		}
		if !o.selectNext() {
			return
		}
	}
}

// endSession persists the suggestion history, resets session state, and
// notifies subscribers. Used by both the explicit EndSession operation
// and natural conclusion when the candidate queue empties.
func (o *Orchestrator) endSession() error {
	err := o.sessions.End()
	if errors.Is(err, session.ErrNoActiveSession) {
		return err
	}
	o.votes.Reset()
	o.lastSelected = ""
	o.notifier.Broadcast(notification.Event{
		Type:    notification.EventSessionEnded,
		Payload: struct{}{},
	})
	return err
}

// suggestions samples unplayed, unqueued history uris and resolves them.
func (o *Orchestrator) suggestions(n int) ([]track.Ref, error) {
	var pool []string
	for _, uri := range o.sessions.Suggestions() {
		queued, err := o.core.QueueContains(o.ctx, uri)
		if err != nil {
			zlog.Warn().Msgf("suggestion queue check failed: uri=%s err=%v", uri, err)
			continue
		}
		if !queued {
			pool = append(pool, uri)
		}
	}

	if len(pool) == 0 {
		return nil, nil
	}
	if n > len(pool) {
		n = len(pool)
	}

	sampled := make([]string, 0, n)
	for _, idx := range o.rng.Perm(len(pool))[:n] {
		sampled = append(sampled, pool[idx])
	}

	refs, err := o.core.LookupTracks(o.ctx, sampled)
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up suggestions")
	}
	return refs, nil
}

func (o *Orchestrator) isEasterEgg(uri string) bool {
	for _, egg := range o.cfg.EasterEggURIs {
		if uri == egg {
			return true
		}
	}
	return false
}
