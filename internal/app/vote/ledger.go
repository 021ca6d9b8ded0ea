// Package vote provides the skip-vote ledger with per-user rate limiting.
package vote

import (
	"fmt"
	"time"
)

// RateLimitError reports that a user has exhausted their vote budget for
// the current window. RetryAfter is how long until the next vote is
// permitted.
type RateLimitError struct {
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("vote limit of %d per %v exceeded, retry in %ds",
		e.Limit, e.Window, int(e.RetryAfter.Seconds()))
}

// SecondsRemaining returns the cooldown rounded down to whole seconds,
// never negative.
func (e *RateLimitError) SecondsRemaining() int {
	s := int(e.RetryAfter.Seconds())
	if s < 0 {
		return 0
	}
	return s
}

// Ledger tracks skip votes per track and vote timestamps per user.
//
// Vote counts are derived from the voter sets, so a track's count always
// equals the number of distinct users who voted on it. The ledger is not
// safe for concurrent use; the orchestrator serializes access.
type Ledger struct {
	limitCount int
	window     time.Duration

	voters    map[string]map[string]struct{} // uri -> set of fingerprints
	voteTimes map[string][]time.Time         // fingerprint -> recent vote times
}

// NewLedger creates a ledger allowing limitCount votes per user within
// the given window.
func NewLedger(limitCount int, window time.Duration) *Ledger {
	return &Ledger{
		limitCount: limitCount,
		window:     window,
		voters:     make(map[string]map[string]struct{}),
		voteTimes:  make(map[string][]time.Time),
	}
}

// Votes returns the current vote count for a track.
func (l *Ledger) Votes(uri string) int {
	return len(l.voters[uri])
}

// HasVoted reports whether the user has already voted on the track.
func (l *Ledger) HasVoted(fingerprint, uri string) bool {
	_, ok := l.voters[uri][fingerprint]
	return ok
}

// RegisterVote records a vote and returns the track's new count.
//
// A duplicate vote from the same user on the same track is a no-op that
// returns the current count without consuming rate-limit budget. A user
// over their sliding-window budget gets a *RateLimitError.
func (l *Ledger) RegisterVote(fingerprint, uri string, now time.Time) (int, error) {
	if l.HasVoted(fingerprint, uri) {
		return l.Votes(uri), nil
	}

	recent := l.pruned(fingerprint, now)
	if len(recent) >= l.limitCount {
		earliest := recent[0]
		for _, t := range recent[1:] {
			if t.Before(earliest) {
				earliest = t
			}
		}
		retry := earliest.Add(l.window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return 0, &RateLimitError{Limit: l.limitCount, Window: l.window, RetryAfter: retry}
	}

	l.voteTimes[fingerprint] = append(recent, now)

	set, ok := l.voters[uri]
	if !ok {
		set = make(map[string]struct{})
		l.voters[uri] = set
	}
	set[fingerprint] = struct{}{}

	return len(set), nil
}

// CooldownSeconds returns how many seconds until the user may vote again,
// or 0 if they are under the limit.
func (l *Ledger) CooldownSeconds(fingerprint string, now time.Time) int {
	recent := l.pruned(fingerprint, now)
	l.voteTimes[fingerprint] = recent

	if len(recent) < l.limitCount {
		return 0
	}

	earliest := recent[0]
	for _, t := range recent[1:] {
		if t.Before(earliest) {
			earliest = t
		}
	}
	s := int(earliest.Add(l.window).Sub(now).Seconds())
	if s < 0 {
		return 0
	}
	return s
}

// ClearTrack deletes the tally and voter set for a track. Called when a
// track is skipped or otherwise leaves the queue.
func (l *Ledger) ClearTrack(uri string) {
	delete(l.voters, uri)
}

// Reset discards all vote state, including rate-limit history.
func (l *Ledger) Reset() {
	l.voters = make(map[string]map[string]struct{})
	l.voteTimes = make(map[string][]time.Time)
}

// pruned returns the user's vote times still inside the trailing window.
func (l *Ledger) pruned(fingerprint string, now time.Time) []time.Time {
	var recent []time.Time
	for _, t := range l.voteTimes[fingerprint] {
		if now.Sub(t) <= l.window {
			recent = append(recent, t)
		}
	}
	return recent
}
