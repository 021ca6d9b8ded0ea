package orchestrator

import "github.com/cockroachdb/errors"

// Errors surfaced to callers for client display. Unresolvable tracks and
// stalled transports are recovered internally and never reach callers.
var (
	ErrAlreadyPlayed  = errors.New("track has already been played this session")
	ErrAlreadyQueued  = errors.New("track is already in the queue")
	ErrUserQueueLimit = errors.New("user has reached their queue limit")
	ErrNotOwner       = errors.New("track was not added by this user")
	ErrAlreadyVoted   = errors.New("user has already voted on this track")
	ErrClosed         = errors.New("orchestrator is closed")
)
