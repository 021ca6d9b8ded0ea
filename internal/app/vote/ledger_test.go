package vote

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_VoteCounting(t *testing.T) {
	l := NewLedger(10, time.Hour)
	now := time.Now()

	count, err := l.RegisterVote("alice", "spotify:track:a", now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = l.RegisterVote("bob", "spotify:track:a", now)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	assert.Equal(t, 2, l.Votes("spotify:track:a"))
	assert.Equal(t, 0, l.Votes("spotify:track:b"))
	assert.True(t, l.HasVoted("alice", "spotify:track:a"))
	assert.False(t, l.HasVoted("alice", "spotify:track:b"))
}

func TestLedger_DuplicateVoteIsNoop(t *testing.T) {
	l := NewLedger(2, time.Hour)
	now := time.Now()

	_, err := l.RegisterVote("alice", "spotify:track:a", now)
	require.NoError(t, err)

	// Same user, same track: count unchanged, no budget consumed
	count, err := l.RegisterVote("alice", "spotify:track:a", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// The duplicate must not have eaten into the rate limit
	_, err = l.RegisterVote("alice", "spotify:track:b", now.Add(2*time.Minute))
	assert.NoError(t, err, "only one real vote was cast, second should be allowed")
}

func TestLedger_RateLimit(t *testing.T) {
	l := NewLedger(2, 60*time.Minute)
	t0 := time.Now()

	_, err := l.RegisterVote("alice", "spotify:track:a", t0)
	require.NoError(t, err)
	_, err = l.RegisterVote("alice", "spotify:track:b", t0.Add(10*time.Minute))
	require.NoError(t, err)

	// Third distinct vote inside the window is refused
	_, err = l.RegisterVote("alice", "spotify:track:c", t0.Add(10*time.Minute))
	require.Error(t, err)

	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, 2, rle.Limit)
	// Earliest vote was at t0, so the budget frees up at t0+60m: 50 minutes away
	assert.Equal(t, 50*60, rle.SecondsRemaining())

	// The refused vote must not be recorded
	assert.Equal(t, 0, l.Votes("spotify:track:c"))
	assert.False(t, l.HasVoted("alice", "spotify:track:c"))
}

func TestLedger_RateLimitWindowSlides(t *testing.T) {
	l := NewLedger(2, 60*time.Minute)
	t0 := time.Now()

	_, err := l.RegisterVote("alice", "spotify:track:a", t0)
	require.NoError(t, err)
	_, err = l.RegisterVote("alice", "spotify:track:b", t0.Add(10*time.Minute))
	require.NoError(t, err)

	// After the first vote ages out, a new one is allowed again
	_, err = l.RegisterVote("alice", "spotify:track:c", t0.Add(61*time.Minute))
	assert.NoError(t, err)
}

func TestLedger_RateLimitPerUser(t *testing.T) {
	l := NewLedger(1, time.Hour)
	now := time.Now()

	_, err := l.RegisterVote("alice", "spotify:track:a", now)
	require.NoError(t, err)

	// Alice is out of budget but Bob is not
	_, err = l.RegisterVote("alice", "spotify:track:b", now)
	assert.Error(t, err)
	_, err = l.RegisterVote("bob", "spotify:track:b", now)
	assert.NoError(t, err)
}

func TestLedger_CooldownSeconds(t *testing.T) {
	l := NewLedger(2, 60*time.Minute)
	t0 := time.Now()

	assert.Equal(t, 0, l.CooldownSeconds("alice", t0))

	_, err := l.RegisterVote("alice", "spotify:track:a", t0)
	require.NoError(t, err)
	assert.Equal(t, 0, l.CooldownSeconds("alice", t0), "under the limit, no cooldown")

	_, err = l.RegisterVote("alice", "spotify:track:b", t0.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 50*60, l.CooldownSeconds("alice", t0.Add(10*time.Minute)))

	// Window slid past the earliest vote
	assert.Equal(t, 0, l.CooldownSeconds("alice", t0.Add(61*time.Minute)))
}

func TestLedger_ClearTrack(t *testing.T) {
	l := NewLedger(10, time.Hour)
	now := time.Now()

	_, err := l.RegisterVote("alice", "spotify:track:a", now)
	require.NoError(t, err)
	_, err = l.RegisterVote("bob", "spotify:track:a", now)
	require.NoError(t, err)

	l.ClearTrack("spotify:track:a")
	assert.Equal(t, 0, l.Votes("spotify:track:a"))
	assert.False(t, l.HasVoted("alice", "spotify:track:a"))

	// Clearing a track does not give back rate-limit budget
	limited := NewLedger(1, time.Hour)
	_, err = limited.RegisterVote("alice", "spotify:track:a", now)
	require.NoError(t, err)
	limited.ClearTrack("spotify:track:a")
	_, err = limited.RegisterVote("alice", "spotify:track:b", now)
	assert.Error(t, err)
}

func TestLedger_Reset(t *testing.T) {
	l := NewLedger(1, time.Hour)
	now := time.Now()

	_, err := l.RegisterVote("alice", "spotify:track:a", now)
	require.NoError(t, err)

	l.Reset()

	assert.Equal(t, 0, l.Votes("spotify:track:a"))
	// Reset also discards rate-limit history
	_, err = l.RegisterVote("alice", "spotify:track:b", now)
	assert.NoError(t, err)
}
