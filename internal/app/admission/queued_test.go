package admission

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"

	"github.com/partybox/partybox/internal/app/playback"
)

// queueStub implements just enough of playback.Core for the filter.
type queueStub struct {
	playback.Core
	contains bool
	err      error
}

func (s *queueStub) QueueContains(ctx context.Context, uri string) (bool, error) {
	return s.contains, s.err
}

func TestQueuedTrackFilter_Rejects(t *testing.T) {
	filter := NewQueuedTrackFilter(&queueStub{contains: true})

	result := filter.Check(context.Background(), Request{URI: "spotify:track:a"})
	assert.False(t, result.Accepted)
	assert.Equal(t, CodeAlreadyQueued, result.Code)
}

func TestQueuedTrackFilter_Accepts(t *testing.T) {
	filter := NewQueuedTrackFilter(&queueStub{contains: false})

	result := filter.Check(context.Background(), Request{URI: "spotify:track:a"})
	assert.True(t, result.Accepted)
}

func TestQueuedTrackFilter_AcceptsOnCoreError(t *testing.T) {
	filter := NewQueuedTrackFilter(&queueStub{err: errors.New("core down")})

	// A failing lookup must not block the addition; the enqueue itself
	// will surface a real core failure
	result := filter.Check(context.Background(), Request{URI: "spotify:track:a"})
	assert.True(t, result.Accepted)
}
