package admission

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/partybox/partybox/internal/app/playback"
)

// CodeAlreadyQueued is returned when the track is already in the play queue.
const CodeAlreadyQueued = "already_queued"

// QueuedTrackFilter rejects tracks already present in the playback core's
// queue.
type QueuedTrackFilter struct {
	core playback.Core
}

// NewQueuedTrackFilter creates a filter backed by the playback core.
func NewQueuedTrackFilter(core playback.Core) *QueuedTrackFilter {
	return &QueuedTrackFilter{core: core}
}

func (f *QueuedTrackFilter) Name() string {
	return "queued_track_filter"
}

func (f *QueuedTrackFilter) Description() string {
	return "Rejects tracks that are already in the play queue"
}

func (f *QueuedTrackFilter) ReturnCodes() []string {
	return []string{CodeAlreadyQueued}
}

func (f *QueuedTrackFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *QueuedTrackFilter) Check(ctx context.Context, req Request) Result {
	queued, err := f.core.QueueContains(ctx, req.URI)
	if err != nil {
		// The enqueue itself will surface a real core failure.
		zlog.Warn().Msgf("queued track check failed, accepting: uri=%s err=%v", req.URI, err)
		return Accept()
	}
	if queued {
		return Reject(CodeAlreadyQueued)
	}
	return Accept()
}
