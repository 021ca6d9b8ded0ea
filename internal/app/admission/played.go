package admission

import "context"

// CodeAlreadyPlayed is returned when the track already played this session.
const CodeAlreadyPlayed = "already_played"

// PlayedTrackFilter rejects tracks that already played this session.
type PlayedTrackFilter struct {
	wasPlayed func(uri string) bool
}

// NewPlayedTrackFilter creates a filter backed by the session's played set.
func NewPlayedTrackFilter(wasPlayed func(uri string) bool) *PlayedTrackFilter {
	return &PlayedTrackFilter{wasPlayed: wasPlayed}
}

func (f *PlayedTrackFilter) Name() string {
	return "played_track_filter"
}

func (f *PlayedTrackFilter) Description() string {
	return "Rejects tracks that have already been played this session"
}

func (f *PlayedTrackFilter) ReturnCodes() []string {
	return []string{CodeAlreadyPlayed}
}

func (f *PlayedTrackFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *PlayedTrackFilter) Check(ctx context.Context, req Request) Result {
	if f.wasPlayed(req.URI) {
		return Reject(CodeAlreadyPlayed)
	}
	return Accept()
}
