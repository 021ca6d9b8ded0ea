package mopidy

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/partybox/partybox/internal/app/playback"
)

// reconnectDelay is how long the listener waits before redialing a
// dropped websocket.
const reconnectDelay = 3 * time.Second

// Handler receives playback events from the Mopidy event feed.
type Handler interface {
	HandleTrackEnded(ev playback.TrackEnded)
	HandleTrackStarted(uri string)
}

// Listener consumes the Mopidy websocket event feed and dispatches
// playback events to a Handler.
type Listener struct {
	wsURL   string
	handler Handler

	cancel context.CancelFunc
	done   chan struct{}
}

// eventMessage covers the event fields we consume from the feed.
type eventMessage struct {
	Event        string `json:"event"`
	TimePosition int64  `json:"time_position"` // milliseconds
	TLTrack      *struct {
		Track trackModel `json:"track"`
	} `json:"tl_track"`
}

// NewListener creates an event listener for the given Mopidy base URL.
func NewListener(baseURL string, handler Handler) (*Listener, error) {
	if handler == nil {
		return nil, errors.New("event handler is required")
	}
	wsURL, err := websocketURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Listener{
		wsURL:   wsURL,
		handler: handler,
		done:    make(chan struct{}),
	}, nil
}

// websocketURL derives the ws:// event feed URL from the HTTP base URL.
func websocketURL(baseURL string) (string, error) {
	base := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/mopidy/ws", nil
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/mopidy/ws", nil
	default:
		return "", errors.Newf("unsupported mopidy URL scheme: %s", baseURL)
	}
}

// Start begins consuming events in a background goroutine. The listener
// reconnects automatically until Close is called.
func (l *Listener) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel

	go func() {
		defer close(l.done)
		for {
			if err := l.consume(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				zlog.Warn().Err(err).Msgf("mopidy event feed disconnected, retrying in %s", reconnectDelay)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}()
}

// Close stops the listener and waits for the consumer goroutine to exit.
func (l *Listener) Close() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
}

// consume dials the feed and dispatches events until the connection
// drops or ctx is cancelled.
func (l *Listener) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, l.wsURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to dial event feed")
	}
	defer conn.Close()

	zlog.Info().Msgf("connected to mopidy event feed: %s", l.wsURL)

	// Unblock ReadMessage when ctx gets cancelled.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "failed to read event")
		}
		l.dispatch(data)
	}
}

// dispatch decodes one feed message and forwards it to the handler.
// Unknown events and malformed payloads are skipped.
func (l *Listener) dispatch(data []byte) {
	var msg eventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		zlog.Debug().Err(err).Msg("skipping undecodable event message")
		return
	}

	switch msg.Event {
	case "track_playback_ended":
		if msg.TLTrack == nil {
			return
		}
		ev := playback.TrackEnded{
			URI:     msg.TLTrack.Track.URI,
			Elapsed: time.Duration(msg.TimePosition) * time.Millisecond,
		}
		if msg.TLTrack.Track.Length != nil {
			ev.Length = time.Duration(*msg.TLTrack.Track.Length) * time.Millisecond
		}
		l.handler.HandleTrackEnded(ev)
	case "track_playback_started":
		if msg.TLTrack == nil {
			return
		}
		l.handler.HandleTrackStarted(msg.TLTrack.Track.URI)
	}
}
