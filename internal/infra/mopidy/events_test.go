package mopidy

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partybox/partybox/internal/app/playback"
)

// recordingHandler captures dispatched playback events.
type recordingHandler struct {
	mu      sync.Mutex
	ended   []playback.TrackEnded
	started []string
}

func (h *recordingHandler) HandleTrackEnded(ev playback.TrackEnded) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ended = append(h.ended, ev)
}

func (h *recordingHandler) HandleTrackStarted(uri string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = append(h.started, uri)
}

func (h *recordingHandler) endedEvents() []playback.TrackEnded {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]playback.TrackEnded, len(h.ended))
	copy(out, h.ended)
	return out
}

func (h *recordingHandler) startedURIs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.started))
	copy(out, h.started)
	return out
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{base: "http://localhost:6680", want: "ws://localhost:6680/mopidy/ws"},
		{base: "http://localhost:6680/", want: "ws://localhost:6680/mopidy/ws"},
		{base: "https://player.example.com", want: "wss://player.example.com/mopidy/ws"},
		{base: "ftp://localhost", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := websocketURL(tt.base)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListener_Dispatch(t *testing.T) {
	handler := &recordingHandler{}
	l, err := NewListener("http://localhost:6680", handler)
	require.NoError(t, err)

	l.dispatch([]byte(`{"event":"track_playback_ended","time_position":1500,` +
		`"tl_track":{"track":{"uri":"t:a","name":"Alpha","length":222000}}}`))
	l.dispatch([]byte(`{"event":"track_playback_started","tl_track":{"track":{"uri":"t:b"}}}`))
	l.dispatch([]byte(`{"event":"volume_changed","volume":80}`))
	l.dispatch([]byte(`not json`))
	l.dispatch([]byte(`{"event":"track_playback_ended"}`)) // no tl_track

	ended := handler.endedEvents()
	require.Len(t, ended, 1)
	assert.Equal(t, "t:a", ended[0].URI)
	assert.Equal(t, 1500*time.Millisecond, ended[0].Elapsed)
	assert.Equal(t, 222*time.Second, ended[0].Length)

	assert.Equal(t, []string{"t:b"}, handler.startedURIs())
}

func TestListener_ConsumesFeed(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/mopidy/ws", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		msg := `{"event":"track_playback_ended","time_position":180000,` +
			`"tl_track":{"track":{"uri":"t:a","name":"Alpha","length":180000}}}`
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))

		// Hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer ts.Close()

	handler := &recordingHandler{}
	l, err := NewListener(ts.URL, handler)
	require.NoError(t, err)

	l.Start()
	defer l.Close()

	require.Eventually(t, func() bool {
		return len(handler.endedEvents()) == 1
	}, 3*time.Second, 10*time.Millisecond)

	ev := handler.endedEvents()[0]
	assert.Equal(t, "t:a", ev.URI)
	assert.Equal(t, 3*time.Minute, ev.Elapsed)
}

func TestNewListener_RequiresHandler(t *testing.T) {
	_, err := NewListener("http://localhost:6680", nil)
	assert.Error(t, err)
}
