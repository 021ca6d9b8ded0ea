// Package mopidy provides a client for the Mopidy music server.
//
// Commands go over the HTTP JSON-RPC endpoint; playback events arrive
// on the websocket feed (see events.go).
package mopidy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/partybox/partybox/internal/app/playback"
	"github.com/partybox/partybox/internal/domain/track"
)

const localTracksURI = "local:directory?type=track"

// Client is a Mopidy JSON-RPC client implementing playback.Core.
type Client struct {
	baseURL    string
	httpClient *http.Client
	nextID     atomic.Int64
}

// Config represents Mopidy client configuration.
type Config struct {
	// URL is the Mopidy server base URL, e.g. http://localhost:6680.
	URL     string
	Timeout time.Duration
}

// rpcRequest is a JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// rpcError represents a JSON-RPC error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// trackModel mirrors Mopidy's Track model fields we care about.
type trackModel struct {
	URI    string `json:"uri"`
	Name   string `json:"name"`
	Length *int64 `json:"length"` // milliseconds, null when unknown
}

// refModel mirrors Mopidy's Ref model.
type refModel struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// tlTrackModel mirrors Mopidy's TlTrack model.
type tlTrackModel struct {
	TLID  int64      `json:"tlid"`
	Track trackModel `json:"track"`
}

// New creates a new Mopidy client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("mopidy URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// call performs a single JSON-RPC request and unmarshals the result into out.
// Pass a nil out to discard the result.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return errors.Wrap(err, "failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/mopidy/rpc", bytes.NewReader(reqBody))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to call %s", method)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("mopidy returned HTTP %d for %s", resp.StatusCode, method)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	if rpcResp.Error != nil {
		return errors.Errorf("mopidy error %d calling %s: %s", rpcResp.Error.Code, method, rpcResp.Error.Message)
	}

	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return errors.Wrapf(err, "failed to parse %s result", method)
		}
	}
	return nil
}

// EnqueueAtFront inserts a track at the head of the play queue.
func (c *Client) EnqueueAtFront(ctx context.Context, uri string) error {
	return c.add(ctx, uri, intPtr(0))
}

// EnqueueAtEnd appends a track to the play queue.
func (c *Client) EnqueueAtEnd(ctx context.Context, uri string) error {
	return c.add(ctx, uri, nil)
}

func (c *Client) add(ctx context.Context, uri string, position *int) error {
	params := map[string]any{"uris": []string{uri}}
	if position != nil {
		params["at_position"] = *position
	}

	var added []tlTrackModel
	if err := c.call(ctx, "core.tracklist.add", params, &added); err != nil {
		return err
	}
	// Mopidy silently drops uris its backends cannot resolve.
	if len(added) == 0 {
		return errors.Wrapf(playback.ErrUnresolvable, "uri %s", uri)
	}
	return nil
}

// RemoveByURI removes all queue entries with the given uri.
func (c *Client) RemoveByURI(ctx context.Context, uri string) error {
	params := map[string]any{"criteria": map[string][]string{"uri": {uri}}}
	return c.call(ctx, "core.tracklist.remove", params, nil)
}

// QueueLength returns the number of tracks in the play queue.
func (c *Client) QueueLength(ctx context.Context) (int, error) {
	var length int
	if err := c.call(ctx, "core.tracklist.get_length", nil, &length); err != nil {
		return 0, err
	}
	return length, nil
}

// QueueContains reports whether the play queue holds the given uri.
func (c *Client) QueueContains(ctx context.Context, uri string) (bool, error) {
	params := map[string]any{"criteria": map[string][]string{"uri": {uri}}}
	var matched []trackModel
	if err := c.call(ctx, "core.tracklist.filter", params, &matched); err != nil {
		return false, err
	}
	return len(matched) > 0, nil
}

// QueueTracks returns the tracks currently in the play queue, in order.
func (c *Client) QueueTracks(ctx context.Context) ([]track.Ref, error) {
	var models []trackModel
	if err := c.call(ctx, "core.tracklist.get_tracks", nil, &models); err != nil {
		return nil, err
	}
	refs := make([]track.Ref, 0, len(models))
	for _, m := range models {
		refs = append(refs, m.toRef())
	}
	return refs, nil
}

// TransportState returns the player's transport state.
func (c *Client) TransportState(ctx context.Context) (playback.TransportState, error) {
	var state string
	if err := c.call(ctx, "core.playback.get_state", nil, &state); err != nil {
		return playback.TransportStopped, err
	}
	if state == "playing" {
		return playback.TransportPlaying, nil
	}
	return playback.TransportStopped, nil
}

// Play starts playback of the queue head.
func (c *Client) Play(ctx context.Context) error {
	return c.call(ctx, "core.playback.play", nil, nil)
}

// Stop halts the transport.
func (c *Client) Stop(ctx context.Context) error {
	return c.call(ctx, "core.playback.stop", nil, nil)
}

// ClearQueue removes every track from the play queue.
func (c *Client) ClearQueue(ctx context.Context) error {
	return c.call(ctx, "core.tracklist.clear", nil, nil)
}

// SetConsume puts the player queue into consume mode.
func (c *Client) SetConsume(ctx context.Context, on bool) error {
	return c.call(ctx, "core.tracklist.set_consume", map[string]any{"value": on}, nil)
}

// BrowseLocalLibrary lists the player's local library tracks.
func (c *Client) BrowseLocalLibrary(ctx context.Context) ([]track.Ref, error) {
	var items []refModel
	params := map[string]any{"uri": localTracksURI}
	if err := c.call(ctx, "core.library.browse", params, &items); err != nil {
		return nil, err
	}
	refs := make([]track.Ref, 0, len(items))
	for _, item := range items {
		refs = append(refs, track.Ref{URI: item.URI, Name: item.Name})
	}
	return refs, nil
}

// PlaylistItems returns the items of a playlist, in playlist order.
func (c *Client) PlaylistItems(ctx context.Context, playlistURI string) ([]track.Ref, error) {
	var items []refModel
	params := map[string]any{"uri": playlistURI}
	if err := c.call(ctx, "core.playlists.get_items", params, &items); err != nil {
		return nil, err
	}
	refs := make([]track.Ref, 0, len(items))
	for _, item := range items {
		refs = append(refs, track.Ref{URI: item.URI, Name: item.Name})
	}
	return refs, nil
}

// Playlists returns the user's playlists known to the player.
func (c *Client) Playlists(ctx context.Context) ([]track.Ref, error) {
	var items []refModel
	if err := c.call(ctx, "core.playlists.as_list", nil, &items); err != nil {
		return nil, err
	}
	refs := make([]track.Ref, 0, len(items))
	for _, item := range items {
		refs = append(refs, track.Ref{URI: item.URI, Name: item.Name})
	}
	return refs, nil
}

// LookupTracks resolves uris to full track references. Unresolvable uris
// are silently absent from the result.
func (c *Client) LookupTracks(ctx context.Context, uris []string) ([]track.Ref, error) {
	if len(uris) == 0 {
		return nil, nil
	}

	var resolved map[string][]trackModel
	params := map[string]any{"uris": uris}
	if err := c.call(ctx, "core.library.lookup", params, &resolved); err != nil {
		return nil, err
	}

	// Preserve the requested order.
	refs := make([]track.Ref, 0, len(uris))
	for _, uri := range uris {
		models := resolved[uri]
		if len(models) == 0 {
			continue
		}
		refs = append(refs, models[0].toRef())
	}
	return refs, nil
}

func (m trackModel) toRef() track.Ref {
	ref := track.Ref{URI: m.URI, Name: m.Name}
	if m.Length != nil {
		ref.Length = time.Duration(*m.Length) * time.Millisecond
	}
	return ref
}

func intPtr(v int) *int { return &v }
