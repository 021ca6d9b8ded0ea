// Package playlist provides the Playlist domain entity.
package playlist

// Playlist identifies a playlist selected for a session.
type Playlist struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// Names returns the names of all playlists.
func Names(playlists []Playlist) []string {
	names := make([]string, len(playlists))
	for i, p := range playlists {
		names[i] = p.Name
	}
	return names
}
