package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
mopidy:
  url: http://localhost:6680
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.Storage.DataDir)
	assert.Equal(t, 1, cfg.Session.DefaultSkipThreshold)
	assert.False(t, cfg.Session.AutoStart)
	assert.Equal(t, 2, cfg.Votes.LimitCount)
	assert.Equal(t, 60, cfg.Votes.LimitMinutes)
	assert.Equal(t, 0, cfg.Queue.LimitPerUser)
	assert.Equal(t, 300, cfg.Playback.GraceDelayMs)
	assert.Equal(t, 2000, cfg.Playback.FailureElapsedMs)
	assert.Equal(t, 10000, cfg.Playback.MinTrackLengthMs)
	assert.Equal(t, 15000, cfg.Mopidy.TimeoutMs)
	assert.NotEmpty(t, cfg.Denylist.Seed, "seed denylist gets a default")
	assert.Len(t, cfg.Denylist.EasterEgg, 2)
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
storage:
  data_dir: /var/lib/partybox
session:
  default_skip_threshold: 3
  default_playlists:
    - spotify:playlist:abc
  shuffle: true
  auto_start: true
votes:
  limit_count: 5
  limit_minutes: 30
queue:
  limit_per_user: 2
playback:
  grace_delay_ms: 500
mopidy:
  url: http://jukebox.local:6680
denylist:
  seed:
    - spotify:track:banned
  easter_egg:
    - spotify:track:egg
filters:
  user_limit_filter:
    enabled: true
    settings:
      limit_per_user: 2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/partybox", cfg.Storage.DataDir)
	assert.Equal(t, 3, cfg.Session.DefaultSkipThreshold)
	assert.Equal(t, []string{"spotify:playlist:abc"}, cfg.Session.DefaultPlaylists)
	assert.True(t, cfg.Session.Shuffle)
	assert.True(t, cfg.Session.AutoStart)
	assert.Equal(t, 5, cfg.Votes.LimitCount)
	assert.Equal(t, 30, cfg.Votes.LimitMinutes)
	assert.Equal(t, 2, cfg.Queue.LimitPerUser)
	assert.Equal(t, 500, cfg.Playback.GraceDelayMs)
	assert.Equal(t, 2000, cfg.Playback.FailureElapsedMs, "untouched fields keep defaults")
	assert.Equal(t, "http://jukebox.local:6680", cfg.Mopidy.URL)
	assert.Equal(t, []string{"spotify:track:banned"}, cfg.Denylist.Seed)
	assert.Equal(t, []string{"spotify:track:egg"}, cfg.Denylist.EasterEgg)

	assert.True(t, cfg.IsFilterEnabled("user_limit_filter"))
	assert.False(t, cfg.IsFilterEnabled("unknown_filter"))
	assert.Equal(t, 2, cfg.FilterSettings("user_limit_filter")["limit_per_user"])
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "negative user limit",
			content: `
queue:
  limit_per_user: -1
mopidy:
  url: http://localhost:6680
`,
		},
		{
			name: "invalid mopidy url",
			content: `
mopidy:
  url: not-a-url
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, `
mopidy:
  url: http://localhost:6680
`)

	t.Setenv("MOPIDY_URL", "http://other:6680")
	t.Setenv("PARTYBOX_DATA_DIR", "/data")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://other:6680", cfg.Mopidy.URL)
	assert.Equal(t, "/data", cfg.Storage.DataDir)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "mopidy: [unclosed"))
	assert.Error(t, err)
}
