// Package config provides configuration loading from YAML files.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Storage  StorageConfig           `yaml:"storage"`
	Session  SessionConfig           `yaml:"session"`
	Votes    VotesConfig             `yaml:"votes"`
	Queue    QueueConfig             `yaml:"queue"`
	Playback PlaybackConfig          `yaml:"playback"`
	Mopidy   MopidyConfig            `yaml:"mopidy"`
	Denylist DenylistConfig          `yaml:"denylist"`
	Filters  map[string]FilterConfig `yaml:"filters"`
}

// StorageConfig represents local storage configuration.
type StorageConfig struct {
	DataDir string `yaml:"data_dir" default:"."`
}

// SessionConfig represents the defaults applied when a session is started
// without explicit settings (kiosk auto-start).
type SessionConfig struct {
	DefaultSkipThreshold int      `yaml:"default_skip_threshold" default:"1" validate:"gte=1"`
	DefaultPlaylists     []string `yaml:"default_playlists"`
	Shuffle              bool     `yaml:"shuffle"`
	AutoStart            bool     `yaml:"auto_start"`
	Offline              bool     `yaml:"offline"`
}

// VotesConfig represents skip-vote rate limiting configuration.
type VotesConfig struct {
	LimitCount   int `yaml:"limit_count" default:"2" validate:"gte=1"`
	LimitMinutes int `yaml:"limit_minutes" default:"60" validate:"gte=1"`
}

// QueueConfig represents manual queue configuration.
type QueueConfig struct {
	// LimitPerUser of 0 means unlimited.
	LimitPerUser int `yaml:"limit_per_user" default:"0" validate:"gte=0"`
}

// PlaybackConfig represents playback monitoring configuration.
type PlaybackConfig struct {
	GraceDelayMs     int `yaml:"grace_delay_ms" default:"300" validate:"gte=0,lte=10000"`
	FailureElapsedMs int `yaml:"failure_elapsed_ms" default:"2000" validate:"gte=0,lte=30000"`
	MinTrackLengthMs int `yaml:"min_track_length_ms" default:"10000" validate:"gte=0"`
}

// MopidyConfig represents the Mopidy server connection configuration.
type MopidyConfig struct {
	URL       string `yaml:"url" default:"http://localhost:6680" validate:"required,url"`
	TimeoutMs int    `yaml:"timeout_ms" default:"15000" validate:"gte=100"`
}

// DenylistConfig represents tracks excluded from selection permanently.
type DenylistConfig struct {
	Seed      []string `yaml:"seed"`
	EasterEgg []string `yaml:"easter_egg"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for connection fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	cfg.applySeedDefaults()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("MOPIDY_URL"); v != "" {
		c.Mopidy.URL = v
	}
	if v := os.Getenv("PARTYBOX_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
}

// applySeedDefaults fills slice defaults that creasty/defaults cannot express.
func (c *Config) applySeedDefaults() {
	if c.Denylist.Seed == nil {
		c.Denylist.Seed = []string{"spotify:track:0afhq8XCExXpqazXczTSve"}
	}
	if c.Denylist.EasterEgg == nil {
		c.Denylist.EasterEgg = []string{
			"spotify:track:0asT0RDbe4Vrf6pxLHgpkn",
			"spotify:track:2HkHE4EeZyx9AncSN042q3",
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// FilterSettings returns the settings for a filter.
func (c *Config) FilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok {
		return f.Settings
	}
	return nil
}
