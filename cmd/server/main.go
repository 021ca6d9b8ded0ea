// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/partybox/partybox/internal/app/admission"
	"github.com/partybox/partybox/internal/app/nickname"
	"github.com/partybox/partybox/internal/app/notification"
	"github.com/partybox/partybox/internal/app/orchestrator"
	"github.com/partybox/partybox/internal/app/session"
	"github.com/partybox/partybox/internal/app/userqueue"
	"github.com/partybox/partybox/internal/app/vote"
	"github.com/partybox/partybox/internal/domain/playlist"
	"github.com/partybox/partybox/internal/infra/config"
	"github.com/partybox/partybox/internal/infra/logger"
	"github.com/partybox/partybox/internal/infra/mopidy"
)

var (
	app        = kingpin.New("partybox-server", "partybox shared queue server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available admission filters and exit")
	// list-playlists command
	listPlaylistsCmd = app.Command("list-playlists", "List playlists known to the player and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	// Initialize logger
	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	// Load config
	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == listPlaylistsCmd.FullCommand() {
		if err := printPlaylists(cfg); err != nil {
			zlog.Fatal().Msgf("Failed to list playlists: %v", err)
		}
		return
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	if err := validateFilterConfig(cfg); err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	ctx := context.Background()

	// Create Mopidy client
	core, err := mopidy.New(mopidy.Config{
		URL:     cfg.Mopidy.URL,
		Timeout: time.Duration(cfg.Mopidy.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create mopidy client")
	}
	if err := waitForPlayer(ctx, core); err != nil {
		return err
	}

	// Assemble the engine
	store := session.NewHistoryStore(cfg.Storage.DataDir)
	manual := userqueue.NewLimiter(cfg.Queue.LimitPerUser)
	sessions := session.NewManager(store, manual, cfg.Denylist.Seed, cfg.Session.Offline)
	votes := vote.NewLedger(cfg.Votes.LimitCount, time.Duration(cfg.Votes.LimitMinutes)*time.Minute)
	nicknames := nickname.NewRegistry()
	notifier := notification.NewManager()

	enabledFilters := map[string]bool{"user_limit_filter": true}
	for name, fc := range cfg.Filters {
		enabledFilters[name] = fc.Enabled
	}

	orch := orchestrator.New(orchestrator.Config{
		GraceDelay:     time.Duration(cfg.Playback.GraceDelayMs) * time.Millisecond,
		FailureElapsed: time.Duration(cfg.Playback.FailureElapsedMs) * time.Millisecond,
		MinTrackLength: time.Duration(cfg.Playback.MinTrackLengthMs) * time.Millisecond,
		EasterEggURIs:  cfg.Denylist.EasterEgg,
		EnabledFilters: enabledFilters,
	}, core, sessions, votes, manual, nicknames, notifier)

	// Start consuming the player's event feed
	listener, err := mopidy.NewListener(cfg.Mopidy.URL, orch)
	if err != nil {
		return errors.Wrap(err, "failed to create event listener")
	}
	listener.Start()

	// Kiosk mode: bring up a session from the configured defaults
	if cfg.Session.AutoStart {
		if err := autoStartSession(ctx, cfg, core, orch); err != nil {
			zlog.Error().Msgf("Failed to auto-start session: %v", err)
		}
	}

	zlog.Info().Msgf("partybox running against %s", cfg.Mopidy.URL)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	zlog.Info().Msg("Received shutdown signal...")

	// End the session so suggestion history gets persisted
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := orch.EndSession(shutdownCtx); err != nil && !errors.Is(err, session.ErrNoActiveSession) {
		zlog.Error().Msgf("Failed to end session: %v", err)
	}

	listener.Close()
	orch.Close()

	zlog.Info().Msg("Server stopped")
	return nil
}

// waitForPlayer polls the player until it responds, with backoff. Mopidy
// often comes up after us on kiosk boots.
func waitForPlayer(ctx context.Context, core *mopidy.Client) error {
	maxRetries := 5
	baseDelay := 1 * time.Second

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			delay := baseDelay * time.Duration(1<<uint(i-1))
			zlog.Info().Msgf("Retrying player connection in %v...", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if _, err := core.TransportState(ctx); err != nil {
			lastErr = err
			zlog.Warn().Msgf("Player not reachable (attempt %d/%d): %v", i+1, maxRetries, err)
			continue
		}
		zlog.Info().Msg("Player connection validated")
		return nil
	}
	return errors.Wrapf(lastErr, "player unreachable after %d attempts", maxRetries)
}

// autoStartSession starts a session from the configured defaults,
// resolving playlist names from the player where possible.
func autoStartSession(ctx context.Context, cfg *config.Config, core *mopidy.Client, orch *orchestrator.Orchestrator) error {
	if len(cfg.Session.DefaultPlaylists) == 0 && !cfg.Session.Offline {
		return errors.New("auto_start requires default_playlists (or offline mode)")
	}

	names := map[string]string{}
	if known, err := core.Playlists(ctx); err != nil {
		zlog.Warn().Msgf("Failed to list playlists, using uris as names: %v", err)
	} else {
		for _, p := range known {
			names[p.URI] = p.Name
		}
	}

	playlists := make([]playlist.Playlist, 0, len(cfg.Session.DefaultPlaylists))
	for _, uri := range cfg.Session.DefaultPlaylists {
		name := names[uri]
		if name == "" {
			name = uri
		}
		playlists = append(playlists, playlist.Playlist{URI: uri, Name: name})
	}

	zlog.Info().Msgf("Auto-starting session: threshold=%d playlists=%d shuffle=%t",
		cfg.Session.DefaultSkipThreshold, len(playlists), cfg.Session.Shuffle)
	return orch.StartSession(ctx, cfg.Session.DefaultSkipThreshold, playlists, cfg.Session.Shuffle, true)
}

// printFilters prints available admission filters.
func printFilters() {
	fmt.Println("Available Filters:")
	for _, factory := range admission.GetRegistered() {
		f := factory()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// printPlaylists prints the playlists the player knows about.
func printPlaylists(cfg *config.Config) error {
	core, err := mopidy.New(mopidy.Config{
		URL:     cfg.Mopidy.URL,
		Timeout: time.Duration(cfg.Mopidy.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	playlists, err := core.Playlists(ctx)
	if err != nil {
		return err
	}

	fmt.Println("Playlists:")
	for _, p := range playlists {
		fmt.Printf("  %-50s %s\n", p.URI, p.Name)
	}
	return nil
}

// validateFilterConfig validates admission filter configurations.
func validateFilterConfig(cfg *config.Config) error {
	registry := admission.GetRegistered()

	for filterName, filterCfg := range cfg.Filters {
		if !filterCfg.Enabled {
			continue
		}

		factory, exists := registry[filterName]
		if !exists {
			// Some filters are created with dependencies, skip validation
			continue
		}

		f := factory()
		if err := f.ValidateConfig(filterCfg.Settings); err != nil {
			return errors.Wrapf(err, "filter %s", filterName)
		}
	}

	return nil
}
