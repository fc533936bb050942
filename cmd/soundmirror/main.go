// Command soundmirror runs the playlist mirror server: Spotify OAuth
// login, playlist/track synchronization, audio-feature backfill, and the
// stats API.
package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	spotifyauth "github.com/zmb3/spotify/v2/auth"

	"github.com/soundmirror/soundmirror/internal/account"
	"github.com/soundmirror/soundmirror/internal/auth"
	"github.com/soundmirror/soundmirror/internal/config"
	"github.com/soundmirror/soundmirror/internal/db"
	"github.com/soundmirror/soundmirror/internal/features"
	"github.com/soundmirror/soundmirror/internal/spotify"
	"github.com/soundmirror/soundmirror/internal/stats"
	"github.com/soundmirror/soundmirror/internal/sync"
	"github.com/soundmirror/soundmirror/internal/web"
)

const (
	registrationMaxAge        = time.Hour
	registrationSweepInterval = 15 * time.Minute
)

var scopes = []string{
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopePlaylistReadCollaborative,
	spotifyauth.ScopeUserReadEmail,
	spotifyauth.ScopeUserReadPrivate,
}

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Str("level", cfg.LogLevel).Msg("invalid log level")
	}
	log = log.Level(level)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return err
	}

	authenticator := spotifyauth.New(
		spotifyauth.WithClientID(cfg.SpotifyID),
		spotifyauth.WithClientSecret(cfg.SpotifySecret),
		spotifyauth.WithRedirectURL(cfg.SpotifyRedirect),
		spotifyauth.WithScopes(scopes...),
	)
	factory := spotify.NewClientFactory(authenticator)

	// Feature lookups run app-authenticated; user tokens only gate the
	// library and playlist listings.
	appGateway := spotify.NewAppClient(ctx, cfg.SpotifyID, cfg.SpotifySecret)

	tokens := auth.NewTokenStore(
		database.Credentials(),
		auth.NewOAuthRefresher(cfg.SpotifyID, cfg.SpotifySecret),
	)

	backfill := features.New(appGateway, features.NewDBStore(database), log)
	syncer := sync.New(sync.NewDBStore(database), backfill, log)
	reporter := stats.New(stats.NewDBStore(database))

	exchanger := account.NewOAuthExchanger(cfg.SpotifyID, cfg.SpotifySecret, cfg.SpotifyRedirect, scopes)
	registrar := account.New(account.NewDBStore(database), exchanger, factory, log)

	go sweepRegistrations(ctx, registrar, log)

	sessions := web.NewSessionStore()
	handlers := web.NewHandlers(
		sessions, registrar, exchanger, tokens, factory,
		syncer, reporter, database.Playlists(), log,
	)
	server := web.NewServer(cfg.Addr, handlers, log)
	return server.Run()
}

// sweepRegistrations periodically drops abandoned login attempts.
func sweepRegistrations(ctx context.Context, registrar *account.Service, log zerolog.Logger) {
	ticker := time.NewTicker(registrationSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := registrar.SweepExpired(ctx, registrationMaxAge); err != nil {
				log.Warn().Err(err).Msg("sweeping registrations")
			}
		}
	}
}
