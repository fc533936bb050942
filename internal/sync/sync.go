// Package sync reconciles locally mirrored playlists and tracks against
// the Spotify catalog.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/soundmirror/soundmirror/internal/db"
	"github.com/soundmirror/soundmirror/internal/features"
	"github.com/soundmirror/soundmirror/internal/spotify"
)

// Store is the persistence surface the sync engine needs. Every write is
// an upsert keyed by natural ID, so a sync that dies halfway can simply be
// re-run; it converges on the same final state.
type Store interface {
	UpsertPlaylist(ctx context.Context, playlist *db.Playlist) error
	UpsertMembership(ctx context.Context, userID uuid.UUID, playlistID string, position int) error
	PruneMemberships(ctx context.Context, userID uuid.UUID, keep []string) error
	GetPlaylist(ctx context.Context, spotifyID string) (*db.Playlist, error)
	InsertTracks(ctx context.Context, tracks []db.Track) error
	UpsertTrackPositions(ctx context.Context, playlistID string, positions []db.TrackPosition) error
	PruneTrackPositions(ctx context.Context, playlistID string, keep []string) error
	UpdateSnapshot(ctx context.Context, playlistID, snapshotID string) error
	MissingFeatures(ctx context.Context, playlistID string) ([]db.Track, error)
}

// NewDBStore adapts the database repositories to Store.
func NewDBStore(database *db.DB) Store {
	return dbStore{db: database}
}

type dbStore struct {
	db *db.DB
}

func (s dbStore) UpsertPlaylist(ctx context.Context, playlist *db.Playlist) error {
	return s.db.Playlists().Upsert(ctx, playlist)
}

func (s dbStore) UpsertMembership(ctx context.Context, userID uuid.UUID, playlistID string, position int) error {
	return s.db.Playlists().UpsertMembership(ctx, userID, playlistID, position)
}

func (s dbStore) PruneMemberships(ctx context.Context, userID uuid.UUID, keep []string) error {
	return s.db.Playlists().PruneMemberships(ctx, userID, keep)
}

func (s dbStore) GetPlaylist(ctx context.Context, spotifyID string) (*db.Playlist, error) {
	return s.db.Playlists().Get(ctx, spotifyID)
}

func (s dbStore) InsertTracks(ctx context.Context, tracks []db.Track) error {
	return s.db.Tracks().InsertBatch(ctx, tracks)
}

func (s dbStore) UpsertTrackPositions(ctx context.Context, playlistID string, positions []db.TrackPosition) error {
	return s.db.Tracks().UpsertPositions(ctx, playlistID, positions)
}

func (s dbStore) PruneTrackPositions(ctx context.Context, playlistID string, keep []string) error {
	return s.db.Tracks().PrunePositions(ctx, playlistID, keep)
}

func (s dbStore) UpdateSnapshot(ctx context.Context, playlistID, snapshotID string) error {
	return s.db.Playlists().UpdateSnapshot(ctx, playlistID, snapshotID)
}

func (s dbStore) MissingFeatures(ctx context.Context, playlistID string) ([]db.Track, error) {
	return s.db.Tracks().MissingFeatures(ctx, playlistID)
}

// Backfiller hands tracks lacking features to the backfill engine.
type Backfiller interface {
	Backfill(ctx context.Context, tracks []db.Track) (*features.Result, error)
}

// Service is the playlist sync engine. It is pull-based: a sync runs
// within the caller's unit of work, there is no background scheduler.
type Service struct {
	store    Store
	backfill Backfiller
	log      zerolog.Logger
}

// New creates a sync service.
func New(store Store, backfill Backfiller, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		backfill: backfill,
		log:      logger,
	}
}

// UserSyncResult summarizes a full user sync.
type UserSyncResult struct {
	Playlists int // playlists in the user's library after reconciliation
	Updated   int // playlists whose tracks were re-synced
	SyncedAt  time.Time
}

// SyncUser reconciles the user's playlist library against the catalog,
// then re-syncs the tracks of every playlist whose snapshot moved.
//
// The gateway's listing order defines each playlist's library position.
// Memberships absent from the fetched set are removed; the playlist rows
// stay, since other users may still follow them. Any error aborts the
// sync; writes already committed are keyed upserts, so re-running after
// a partial failure is safe.
func (s *Service) SyncUser(ctx context.Context, gateway spotify.Gateway, userID uuid.UUID) (*UserSyncResult, error) {
	entries, err := gateway.ListUserPlaylists(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing playlists: %w", err)
	}

	seen := make(map[string]bool, len(entries))
	keep := make([]string, 0, len(entries))
	for _, entry := range entries {
		if seen[entry.ID] {
			continue
		}
		seen[entry.ID] = true

		playlist := &db.Playlist{
			SpotifyID:  entry.ID,
			Name:       entry.Name,
			Owner:      entry.Owner,
			Visibility: visibilityOf(entry),
		}
		if err := s.store.UpsertPlaylist(ctx, playlist); err != nil {
			return nil, fmt.Errorf("upserting playlist %s: %w", entry.ID, err)
		}
		if err := s.store.UpsertMembership(ctx, userID, entry.ID, len(keep)); err != nil {
			return nil, fmt.Errorf("upserting membership for %s: %w", entry.ID, err)
		}
		keep = append(keep, entry.ID)
	}

	if err := s.store.PruneMemberships(ctx, userID, keep); err != nil {
		return nil, fmt.Errorf("pruning memberships: %w", err)
	}

	result := &UserSyncResult{Playlists: len(keep)}
	for _, playlistID := range keep {
		updated, err := s.SyncPlaylist(ctx, gateway, playlistID)
		if err != nil {
			return nil, fmt.Errorf("syncing playlist %s: %w", playlistID, err)
		}
		if updated {
			result.Updated++
		}
	}

	result.SyncedAt = time.Now()
	s.log.Info().
		Stringer("user", userID).
		Int("playlists", result.Playlists).
		Int("updated", result.Updated).
		Msg("user sync complete")
	return result, nil
}

// SyncPlaylist re-syncs a playlist's tracks if its remote snapshot ID
// differs from the stored one. The staleness probe is a single cheap
// metadata call; the full track listing is only paid when something
// changed. Tracks still lacking features are handed to the backfill
// engine on every call, stale or not. Returns whether an update ran.
func (s *Service) SyncPlaylist(ctx context.Context, gateway spotify.Gateway, playlistID string) (bool, error) {
	playlist, err := s.store.GetPlaylist(ctx, playlistID)
	if err != nil {
		return false, fmt.Errorf("loading playlist: %w", err)
	}

	snapshot, err := gateway.PlaylistSnapshotID(ctx, playlistID)
	if err != nil {
		return false, fmt.Errorf("fetching snapshot: %w", err)
	}

	updated := snapshot != playlist.SnapshotID
	if updated {
		s.log.Debug().
			Str("playlist", playlist.Name).
			Str("snapshot", snapshot).
			Msg("snapshot moved, re-syncing tracks")

		if err := s.syncTracks(ctx, gateway, playlistID); err != nil {
			return false, err
		}

		// Only record the snapshot once the track set it describes is
		// fully written; a failed sync stays stale and is retried next
		// time.
		if err := s.store.UpdateSnapshot(ctx, playlistID, snapshot); err != nil {
			return false, fmt.Errorf("updating snapshot: %w", err)
		}
	}

	// The backfill runs even when the snapshot is unchanged: the snapshot
	// only vouches for the track set, not for features. A backfill that
	// failed after a recorded sync is picked up again here.
	if err := s.backfillMissing(ctx, playlistID); err != nil {
		return false, err
	}

	return updated, nil
}

// backfillMissing hands any tracks still lacking features (and not
// flagged unavailable) to the backfill engine.
func (s *Service) backfillMissing(ctx context.Context, playlistID string) error {
	missing, err := s.store.MissingFeatures(ctx, playlistID)
	if err != nil {
		return fmt.Errorf("finding tracks without features: %w", err)
	}
	if len(missing) == 0 {
		return nil
	}
	if _, err := s.backfill.Backfill(ctx, missing); err != nil {
		return fmt.Errorf("backfilling features: %w", err)
	}
	return nil
}

// syncTracks reconciles the playlist's track membership. The listing
// order defines each track's position. A track seen again keeps its
// stored descriptive fields; only its position is updated. Position rows
// absent from the fetched set are removed, track rows stay.
func (s *Service) syncTracks(ctx context.Context, gateway spotify.Gateway, playlistID string) error {
	entries, err := gateway.ListPlaylistTracks(ctx, playlistID)
	if err != nil {
		return fmt.Errorf("listing tracks: %w", err)
	}

	tracks := make([]db.Track, 0, len(entries))
	positions := make([]db.TrackPosition, 0, len(entries))
	index := make(map[string]int, len(entries))
	for i, entry := range entries {
		if at, ok := index[entry.ID]; ok {
			// A track repeated within one playlist keeps one row; the
			// later occurrence wins the position.
			positions[at].Position = i
			continue
		}
		index[entry.ID] = len(positions)
		tracks = append(tracks, db.Track{
			SpotifyID: entry.ID,
			Name:      entry.Name,
			Artists:   entry.Artists,
			Album:     entry.Album,
		})
		positions = append(positions, db.TrackPosition{
			PlaylistID: playlistID,
			TrackID:    entry.ID,
			Position:   i,
		})
	}

	if err := s.store.InsertTracks(ctx, tracks); err != nil {
		return fmt.Errorf("inserting tracks: %w", err)
	}
	if err := s.store.UpsertTrackPositions(ctx, playlistID, positions); err != nil {
		return fmt.Errorf("upserting track positions: %w", err)
	}

	keep := make([]string, len(positions))
	for i, p := range positions {
		keep[i] = p.TrackID
	}
	if err := s.store.PruneTrackPositions(ctx, playlistID, keep); err != nil {
		return fmt.Errorf("pruning track positions: %w", err)
	}
	return nil
}

// visibilityOf derives a playlist's visibility from its listing flags.
func visibilityOf(entry spotify.PlaylistEntry) db.Visibility {
	switch {
	case entry.Public:
		return db.VisibilityPublic
	case entry.Collaborative:
		return db.VisibilityCollaborative
	default:
		return db.VisibilityPrivate
	}
}
