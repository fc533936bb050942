package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TrackRepository handles track database operations.
type TrackRepository struct {
	pool *pgxpool.Pool
}

// InsertBatch inserts any tracks not already known. Existing rows keep
// their descriptive fields; re-seeing a known track never rewrites its
// name, artists or album.
func (r *TrackRepository) InsertBatch(ctx context.Context, tracks []Track) error {
	if len(tracks) == 0 {
		return nil
	}

	query := `
		INSERT INTO tracks (spotify_id, name, artists, album)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (spotify_id) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, t := range tracks {
		batch.Queue(query, t.SpotifyID, t.Name, t.Artists, t.Album)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("batch inserting tracks: %w", err)
	}
	return nil
}

// Get retrieves a track by Spotify ID.
func (r *TrackRepository) Get(ctx context.Context, spotifyID string) (*Track, error) {
	query := `
		SELECT spotify_id, name, artists, album, features_unavailable
		FROM tracks
		WHERE spotify_id = $1
	`
	var track Track
	err := r.pool.QueryRow(ctx, query, spotifyID).Scan(
		&track.SpotifyID,
		&track.Name,
		&track.Artists,
		&track.Album,
		&track.FeaturesUnavailable,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying track: %w", err)
	}
	return &track, nil
}

// UpsertPositions writes the in-playlist positions for a batch of tracks.
func (r *TrackRepository) UpsertPositions(ctx context.Context, playlistID string, positions []TrackPosition) error {
	if len(positions) == 0 {
		return nil
	}

	query := `
		INSERT INTO playlist_tracks (playlist_id, track_id, position)
		SELECT $1, * FROM unnest($2::text[], $3::int[])
		ON CONFLICT (playlist_id, track_id) DO UPDATE SET position = EXCLUDED.position
	`

	trackIDs := make([]string, len(positions))
	posValues := make([]int, len(positions))
	for i, p := range positions {
		trackIDs[i] = p.TrackID
		posValues[i] = p.Position
	}

	_, err := r.pool.Exec(ctx, query, playlistID, trackIDs, posValues)
	if err != nil {
		return fmt.Errorf("upserting track positions: %w", err)
	}
	return nil
}

// PrunePositions removes the playlist's track rows whose track is not in
// keep. Track rows themselves stay; a track may belong to other playlists.
func (r *TrackRepository) PrunePositions(ctx context.Context, playlistID string, keep []string) error {
	query := `
		DELETE FROM playlist_tracks
		WHERE playlist_id = $1 AND NOT (track_id = ANY($2))
	`
	_, err := r.pool.Exec(ctx, query, playlistID, keep)
	if err != nil {
		return fmt.Errorf("pruning track positions: %w", err)
	}
	return nil
}

// ListForPlaylist retrieves a playlist's tracks in playlist order.
func (r *TrackRepository) ListForPlaylist(ctx context.Context, playlistID string) ([]Track, error) {
	query := `
		SELECT t.spotify_id, t.name, t.artists, t.album, t.features_unavailable
		FROM tracks t
		JOIN playlist_tracks pt ON pt.track_id = t.spotify_id
		WHERE pt.playlist_id = $1
		ORDER BY pt.position
	`
	return r.queryTracks(ctx, query, playlistID)
}

// MissingFeatures retrieves the playlist's tracks that have no feature row
// and are not flagged unavailable, in playlist order.
func (r *TrackRepository) MissingFeatures(ctx context.Context, playlistID string) ([]Track, error) {
	query := `
		SELECT t.spotify_id, t.name, t.artists, t.album, t.features_unavailable
		FROM tracks t
		JOIN playlist_tracks pt ON pt.track_id = t.spotify_id
		LEFT JOIN track_features tf ON tf.track_id = t.spotify_id
		WHERE pt.playlist_id = $1
		  AND tf.track_id IS NULL
		  AND NOT t.features_unavailable
		ORDER BY pt.position
	`
	return r.queryTracks(ctx, query, playlistID)
}

// MarkFeaturesUnavailable flags a track as having no audio features. The
// flag is terminal; flagged tracks never re-enter a feature batch.
func (r *TrackRepository) MarkFeaturesUnavailable(ctx context.Context, spotifyID string) error {
	query := `UPDATE tracks SET features_unavailable = TRUE WHERE spotify_id = $1`
	result, err := r.pool.Exec(ctx, query, spotifyID)
	if err != nil {
		return fmt.Errorf("marking features unavailable: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *TrackRepository) queryTracks(ctx context.Context, query string, args ...any) ([]Track, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tracks: %w", err)
	}
	defer rows.Close()

	var tracks []Track
	for rows.Next() {
		var track Track
		if err := rows.Scan(
			&track.SpotifyID,
			&track.Name,
			&track.Artists,
			&track.Album,
			&track.FeaturesUnavailable,
		); err != nil {
			return nil, fmt.Errorf("scanning track: %w", err)
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}
