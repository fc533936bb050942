package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PlaylistRepository handles playlist and membership database operations.
type PlaylistRepository struct {
	pool *pgxpool.Pool
}

// Upsert creates or updates a playlist's descriptive fields by Spotify ID.
// The stored snapshot ID is left alone; it only moves forward once the
// playlist's tracks have actually been reconciled (see UpdateSnapshot).
func (r *PlaylistRepository) Upsert(ctx context.Context, playlist *Playlist) error {
	query := `
		INSERT INTO playlists (spotify_id, snapshot_id, name, owner, visibility, last_updated)
		VALUES ($1, '', $2, $3, $4, NOW())
		ON CONFLICT (spotify_id) DO UPDATE SET
			name = EXCLUDED.name,
			owner = EXCLUDED.owner,
			visibility = EXCLUDED.visibility
		RETURNING snapshot_id, last_updated
	`
	err := r.pool.QueryRow(ctx, query,
		playlist.SpotifyID,
		playlist.Name,
		playlist.Owner,
		playlist.Visibility,
	).Scan(&playlist.SnapshotID, &playlist.LastUpdated)
	if err != nil {
		return fmt.Errorf("upserting playlist: %w", err)
	}
	return nil
}

// Get retrieves a playlist by Spotify ID.
func (r *PlaylistRepository) Get(ctx context.Context, spotifyID string) (*Playlist, error) {
	query := `
		SELECT spotify_id, snapshot_id, name, owner, visibility, last_updated
		FROM playlists
		WHERE spotify_id = $1
	`
	var playlist Playlist
	err := r.pool.QueryRow(ctx, query, spotifyID).Scan(
		&playlist.SpotifyID,
		&playlist.SnapshotID,
		&playlist.Name,
		&playlist.Owner,
		&playlist.Visibility,
		&playlist.LastUpdated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying playlist: %w", err)
	}
	return &playlist, nil
}

// UpdateSnapshot records the snapshot ID a completed track sync was based
// on and refreshes last_updated.
func (r *PlaylistRepository) UpdateSnapshot(ctx context.Context, spotifyID, snapshotID string) error {
	query := `
		UPDATE playlists
		SET snapshot_id = $2, last_updated = NOW()
		WHERE spotify_id = $1
	`
	result, err := r.pool.Exec(ctx, query, spotifyID, snapshotID)
	if err != nil {
		return fmt.Errorf("updating snapshot: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertMembership records that a user follows a playlist at the given
// library position.
func (r *PlaylistRepository) UpsertMembership(ctx context.Context, userID uuid.UUID, playlistID string, position int) error {
	query := `
		INSERT INTO playlist_memberships (user_id, playlist_id, position)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, playlist_id) DO UPDATE SET position = EXCLUDED.position
	`
	_, err := r.pool.Exec(ctx, query, userID, playlistID, position)
	if err != nil {
		return fmt.Errorf("upserting membership: %w", err)
	}
	return nil
}

// PruneMemberships removes the user's memberships for playlists not in
// keep. The playlist rows themselves stay; other users may still follow
// them.
func (r *PlaylistRepository) PruneMemberships(ctx context.Context, userID uuid.UUID, keep []string) error {
	query := `
		DELETE FROM playlist_memberships
		WHERE user_id = $1 AND NOT (playlist_id = ANY($2))
	`
	_, err := r.pool.Exec(ctx, query, userID, keep)
	if err != nil {
		return fmt.Errorf("pruning memberships: %w", err)
	}
	return nil
}

// ListForUser retrieves a user's playlists in library order.
func (r *PlaylistRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]Playlist, error) {
	query := `
		SELECT p.spotify_id, p.snapshot_id, p.name, p.owner, p.visibility, p.last_updated
		FROM playlists p
		JOIN playlist_memberships pm ON pm.playlist_id = p.spotify_id
		WHERE pm.user_id = $1
		ORDER BY pm.position
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying user playlists: %w", err)
	}
	defer rows.Close()

	var playlists []Playlist
	for rows.Next() {
		var playlist Playlist
		if err := rows.Scan(
			&playlist.SpotifyID,
			&playlist.SnapshotID,
			&playlist.Name,
			&playlist.Owner,
			&playlist.Visibility,
			&playlist.LastUpdated,
		); err != nil {
			return nil, fmt.Errorf("scanning playlist: %w", err)
		}
		playlists = append(playlists, playlist)
	}
	return playlists, rows.Err()
}

// IsMember reports whether a user follows a playlist.
func (r *PlaylistRepository) IsMember(ctx context.Context, userID uuid.UUID, playlistID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM playlist_memberships
			WHERE user_id = $1 AND playlist_id = $2
		)
	`
	var member bool
	if err := r.pool.QueryRow(ctx, query, userID, playlistID).Scan(&member); err != nil {
		return false, fmt.Errorf("querying membership: %w", err)
	}
	return member, nil
}
