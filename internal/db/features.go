package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// FeatureRepository handles track feature database operations.
type FeatureRepository struct {
	pool *pgxpool.Pool
}

// Create stores a track's feature vector. Feature rows are written once;
// if one already exists the call is a no-op.
func (r *FeatureRepository) Create(ctx context.Context, features *TrackFeatures) error {
	query := `
		INSERT INTO track_features (
			track_id, acousticness, danceability, energy, instrumentalness,
			key, liveness, loudness, mode, speechiness, tempo, time_signature, valence
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (track_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		features.TrackID,
		features.Acousticness,
		features.Danceability,
		features.Energy,
		features.Instrumentalness,
		features.Key,
		features.Liveness,
		features.Loudness,
		features.Mode,
		features.Speechiness,
		features.Tempo,
		features.TimeSignature,
		features.Valence,
	)
	if err != nil {
		return fmt.Errorf("inserting track features: %w", err)
	}
	return nil
}

// ForPlaylist retrieves the feature rows for a playlist's tracks, in
// playlist order. Tracks without features simply have no row here.
func (r *FeatureRepository) ForPlaylist(ctx context.Context, playlistID string) ([]TrackFeatures, error) {
	query := `
		SELECT tf.track_id, tf.acousticness, tf.danceability, tf.energy, tf.instrumentalness,
		       tf.key, tf.liveness, tf.loudness, tf.mode, tf.speechiness, tf.tempo,
		       tf.time_signature, tf.valence
		FROM track_features tf
		JOIN playlist_tracks pt ON pt.track_id = tf.track_id
		WHERE pt.playlist_id = $1
		ORDER BY pt.position
	`
	rows, err := r.pool.Query(ctx, query, playlistID)
	if err != nil {
		return nil, fmt.Errorf("querying playlist features: %w", err)
	}
	defer rows.Close()

	var features []TrackFeatures
	for rows.Next() {
		var f TrackFeatures
		if err := rows.Scan(
			&f.TrackID,
			&f.Acousticness,
			&f.Danceability,
			&f.Energy,
			&f.Instrumentalness,
			&f.Key,
			&f.Liveness,
			&f.Loudness,
			&f.Mode,
			&f.Speechiness,
			&f.Tempo,
			&f.TimeSignature,
			&f.Valence,
		); err != nil {
			return nil, fmt.Errorf("scanning track features: %w", err)
		}
		features = append(features, f)
	}
	return features, rows.Err()
}
