package stats

import (
	"context"
	"fmt"

	"github.com/soundmirror/soundmirror/internal/db"
)

// Store provides the playlist and feature rows the service aggregates.
type Store interface {
	GetPlaylist(ctx context.Context, spotifyID string) (*db.Playlist, error)
	FeaturesForPlaylist(ctx context.Context, playlistID string) ([]db.TrackFeatures, error)
}

type dbStore struct {
	db *db.DB
}

// NewDBStore adapts the database to the Store interface.
func NewDBStore(database *db.DB) Store {
	return dbStore{db: database}
}

func (s dbStore) GetPlaylist(ctx context.Context, spotifyID string) (*db.Playlist, error) {
	return s.db.Playlists().Get(ctx, spotifyID)
}

func (s dbStore) FeaturesForPlaylist(ctx context.Context, playlistID string) ([]db.TrackFeatures, error) {
	return s.db.Features().ForPlaylist(ctx, playlistID)
}

// Service produces feature reports for synced playlists.
type Service struct {
	store Store
}

// New creates a stats service.
func New(store Store) *Service {
	return &Service{store: store}
}

// PlaylistReport aggregates the stored feature rows for a playlist.
// fields selects which features to include; nil means all.
func (s *Service) PlaylistReport(ctx context.Context, playlistID string, fields []string) (*Report, error) {
	playlist, err := s.store.GetPlaylist(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("loading playlist: %w", err)
	}

	rows, err := s.store.FeaturesForPlaylist(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("loading features: %w", err)
	}

	records := make([]Record, len(rows))
	for i, row := range rows {
		records[i] = recordFrom(row)
	}
	return Aggregate(playlist.Name, records, fields), nil
}

func recordFrom(f db.TrackFeatures) Record {
	return Record{
		TrackID: f.TrackID,
		Values: map[string]float64{
			"acousticness":     f.Acousticness,
			"danceability":     f.Danceability,
			"energy":           f.Energy,
			"instrumentalness": f.Instrumentalness,
			"key":              float64(f.Key),
			"liveness":         f.Liveness,
			"loudness":         f.Loudness,
			"mode":             float64(f.Mode),
			"speechiness":      f.Speechiness,
			"tempo":            f.Tempo,
			"time_signature":   float64(f.TimeSignature),
			"valence":          f.Valence,
		},
	}
}
