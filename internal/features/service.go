// Package features backfills audio features for tracks that do not have
// them yet.
package features

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/soundmirror/soundmirror/internal/db"
	"github.com/soundmirror/soundmirror/internal/spotify"
)

// Gateway is the slice of the Spotify gateway the backfill needs.
type Gateway interface {
	AudioFeatures(ctx context.Context, ids []string) ([]*spotify.AudioFeatures, error)
}

// Store is the persistence surface the backfill needs.
type Store interface {
	CreateFeatures(ctx context.Context, features *db.TrackFeatures) error
	MarkFeaturesUnavailable(ctx context.Context, trackID string) error
}

// NewDBStore adapts the database repositories to Store.
func NewDBStore(database *db.DB) Store {
	return dbStore{db: database}
}

type dbStore struct {
	db *db.DB
}

func (s dbStore) CreateFeatures(ctx context.Context, features *db.TrackFeatures) error {
	return s.db.Features().Create(ctx, features)
}

func (s dbStore) MarkFeaturesUnavailable(ctx context.Context, trackID string) error {
	return s.db.Tracks().MarkFeaturesUnavailable(ctx, trackID)
}

// Service fetches missing audio features in bounded batches.
type Service struct {
	gateway   Gateway
	store     Store
	log       zerolog.Logger
	batchSize int
}

// Option configures a Service.
type Option func(*Service)

// WithBatchSize overrides the per-request ID limit.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		s.batchSize = n
	}
}

// New creates a backfill service.
func New(gateway Gateway, store Store, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		gateway:   gateway,
		store:     store,
		log:       logger,
		batchSize: spotify.MaxFeatureIDs,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result summarizes a backfill run.
type Result struct {
	Fetched     int // feature rows created
	Unavailable int // tracks newly flagged as having no features
}

// Backfill fetches features for the given tracks in batches. Responses
// are positionally aligned with each batch; a nil entry is not an error,
// it means the catalog has no features for that track, which is recorded
// so the track is never asked about again. Tracks already flagged
// unavailable are dropped from the input. An empty input is a no-op.
func (s *Service) Backfill(ctx context.Context, tracks []db.Track) (*Result, error) {
	result := &Result{}

	pending := make([]db.Track, 0, len(tracks))
	for _, t := range tracks {
		if t.FeaturesUnavailable {
			continue
		}
		pending = append(pending, t)
	}
	if len(pending) == 0 {
		return result, nil
	}

	for start := 0; start < len(pending); start += s.batchSize {
		end := min(start+s.batchSize, len(pending))
		chunk := pending[start:end]

		ids := make([]string, len(chunk))
		for i, t := range chunk {
			ids[i] = t.SpotifyID
		}

		found, err := s.gateway.AudioFeatures(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("feature batch %d-%d: %w", start+1, end, err)
		}
		if len(found) != len(chunk) {
			return nil, fmt.Errorf("feature batch %d-%d: got %d entries for %d tracks", start+1, end, len(found), len(chunk))
		}

		for i, f := range found {
			track := chunk[i]
			if f == nil {
				if err := s.store.MarkFeaturesUnavailable(ctx, track.SpotifyID); err != nil {
					return nil, fmt.Errorf("flagging track %s: %w", track.SpotifyID, err)
				}
				s.log.Debug().Str("track", track.Name).Msg("no audio features available")
				result.Unavailable++
				continue
			}

			if err := s.store.CreateFeatures(ctx, convert(track.SpotifyID, f)); err != nil {
				return nil, fmt.Errorf("storing features for track %s: %w", track.SpotifyID, err)
			}
			result.Fetched++
		}
	}

	s.log.Info().
		Int("fetched", result.Fetched).
		Int("unavailable", result.Unavailable).
		Msg("feature backfill complete")
	return result, nil
}

// convert maps a gateway feature vector onto a database row.
func convert(trackID string, f *spotify.AudioFeatures) *db.TrackFeatures {
	return &db.TrackFeatures{
		TrackID:          trackID,
		Acousticness:     f.Acousticness,
		Danceability:     f.Danceability,
		Energy:           f.Energy,
		Instrumentalness: f.Instrumentalness,
		Key:              f.Key,
		Liveness:         f.Liveness,
		Loudness:         f.Loudness,
		Mode:             f.Mode,
		Speechiness:      f.Speechiness,
		Tempo:            f.Tempo,
		TimeSignature:    f.TimeSignature,
		Valence:          f.Valence,
	}
}
