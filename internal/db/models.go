package db

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account holder. One user owns at most one Spotify
// identity and one set of credentials.
type User struct {
	ID          uuid.UUID
	Email       string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SpotifyIdentity links a user to their stable external Spotify ID.
type SpotifyIdentity struct {
	SpotifyID string
	UserID    uuid.UUID
	CreatedAt time.Time
}

// Credentials holds a user's OAuth token pair. A nil ExpiresAt is treated
// as already expired.
type Credentials struct {
	UserID       uuid.UUID
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	UpdatedAt    time.Time
}

// Visibility is a playlist's sharing status.
type Visibility string

const (
	VisibilityPrivate       Visibility = "private"
	VisibilityPublic        Visibility = "public"
	VisibilityCollaborative Visibility = "collaborative"
)

// Playlist represents a Spotify playlist, keyed by its Spotify ID.
// SnapshotID is the remote version token last seen by track sync.
type Playlist struct {
	SpotifyID   string
	SnapshotID  string
	Name        string
	Owner       string
	Visibility  Visibility
	LastUpdated time.Time
}

// Membership records that a user follows a playlist, with the playlist's
// ordinal position in the user's library.
type Membership struct {
	UserID     uuid.UUID
	PlaylistID string
	Position   int
}

// Track represents a Spotify track. Artists preserves the original credit
// order. FeaturesUnavailable marks tracks the feature API returned nothing
// for; they are never queried again.
type Track struct {
	SpotifyID           string
	Name                string
	Artists             []string
	Album               string
	FeaturesUnavailable bool
}

// TrackPosition records a track's ordinal position within one playlist.
type TrackPosition struct {
	PlaylistID string
	TrackID    string
	Position   int
}

// TrackFeatures holds the audio feature vector for a track. Created once
// when first fetched, never updated.
type TrackFeatures struct {
	TrackID          string
	Acousticness     float64
	Danceability     float64
	Energy           float64
	Instrumentalness float64
	Key              int
	Liveness         float64
	Loudness         float64
	Mode             int
	Speechiness      float64
	Tempo            float64
	TimeSignature    int
	Valence          float64
}

// PendingRegistration is an in-flight OAuth login, identified by its
// random state string. Consumed exactly once by the callback, or swept
// after an age threshold.
type PendingRegistration struct {
	State     string
	UserID    *uuid.UUID
	CreatedAt time.Time
}
