// Package spotify provides the gateway to the Spotify Web API consumed by
// the sync and backfill engines.
package spotify

import (
	"context"
	"errors"
)

// Per-request limits imposed by the Spotify Web API.
const (
	// PageSize is the maximum number of items per listing request.
	PageSize = 50

	// MaxFeatureIDs is the maximum number of track IDs per audio-feature
	// lookup.
	MaxFeatureIDs = 100
)

// ErrGatewayUnavailable is returned when the remote API cannot be reached
// or answers with a server error. Callers may retry the whole operation;
// nothing is retried here.
var ErrGatewayUnavailable = errors.New("spotify unavailable")

// Profile is the authenticated user's Spotify profile.
type Profile struct {
	ID          string
	Email       string
	DisplayName string
}

// PlaylistEntry is one playlist from the user's library listing. Entries
// arrive in library order.
type PlaylistEntry struct {
	ID            string
	Name          string
	Owner         string
	Public        bool
	Collaborative bool
}

// TrackEntry is one track from a playlist listing. Entries arrive in
// playlist order; locally-uploaded files are filtered out before this
// point because they have no stable catalog ID.
type TrackEntry struct {
	ID      string
	Name    string
	Artists []string
	Album   string
}

// AudioFeatures is the feature vector for one track.
type AudioFeatures struct {
	ID               string
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

// Gateway is the contract the engines consume. Listings follow the remote
// pagination cursor to exhaustion and preserve the returned order.
type Gateway interface {
	// CurrentUserProfile returns the authenticated user's profile.
	CurrentUserProfile(ctx context.Context) (*Profile, error)

	// ListUserPlaylists returns the full ordered playlist library of the
	// authenticated user.
	ListUserPlaylists(ctx context.Context) ([]PlaylistEntry, error)

	// PlaylistSnapshotID fetches just the playlist's current snapshot ID;
	// a single cheap call used for staleness checks.
	PlaylistSnapshotID(ctx context.Context, playlistID string) (string, error)

	// ListPlaylistTracks returns the playlist's full ordered track list,
	// local files excluded.
	ListPlaylistTracks(ctx context.Context, playlistID string) ([]TrackEntry, error)

	// AudioFeatures looks up features for up to MaxFeatureIDs tracks. The
	// result is positionally aligned with ids; a nil entry means no
	// features exist for that track.
	AudioFeatures(ctx context.Context, ids []string) ([]*AudioFeatures, error)
}
