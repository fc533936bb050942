package spotify

import (
	"context"
	"errors"
	"fmt"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/time/rate"
)

// defaultRequestRate keeps page and batch fetches polite; pagination is
// sequential anyway, so one token per request is enough.
const defaultRequestRate = rate.Limit(10)

// Client implements Gateway over the Spotify Web API.
type Client struct {
	api     *spotify.Client
	limiter *rate.Limiter
}

// NewClient creates a gateway client wrapping an authenticated API client.
func NewClient(api *spotify.Client) *Client {
	return &Client{
		api:     api,
		limiter: rate.NewLimiter(defaultRequestRate, 1),
	}
}

// CurrentUserProfile returns the authenticated user's profile.
func (c *Client) CurrentUserProfile(ctx context.Context) (*Profile, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	user, err := c.api.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting current user: %w", classify(err))
	}
	return &Profile{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
	}, nil
}

// ListUserPlaylists returns the user's full playlist library, following
// the pagination cursor until exhausted. Library order is preserved.
func (c *Client) ListUserPlaylists(ctx context.Context) ([]PlaylistEntry, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	page, err := c.api.CurrentUsersPlaylists(ctx, spotify.Limit(PageSize))
	if err != nil {
		return nil, fmt.Errorf("listing playlists: %w", classify(err))
	}

	var entries []PlaylistEntry
	for {
		for _, pl := range page.Playlists {
			entries = append(entries, convertPlaylist(pl))
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		err = c.api.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fetching next playlist page: %w", classify(err))
		}
	}
	return entries, nil
}

// PlaylistSnapshotID fetches only the playlist's snapshot ID.
func (c *Client) PlaylistSnapshotID(ctx context.Context, playlistID string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	playlist, err := c.api.GetPlaylist(ctx, spotify.ID(playlistID), spotify.Fields("snapshot_id"))
	if err != nil {
		return "", fmt.Errorf("fetching playlist snapshot: %w", classify(err))
	}
	return playlist.SnapshotID, nil
}

// ListPlaylistTracks returns the playlist's full track list in playlist
// order, following the pagination cursor until exhausted. Local files are
// dropped.
func (c *Client) ListPlaylistTracks(ctx context.Context, playlistID string) ([]TrackEntry, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	page, err := c.api.GetPlaylistTracks(ctx, spotify.ID(playlistID), spotify.Limit(PageSize))
	if err != nil {
		return nil, fmt.Errorf("listing playlist tracks: %w", classify(err))
	}

	var entries []TrackEntry
	for {
		entries = appendTracks(entries, page.Tracks)

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		err = c.api.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fetching next track page: %w", classify(err))
		}
	}
	return entries, nil
}

// AudioFeatures looks up audio features for up to MaxFeatureIDs tracks.
// The result is positionally aligned with ids; nil entries mean no
// features exist for that track.
func (c *Client) AudioFeatures(ctx context.Context, ids []string) ([]*AudioFeatures, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxFeatureIDs {
		return nil, fmt.Errorf("requested %d feature IDs, limit is %d", len(ids), MaxFeatureIDs)
	}

	spotifyIDs := make([]spotify.ID, len(ids))
	for i, id := range ids {
		spotifyIDs[i] = spotify.ID(id)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	features, err := c.api.GetAudioFeatures(ctx, spotifyIDs...)
	if err != nil {
		return nil, fmt.Errorf("fetching audio features: %w", classify(err))
	}

	out := make([]*AudioFeatures, len(features))
	for i, f := range features {
		out[i] = convertFeatures(f)
	}
	return out, nil
}

// classify maps transport failures and server errors to
// ErrGatewayUnavailable so callers can tell a retryable outage from a
// request that is simply wrong.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		if apiErr.Status >= 500 {
			return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		return err
	}
	// Anything that never produced an API response is a transport failure.
	return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
}

var _ Gateway = (*Client)(nil)
