// Package auth manages stored OAuth credentials: expiry checks and
// serialized refresh.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/soundmirror/soundmirror/internal/db"
)

// ErrCredentialsInvalid is returned when the provider rejects the stored
// refresh token. Terminal: the user must authenticate again.
var ErrCredentialsInvalid = errors.New("credentials invalid, re-authentication required")

// DefaultExpiryMargin treats tokens expiring within a minute as already
// expired, so a token can't die between the check and its first use.
const DefaultExpiryMargin = time.Minute

// Refresher exchanges a refresh token for a fresh token set.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// CredentialsStore is the persistence surface the token store needs.
type CredentialsStore interface {
	Get(ctx context.Context, userID uuid.UUID) (*db.Credentials, error)
	Replace(ctx context.Context, creds *db.Credentials) error
}

// TokenStore hands out fresh access tokens, refreshing stored credentials
// when they expire. Refreshes are serialized per user: a spent refresh
// token may be invalidated by the provider, so two concurrent refreshes
// for the same user must never race.
type TokenStore struct {
	store     CredentialsStore
	refresher Refresher
	margin    time.Duration
	now       func() time.Time

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// Option configures a TokenStore.
type Option func(*TokenStore)

// WithExpiryMargin overrides the expiry safety margin.
func WithExpiryMargin(d time.Duration) Option {
	return func(s *TokenStore) {
		s.margin = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *TokenStore) {
		s.now = now
	}
}

// NewTokenStore creates a token store.
func NewTokenStore(store CredentialsStore, refresher Refresher, opts ...Option) *TokenStore {
	s := &TokenStore{
		store:     store,
		refresher: refresher,
		margin:    DefaultExpiryMargin,
		now:       time.Now,
		locks:     make(map[uuid.UUID]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Expired reports whether the credentials are expired at the given
// instant. A nil expiry means the token was never dated and counts as
// expired.
func (s *TokenStore) Expired(creds *db.Credentials, now time.Time) bool {
	if creds.ExpiresAt == nil {
		return true
	}
	return !creds.ExpiresAt.After(now.Add(s.margin))
}

// EnsureFresh returns usable credentials for the user, refreshing and
// persisting them first if expired. Access token, refresh token and
// expiry are replaced together. A rejected refresh token surfaces as
// ErrCredentialsInvalid and is not retried.
func (s *TokenStore) EnsureFresh(ctx context.Context, userID uuid.UUID) (*db.Credentials, error) {
	lock := s.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	creds, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	if !s.Expired(creds, s.now()) {
		return creds, nil
	}

	token, err := s.refresher.Refresh(ctx, creds.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("refreshing credentials: %w", err)
	}

	creds.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		// The provider may omit the refresh token; the old one stays valid.
		creds.RefreshToken = token.RefreshToken
	}
	if token.Expiry.IsZero() {
		creds.ExpiresAt = nil
	} else {
		expiry := token.Expiry
		creds.ExpiresAt = &expiry
	}

	if err := s.store.Replace(ctx, creds); err != nil {
		return nil, fmt.Errorf("storing refreshed credentials: %w", err)
	}
	return creds, nil
}

func (s *TokenStore) lockFor(userID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	return lock
}

// OAuthRefresher implements Refresher against the Spotify token endpoint.
type OAuthRefresher struct {
	config *oauth2.Config
}

// NewOAuthRefresher creates a refresher for the given app credentials.
func NewOAuthRefresher(clientID, clientSecret string) *OAuthRefresher {
	return &OAuthRefresher{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  spotifyauth.AuthURL,
				TokenURL: spotifyauth.TokenURL,
			},
		},
	}
}

// Refresh exchanges the refresh token for a new token set. A 4xx from the
// token endpoint means the refresh token is revoked or invalid.
func (r *OAuthRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	source := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
			retrieveErr.Response.StatusCode >= http.StatusBadRequest &&
			retrieveErr.Response.StatusCode < http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: %v", ErrCredentialsInvalid, err)
		}
		return nil, err
	}
	return token, nil
}
