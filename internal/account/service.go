// Package account implements the OAuth registration flow: pending state
// creation, callback completion, and expired-state sweeping.
package account

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/soundmirror/soundmirror/internal/db"
	"github.com/soundmirror/soundmirror/internal/spotify"
)

// ErrUnknownState is returned when a callback carries a state string with
// no matching pending registration. The state was either never issued,
// already consumed, or swept.
var ErrUnknownState = errors.New("unknown or already used state")

const (
	stateAlphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	defaultStateLength = 16

	// maxStateAttempts bounds collision retries. At the default length a
	// collision is effectively impossible; this only matters for tiny
	// token spaces.
	maxStateAttempts = 10000
)

// Exchanger swaps an authorization code for a token pair.
type Exchanger interface {
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// GatewayFactory builds an API client acting as an access token's user.
type GatewayFactory interface {
	ForAccessToken(ctx context.Context, accessToken string) spotify.Gateway
}

// Store is the persistence the registration flow needs.
type Store interface {
	CreateRegistration(ctx context.Context, reg *db.PendingRegistration) error
	ConsumeRegistration(ctx context.Context, state string) (*db.PendingRegistration, error)
	DeleteRegistrationsOlderThan(ctx context.Context, maxAge time.Duration) (int64, error)

	GetUser(ctx context.Context, id uuid.UUID) (*db.User, error)
	GetUserBySpotifyID(ctx context.Context, spotifyID string) (*db.User, error)
	CreateUser(ctx context.Context, user *db.User) error
	LinkIdentity(ctx context.Context, spotifyID string, userID uuid.UUID) error
	ReplaceCredentials(ctx context.Context, creds *db.Credentials) error
}

type dbStore struct {
	db *db.DB
}

// NewDBStore adapts the database to the Store interface.
func NewDBStore(database *db.DB) Store {
	return dbStore{db: database}
}

func (s dbStore) CreateRegistration(ctx context.Context, reg *db.PendingRegistration) error {
	return s.db.Registrations().Create(ctx, reg)
}

func (s dbStore) ConsumeRegistration(ctx context.Context, state string) (*db.PendingRegistration, error) {
	return s.db.Registrations().Consume(ctx, state)
}

func (s dbStore) DeleteRegistrationsOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	return s.db.Registrations().DeleteOlderThan(ctx, maxAge)
}

func (s dbStore) GetUser(ctx context.Context, id uuid.UUID) (*db.User, error) {
	return s.db.Users().Get(ctx, id)
}

func (s dbStore) GetUserBySpotifyID(ctx context.Context, spotifyID string) (*db.User, error) {
	return s.db.Users().GetBySpotifyID(ctx, spotifyID)
}

func (s dbStore) CreateUser(ctx context.Context, user *db.User) error {
	return s.db.Users().Create(ctx, user)
}

func (s dbStore) LinkIdentity(ctx context.Context, spotifyID string, userID uuid.UUID) error {
	return s.db.Users().LinkIdentity(ctx, spotifyID, userID)
}

func (s dbStore) ReplaceCredentials(ctx context.Context, creds *db.Credentials) error {
	return s.db.Credentials().Replace(ctx, creds)
}

// Service runs the registration flow.
type Service struct {
	store       Store
	exchanger   Exchanger
	factory     GatewayFactory
	log         zerolog.Logger
	stateLength int
}

// Option configures a Service.
type Option func(*Service)

// WithStateLength overrides the generated state token length.
func WithStateLength(n int) Option {
	return func(s *Service) { s.stateLength = n }
}

// New creates a registration service.
func New(store Store, exchanger Exchanger, factory GatewayFactory, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:       store,
		exchanger:   exchanger,
		factory:     factory,
		log:         logger.With().Str("component", "account").Logger(),
		stateLength: defaultStateLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin starts a login flow: generates a unique random state token,
// persists it, and returns it for use as the OAuth state parameter.
// Collisions with stored tokens are retried with a fresh token.
func (s *Service) Begin(ctx context.Context) (string, error) {
	return s.begin(ctx, nil)
}

// BeginForUser starts a re-link flow for an existing account. The
// callback attaches the Spotify identity to this user instead of
// resolving one from the profile.
func (s *Service) BeginForUser(ctx context.Context, userID uuid.UUID) (string, error) {
	return s.begin(ctx, &userID)
}

func (s *Service) begin(ctx context.Context, userID *uuid.UUID) (string, error) {
	for attempt := 0; attempt < maxStateAttempts; attempt++ {
		state, err := randomState(s.stateLength)
		if err != nil {
			return "", fmt.Errorf("generating state: %w", err)
		}
		err = s.store.CreateRegistration(ctx, &db.PendingRegistration{State: state, UserID: userID})
		if errors.Is(err, db.ErrDuplicateState) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("storing pending registration: %w", err)
		}
		return state, nil
	}
	return "", errors.New("state token space exhausted")
}

// Complete finishes the flow for an OAuth callback. The state is consumed
// exactly once; a second callback with the same state gets ErrUnknownState.
// The code is exchanged for tokens, the Spotify profile fetched, a user
// created or reused, and the credentials stored atomically.
func (s *Service) Complete(ctx context.Context, state, code string) (*db.User, error) {
	reg, err := s.store.ConsumeRegistration(ctx, state)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrUnknownState
	}
	if err != nil {
		return nil, fmt.Errorf("consuming registration: %w", err)
	}

	token, err := s.exchanger.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging code: %w", err)
	}

	profile, err := s.factory.ForAccessToken(ctx, token.AccessToken).CurrentUserProfile(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching profile: %w", err)
	}

	user, err := s.resolveUser(ctx, reg, profile)
	if err != nil {
		return nil, err
	}

	if err := s.store.LinkIdentity(ctx, profile.ID, user.ID); err != nil {
		return nil, fmt.Errorf("linking identity: %w", err)
	}

	creds := &db.Credentials{
		UserID:       user.ID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		creds.ExpiresAt = &expiry
	}
	if err := s.store.ReplaceCredentials(ctx, creds); err != nil {
		return nil, fmt.Errorf("storing credentials: %w", err)
	}

	s.log.Info().Stringer("user", user.ID).Str("spotify_id", profile.ID).Msg("registration complete")
	return user, nil
}

// resolveUser picks the account the identity attaches to: the one the
// registration was pre-linked to, else the one already owning this
// Spotify ID, else a new user built from the profile.
func (s *Service) resolveUser(ctx context.Context, reg *db.PendingRegistration, profile *spotify.Profile) (*db.User, error) {
	if reg.UserID != nil {
		user, err := s.store.GetUser(ctx, *reg.UserID)
		if err != nil {
			return nil, fmt.Errorf("loading pre-linked user: %w", err)
		}
		return user, nil
	}

	user, err := s.store.GetUserBySpotifyID(ctx, profile.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	user = &db.User{
		ID:          uuid.New(),
		Email:       profile.Email,
		DisplayName: profile.DisplayName,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return user, nil
}

// SweepExpired deletes pending registrations older than maxAge. Safe to
// run repeatedly and concurrently.
func (s *Service) SweepExpired(ctx context.Context, maxAge time.Duration) (int64, error) {
	n, err := s.store.DeleteRegistrationsOlderThan(ctx, maxAge)
	if err != nil {
		return 0, fmt.Errorf("sweeping registrations: %w", err)
	}
	if n > 0 {
		s.log.Debug().Int64("swept", n).Msg("expired registrations removed")
	}
	return n, nil
}

func randomState(length int) (string, error) {
	buf := make([]byte, length)
	max := big.NewInt(int64(len(stateAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = stateAlphabet[n.Int64()]
	}
	return string(buf), nil
}
