package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository handles user and identity database operations.
type UserRepository struct {
	pool *pgxpool.Pool
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, email, display_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	now := time.Now()
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.DisplayName,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// Get retrieves a user by ID.
func (r *UserRepository) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `
		SELECT id, email, display_name, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	var user User
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &user, nil
}

// GetBySpotifyID retrieves the user linked to a Spotify ID.
func (r *UserRepository) GetBySpotifyID(ctx context.Context, spotifyID string) (*User, error) {
	query := `
		SELECT u.id, u.email, u.display_name, u.created_at, u.updated_at
		FROM users u
		JOIN spotify_identities si ON si.user_id = u.id
		WHERE si.spotify_id = $1
	`
	var user User
	err := r.pool.QueryRow(ctx, query, spotifyID).Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by spotify id: %w", err)
	}
	return &user, nil
}

// LinkIdentity records the identity linking a user to a Spotify ID.
// Linking the same pair again is a no-op; an identity is created once and
// lives as long as its user.
func (r *UserRepository) LinkIdentity(ctx context.Context, spotifyID string, userID uuid.UUID) error {
	query := `
		INSERT INTO spotify_identities (spotify_id, user_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (spotify_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, spotifyID, userID)
	if err != nil {
		return fmt.Errorf("linking spotify identity: %w", err)
	}
	return nil
}

// GetIdentity retrieves the identity for a Spotify ID.
func (r *UserRepository) GetIdentity(ctx context.Context, spotifyID string) (*SpotifyIdentity, error) {
	query := `
		SELECT spotify_id, user_id, created_at
		FROM spotify_identities
		WHERE spotify_id = $1
	`
	var identity SpotifyIdentity
	err := r.pool.QueryRow(ctx, query, spotifyID).Scan(
		&identity.SpotifyID,
		&identity.UserID,
		&identity.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying spotify identity: %w", err)
	}
	return &identity, nil
}
