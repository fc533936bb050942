package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CredentialsRepository handles OAuth credential database operations.
type CredentialsRepository struct {
	pool *pgxpool.Pool
}

// Get retrieves the credentials for a user.
func (r *CredentialsRepository) Get(ctx context.Context, userID uuid.UUID) (*Credentials, error) {
	query := `
		SELECT user_id, access_token, refresh_token, expires_at, updated_at
		FROM credentials
		WHERE user_id = $1
	`
	var creds Credentials
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&creds.UserID,
		&creds.AccessToken,
		&creds.RefreshToken,
		&creds.ExpiresAt,
		&creds.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	return &creds, nil
}

// Replace stores the full token set for a user, creating the row if needed.
// Access token, refresh token and expiry are always written together.
func (r *CredentialsRepository) Replace(ctx context.Context, creds *Credentials) error {
	query := `
		INSERT INTO credentials (user_id, access_token, refresh_token, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
		RETURNING updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		creds.UserID,
		creds.AccessToken,
		creds.RefreshToken,
		creds.ExpiresAt,
	).Scan(&creds.UpdatedAt)
	if err != nil {
		return fmt.Errorf("replacing credentials: %w", err)
	}
	return nil
}
