package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RegistrationRepository handles pending registration database operations.
type RegistrationRepository struct {
	pool *pgxpool.Pool
}

// Create inserts a pending registration. Returns ErrDuplicateState if the
// state string is already in use, so callers can regenerate and retry.
func (r *RegistrationRepository) Create(ctx context.Context, reg *PendingRegistration) error {
	query := `
		INSERT INTO pending_registrations (state_string, user_id, created_at)
		VALUES ($1, $2, NOW())
		RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, query, reg.State, reg.UserID).Scan(&reg.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateState
		}
		return fmt.Errorf("inserting pending registration: %w", err)
	}
	return nil
}

// Consume atomically deletes and returns the registration for a state
// string. Exactly one caller can consume a given state; everyone else gets
// ErrNotFound.
func (r *RegistrationRepository) Consume(ctx context.Context, state string) (*PendingRegistration, error) {
	query := `
		DELETE FROM pending_registrations
		WHERE state_string = $1
		RETURNING state_string, user_id, created_at
	`
	var reg PendingRegistration
	err := r.pool.QueryRow(ctx, query, state).Scan(&reg.State, &reg.UserID, &reg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consuming pending registration: %w", err)
	}
	return &reg, nil
}

// DeleteOlderThan removes registrations created more than maxAge ago and
// reports how many were dropped. Safe to run repeatedly and concurrently.
func (r *RegistrationRepository) DeleteOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	query := `DELETE FROM pending_registrations WHERE created_at < $1`
	result, err := r.pool.Exec(ctx, query, time.Now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("deleting stale registrations: %w", err)
	}
	return result.RowsAffected(), nil
}
