package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"compliance-stream/src/db"
	"compliance-stream/src/models"
)

// TokenRepository handles all database operations for access tokens
type TokenRepository struct {
	db *db.DB
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(database *db.DB) *TokenRepository {
	return &TokenRepository{
		db: database,
	}
}

// Create persists a freshly issued token.
func (r *TokenRepository) Create(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	query := `
		INSERT INTO access_tokens (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`
	if _, err := r.db.GetConnection().ExecContext(ctx, query, token, userID, expiresAt); err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}

	slog.Info("Issued access token", "user_id", userID, "expires_at", expiresAt)
	return nil
}

// Get retrieves a token record. Unknown and expired tokens both come back as
// models.ErrTokenInvalid; expired rows are removed on the way.
func (r *TokenRepository) Get(ctx context.Context, token string) (*models.TokenRecord, error) {
	query := `
		SELECT token, user_id, expires_at
		FROM access_tokens
		WHERE token = $1
	`
	var record models.TokenRecord
	err := r.db.GetConnection().QueryRowContext(ctx, query, token).Scan(
		&record.Token,
		&record.UserID,
		&record.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrTokenInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	if record.Expired(time.Now()) {
		if err := r.Delete(ctx, token); err != nil {
			slog.Error("Failed to delete expired token", "error", err)
		}
		return nil, models.ErrTokenInvalid
	}

	return &record, nil
}

// Delete removes a token. Deleting an unknown token is not an error.
func (r *TokenRepository) Delete(ctx context.Context, token string) error {
	query := `
		DELETE FROM access_tokens
		WHERE token = $1
	`
	if _, err := r.db.GetConnection().ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// DeleteExpired removes all tokens past their expiry.
func (r *TokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM access_tokens
		WHERE expires_at <= now()
	`
	result, err := r.db.GetConnection().ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		slog.Info("Purged expired tokens", "count", rowsAffected)
	}
	return rowsAffected, nil
}
