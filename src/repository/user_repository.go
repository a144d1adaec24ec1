package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"compliance-stream/src/db"
	"compliance-stream/src/models"
)

// UserRepository handles all database operations for users
type UserRepository struct {
	db *db.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(database *db.DB) *UserRepository {
	return &UserRepository{
		db: database,
	}
}

// userRow carries the credential columns alongside the public user fields.
type userRow struct {
	user         models.User
	passwordHash string
}

// GetByUsername retrieves a user and its password hash by username. A missing
// user is models.ErrUserNotFound, not a database error.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, string, error) {
	query := `
		SELECT id, username, password_hash, role_name, permissions
		FROM users
		WHERE username = $1
	`
	row, err := r.scanUser(r.db.GetConnection().QueryRowContext(ctx, query, username))
	if err == sql.ErrNoRows {
		return nil, "", models.ErrUserNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to get user by username: %w", err)
	}
	return &row.user, row.passwordHash, nil
}

// GetByID retrieves a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT id, username, password_hash, role_name, permissions
		FROM users
		WHERE id = $1
	`
	row, err := r.scanUser(r.db.GetConnection().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &row.user, nil
}

// Create inserts a new user with a pre-hashed password.
func (r *UserRepository) Create(ctx context.Context, username, passwordHash string, role models.Role) (*models.User, error) {
	permissions, err := json.Marshal(role.Permissions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal permissions: %w", err)
	}

	query := `
		INSERT INTO users (username, password_hash, role_name, permissions)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	var id int64
	err = r.db.GetConnection().QueryRowContext(ctx, query, username, passwordHash, role.Name, permissions).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("Created user", "user_id", id, "username", username, "role", role.Name)

	return &models.User{ID: id, Username: username, Role: role}, nil
}

func (r *UserRepository) scanUser(row *sql.Row) (userRow, error) {
	var out userRow
	var permissions []byte
	err := row.Scan(
		&out.user.ID,
		&out.user.Username,
		&out.passwordHash,
		&out.user.Role.Name,
		&permissions,
	)
	if err != nil {
		return userRow{}, err
	}
	if err := json.Unmarshal(permissions, &out.user.Role.Permissions); err != nil {
		return userRow{}, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}
	return out, nil
}
