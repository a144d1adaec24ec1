package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"compliance-stream/src/config"
	"compliance-stream/src/models"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// UserStore is the persistence boundary for users. The Postgres repository
// implements it; tests use an in-memory one.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*models.User, string, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// TokenStore is the persistence boundary for access tokens.
type TokenStore interface {
	Create(ctx context.Context, token string, userID int64, expiresAt time.Time) error
	Get(ctx context.Context, token string) (*models.TokenRecord, error)
	Delete(ctx context.Context, token string) error
}

// AuthService implements login and token-based identity resolution.
type AuthService struct {
	users  UserStore
	tokens TokenStore
}

func NewAuthService(users UserStore, tokens TokenStore) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
	}
}

// Login verifies the credentials and issues a fresh access token. Unknown
// users and wrong passwords are both models.ErrInvalidCredentials so the
// response does not reveal which usernames exist.
func (s *AuthService) Login(ctx context.Context, username, password string) (*models.LoginResponse, error) {
	user, passwordHash, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, models.ErrUserNotFound) {
		return nil, models.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		slog.Info("Login rejected", "username", username)
		return nil, models.ErrInvalidCredentials
	}

	token := uuid.New().String()
	expiresAt := time.Now().Add(config.TokenTTL)
	if err := s.tokens.Create(ctx, token, user.ID, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}

	slog.Info("Login succeeded", "username", username, "user_id", user.ID)

	return &models.LoginResponse{
		AccessToken: token,
		User:        *user,
	}, nil
}

// Identity resolves a bearer token to the user it was issued to. Expired and
// unknown tokens are models.ErrTokenInvalid.
func (s *AuthService) Identity(ctx context.Context, token string) (*models.User, error) {
	record, err := s.tokens.Get(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrTokenInvalid) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if errors.Is(err, models.ErrUserNotFound) {
		// Token outlived its user, treat it as revoked.
		return nil, models.ErrTokenInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return user, nil
}

// Revoke deletes a token. Revoking an unknown token is not an error.
func (s *AuthService) Revoke(ctx context.Context, token string) error {
	return s.tokens.Delete(ctx, token)
}
