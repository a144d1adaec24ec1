package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"compliance-stream/src/models"

	"golang.org/x/crypto/bcrypt"
)

// memUserStore is an in-memory UserStore for tests.
type memUserStore struct {
	mu     sync.Mutex
	users  map[string]*models.User
	hashes map[string]string
}

func newMemUserStore() *memUserStore {
	return &memUserStore{
		users:  make(map[string]*models.User),
		hashes: make(map[string]string),
	}
}

func (s *memUserStore) add(t *testing.T, user models.User, password string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.Username] = &user
	s.hashes[user.Username] = string(hash)
}

func (s *memUserStore) GetByUsername(_ context.Context, username string) (*models.User, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return nil, "", models.ErrUserNotFound
	}
	copied := *user
	return &copied, s.hashes[username], nil
}

func (s *memUserStore) GetByID(_ context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.ID == id {
			copied := *user
			return &copied, nil
		}
	}
	return nil, models.ErrUserNotFound
}

// memTokenStore is an in-memory TokenStore for tests.
type memTokenStore struct {
	mu     sync.Mutex
	tokens map[string]models.TokenRecord
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{tokens: make(map[string]models.TokenRecord)}
}

func (s *memTokenStore) Create(_ context.Context, token string, userID int64, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = models.TokenRecord{Token: token, UserID: userID, ExpiresAt: expiresAt}
	return nil
}

func (s *memTokenStore) Get(_ context.Context, token string) (*models.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.tokens[token]
	if !ok || record.Expired(time.Now()) {
		return nil, models.ErrTokenInvalid
	}
	copied := record
	return &copied, nil
}

func (s *memTokenStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

func newTestAuth(t *testing.T) (*AuthService, *memUserStore, *memTokenStore) {
	t.Helper()
	users := newMemUserStore()
	users.add(t, models.User{
		ID:       1,
		Username: "alice",
		Role:     models.Role{Name: "auditor", Permissions: map[string]bool{"tasks.read": true}},
	}, "secret")
	tokens := newMemTokenStore()
	return NewAuthService(users, tokens), users, tokens
}

func TestLoginIssuesToken(t *testing.T) {
	auth, _, _ := newTestAuth(t)

	resp, err := auth.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatal("expected a non-empty access token")
	}
	if resp.User.Username != "alice" {
		t.Errorf("got user %q, want alice", resp.User.Username)
	}

	user, err := auth.Identity(context.Background(), resp.AccessToken)
	if err != nil {
		t.Fatalf("Identity failed: %v", err)
	}
	if user.ID != 1 {
		t.Errorf("token resolved to user %d, want 1", user.ID)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	auth, _, _ := newTestAuth(t)

	_, err := auth.Login(context.Background(), "alice", "nope")
	if !errors.Is(err, models.ErrInvalidCredentials) {
		t.Errorf("got error %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	auth, _, _ := newTestAuth(t)

	// Unknown user and wrong password are indistinguishable to the caller.
	_, err := auth.Login(context.Background(), "mallory", "secret")
	if !errors.Is(err, models.ErrInvalidCredentials) {
		t.Errorf("got error %v, want ErrInvalidCredentials", err)
	}
}

func TestIdentityExpiredToken(t *testing.T) {
	auth, _, tokens := newTestAuth(t)

	if err := tokens.Create(context.Background(), "tok-old", 1, time.Now().Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}
	_, err := auth.Identity(context.Background(), "tok-old")
	if !errors.Is(err, models.ErrTokenInvalid) {
		t.Errorf("got error %v, want ErrTokenInvalid", err)
	}
}

func TestIdentityRevokedToken(t *testing.T) {
	auth, _, _ := newTestAuth(t)

	resp, err := auth.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := auth.Revoke(context.Background(), resp.AccessToken); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := auth.Identity(context.Background(), resp.AccessToken); !errors.Is(err, models.ErrTokenInvalid) {
		t.Errorf("got error %v, want ErrTokenInvalid", err)
	}
}

func TestIdentityOrphanedToken(t *testing.T) {
	auth, _, tokens := newTestAuth(t)

	if err := tokens.Create(context.Background(), "tok-ghost", 99, time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := auth.Identity(context.Background(), "tok-ghost"); !errors.Is(err, models.ErrTokenInvalid) {
		t.Errorf("got error %v, want ErrTokenInvalid for a token without a user", err)
	}
}
