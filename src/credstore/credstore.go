// Package credstore persists the bearer token between process runs, the way
// the web client keeps it in an auth_token cookie. The token is stored as a
// serialized cookie with an expiry; an expired or missing cookie reads back as
// absent.
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// CookieName is the key the token is stored under.
const CookieName = "auth_token"

type storedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Expires time.Time `json:"expires"`
}

// Store is a file-backed token store.
type Store struct {
	path string
}

// DefaultPath returns the token file location under the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "compliancectl", CookieName+".json"), nil
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Save writes the token with the given time-to-live. The file is created with
// mode 0600 since it holds a credential.
func (s *Store) Save(token string, ttl time.Duration) error {
	cookie := storedCookie{
		Name:    CookieName,
		Value:   token,
		Expires: time.Now().Add(ttl),
	}
	data, err := json.Marshal(cookie)
	if err != nil {
		return fmt.Errorf("failed to marshal token cookie: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credential dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token cookie: %w", err)
	}
	return nil
}

// Load reads the persisted token. It returns ok=false when no token is stored
// or the stored one is past its expiry; an expired cookie is cleared.
func (s *Store) Load() (string, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read token cookie: %w", err)
	}

	var cookie storedCookie
	if err := json.Unmarshal(data, &cookie); err != nil {
		// Corrupt file, treat as absent.
		_ = s.Clear()
		return "", false, nil
	}
	if cookie.Value == "" || !time.Now().Before(cookie.Expires) {
		_ = s.Clear()
		return "", false, nil
	}
	return cookie.Value, true, nil
}

// Clear removes the persisted token. Clearing an absent token is not an error.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove token cookie: %w", err)
	}
	return nil
}
