package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"compliance-stream/src/config"
	"compliance-stream/src/credstore"
	"compliance-stream/src/models"
)

// StreamCloser is anything holding a push connection whose lifetime is tied
// to the session. The stream client implements it.
type StreamCloser interface {
	Close()
}

// SessionStore owns the authenticated session: the bearer token and the user
// identity behind it. It is the only writer of the token; the request gateway
// and the stream client read the current value through the TokenSource
// interface at their points of use. Streams registered through Bind are
// closed whenever the token they were opened with stops being current.
type SessionStore struct {
	baseURL string
	client  *http.Client
	creds   *credstore.Store

	mu      sync.RWMutex
	session models.Session
	bound   []StreamCloser
}

// NewSessionStore creates a session store talking to the API at baseURL and
// persisting the token through creds. httpClient may be nil.
func NewSessionStore(baseURL string, creds *credstore.Store, httpClient *http.Client) *SessionStore {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &SessionStore{
		baseURL: baseURL,
		client:  httpClient,
		creds:   creds,
	}
}

// Login authenticates with the server and, on success, stores the token
// durably and the identity in memory. Any rejection from the endpoint is
// models.ErrInvalidCredentials and leaves prior session state untouched.
func (s *SessionStore) Login(ctx context.Context, username, password string) error {
	payload, err := json.Marshal(models.LoginRequest{Username: username, Password: password})
	if err != nil {
		return fmt.Errorf("failed to marshal login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/auth/login", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.ErrInvalidCredentials
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read login response: %w", err)
	}
	var loginResp models.LoginResponse
	if err := json.Unmarshal(body, &loginResp); err != nil {
		return fmt.Errorf("failed to unmarshal login response: %w", err)
	}

	if err := s.creds.Save(loginResp.AccessToken, config.TokenTTL); err != nil {
		// The in-memory session still works, only the reload path is lost.
		slog.Warn("Failed to persist token", "error", err)
	}

	s.setSession(loginResp.AccessToken, &loginResp.User)
	slog.Info("Logged in", "username", loginResp.User.Username)
	return nil
}

// Restore recovers a session from the persisted token on process start. It
// returns false when no usable token exists. A token the server rejects is
// cleared from the durable store so the next start skips it.
func (s *SessionStore) Restore(ctx context.Context) (bool, error) {
	token, ok, err := s.creds.Load()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	user, err := s.fetchIdentity(ctx, token)
	if err != nil {
		if serviceErr, isService := err.(*models.ServiceError); isService {
			slog.Info("Persisted token rejected, clearing session",
				"status", serviceErr.StatusCode)
			_ = s.creds.Clear()
			return false, nil
		}
		// Transport failure: the token may still be good, keep it.
		return false, err
	}

	s.setSession(token, user)
	slog.Info("Session restored", "username", user.Username)
	return true, nil
}

// Bind ties a push connection's lifetime to the session. The store closes
// bound streams on logout and on any token change, so no connection outlives
// the token it was opened with.
func (s *SessionStore) Bind(stream StreamCloser) {
	s.mu.Lock()
	s.bound = append(s.bound, stream)
	s.mu.Unlock()
}

// Logout clears the in-memory and persisted token and identity, closes every
// bound stream, and revokes the token server-side. It is idempotent.
func (s *SessionStore) Logout() error {
	s.mu.Lock()
	token := s.session.Token
	bound := s.bound
	s.bound = nil
	s.session = models.Session{}
	s.mu.Unlock()

	// Close synchronously so no frame on the revoked session can mutate
	// stream state after Logout returns.
	for _, stream := range bound {
		stream.Close()
	}
	if token != "" {
		s.revokeToken(token)
	}
	return s.creds.Clear()
}

// revokeToken invalidates the token server-side. Best effort: the local
// session is gone either way, a failure only leaves the token to run out its
// server-side expiry.
func (s *SessionStore) revokeToken(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/auth/logout", nil)
	if err != nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Warn("Failed to revoke token server-side", "error", err)
		return
	}
	resp.Body.Close()
}

// Token returns the current bearer token. It implements TokenSource.
func (s *SessionStore) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Token, s.session.Token != ""
}

// User returns the authenticated identity, nil when logged out.
func (s *SessionStore) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.User
}

// Authenticated reports whether both token and identity are present.
func (s *SessionStore) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Authenticated()
}

// setSession swaps token and identity in one step so no reader ever observes
// one without the other. A token change invalidates the streams bound to the
// old token; they are closed rather than left running on a stale credential.
func (s *SessionStore) setSession(token string, user *models.User) {
	s.mu.Lock()
	var stale []StreamCloser
	if s.session.Token != "" && s.session.Token != token {
		stale = s.bound
		s.bound = nil
	}
	s.session = models.Session{Token: token, User: user}
	s.mu.Unlock()

	for _, stream := range stale {
		stream.Close()
	}
}

// fetchIdentity calls GET /auth/me with an explicit token, bypassing the
// gateway because the session this token belongs to is not established yet.
func (s *SessionStore) fetchIdentity(ctx context.Context, token string) (*models.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/auth/me", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, models.NewServiceError(resp.StatusCode, string(body), "identity fetch rejected")
	}

	var user models.User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal identity response: %w", err)
	}
	return &user, nil
}
