package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"compliance-stream/src/models"
)

// TokenSource supplies the current bearer token. The session store implements
// it; consumers read the token at the point of use instead of caching a copy
// that could go stale across a token change.
type TokenSource interface {
	Token() (string, bool)
}

// Gateway wraps outbound API calls, injecting the current bearer token as an
// Authorization header.
//
// On an auth rejection (401) the gateway does not retry: an expired token
// cannot heal on its own, the caller has to route back to authentication.
// Transient network failures are returned as plain errors and are fair game
// for the caller's usual retry handling.
type Gateway struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
}

// NewGateway constructs a gateway. httpClient may be nil.
func NewGateway(baseURL string, tokens TokenSource, httpClient *http.Client) *Gateway {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Gateway{
		baseURL: baseURL,
		client:  httpClient,
		tokens:  tokens,
	}
}

// Get issues an authorized GET and unmarshals the response into out.
func (g *Gateway) Get(ctx context.Context, path string, out interface{}) error {
	return g.Do(ctx, http.MethodGet, path, nil, out)
}

// Post issues an authorized POST with a JSON body and unmarshals the response
// into out.
func (g *Gateway) Post(ctx context.Context, path string, body, out interface{}) error {
	return g.Do(ctx, http.MethodPost, path, body, out)
}

// Do issues one authorized request. body and out may both be nil.
func (g *Gateway) Do(ctx context.Context, method, path string, body, out interface{}) error {
	endpoint, err := g.resolve(path)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	// Read the token at dispatch time, never earlier.
	if token, ok := g.tokens.Token(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return models.ErrTokenInvalid
	}
	if resp.StatusCode >= 400 {
		return models.NewServiceError(resp.StatusCode, string(respBody),
			fmt.Sprintf("%s %s returned status %d", method, path, resp.StatusCode))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to unmarshal response body: %w", err)
		}
	}
	return nil
}

func (g *Gateway) resolve(path string) (string, error) {
	base, err := url.Parse(g.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	rel, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid request path: %w", err)
	}
	return base.ResolveReference(rel).String(), nil
}
