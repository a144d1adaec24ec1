package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"compliance-stream/src/models"
	"compliance-stream/src/sse"
)

// ConnState is the stream connection's lifecycle state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
)

// User-visible connection error strings. The retrying message signals a
// transient condition the transport is already recovering from.
const (
	msgAuthRequired = "Authentication required"
	msgRetrying     = "Connection error - retrying..."
)

// StreamClient maintains one push connection per session and exposes live
// task state: the most recent update per task id, last-write-wins.
//
// Retry/backoff lives entirely in the sse transport; this client only tracks
// what the transport reports. The connection URL is rebuilt from the token
// source on every reconnect attempt, so a rotated token is picked up at the
// next attempt and a cleared token (logout) ends the connection for good.
type StreamClient struct {
	tokens    TokenSource
	streamURL string
	src       *sse.EventSource

	// onConnect runs after every successful (re)open, giving the owner a
	// hook to re-fetch authoritative task state missed during the gap.
	onConnect func()

	mu      sync.RWMutex
	state   ConnState
	connErr string
	last    *models.TaskUpdate
	results map[int64]models.TaskUpdate
	closed  bool
}

// StreamOption configures a StreamClient.
type StreamOption func(*StreamClient)

// WithConnectHook registers a callback invoked after each successful open,
// including reopens after a gap.
func WithConnectHook(hook func()) StreamOption {
	return func(c *StreamClient) { c.onConnect = hook }
}

// NewStreamClient creates a stream client for the task-stream endpoint of the
// API at baseURL. httpClient may be nil.
func NewStreamClient(baseURL string, tokens TokenSource, httpClient *http.Client, opts ...StreamOption) *StreamClient {
	c := &StreamClient{
		tokens:    tokens,
		streamURL: baseURL + "/task-stream/",
		state:     StateDisconnected,
		results:   make(map[int64]models.TaskUpdate),
	}
	for _, opt := range opts {
		opt(c)
	}

	src := sse.New(c.connectionURL, httpClient)
	src.OnOpen = c.handleOpen
	src.OnEvent = c.handleEvent
	src.OnError = c.handleError
	c.src = src
	return c
}

// Connect opens the push connection. Without a token no connection attempt is
// made: the client reports "Authentication required" and returns
// models.ErrAuthRequired.
func (c *StreamClient) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("stream client is closed")
	}
	if _, ok := c.tokens.Token(); !ok {
		c.connErr = msgAuthRequired
		c.state = StateDisconnected
		c.mu.Unlock()
		return models.ErrAuthRequired
	}
	c.state = StateConnecting
	c.mu.Unlock()

	return c.src.Connect()
}

// Close tears the connection down. After Close returns no event in flight can
// mutate retained state. Close is idempotent and must run on every exit path
// of the owning session.
func (c *StreamClient) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state = StateDisconnected
	c.mu.Unlock()

	c.src.Close()
}

// connectionURL builds the stream URL for one connection attempt. The push
// transport cannot carry custom headers, so the token travels as a query
// parameter, re-read from the session on every attempt.
func (c *StreamClient) connectionURL() (string, error) {
	token, ok := c.tokens.Token()
	if !ok {
		return "", models.ErrAuthRequired
	}
	return c.streamURL + "?token=" + url.QueryEscape(token), nil
}

func (c *StreamClient) handleOpen() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state = StateConnected
	c.connErr = ""
	hook := c.onConnect
	c.mu.Unlock()

	slog.Info("Task stream connected")
	if hook != nil {
		hook()
	}
}

func (c *StreamClient) handleEvent(ev sse.Event) {
	switch ev.Name {
	case "connected":
		// Server handshake confirmation, informational only.
		slog.Debug("Task stream handshake received", "data", ev.Data)
	case "task_update":
		var update models.TaskUpdate
		if err := json.Unmarshal([]byte(ev.Data), &update); err != nil {
			slog.Warn("Dropping malformed task update", "error", err)
			return
		}
		c.applyUpdate(update)
	case "keepalive":
		// Liveness only, no state change.
	default:
		slog.Debug("Ignoring unknown stream event", "event", ev.Name)
	}
}

// applyUpdate records the frame as the latest for its task id. Frames for one
// id replace each other wholesale, progress fields are not merged.
func (c *StreamClient) applyUpdate(update models.TaskUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.last = &update
	c.results[update.TaskID] = update
}

func (c *StreamClient) handleError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if errors.Is(err, models.ErrAuthRequired) || errors.Is(err, sse.ErrAuthRejected) {
		c.state = StateDisconnected
		c.connErr = msgAuthRequired
		slog.Info("Task stream stopped, not authenticated", "error", err)
		return
	}
	c.state = StateReconnecting
	c.connErr = msgRetrying
	slog.Warn("Task stream error", "error", err)
}

// --- Consumer interface: read-only views of the live state ---

// IsConnected reports whether an open event has been received and no
// error/close has happened since.
func (c *StreamClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateConnected
}

// State returns the connection lifecycle state.
func (c *StreamClient) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// ConnectionError returns the current user-visible connection error, empty
// when the connection is healthy.
func (c *StreamClient) ConnectionError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connErr
}

// LastUpdate returns a copy of the most recent task update frame, nil before
// the first one.
func (c *StreamClient) LastUpdate() *models.TaskUpdate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return nil
	}
	update := *c.last
	return &update
}

// Result returns the latest update for one task id.
func (c *StreamClient) Result(taskID int64) (models.TaskUpdate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	update, ok := c.results[taskID]
	return update, ok
}

// TaskResults returns a copy of the task id to latest-update mapping.
func (c *StreamClient) TaskResults() map[int64]models.TaskUpdate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int64]models.TaskUpdate, len(c.results))
	for id, update := range c.results {
		out[id] = update
	}
	return out
}
