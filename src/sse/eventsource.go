// Package sse implements the client side of a text/event-stream connection:
// frame parsing plus the transport-native reconnection behavior (retry
// interval, Last-Event-ID replay). Consumers get named events through
// callbacks and never deal with reconnects themselves.
package sse

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultRetryInterval is the reconnection delay used until the server
// overrides it with a "retry:" field.
const DefaultRetryInterval = 3 * time.Second

// ErrAuthRejected marks a stream attempt the server turned away with 401 or
// 403. The connection loop stops on it: redialing with the same credential
// cannot succeed.
var ErrAuthRejected = errors.New("stream authentication rejected")

// Event is one named frame received over the stream.
type Event struct {
	Name string
	ID   string
	Data string
}

// URLFunc produces the connection URL for one attempt. It is re-evaluated on
// every reconnect so credentials embedded in the URL are always current. An
// error aborts the connection permanently.
type URLFunc func() (string, error)

// EventSource maintains one long-lived stream connection.
//
// The callbacks are invoked sequentially from a single goroutine: a handler
// always runs to completion before the next frame is dispatched. After Close
// returns, no callback fires.
type EventSource struct {
	OnOpen  func()
	OnEvent func(Event)
	OnError func(err error)

	url    URLFunc
	client *http.Client
	retry  time.Duration

	mu          sync.Mutex
	closed      bool
	cancel      context.CancelFunc
	done        chan struct{}
	lastEventID string
}

// New creates an EventSource for the given URL producer. httpClient may be
// nil, in which case http.DefaultClient is used.
func New(url URLFunc, httpClient *http.Client) *EventSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &EventSource{
		url:    url,
		client: httpClient,
		retry:  DefaultRetryInterval,
	}
}

// Connect starts the connection loop. It returns immediately; connection
// progress is reported through the callbacks. Calling Connect on a closed or
// already-running source is an error; after the loop has stopped on a fatal
// error, Connect may be called again.
func (s *EventSource) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("event source is closed")
	}
	if s.done != nil {
		return fmt.Errorf("event source already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx, s.done)
	return nil
}

// Close tears the connection down. It blocks until the connection goroutine
// has exited, so once Close returns no callback will fire. Close is
// idempotent.
func (s *EventSource) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// run is the connection loop: dial, consume until the stream breaks, wait the
// retry interval, redial. It stops on Close, on a URLFunc error, and on an
// authentication rejection (reconnecting cannot help a rejected credential).
func (s *EventSource) run(ctx context.Context, done chan struct{}) {
	// Clear the running state before signalling done so a fatal stop leaves
	// the source reconnectable.
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.done = nil
		s.mu.Unlock()
		close(done)
	}()

	for {
		url, err := s.url()
		if err != nil {
			s.dispatchError(err)
			return
		}

		fatal, err := s.consume(ctx, url)
		if ctx.Err() != nil {
			return
		}
		s.dispatchError(err)
		if fatal {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retryInterval()):
		}
	}
}

// consume opens one connection and reads frames until it breaks. The returned
// error describes why the stream ended; fatal reports whether reconnecting is
// pointless.
func (s *EventSource) consume(ctx context.Context, url string) (fatal bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return true, fmt.Errorf("failed to build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if id := s.lastID(); id != "" {
		req.Header.Set("Last-Event-ID", id)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("stream connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return true, fmt.Errorf("stream rejected with status %d: %w", resp.StatusCode, ErrAuthRejected)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("stream returned status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		return false, fmt.Errorf("unexpected content type %q", ct)
	}

	s.dispatchOpen()
	return false, s.readFrames(resp.Body)
}

// readFrames parses the wire format: "field: value" lines accumulate into a
// frame, a blank line dispatches it. Comment lines (leading colon) are the
// server's keepalive at the protocol level and are ignored.
func (s *EventSource) readFrames(body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var name, id string
	var data []string

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if len(data) > 0 {
				if id != "" {
					s.setLastID(id)
				}
				s.dispatchEvent(Event{
					Name: orMessage(name),
					ID:   id,
					Data: strings.Join(data, "\n"),
				})
			}
			name, id, data = "", "", nil
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := splitField(line)
		switch field {
		case "event":
			name = value
		case "data":
			data = append(data, value)
		case "id":
			id = value
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				s.setRetryInterval(time.Duration(ms) * time.Millisecond)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read failed: %w", err)
	}
	return fmt.Errorf("stream closed by server")
}

func splitField(line string) (field, value string) {
	field, value, found := strings.Cut(line, ":")
	if !found {
		return line, ""
	}
	// A single leading space after the colon is part of the delimiter.
	return field, strings.TrimPrefix(value, " ")
}

func orMessage(name string) string {
	if name == "" {
		return "message"
	}
	return name
}

func (s *EventSource) retryInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retry
}

func (s *EventSource) setRetryInterval(d time.Duration) {
	s.mu.Lock()
	s.retry = d
	s.mu.Unlock()
}

func (s *EventSource) lastID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEventID
}

func (s *EventSource) setLastID(id string) {
	s.mu.Lock()
	s.lastEventID = id
	s.mu.Unlock()
}

// The dispatch helpers drop callbacks once the source is closed so a frame in
// flight during teardown cannot reach the consumer.

func (s *EventSource) dispatchOpen() {
	s.mu.Lock()
	closed, cb := s.closed, s.OnOpen
	s.mu.Unlock()
	if !closed && cb != nil {
		cb()
	}
}

func (s *EventSource) dispatchEvent(ev Event) {
	s.mu.Lock()
	closed, cb := s.closed, s.OnEvent
	s.mu.Unlock()
	if !closed && cb != nil {
		cb(ev)
	}
}

func (s *EventSource) dispatchError(err error) {
	s.mu.Lock()
	closed, cb := s.closed, s.OnError
	s.mu.Unlock()
	if !closed && cb != nil && err != nil {
		cb(err)
	}
}
