package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"compliance-stream/src/models"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func sseStub(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, flusher http.Flusher)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/task-stream/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		flusher.Flush()
		handler(w, r, flusher)
	})
	return httptest.NewServer(mux)
}

func TestConnectWithoutToken(t *testing.T) {
	stream := NewStreamClient("http://unused.invalid", &fakeTokens{}, nil)
	defer stream.Close()

	err := stream.Connect()
	if !errors.Is(err, models.ErrAuthRequired) {
		t.Fatalf("got error %v, want ErrAuthRequired", err)
	}
	if stream.ConnectionError() != "Authentication required" {
		t.Errorf("got connection error %q, want %q", stream.ConnectionError(), "Authentication required")
	}
	if stream.IsConnected() {
		t.Error("expected no connection without a token")
	}
}

func TestLastWriteWinsPerTask(t *testing.T) {
	done := make(chan struct{})
	server := sseStub(t, func(w http.ResponseWriter, r *http.Request, flusher http.Flusher) {
		fmt.Fprint(w, "event: connected\ndata: {\"user_id\":1}\n\n")
		fmt.Fprint(w, "event: task_update\nid: 1\ndata: {\"task_id\":1,\"task_type\":\"evidence_parse\",\"status\":\"running\",\"progress\":40}\n\n")
		fmt.Fprint(w, "event: keepalive\ndata: {}\n\n")
		fmt.Fprint(w, "event: task_update\nid: 2\ndata: {\"task_id\":1,\"task_type\":\"evidence_parse\",\"status\":\"completed\",\"result\":\"ok\"}\n\n")
		fmt.Fprint(w, "event: task_update\nid: 3\ndata: {\"task_id\":2,\"task_type\":\"report\",\"status\":\"pending\"}\n\n")
		flusher.Flush()
		<-done
	})
	defer server.Close()
	defer close(done)

	stream := NewStreamClient(server.URL, &fakeTokens{token: "tok"}, nil)
	defer stream.Close()
	if err := stream.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	waitFor(t, "terminal update for task 1", func() bool {
		update, ok := stream.Result(1)
		return ok && update.Status == models.TaskCompleted
	})

	update, _ := stream.Result(1)
	if string(update.Result) != `"ok"` {
		t.Errorf("got result %s, want \"ok\"", update.Result)
	}
	if update.Progress != nil {
		t.Error("terminal frame must replace the progress frame wholesale, not merge")
	}
	if !update.Status.Terminal() {
		t.Error("completed status must be terminal")
	}

	waitFor(t, "update for task 2", func() bool {
		_, ok := stream.Result(2)
		return ok
	})
	last := stream.LastUpdate()
	if last == nil || last.TaskID != 2 || last.Status != models.TaskPending {
		t.Errorf("lastUpdate should be the most recent frame, got %+v", last)
	}

	results := stream.TaskResults()
	if len(results) != 2 {
		t.Errorf("got %d tracked tasks, want 2", len(results))
	}
	if !stream.IsConnected() {
		t.Error("expected connected state while the stream is open")
	}
	if stream.ConnectionError() != "" {
		t.Errorf("unexpected connection error %q", stream.ConnectionError())
	}
}

func TestErrorThenReconnect(t *testing.T) {
	var conns atomic.Int64
	var opens atomic.Int64
	done := make(chan struct{})

	server := sseStub(t, func(w http.ResponseWriter, r *http.Request, flusher http.Flusher) {
		if conns.Add(1) == 1 {
			// Fast transport retry, then drop the connection.
			fmt.Fprint(w, "retry: 10\nevent: connected\ndata: {}\n\n")
			flusher.Flush()
			return
		}
		fmt.Fprint(w, "event: connected\ndata: {}\n\n")
		flusher.Flush()
		<-done
	})
	defer server.Close()
	defer close(done)

	stream := NewStreamClient(server.URL, &fakeTokens{token: "tok"}, nil,
		WithConnectHook(func() { opens.Add(1) }))
	defer stream.Close()
	if err := stream.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	waitFor(t, "first open", func() bool { return opens.Load() >= 1 })

	// The server drops the connection: the client reports the retrying
	// state while the transport reconnects on its own.
	waitFor(t, "transport error", func() bool {
		return stream.ConnectionError() == "Connection error - retrying..."
	})
	if stream.IsConnected() {
		t.Error("expected isConnected=false after a connection error")
	}
	if stream.State() != StateReconnecting {
		t.Errorf("got state %s, want reconnecting", stream.State())
	}

	waitFor(t, "reopen", func() bool { return opens.Load() >= 2 })
	waitFor(t, "reconnected state", func() bool { return stream.IsConnected() })
	if stream.ConnectionError() != "" {
		t.Errorf("open must clear the connection error, got %q", stream.ConnectionError())
	}
}

func TestServerRejectionShowsAuthRequired(t *testing.T) {
	var conns atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conns.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	stream := NewStreamClient(server.URL, &fakeTokens{token: "stale"}, nil)
	defer stream.Close()
	if err := stream.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// A rejected credential is not a transient failure: the client must not
	// show the retrying state and the transport must not redial.
	waitFor(t, "auth-required stop", func() bool {
		return stream.ConnectionError() == "Authentication required"
	})
	if stream.State() != StateDisconnected {
		t.Errorf("got state %s, want disconnected", stream.State())
	}
	time.Sleep(50 * time.Millisecond)
	if n := conns.Load(); n != 1 {
		t.Errorf("expected a single connection attempt, got %d", n)
	}
}

func TestTokenClearedStopsReconnect(t *testing.T) {
	var conns atomic.Int64
	tokens := &fakeTokens{token: "tok"}

	server := sseStub(t, func(w http.ResponseWriter, r *http.Request, flusher http.Flusher) {
		conns.Add(1)
		// Logout happens while the connection is down.
		tokens.set("")
		fmt.Fprint(w, "retry: 10\n\n")
		flusher.Flush()
	})
	defer server.Close()

	stream := NewStreamClient(server.URL, tokens, nil)
	defer stream.Close()
	if err := stream.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	waitFor(t, "auth-required stop", func() bool {
		return stream.ConnectionError() == "Authentication required"
	})
	if stream.State() != StateDisconnected {
		t.Errorf("got state %s, want disconnected", stream.State())
	}
	if n := conns.Load(); n != 1 {
		t.Errorf("expected a single connection attempt, got %d", n)
	}
}

func TestLogoutClosesBoundStream(t *testing.T) {
	authSrv := newAuthStub(t)
	defer authSrv.Close()

	release := make(chan struct{})
	server := sseStub(t, func(w http.ResponseWriter, r *http.Request, flusher http.Flusher) {
		fmt.Fprint(w, "event: task_update\nid: 1\ndata: {\"task_id\":1,\"task_type\":\"report\",\"status\":\"running\"}\n\n")
		flusher.Flush()
		<-release
		// Frame on the revoked session, racing with logout.
		fmt.Fprint(w, "event: task_update\nid: 2\ndata: {\"task_id\":2,\"task_type\":\"report\",\"status\":\"pending\"}\n\n")
		flusher.Flush()
	})
	defer server.Close()

	store := NewSessionStore(authSrv.URL, newTestCreds(t), nil)
	if err := store.Login(context.Background(), "alice", "secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	stream := NewStreamClient(server.URL, store, nil)
	store.Bind(stream)
	if err := stream.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, "first update", func() bool {
		_, ok := stream.Result(1)
		return ok
	})

	// Logout must tear the bound connection down before it returns.
	if err := store.Logout(); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if stream.IsConnected() {
		t.Error("stream still connected after logout")
	}
	if stream.State() != StateDisconnected {
		t.Errorf("got state %s, want disconnected", stream.State())
	}

	close(release)
	time.Sleep(50 * time.Millisecond)
	if _, ok := stream.Result(2); ok {
		t.Error("update delivered on the prior token after logout")
	}
}

func TestTokenChangeClosesBoundStream(t *testing.T) {
	var logins atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		n := logins.Add(1)
		json.NewEncoder(w).Encode(models.LoginResponse{
			AccessToken: fmt.Sprintf("tok-%d", n),
			User:        testUser,
		})
	})
	authSrv := httptest.NewServer(mux)
	defer authSrv.Close()

	done := make(chan struct{})
	server := sseStub(t, func(w http.ResponseWriter, r *http.Request, flusher http.Flusher) {
		fmt.Fprint(w, "event: connected\ndata: {}\n\n")
		flusher.Flush()
		<-done
	})
	defer server.Close()
	defer close(done)

	store := NewSessionStore(authSrv.URL, newTestCreds(t), nil)
	if err := store.Login(context.Background(), "alice", "secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	stream := NewStreamClient(server.URL, store, nil)
	store.Bind(stream)
	if err := stream.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, "stream connected", stream.IsConnected)

	// A second login rotates the token; the stream opened with the old one
	// must not survive the swap.
	if err := store.Login(context.Background(), "alice", "secret"); err != nil {
		t.Fatalf("second Login failed: %v", err)
	}
	if stream.IsConnected() {
		t.Error("stream bound to the old token survived a token change")
	}
}

func TestTeardownStopsStateMutation(t *testing.T) {
	release := make(chan struct{})
	server := sseStub(t, func(w http.ResponseWriter, r *http.Request, flusher http.Flusher) {
		fmt.Fprint(w, "event: task_update\nid: 1\ndata: {\"task_id\":1,\"task_type\":\"report\",\"status\":\"running\"}\n\n")
		flusher.Flush()
		<-release
		// Frame in flight during teardown.
		fmt.Fprint(w, "event: task_update\nid: 2\ndata: {\"task_id\":1,\"task_type\":\"report\",\"status\":\"completed\"}\n\n")
		flusher.Flush()
	})
	defer server.Close()

	stream := NewStreamClient(server.URL, &fakeTokens{token: "tok"}, nil)
	if err := stream.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	waitFor(t, "first update", func() bool {
		_, ok := stream.Result(1)
		return ok
	})

	stream.Close()
	close(release)
	time.Sleep(50 * time.Millisecond)

	if update, _ := stream.Result(1); update.Status != models.TaskRunning {
		t.Errorf("state mutated after Close: %+v", update)
	}
	if stream.IsConnected() {
		t.Error("expected disconnected state after Close")
	}

	// Close is idempotent, Connect after Close is refused.
	stream.Close()
	if err := stream.Connect(); err == nil {
		t.Error("expected Connect on a closed client to fail")
	}
}
