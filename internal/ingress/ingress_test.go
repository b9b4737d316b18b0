package ingress

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// hubRecorder is a Hub that records every call.
type hubRecorder struct {
	mu        sync.Mutex
	started   []string
	stopped   []string
	fragments map[string][]string

	startErr error
}

func newHubRecorder() *hubRecorder {
	return &hubRecorder{fragments: make(map[string][]string)}
}

func (h *hubRecorder) StartSession(sessionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.startErr != nil {
		return h.startErr
	}
	h.started = append(h.started, sessionID)
	return nil
}

func (h *hubRecorder) Fragment(sessionID, text string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fragments[sessionID] = append(h.fragments[sessionID], text)
	return true
}

func (h *hubRecorder) StopSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = append(h.stopped, sessionID)
}

func (h *hubRecorder) fragmentsFor(sessionID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.fragments[sessionID]))
	copy(out, h.fragments[sessionID])
	return out
}

func (h *hubRecorder) stoppedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.stopped)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

// dial connects a test client to the handler under a short deadline.
func dial(t *testing.T, srv *httptest.Server, session string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?session=" + session
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestSessionLifetimeFollowsConnection(t *testing.T) {
	t.Parallel()

	hub := newHubRecorder()
	srv := httptest.NewServer(NewHandler(hub))
	defer srv.Close()

	conn := dial(t, srv, "s1")
	ctx := context.Background()

	frames := []string{
		`{"session_id":"s1","text":"sent the report"}`,
		`{"type":"fragment","text":"booked the room"}`,
	}
	for _, f := range frames {
		if err := conn.Write(ctx, websocket.MessageText, []byte(f)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	waitFor(t, 2*time.Second, func() bool { return len(hub.fragmentsFor("s1")) == 2 }, "fragments")
	got := hub.fragmentsFor("s1")
	if got[0] != "sent the report" || got[1] != "booked the room" {
		t.Errorf("fragments = %q", got)
	}
	if hub.stoppedCount() != 0 {
		t.Fatal("session stopped while connection still open")
	}

	conn.Close(websocket.StatusNormalClosure, "done")
	waitFor(t, 2*time.Second, func() bool { return hub.stoppedCount() == 1 }, "session stop")
}

func TestMalformedAndForeignFramesSkipped(t *testing.T) {
	t.Parallel()

	hub := newHubRecorder()
	srv := httptest.NewServer(NewHandler(hub))
	defer srv.Close()

	conn := dial(t, srv, "s1")
	defer conn.Close(websocket.StatusNormalClosure, "done")
	ctx := context.Background()

	frames := []string{
		`{not json`,
		`{"session_id":"other","text":"wrong session"}`,
		`{"type":"error","error":"engine overloaded"}`,
		`{"type":"mystery","text":"unknown"}`,
		`{"text":"kept"}`,
	}
	for _, f := range frames {
		if err := conn.Write(ctx, websocket.MessageText, []byte(f)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	waitFor(t, 2*time.Second, func() bool { return len(hub.fragmentsFor("s1")) >= 1 }, "surviving fragment")
	got := hub.fragmentsFor("s1")
	if len(got) != 1 || got[0] != "kept" {
		t.Errorf("fragments = %q, want only the well-formed one", got)
	}
}

func TestRejectedSessionClosesConnection(t *testing.T) {
	t.Parallel()

	hub := newHubRecorder()
	hub.startErr = context.DeadlineExceeded
	srv := httptest.NewServer(NewHandler(hub))
	defer srv.Close()

	conn := dial(t, srv, "s1")
	defer conn.Close(websocket.StatusNormalClosure, "done")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The server closes immediately; the next read must fail.
	if _, _, err := conn.Read(ctx); err == nil {
		t.Fatal("read succeeded on a rejected session")
	}
	if hub.stoppedCount() != 0 {
		t.Error("StopSession called for a session that never started")
	}
}
