// Package ingress accepts transcript streams from the external speech
// engine.
//
// The engine opens one WebSocket connection per recording session and sends
// JSON text frames as it transcribes. The connection's lifetime is the
// session's lifetime: the session starts when the socket is accepted and
// stops when the socket closes, however it closes. Between those two points
// every fragment frame is appended to the session's accumulation window.
package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// frameError is the type value of an engine-side error report.
const frameError = "error"

// Hub is the session registry the handler feeds. The application root
// implements it by managing one accumulation window per session.
type Hub interface {
	// StartSession registers a new recording session.
	StartSession(sessionID string) error

	// Fragment appends one transcript fragment to the session's window.
	// It reports whether the fragment was accepted.
	Fragment(sessionID, text string) bool

	// StopSession closes the session and triggers its final flush.
	// Stopping an unknown or already-stopped session is a no-op.
	StopSession(sessionID string)
}

// frame is one JSON message from the speech engine.
type frame struct {
	// Type distinguishes payloads. Empty or "fragment" carries transcript
	// text; "error" carries an engine-side failure report.
	Type string `json:"type,omitempty"`

	// SessionID optionally echoes the session. When present it must match
	// the connection's session.
	SessionID string `json:"session_id,omitempty"`

	// Text is the transcribed fragment.
	Text string `json:"text,omitempty"`

	// Error describes an engine-side failure on error frames.
	Error string `json:"error,omitempty"`
}

// Option is a functional option for configuring a [Handler].
type Option func(*Handler)

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// Handler upgrades speech-engine connections and streams their fragments
// into the hub. One handler serves any number of concurrent sessions.
type Handler struct {
	hub Hub
	log *slog.Logger
}

// Ensure Handler can be mounted directly on a mux.
var _ http.Handler = (*Handler)(nil)

// NewHandler returns a [Handler] feeding hub.
func NewHandler(hub Hub, opts ...Option) *Handler {
	h := &Handler{
		hub: hub,
		log: slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeHTTP accepts one speech-engine WebSocket connection and runs its
// session until the socket closes. The session ID comes from the "session"
// query parameter; a missing one is generated.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	log := h.log.With("sessionId", sessionID)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session aborted")

	if err := h.hub.StartSession(sessionID); err != nil {
		log.Warn("session rejected", "error", err)
		conn.Close(websocket.StatusPolicyViolation, "session rejected")
		return
	}
	defer h.hub.StopSession(sessionID)

	h.readLoop(r.Context(), conn, sessionID, log)
	conn.Close(websocket.StatusNormalClosure, "session ended")
}

// readLoop consumes frames until the connection or request context ends.
// Malformed frames are logged and skipped rather than killing the session:
// one garbled message from the engine must not drop accumulated fragments.
func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, sessionID string, log *slog.Logger) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			var ce websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.StatusNormalClosure {
				return
			}
			if ctx.Err() != nil {
				return
			}
			log.Debug("connection read ended", "error", err)
			return
		}
		if typ != websocket.MessageText {
			log.Warn("non-text frame ignored")
			continue
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Warn("malformed frame ignored", "error", err)
			continue
		}
		if f.SessionID != "" && f.SessionID != sessionID {
			log.Warn("frame for wrong session ignored", "frameSessionId", f.SessionID)
			continue
		}

		switch f.Type {
		case frameError:
			log.Error("speech engine reported error", "engineError", f.Error)
		case "", "fragment":
			if !h.hub.Fragment(sessionID, f.Text) {
				log.Debug("fragment not accepted", "chars", len(f.Text))
			}
		default:
			log.Warn("unknown frame type ignored", "frameType", f.Type)
		}
	}
}
