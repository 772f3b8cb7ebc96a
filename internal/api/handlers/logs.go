package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/xscape-dev/agent/internal/state"
)

const logWriteTimeout = 10 * time.Second

// LogsHandler streams build output over WebSocket connections.
type LogsHandler struct {
	store  *state.Store
	logger *slog.Logger
}

// NewLogsHandler creates a logs handler.
func NewLogsHandler(st *state.Store, logger *slog.Logger) *LogsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogsHandler{store: st, logger: logger}
}

// Stream handles GET /logs/{buildID} - WebSocket log stream for a build.
//
// Subscribers receive messages published after they connect; there is no
// replay of earlier output. When the build finishes the stream ends with a
// normal close frame.
func (h *LogsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	buildID := chi.URLParam(r, "buildID")

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket", "error", err)
		return
	}
	defer conn.Close()

	channel, ok := h.store.GetLogChannel(buildID)
	if !ok {
		// Tell the client what went wrong before closing instead of
		// leaving the connection hanging.
		_ = conn.SetWriteDeadline(time.Now().Add(logWriteTimeout))
		_ = conn.WriteJSON(map[string]string{"error": "build not found: " + buildID})
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown build"))
		return
	}

	sub := channel.Subscribe()
	defer channel.Unsubscribe(sub)

	h.logger.Debug("log subscriber connected", "build_id", buildID)

	// Detect client disconnects; we never expect inbound data.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-sub.C:
			if !ok {
				// Build finished and the channel was closed.
				_ = conn.SetWriteDeadline(time.Now().Add(logWriteTimeout))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "end of stream"))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(logWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("log subscriber write failed", "build_id", buildID, "error", err)
				return
			}
		case <-clientGone:
			h.logger.Debug("log subscriber disconnected", "build_id", buildID)
			return
		}
	}
}
