package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/notifier"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second

	// laggedCloseCode tells the client it fell behind and must reconcile
	// over REST before resubscribing.
	laggedCloseCode = 4000
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// The shared-secret API key is the authentication boundary; the
		// dashboard may be served from a different origin.
		return true
	},
}

// WSHandler streams notifier events over a WebSocket.
type WSHandler struct {
	events *notifier.Notifier
	logger *zap.Logger
}

// NewWSHandler creates a WSHandler.
func NewWSHandler(events *notifier.Notifier, logger *zap.Logger) *WSHandler {
	return &WSHandler{events: events, logger: logger}
}

// RegisterRoutes registers the WebSocket route on the given mux.
func (h *WSHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/ws", h.Stream)
}

// Stream upgrades the connection and forwards events in seq order.
// An optional ?since=<seq> requests backfill of retained events.
func (h *WSHandler) Stream(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_since", "since must be a sequence number")
			return
		}
		since = parsed
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	sub := h.events.Subscribe(since)
	defer h.events.Unsubscribe(sub)

	h.logger.Info("event subscriber connected", zap.Uint64("since", since))

	// Reader goroutine: consume control frames and detect client close.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-sub.C:
			if !ok {
				if sub.Lagged() {
					deadline := time.Now().Add(writeTimeout)
					_ = ws.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(laggedCloseCode, "lagged"), deadline)
					h.logger.Warn("subscriber disconnected as lagged")
				}
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteJSON(event); err != nil {
				h.logger.Debug("subscriber write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-clientGone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
