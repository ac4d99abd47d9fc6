package handler

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aryan0dhankhar/grccore/internal/events"
	"github.com/aryan0dhankhar/grccore/internal/observability/metrics"
)

const (
	streamPingInterval = 15 * time.Second
	streamWriteTimeout = 5 * time.Second
)

// EventStreamHandler streams a tenant's domain events over WebSocket
type EventStreamHandler struct {
	hub            *events.Hub
	logger         *slog.Logger
	allowedOrigins []string
}

// NewEventStreamHandler creates a new event stream handler
func NewEventStreamHandler(hub *events.Hub, logger *slog.Logger, allowedOrigins []string) *EventStreamHandler {
	return &EventStreamHandler{hub: hub, logger: loggerOrDefault(logger), allowedOrigins: allowedOrigins}
}

func (h *EventStreamHandler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// non-browser clients send no origin
			if origin == "" || slices.Contains(h.allowedOrigins, origin) {
				return true
			}
			h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
			return false
		},
	}
}

// ServeHTTP handles GET /ws/events
func (h *EventStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tenantID, userID, _ := caller(r)
	if tenantID == "" {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "missing tenant"})
		return
	}

	upgrader := h.upgrader()
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	envelopes, cancel := h.hub.Listen(tenantID)
	defer cancel()

	metrics.StreamClientConnected()
	defer metrics.StreamClientDisconnected()

	logger := h.logger.With(slog.String("tenant_id", tenantID), slog.String("user_id", userID))
	logger.Debug("event stream opened")

	if err := h.stream(r, ws, envelopes); err != nil {
		logger.Debug("event stream ended", slog.String("reason", err.Error()))
	}
}

// stream writes envelopes until the client goes away or the request ends.
// Incoming messages are read and discarded so close frames are noticed.
func (h *EventStreamHandler) stream(r *http.Request, ws *websocket.Conn, envelopes <-chan events.Envelope) error {
	closed := make(chan error, 1)
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				closed <- err
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return r.Context().Err()
		case err := <-closed:
			return err
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(streamWriteTimeout)); err != nil {
				return err
			}
		case env, ok := <-envelopes:
			if !ok {
				return nil
			}
			_ = ws.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := ws.WriteJSON(env); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Debug("websocket closed unexpectedly", slog.String("error", err.Error()))
				}
				return err
			}
		}
	}
}
