package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/zid/internal/config"
	"github.com/zeusync/zid/internal/core/observability/log"
	"github.com/zeusync/zid/internal/core/observability/metrics"
)

// WebSocketHandler answers every {"n": K} frame with a batch of K ids.
// Authentication, if any, happens on the upgrade request.
type WebSocketHandler struct {
	upgrader     websocket.Upgrader
	issuer       *Issuer
	maxFrame     int64
	idleTimeout  time.Duration
	writeTimeout time.Duration
	logger       log.Log

	conns    sync.Map // *websocket.Conn -> struct{}
	closed   atomic.Bool
	sessions sync.WaitGroup
}

func NewWebSocketHandler(cfg config.WebSocketConfig, limits config.LimitsConfig, issuer *Issuer, logger log.Log) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
		},
		issuer:       issuer,
		maxFrame:     limits.MaxFrameBytes,
		idleTimeout:  cfg.IdleTimeout,
		writeTimeout: 10 * time.Second,
		logger:       logger.With(log.String("component", "websocket")),
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		h.logger.WithContext(r.Context()).Warn("WebSocket upgrade failed", log.Error(err))
		return
	}

	h.sessions.Add(1)
	defer h.sessions.Done()

	h.conns.Store(conn, struct{}{})
	defer h.conns.Delete(conn)
	// Close may have run between the upgrade and Store.
	if h.closed.Load() {
		_ = conn.Close()
		return
	}

	connID := uuid.NewString()
	logger := h.logger.With(
		log.String("connection_id", connID),
		log.String("remote_addr", conn.RemoteAddr().String()))
	logger.Info("WebSocket client connected")

	h.serve(conn, connID, logger)
}

// Close drops every open session and waits for their loops to exit. Hijacked
// connections are invisible to http.Server.Shutdown, so the server calls this after it.
func (h *WebSocketHandler) Close() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}
	h.conns.Range(func(key, _ any) bool {
		conn := key.(*websocket.Conn)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return true
	})
	h.sessions.Wait()
}

func (h *WebSocketHandler) serve(conn *websocket.Conn, connID string, logger log.Log) {
	defer func() {
		_ = conn.Close()
		logger.Info("WebSocket client disconnected")
	}()

	conn.SetReadLimit(h.maxFrame)
	for {
		if h.idleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(h.idleTimeout))
		}

		_, r, err := conn.NextReader()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("WebSocket read failed", log.Error(err))
			}
			return
		}

		var resp Response
		var req Request
		if err = json.NewDecoder(r).Decode(&req); err != nil {
			resp = errorReply(errors.Wrap(ErrInvalidRequest, err.Error()))
		} else {
			resp = h.issuer.Reply(metrics.TransportWebSocket, connID, req, nil)
		}

		_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		if err := conn.WriteJSON(resp); err != nil {
			logger.Debug("WebSocket write failed", log.Error(err))
			return
		}
	}
}
