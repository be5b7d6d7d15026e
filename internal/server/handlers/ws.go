package handlers

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Default liveness timings. Clients treat a connection without pings for
// longer than their read timeout as lost.
const (
	DefaultPingInterval = 15 * time.Second
	writeWait           = 5 * time.Second
)

// WSHandler serves the websocket that clients use as a connectivity
// signal. Nothing but pings and pongs is exchanged.
type WSHandler struct {
	logger       *slog.Logger
	upgrader     websocket.Upgrader
	conns        map[*websocket.Conn]struct{}
	pingInterval time.Duration
	mu           sync.Mutex
	closed       bool
}

// NewWSHandler creates the liveness websocket handler
func NewWSHandler(logger *slog.Logger, pingInterval time.Duration) *WSHandler {
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	return &WSHandler{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Клиенты не браузерные, Origin не проверяем
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns:        make(map[*websocket.Conn]struct{}),
		pingInterval: pingInterval,
	}
}

// Serve обрабатывает GET /api/v1/ws
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		h.logger.Warn("Websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	if !h.track(conn) {
		_ = conn.Close()
		return
	}
	defer h.untrack(conn)

	pongWait := 3 * h.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Входящие сообщения не ожидаются; чтение нужно для обработки pong и close
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.logger.Debug("Client connected", "remote_addr", r.RemoteAddr)

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			h.logger.Debug("Client disconnected", "remote_addr", r.RemoteAddr)
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// Close drops every open connection and rejects new ones. Hijacked
// connections are not closed by http.Server.Shutdown.
func (h *WSHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for conn := range h.conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
	}
	clear(h.conns)
}

// Connections returns the number of open connections
func (h *WSHandler) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *WSHandler) track(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[conn] = struct{}{}
	return true
}

func (h *WSHandler) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	_ = conn.Close()
}
