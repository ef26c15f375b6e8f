// Package console serves an operator console over WebSocket that speaks to
// the same router as the chat transport.
package console

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ashureev/opsbot/internal/bot"
	"github.com/ashureev/opsbot/internal/domain"
	"github.com/ashureev/opsbot/internal/frame"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// ErrUnknownChat is returned when sending to a connection that is gone.
var ErrUnknownChat = errors.New("no console connection for chat")

// Dispatcher handles one inbound message.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg bot.Message)
}

// inbound is a message from the browser.
type inbound struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// outbound is a message to the browser.
type outbound struct {
	Type      string `json:"type"`
	ChatID    int64  `json:"chat_id,omitempty"`
	Text      string `json:"text,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Hub tracks console connections. Each connection acts as its own chat
// with a negative id so it never collides with chat platform users.
type Hub struct {
	token          string
	originPatterns []string
	logger         *slog.Logger

	mu         sync.RWMutex
	active     map[int64]*websocket.Conn
	dispatcher Dispatcher
	next       atomic.Int64
}

// NewHub creates a hub accepting connections that present token. An empty
// token disables the console.
func NewHub(token string, originPatterns []string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		token:          token,
		originPatterns: originPatterns,
		logger:         logger,
		active:         make(map[int64]*websocket.Conn),
	}
}

// Attach sets the dispatcher for console input.
func (h *Hub) Attach(d Dispatcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dispatcher = d
}

// Owns reports whether chatID belongs to a live console connection.
func (h *Hub) Owns(chatID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.active[chatID]
	return ok
}

// Len returns the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active)
}

// Send implements bot.Sender for console chats.
func (h *Hub) Send(ctx context.Context, chatID int64, f frame.Frame) error {
	h.mu.RLock()
	conn, ok := h.active[chatID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownChat, chatID)
	}
	return wsjson.Write(ctx, conn, outbound{Type: "frame", Text: f.Text, ParseMode: f.ParseMode})
}

func (h *Hub) authorized(r *http.Request) bool {
	if h.token == "" {
		return false
	}
	presented := r.URL.Query().Get("token")
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		presented = strings.TrimPrefix(auth, "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(h.token)) == 1
}

// ServeHTTP upgrades the request and runs the console session.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		h.logger.Warn("Console connection rejected", "ip", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err)
		return
	}

	chatID := -h.next.Add(1)
	h.register(chatID, ws)
	defer h.unregister(chatID)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "chat_id", chatID)
		}
	}()

	ctx := r.Context()
	if err := wsjson.Write(ctx, ws, outbound{Type: "hello", ChatID: chatID}); err != nil {
		return
	}
	h.readLoop(ctx, ws, chatID)
}

// readLoop handles one message at a time, which keeps the connection's
// replies in order.
func (h *Hub) readLoop(ctx context.Context, ws *websocket.Conn, chatID int64) {
	user := domain.User{ID: chatID, FirstName: "operator"}
	for {
		var in inbound
		if err := wsjson.Read(ctx, ws, &in); err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("Console closed by client", "chat_id", chatID)
			} else if ctx.Err() == nil {
				h.logger.Warn("Console read error", "error", err, "chat_id", chatID)
			}
			return
		}
		if in.Type != "message" || strings.TrimSpace(in.Text) == "" {
			if err := wsjson.Write(ctx, ws, outbound{Type: "error", Error: "expected {\"type\":\"message\",\"text\":...}"}); err != nil {
				return
			}
			continue
		}

		h.mu.RLock()
		d := h.dispatcher
		h.mu.RUnlock()
		if d == nil {
			h.logger.Warn("Dropping console message, no dispatcher attached", "chat_id", chatID)
			continue
		}
		d.Dispatch(ctx, bot.Message{ChatID: chatID, User: user, Text: in.Text, Trusted: true})
	}
}

func (h *Hub) register(chatID int64, ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active[chatID] = ws
	h.logger.Info("Console session registered", "chat_id", chatID)
}

func (h *Hub) unregister(chatID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.active, chatID)
	h.logger.Info("Console session unregistered", "chat_id", chatID)
}

// CloseAll terminates every console connection. The close handshakes run
// outside the hub lock.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make(map[int64]*websocket.Conn, len(h.active))
	for chatID, conn := range h.active {
		conns[chatID] = conn
	}
	h.mu.RUnlock()

	for chatID, conn := range conns {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		h.logger.Info("Console session closed", "chat_id", chatID)
	}
}
