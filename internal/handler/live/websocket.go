// Package live serves the websocket view of a conversation.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/helpyourself/companion/backend/internal/model/chat"
	chatservice "github.com/helpyourself/companion/backend/internal/service/chat"
	"github.com/helpyourself/companion/backend/internal/storage"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// Watcher publishes message-list snapshots of a session.
type Watcher interface {
	WatchMessages(ctx context.Context, sessionID string) (<-chan []chat.Message, error)
}

// WebSocketHandler pushes transcripts and accepts turns over a websocket.
type WebSocketHandler struct {
	chatSvc  *chatservice.Coordinator
	watcher  Watcher
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler creates the handler. watcher may be nil; snapshots
// are then sent after each turn only.
func NewWebSocketHandler(chatSvc *chatservice.Coordinator, watcher Watcher, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		chatSvc: chatSvc,
		watcher: watcher,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.Named("handler.live"),
	}
}

// RegisterWebSocketRoutes mounts /ws/{sessionID}.
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

// TextMessage is the data of an inbound "text" frame.
type TextMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// conn serialises writes; gorilla allows one concurrent writer.
type conn struct {
	ws        *websocket.Conn
	sessionID string
	mu        sync.Mutex
}

func (c *conn) write(msgType string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(outgoingMessage{
		Type:      msgType,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

// turnScope hands out the context for this connection's turns. stop
// cancels only turns started from this connection.
type turnScope struct {
	mu     sync.Mutex
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *turnScope) current() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		s.ctx, s.cancel = context.WithCancel(s.parent)
	}
	return s.ctx
}

func (s *turnScope) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.ctx, s.cancel = nil, nil
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}
	if _, err := h.chatSvc.Conversation(r.Context(), sessionID); err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	c := &conn{ws: ws, sessionID: sessionID}
	h.logger.Debug("connection opened", zap.String("session_id", sessionID))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go h.pingLoop(ctx, c)

	if err := c.write("connected", map[string]string{"sessionId": sessionID}); err != nil {
		return
	}
	if h.watcher != nil {
		updates, err := h.watcher.WatchMessages(ctx, sessionID)
		if err != nil {
			h.logger.Warn("watch session", zap.String("session_id", sessionID), zap.Error(err))
		} else {
			go h.forward(c, updates)
		}
	} else {
		h.sendSnapshot(ctx, c)
	}

	scope := &turnScope{parent: ctx}
	var turns sync.WaitGroup
	defer func() {
		cancel()
		turns.Wait()
	}()

	for {
		var msg inboundMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("read error", zap.String("session_id", sessionID), zap.Error(err))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(readTimeout))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			_ = c.write("error", map[string]string{"message": "session mismatch"})
			continue
		}

		switch msg.Type {
		case "text":
			var text TextMessage
			if len(msg.Data) > 0 {
				if err := json.Unmarshal(msg.Data, &text); err != nil {
					_ = c.write("error", map[string]string{"message": "invalid text payload"})
					continue
				}
			}
			turnCtx := scope.current()
			turns.Add(1)
			go func() {
				defer turns.Done()
				h.runTurn(turnCtx, c, text.Text)
			}()
		case "stop":
			scope.stop()
		default:
			_ = c.write("error", map[string]string{"message": "unsupported message type: " + msg.Type})
		}
	}
}

func (h *WebSocketHandler) runTurn(ctx context.Context, c *conn, text string) {
	result, err := h.chatSvc.StreamTo(ctx, c.sessionID, text, func(partial string) error {
		return c.write("partial", map[string]string{"text": partial})
	})
	switch {
	case err != nil:
		h.logger.Error("turn failed", zap.String("session_id", c.sessionID), zap.Error(err))
		_ = c.write("error", map[string]string{"message": "turn failed"})
	case result.Canceled:
		_ = c.write("stopped", nil)
	case result.ErrorText != "":
		_ = c.write("error", map[string]string{"message": strings.TrimSpace(result.ErrorText)})
	default:
		_ = c.write("reply", result.Reply)
	}
	if h.watcher == nil {
		h.sendSnapshot(context.WithoutCancel(ctx), c)
	}
}

func (h *WebSocketHandler) forward(c *conn, updates <-chan []chat.Message) {
	for snapshot := range updates {
		if snapshot == nil {
			snapshot = []chat.Message{}
		}
		if err := c.write("messages", snapshot); err != nil {
			return
		}
	}
}

func (h *WebSocketHandler) sendSnapshot(ctx context.Context, c *conn) {
	messages, err := h.chatSvc.Messages(ctx, c.sessionID)
	if err != nil {
		h.logger.Warn("load transcript", zap.String("session_id", c.sessionID), zap.Error(err))
		return
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	_ = c.write("messages", messages)
}

func (h *WebSocketHandler) pingLoop(ctx context.Context, c *conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
