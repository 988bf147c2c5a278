package stream

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/helpyourself/companion/backend/internal/model/chat"
	chatService "github.com/helpyourself/companion/backend/internal/service/chat"
	"github.com/helpyourself/companion/backend/internal/storage"
	"github.com/helpyourself/companion/backend/pkg/utils"
)

const defaultHeartbeat = 15 * time.Second

// Watcher publishes message-list snapshots of a session and of the
// session list.
type Watcher interface {
	WatchMessages(ctx context.Context, sessionID string) (<-chan []chat.Message, error)
	WatchSessions(ctx context.Context) (<-chan []chat.Session, error)
}

// Handler serves Server-Sent Event streams of replies and transcripts.
type Handler struct {
	chatSvc   *chatService.Coordinator
	watcher   Watcher
	heartbeat time.Duration
	logger    *zap.Logger
}

// New creates a stream handler. watcher may be nil, which disables the
// transcript subscription.
func New(chatSvc *chatService.Coordinator, watcher Watcher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chatSvc:   chatSvc,
		watcher:   watcher,
		heartbeat: defaultHeartbeat,
		logger:    logger.Named("handler.stream"),
	}
}

// StreamResponse is the payload of every event.
type StreamResponse struct {
	Event     string         `json:"event"`
	Content   string         `json:"content,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
	Message   *chat.Message  `json:"message,omitempty"`
	Messages  []chat.Message `json:"messages,omitempty"`
	Sessions  []chat.Session `json:"sessions,omitempty"`
	Finished  bool           `json:"finished,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// RegisterRoutes mounts the streaming routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
	r.Get("/sessions/events", h.handleSessionEvents)
	r.Get("/sessions/{id}/events", h.handleEvents)
}

// handleStream runs one turn and replays the reply as delta events. An
// empty message asks for the category welcome.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userMessage := r.URL.Query().Get("message")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	if _, err := h.chatSvc.Conversation(r.Context(), sessionID); err != nil {
		h.failBeforeStream(w, err)
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	h.send(w, flusher, StreamResponse{Event: "start", SessionID: sessionID})

	result, err := h.chatSvc.StreamTo(r.Context(), sessionID, userMessage, func(partial string) error {
		return h.sendErr(w, flusher, StreamResponse{Event: "delta", SessionID: sessionID, Content: partial})
	})
	switch {
	case err != nil:
		h.logger.Error("stream turn failed", zap.String("session_id", sessionID), zap.Error(err))
		h.send(w, flusher, StreamResponse{Event: "error", SessionID: sessionID, Error: "streaming failed"})
	case result.Canceled:
		h.logger.Debug("stream canceled", zap.String("session_id", sessionID))
	case result.ErrorText != "":
		h.send(w, flusher, StreamResponse{Event: "error", SessionID: sessionID, Error: result.ErrorText})
	case result.Reply != nil:
		h.send(w, flusher, StreamResponse{
			Event:     "message",
			SessionID: sessionID,
			Content:   result.Reply.Content,
			Message:   result.Reply,
		})
	}

	h.send(w, flusher, StreamResponse{Event: "end", SessionID: sessionID, Finished: true})
}

// handleEvents pushes the transcript every time it changes, with periodic
// heartbeats in between.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if h.watcher == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "live updates unavailable")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	if _, err := h.chatSvc.Conversation(r.Context(), sessionID); err != nil {
		h.failBeforeStream(w, err)
		return
	}

	ctx := r.Context()
	updates, err := h.watcher.WatchMessages(ctx, sessionID)
	if err != nil {
		h.failBeforeStream(w, err)
		return
	}

	h.logger.Debug("opening transcript stream", zap.String("session_id", sessionID))
	relay(ctx, h, w, flusher, sessionID, updates, func(snapshot []chat.Message) StreamResponse {
		if snapshot == nil {
			snapshot = []chat.Message{}
		}
		return StreamResponse{Event: "messages", SessionID: sessionID, Messages: snapshot}
	})
	h.logger.Debug("closing transcript stream", zap.String("session_id", sessionID))
}

// handleSessionEvents pushes the session list, newest first, whenever a
// session is created, renamed, deleted or receives a message.
func (h *Handler) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	if h.watcher == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "live updates unavailable")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	updates, err := h.watcher.WatchSessions(ctx)
	if err != nil {
		h.failBeforeStream(w, err)
		return
	}

	relay(ctx, h, w, flusher, "", updates, func(snapshot []chat.Session) StreamResponse {
		if snapshot == nil {
			snapshot = []chat.Session{}
		}
		return StreamResponse{Event: "sessions", Sessions: snapshot}
	})
}

// relay writes every snapshot from updates as an event, with heartbeats
// in between, until the client leaves or updates closes.
func relay[T any](ctx context.Context, h *Handler, w http.ResponseWriter, flusher http.Flusher, sessionID string, updates <-chan T, event func(T) StreamResponse) {
	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, open := <-updates:
			if !open {
				return
			}
			if err := h.sendErr(w, flusher, event(snapshot)); err != nil {
				return
			}
		case t := <-ticker.C:
			if err := h.sendErr(w, flusher, StreamResponse{
				Event:     "heartbeat",
				SessionID: sessionID,
				Content:   t.UTC().Format(time.RFC3339),
			}); err != nil {
				return
			}
		}
	}
}

func (h *Handler) failBeforeStream(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	h.logger.Error("stream setup failed", zap.Error(err))
	utils.RespondError(w, http.StatusInternalServerError, "internal error")
}

func (h *Handler) send(w http.ResponseWriter, flusher http.Flusher, resp StreamResponse) {
	if err := h.sendErr(w, flusher, resp); err != nil {
		h.logger.Debug("write sse event", zap.String("event", resp.Event), zap.Error(err))
	}
}

func (h *Handler) sendErr(w http.ResponseWriter, flusher http.Flusher, resp StreamResponse) error {
	return utils.SendSSEEvent(w, flusher, resp.Event, resp)
}
