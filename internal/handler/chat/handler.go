package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/helpyourself/companion/backend/internal/model/chat"
	chatService "github.com/helpyourself/companion/backend/internal/service/chat"
	"github.com/helpyourself/companion/backend/internal/storage"
	"github.com/helpyourself/companion/backend/pkg/utils"
)

// Handler serves conversations and their messages.
type Handler struct {
	chatSvc *chatService.Coordinator
	logger  *zap.Logger
}

// New creates the conversation handler.
func New(chatSvc *chatService.Coordinator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{chatSvc: chatSvc, logger: logger.Named("handler.chat")}
}

// RegisterRoutes mounts the conversation routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions", h.handleListSessions)
	r.Get("/sessions/active", h.handleActiveSession)
	r.Get("/sessions/{id}", h.handleGetSession)
	r.Patch("/sessions/{id}", h.handleRenameSession)
	r.Delete("/sessions/{id}", h.handleDeleteSession)
	r.Post("/sessions/{id}/select", h.handleSelectSession)
	r.Get("/sessions/{id}/messages", h.handleListMessages)
	r.Post("/sessions/{id}/messages", h.handleSendMessage)
	r.Delete("/messages/{id}", h.handleDeleteMessage)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Category string `json:"category"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.chatSvc.NewConversation(r.Context(), chat.ParseCategory(payload.Category))
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.chatSvc.Conversations(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"active":   h.chatSvc.Active(),
	})
}

// handleActiveSession returns the active conversation with its last
// watched snapshot.
func (h *Handler) handleActiveSession(w http.ResponseWriter, r *http.Request) {
	id := h.chatSvc.Active()
	if id == "" {
		utils.RespondError(w, http.StatusNotFound, "no active conversation")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"active":   id,
		"messages": h.chatSvc.ActiveMessages(),
	})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, err := h.chatSvc.Conversation(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"session":   session,
		"errorText": h.chatSvc.LastError(id),
	})
}

func (h *Handler) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.chatSvc.RenameConversation(r.Context(), chi.URLParam(r, "id"), payload.Name)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.DeleteConversation(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"active": h.chatSvc.Active()})
}

func (h *Handler) handleSelectSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.SelectConversation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.chatSvc.Messages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	utils.RespondJSON(w, http.StatusOK, messages)
}

// handleSendMessage runs one turn. Backend failures come back as 200 with
// errorText set, mirroring what the chat screen shows.
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.chatSvc.SendTo(r.Context(), chi.URLParam(r, "id"), payload.Text)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.chatSvc.DeleteMessage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, msg)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrSessionNotFound), errors.Is(err, storage.ErrMessageNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chatService.ErrNameRequired), errors.Is(err, storage.ErrSessionRequired):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("chat request failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
