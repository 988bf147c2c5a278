package category

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helpyourself/companion/backend/internal/model/chat"
	"github.com/helpyourself/companion/backend/internal/service/ai"
	"github.com/helpyourself/companion/backend/pkg/utils"
)

// Info describes one conversation category.
type Info struct {
	Category       chat.Category `json:"category"`
	Name           string        `json:"name"`
	WelcomeMessage string        `json:"welcomeMessage"`
}

// Handler lists the conversation categories.
type Handler struct{}

// New creates the category handler.
func New() *Handler {
	return &Handler{}
}

// RegisterRoutes mounts /categories.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/categories", h.handleListCategories)
}

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories := []chat.Category{chat.CategoryGeneral, chat.CategoryCrisis, chat.CategoryTherapy}
	out := make([]Info, 0, len(categories))
	for _, c := range categories {
		out = append(out, Info{
			Category:       c,
			Name:           c.DefaultName(),
			WelcomeMessage: ai.WelcomeMessage(c),
		})
	}
	utils.RespondJSON(w, http.StatusOK, out)
}
