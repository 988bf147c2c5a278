package review

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	reviewService "github.com/helpyourself/companion/backend/internal/service/review"
	"github.com/helpyourself/companion/backend/pkg/utils"
)

// Generator produces the review of today's answers.
type Generator interface {
	Generate(ctx context.Context) (reviewService.Review, error)
}

// Handler serves POST /review.
type Handler struct {
	reviews Generator
	logger  *zap.Logger
}

// New creates the review handler.
func New(reviews Generator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{reviews: reviews, logger: logger.Named("handler.review")}
}

// RegisterRoutes mounts /review.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/review", h.handleReview)
}

// handleReview answers 200 either way; failures carry errorText the way
// chat turns do.
func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	out, err := h.reviews.Generate(r.Context())
	if err != nil {
		h.logger.Warn("review failed", zap.Error(err))
		utils.RespondJSON(w, http.StatusOK, map[string]string{"errorText": reviewService.Describe(err)})
		return
	}
	utils.RespondJSON(w, http.StatusOK, out)
}
