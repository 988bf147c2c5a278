package places

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	placeService "github.com/helpyourself/companion/backend/internal/service/places"
	"github.com/helpyourself/companion/backend/pkg/utils"
)

// Finder looks up therapists near a coordinate.
type Finder interface {
	NearbyTherapists(ctx context.Context, lat, lng float64) ([]placeService.Place, error)
}

// Handler serves the therapist lookup.
type Handler struct {
	finder Finder
	logger *zap.Logger
}

// New creates the handler. A nil finder answers 503.
func New(finder Finder, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{finder: finder, logger: logger.Named("handler.places")}
}

// RegisterRoutes mounts /places/therapists.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/places/therapists", h.handleTherapists)
}

func (h *Handler) handleTherapists(w http.ResponseWriter, r *http.Request) {
	if h.finder == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "places lookup not configured")
		return
	}
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if errLat != nil || errLng != nil {
		utils.RespondError(w, http.StatusBadRequest, "lat and lng are required")
		return
	}

	found, err := h.finder.NearbyTherapists(r.Context(), lat, lng)
	switch {
	case errors.Is(err, placeService.ErrNoneFound):
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"places":  []placeService.Place{},
			"message": err.Error(),
		})
	case err != nil:
		h.logger.Warn("therapist lookup failed", zap.Error(err))
		utils.RespondError(w, http.StatusBadGateway, err.Error())
	default:
		utils.RespondJSON(w, http.StatusOK, map[string]any{"places": found})
	}
}
