package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/helpyourself/companion/backend/internal/middleware"
	"github.com/helpyourself/companion/backend/internal/model/metric"
	"github.com/helpyourself/companion/backend/internal/service/cloud"
	"github.com/helpyourself/companion/backend/pkg/utils"
)

// defaultWindow is the history range used when from is omitted.
const defaultWindow = 7 * 24 * time.Hour

// Handler serves the signed-in user's cloud metrics.
type Handler struct {
	store  cloud.Store
	now    func() time.Time
	logger *zap.Logger
}

// New creates the metrics handler.
func New(store cloud.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, now: time.Now, logger: logger.Named("handler.metrics")}
}

// RegisterRoutes mounts the metric routes. All of them need X-User-ID.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireUser)
		r.Get("/metrics/history", h.handleHistory)
		r.Get("/metrics/latest", h.handleLatest)
		r.Post("/metrics", h.handleSave)
		r.Delete("/metrics/{timestamp}", h.handleDelete)
		r.Get("/metrics/assessments/{type}", h.handleSubmissions)
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	now := h.now().UnixMilli()
	to, err := parseMillis(r.URL.Query().Get("to"), now)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid to")
		return
	}
	from, err := parseMillis(r.URL.Query().Get("from"), to-defaultWindow.Milliseconds())
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid from")
		return
	}
	if from > to {
		utils.RespondError(w, http.StatusBadRequest, "from must not be after to")
		return
	}

	metrics, err := h.store.MetricsBetween(r.Context(), middleware.User(r.Context()), from, to)
	if err != nil {
		h.fail(w, err)
		return
	}
	if metrics == nil {
		metrics = []metric.Metric{}
	}
	utils.RespondJSON(w, http.StatusOK, metrics)
}

func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	m, err := h.store.LatestMetric(r.Context(), middleware.User(r.Context()))
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, m)
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	var m metric.Metric
	if err := utils.DecodeJSON(r, &m); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for _, v := range []float32{m.Depression, m.Anxiety, m.Stress} {
		if v < 0 || v > 10 {
			utils.RespondError(w, http.StatusBadRequest, "scores must be between 0 and 10")
			return
		}
	}
	m.UserID = middleware.User(r.Context())
	if m.Timestamp <= 0 {
		m.Timestamp = h.now().UnixMilli()
	}

	if err := h.store.SaveMetric(r.Context(), m); err != nil {
		h.fail(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, m)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ts, err := strconv.ParseInt(chi.URLParam(r, "timestamp"), 10, 64)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid timestamp")
		return
	}
	if err := h.store.DeleteMetric(r.Context(), middleware.User(r.Context()), ts); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.store.Submissions(r.Context(), middleware.User(r.Context()), chi.URLParam(r, "type"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if subs == nil {
		subs = []metric.Submission{}
	}
	utils.RespondJSON(w, http.StatusOK, subs)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cloud.ErrNotAuthenticated):
		utils.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, cloud.ErrNoMetrics):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("metrics request failed", zap.Error(err))
		utils.RespondError(w, http.StatusBadGateway, "metrics store unavailable")
	}
}

func parseMillis(raw string, fallback int64) (int64, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
