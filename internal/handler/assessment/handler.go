package assessment

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	engine "github.com/helpyourself/companion/backend/internal/analysis/assessment"
	"github.com/helpyourself/companion/backend/internal/middleware"
	model "github.com/helpyourself/companion/backend/internal/model/assessment"
	assessmentService "github.com/helpyourself/companion/backend/internal/service/assessment"
	"github.com/helpyourself/companion/backend/pkg/utils"
)

// Handler exposes questionnaire runs and stored answers.
type Handler struct {
	runner *assessmentService.Runner
	logger *zap.Logger
}

// New creates the assessment handler.
func New(runner *assessmentService.Runner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{runner: runner, logger: logger.Named("handler.assessment")}
}

// RegisterRoutes mounts the assessment routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/assessments/{kind}/runs", h.handleStart)
	r.Get("/assessments/runs/{runID}", h.handleState)
	r.Post("/assessments/runs/{runID}/answers", h.handleAnswer)
	r.Post("/assessments/runs/{runID}/reset", h.handleReset)
	r.Delete("/assessments/runs/{runID}", h.handleAbandon)
	r.Get("/assessments/{kind}/results", h.handleResults)
	r.Get("/assessments/{kind}/answers", h.handleAnswers)
	r.Get("/assessments/{kind}/total", h.handleTotal)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	state, err := h.runner.Start(r.Context(), kind, middleware.User(r.Context()))
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, state)
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	state, err := h.runner.State(chi.URLParam(r, "runID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, state)
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Option string `json:"option"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	state, err := h.runner.Answer(r.Context(), chi.URLParam(r, "runID"), payload.Option)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, state)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	state, err := h.runner.Reset(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, state)
}

func (h *Handler) handleAbandon(w http.ResponseWriter, r *http.Request) {
	if err := h.runner.Abandon(r.Context(), chi.URLParam(r, "runID")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	results, err := h.runner.Results(r.Context(), kind)
	if err != nil {
		h.fail(w, err)
		return
	}
	if results == nil {
		results = []model.Result{}
	}
	utils.RespondJSON(w, http.StatusOK, results)
}

func (h *Handler) handleAnswers(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	answers, err := h.runner.AnswersForDate(r.Context(), kind, r.URL.Query().Get("date"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if answers == nil {
		answers = []model.Answer{}
	}
	utils.RespondJSON(w, http.StatusOK, answers)
}

// handleTotal reports the summed score of the answers stored for a day.
func (h *Handler) handleTotal(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	total, err := h.runner.TotalForDate(r.Context(), kind, r.URL.Query().Get("date"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"kind": kind, "total": total})
}

func (h *Handler) kind(w http.ResponseWriter, r *http.Request) (model.Kind, bool) {
	kind, err := model.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return "", false
	}
	return kind, true
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, assessmentService.ErrRunNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrUnknownOption), errors.Is(err, engine.ErrInvalidScore):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrRunComplete):
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("assessment request failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
