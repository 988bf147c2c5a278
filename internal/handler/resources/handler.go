package resources

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	resourceService "github.com/helpyourself/companion/backend/internal/service/resources"
	"github.com/helpyourself/companion/backend/pkg/utils"
)

// Searcher is the part of the search client the handler uses.
type Searcher interface {
	Search(ctx context.Context, req resourceService.SearchRequest) ([]resourceService.Result, error)
	Curated(ctx context.Context, limit int) ([]resourceService.Result, error)
	Extract(ctx context.Context, pageURL string) (resourceService.Article, error)
}

// Handler serves reading material.
type Handler struct {
	search Searcher
	logger *zap.Logger
}

// New creates the handler. A nil searcher answers 503.
func New(search Searcher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{search: search, logger: logger.Named("handler.resources")}
}

// RegisterRoutes mounts the resource routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/resources", h.handleSearch)
	r.Get("/resources/curated", h.handleCurated)
	r.Post("/resources/extract", h.handleExtract)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	q := r.URL.Query()
	if q.Get("query") == "" {
		utils.RespondError(w, http.StatusBadRequest, "query is required")
		return
	}
	req := resourceService.SearchRequest{
		Query:         q.Get("query"),
		SearchDepth:   q.Get("depth"),
		IncludeImages: q.Get("images") == "true",
	}
	if raw := q.Get("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 20 {
			utils.RespondError(w, http.StatusBadRequest, "max must be between 1 and 20")
			return
		}
		req.MaxResults = n
	}

	results, err := h.search.Search(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"results": nonNil(results)})
}

// handleCurated groups the curated research list by type.
func (h *Handler) handleCurated(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	results, err := h.search.Curated(r.Context(), 0)
	if err != nil {
		h.fail(w, err)
		return
	}

	books := []resourceService.Result{}
	papers := []resourceService.Result{}
	for _, res := range results {
		if res.Type == resourceService.TypeBooks {
			books = append(books, res)
		} else {
			papers = append(papers, res)
		}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"books": books, "papers": papers})
}

func (h *Handler) handleExtract(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	var payload struct {
		URL string `json:"url"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil || payload.URL == "" {
		utils.RespondError(w, http.StatusBadRequest, "url is required")
		return
	}

	article, err := h.search.Extract(r.Context(), payload.URL)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, article)
}

func (h *Handler) available(w http.ResponseWriter) bool {
	if h.search == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "resource search not configured")
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	h.logger.Warn("resource lookup failed", zap.Error(err))
	utils.RespondError(w, http.StatusBadGateway, resourceService.Describe(err))
}

func nonNil(in []resourceService.Result) []resourceService.Result {
	if in == nil {
		return []resourceService.Result{}
	}
	return in
}
