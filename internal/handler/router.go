package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/helpyourself/companion/backend/internal/handler/assessment"
	"github.com/helpyourself/companion/backend/internal/handler/category"
	"github.com/helpyourself/companion/backend/internal/handler/chat"
	"github.com/helpyourself/companion/backend/internal/handler/live"
	"github.com/helpyourself/companion/backend/internal/handler/metrics"
	"github.com/helpyourself/companion/backend/internal/handler/places"
	"github.com/helpyourself/companion/backend/internal/handler/resources"
	"github.com/helpyourself/companion/backend/internal/handler/review"
	"github.com/helpyourself/companion/backend/internal/handler/stream"
	middlewarePkg "github.com/helpyourself/companion/backend/internal/middleware"
	assessmentService "github.com/helpyourself/companion/backend/internal/service/assessment"
	chatService "github.com/helpyourself/companion/backend/internal/service/chat"
	"github.com/helpyourself/companion/backend/internal/service/cloud"
	"github.com/helpyourself/companion/backend/internal/telemetry"
	"github.com/helpyourself/companion/backend/pkg/utils"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Dependencies are the services the router exposes. Optional ones may be
// nil; their routes then answer 503.
type Dependencies struct {
	Chat        *chatService.Coordinator
	Watcher     stream.Watcher
	Assessments *assessmentService.Runner
	Cloud       cloud.Store
	Resources   resources.Searcher
	Places      places.Finder
	Reviews     review.Generator
	Metrics     *telemetry.Metrics
	Health      map[string]HealthCheck

	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))
	r.Use(middlewarePkg.UserID)

	r.Get("/healthz", healthHandler(deps.Health))
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		category.New().RegisterRoutes(api)

		chat.New(deps.Chat, logger).RegisterRoutes(api)
		stream.New(deps.Chat, deps.Watcher, logger).RegisterRoutes(api)
		live.NewWebSocketHandler(deps.Chat, deps.Watcher, logger).RegisterWebSocketRoutes(api)

		assessment.New(deps.Assessments, logger).RegisterRoutes(api)

		if deps.Cloud != nil {
			metrics.New(deps.Cloud, logger).RegisterRoutes(api)
		} else {
			unavailable := func(w http.ResponseWriter, r *http.Request) {
				utils.RespondError(w, http.StatusServiceUnavailable, "metrics store not configured")
			}
			api.HandleFunc("/metrics", unavailable)
			api.HandleFunc("/metrics/*", unavailable)
		}

		resources.New(deps.Resources, logger).RegisterRoutes(api)
		places.New(deps.Places, logger).RegisterRoutes(api)
		if deps.Reviews != nil {
			review.New(deps.Reviews, logger).RegisterRoutes(api)
		}
	})

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		report := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				report[name] = err.Error()
				continue
			}
			report[name] = "ok"
		}
		utils.RespondJSON(w, status, map[string]any{
			"status": http.StatusText(status),
			"checks": report,
		})
	}
}
