package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/helpyourself/companion/backend/internal/app"
	"github.com/helpyourself/companion/backend/internal/config"
	"github.com/helpyourself/companion/backend/internal/handler"
	"github.com/helpyourself/companion/backend/internal/handler/places"
	"github.com/helpyourself/companion/backend/internal/handler/resources"
	"github.com/helpyourself/companion/backend/internal/service/assessment"
	"github.com/helpyourself/companion/backend/internal/service/chat"
	"github.com/helpyourself/companion/backend/internal/service/cloud"
	"github.com/helpyourself/companion/backend/internal/service/review"
	"github.com/helpyourself/companion/backend/internal/storage"
	"github.com/helpyourself/companion/backend/internal/telemetry"
	"github.com/helpyourself/companion/backend/pkg/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{Development: cfg.Log.Development, Level: cfg.Log.Level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if envErr != nil {
		logger.Debug("no .env file loaded, using process environment", zap.Error(envErr))
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	metrics := telemetry.New()

	base, err := app.OpenStorage(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	hub := storage.NewHub(base, logger)
	defer func() {
		if err := hub.Close(); err != nil {
			logger.Warn("close storage", zap.Error(err))
		}
	}()
	logger.Info("storage ready", zap.String("driver", cfg.Storage.Driver))

	cloudStore, err := app.OpenCloud(ctx, cfg.Cloud, logger)
	if err != nil {
		return fmt.Errorf("open cloud store: %w", err)
	}
	if cloudStore != nil {
		defer func() { _ = cloudStore.Close() }()
		logger.Info("cloud store ready", zap.String("driver", cfg.Cloud.Driver))
	} else {
		logger.Info("cloud store disabled")
	}

	models, err := app.NewModels(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init chat backend: %w", err)
	}
	logger.Info("chat backend ready",
		zap.String("backend", cfg.Chat.Backend),
		zap.Bool("review_enabled", models.Generator != nil))

	coordinator := chat.NewCoordinator(hub, models.Responder, chat.Options{
		UserID:       cfg.Chat.UserID,
		ReplayDelay:  cfg.Chat.ReplayDelay,
		HistoryLimit: cfg.Chat.HistoryLimit,
		Metrics:      metrics,
	}, logger)
	defer coordinator.Close()

	runner := assessment.NewRunner(hub, assessment.Options{Cloud: cloudStore, Metrics: metrics}, logger)

	deps := handler.Dependencies{
		Chat:           coordinator,
		Watcher:        hub,
		Assessments:    runner,
		Cloud:          cloudStore,
		Reviews:        review.New(hub, models.Generator, logger),
		Metrics:        metrics,
		Health:         healthChecks(base, cloudStore),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	}

	search, err := app.NewSearch(cfg.Search, logger)
	if err != nil {
		return fmt.Errorf("init search: %w", err)
	}
	if search != nil {
		deps.Resources = resources.Searcher(search)
	} else {
		logger.Info("resource search disabled: TAVILY_API_KEY not set")
	}

	finder, err := app.NewPlaces(cfg.Places, logger)
	if err != nil {
		return fmt.Errorf("init places: %w", err)
	}
	if finder != nil {
		deps.Places = places.Finder(finder)
	} else {
		logger.Info("therapist lookup disabled: PLACES_API_KEY not set")
	}

	return startServer(ctx, cfg.Server, handler.NewRouter(deps), logger)
}

type pinger interface {
	Ping(ctx context.Context) error
}

func healthChecks(base storage.Store, cloudStore cloud.Store) map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{}
	if p, ok := base.(pinger); ok {
		checks["storage"] = p.Ping
	}
	if cloudStore != nil {
		checks["cloud"] = cloudStore.Ping
	}
	return checks
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("companion backend listening", zap.String("addr", addr))
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
