// Package app assembles the services shared by the API server and the
// command-line tools.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/helpyourself/companion/backend/internal/config"
	"github.com/helpyourself/companion/backend/internal/service/ai"
	chatService "github.com/helpyourself/companion/backend/internal/service/chat"
	"github.com/helpyourself/companion/backend/internal/service/cloud"
	"github.com/helpyourself/companion/backend/internal/service/places"
	"github.com/helpyourself/companion/backend/internal/service/remote"
	"github.com/helpyourself/companion/backend/internal/service/resources"
	"github.com/helpyourself/companion/backend/internal/storage"
	"github.com/helpyourself/companion/backend/pkg/logging"
)

// OpenStorage opens the local store named by cfg.Driver.
func OpenStorage(cfg config.StorageConfig, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return storage.NewMemoryStore(), nil
	case config.DriverSQLite, config.DriverPostgres:
		store, err := storage.OpenGorm(storage.Options{
			SQLitePath:  sqlitePath(cfg),
			PostgresDSN: postgresDSN(cfg),
			Debug:       cfg.Debug,
		}, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

func sqlitePath(cfg config.StorageConfig) string {
	if cfg.Driver == config.DriverSQLite {
		return cfg.SQLitePath
	}
	return ""
}

func postgresDSN(cfg config.StorageConfig) string {
	if cfg.Driver == config.DriverPostgres {
		return cfg.PostgresDSN
	}
	return ""
}

// OpenCloud opens the metrics store. Driver "none" returns nil, nil.
func OpenCloud(ctx context.Context, cfg config.CloudConfig, logger *zap.Logger) (cloud.Store, error) {
	switch cfg.Driver {
	case config.DriverNone:
		return nil, nil
	case config.DriverRedis:
		store, err := cloud.OpenRedis(ctx, cfg.RedisURL, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverBolt:
		store, err := cloud.OpenBolt(cfg.BoltPath, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported cloud driver %q", cfg.Driver)
	}
}

// Models holds the chat responder and the optional review generator.
type Models struct {
	Responder chatService.Responder
	Generator ai.Generator
}

// NewModels builds the chat backend selected by cfg.Chat.Backend. The
// review generator uses OpenAI when configured, Ark otherwise.
func NewModels(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Models, error) {
	logger = logging.OrNop(logger)
	var out Models

	var arkSvc *ai.Service
	if cfg.AI.Enabled() {
		svc, err := ai.NewService(ctx, cfg.AI, cfg.Chat.HistoryLimit, logger)
		if err != nil {
			if cfg.Chat.Backend == config.BackendArk {
				return Models{}, err
			}
			logger.Warn("ark model unavailable", zap.Error(err))
		} else {
			arkSvc = svc
		}
	}

	var openaiSvc *ai.OpenAIResponder
	if cfg.OpenAI.Enabled() {
		svc, err := ai.NewOpenAIResponder(cfg.OpenAI, cfg.Chat.HistoryLimit, logger)
		if err != nil {
			if cfg.Chat.Backend == config.BackendOpenAI {
				return Models{}, err
			}
			logger.Warn("openai model unavailable", zap.Error(err))
		} else {
			openaiSvc = svc
		}
	}

	switch cfg.Chat.Backend {
	case config.BackendRemote:
		client, err := remote.New(remote.Options{
			BaseURL:     cfg.Chat.BaseURL,
			UserID:      cfg.Chat.UserID,
			Timeout:     cfg.Chat.Timeout,
			ReplayDelay: cfg.Chat.ReplayDelay,
		}, logger)
		if err != nil {
			return Models{}, err
		}
		out.Responder = client
	case config.BackendArk:
		if arkSvc == nil {
			return Models{}, errors.New("chat backend ark requires ARK_MODEL and credentials")
		}
		out.Responder = arkSvc
	case config.BackendOpenAI:
		if openaiSvc == nil {
			return Models{}, errors.New("chat backend openai requires OPENAI_API_KEY")
		}
		out.Responder = openaiSvc
	default:
		return Models{}, fmt.Errorf("unsupported chat backend %q", cfg.Chat.Backend)
	}

	switch {
	case openaiSvc != nil:
		out.Generator = openaiSvc
	case arkSvc != nil:
		out.Generator = arkSvc
	}
	return out, nil
}

// NewSearch returns the search client, or nil when no key is set.
func NewSearch(cfg config.SearchConfig, logger *zap.Logger) (*resources.Client, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}
	return resources.New(resources.Options{
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		CacheTTL: cfg.CacheTTL,
	}, logger)
}

// NewPlaces returns the places client, or nil when no key is set.
func NewPlaces(cfg config.PlacesConfig, logger *zap.Logger) (*places.Client, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}
	return places.New(places.Options{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		RadiusMeters: cfg.RadiusMeters,
	}, logger)
}

// Closers closes each non-nil closer and joins the errors.
func Closers(closers ...io.Closer) error {
	var errs []error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
