package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpyourself/companion/backend/internal/config"
	"github.com/helpyourself/companion/backend/internal/service/ai"
	"github.com/helpyourself/companion/backend/internal/service/cloud"
	"github.com/helpyourself/companion/backend/internal/service/remote"
	"github.com/helpyourself/companion/backend/internal/storage"
)

func TestOpenStorageDrivers(t *testing.T) {
	mem, err := OpenStorage(config.StorageConfig{Driver: config.DriverMemory}, nil)
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryStore{}, mem)

	sqlite, err := OpenStorage(config.StorageConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "app.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	assert.IsType(t, &storage.GormStore{}, sqlite)

	_, err = OpenStorage(config.StorageConfig{Driver: "mongo"}, nil)
	require.Error(t, err)
}

func TestOpenCloudDrivers(t *testing.T) {
	ctx := context.Background()

	none, err := OpenCloud(ctx, config.CloudConfig{Driver: config.DriverNone}, nil)
	require.NoError(t, err)
	assert.Nil(t, none)

	mr := miniredis.RunT(t)
	rs, err := OpenCloud(ctx, config.CloudConfig{Driver: config.DriverRedis, RedisURL: "redis://" + mr.Addr()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rs.Close() })
	assert.IsType(t, &cloud.RedisStore{}, rs)

	bs, err := OpenCloud(ctx, config.CloudConfig{Driver: config.DriverBolt, BoltPath: filepath.Join(t.TempDir(), "c.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bs.Close() })
	assert.IsType(t, &cloud.BoltStore{}, bs)
}

func TestNewModelsBackends(t *testing.T) {
	ctx := context.Background()
	base := config.Config{Chat: config.ChatConfig{
		Backend:      config.BackendRemote,
		BaseURL:      "http://localhost:5002/",
		HistoryLimit: 10,
	}}

	models, err := NewModels(ctx, &base, nil)
	require.NoError(t, err)
	assert.IsType(t, &remote.Client{}, models.Responder)
	assert.Nil(t, models.Generator)

	withOpenAI := base
	withOpenAI.OpenAI = config.OpenAIConfig{APIKey: "sk-test", Model: "gpt-3.5-turbo", MaxTokens: 100}
	models, err = NewModels(ctx, &withOpenAI, nil)
	require.NoError(t, err)
	assert.IsType(t, &ai.OpenAIResponder{}, models.Generator)

	arkOnly := base
	arkOnly.Chat.Backend = config.BackendArk
	_, err = NewModels(ctx, &arkOnly, nil)
	require.Error(t, err)
}

func TestOptionalClients(t *testing.T) {
	search, err := NewSearch(config.SearchConfig{}, nil)
	require.NoError(t, err)
	assert.Nil(t, search)

	search, err = NewSearch(config.SearchConfig{APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, search)

	finder, err := NewPlaces(config.PlacesConfig{}, nil)
	require.NoError(t, err)
	assert.Nil(t, finder)
}
