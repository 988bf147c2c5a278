package config_test

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpyourself/companion/backend/internal/config"
)

func TestDefaults(t *testing.T) {
	cfg, err := config.FromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, config.DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, config.BackendRemote, cfg.Chat.Backend)
	assert.Equal(t, 50*time.Millisecond, cfg.Chat.ReplayDelay)
	assert.Equal(t, 10, cfg.Chat.HistoryLimit)
	assert.Equal(t, "android_user", cfg.Chat.UserID)
	assert.Equal(t, 5*time.Minute, cfg.Search.CacheTTL)
	assert.Equal(t, 5000.0, cfg.Places.RadiusMeters)
	assert.Equal(t, config.DriverBolt, cfg.Cloud.Driver)
	assert.Nil(t, cfg.AI.Temperature)
	assert.False(t, cfg.AI.Enabled())
}

func TestOverrides(t *testing.T) {
	v := viper.New()
	v.Set("PORT", "127.0.0.1:9000")
	v.Set("CHAT_BACKEND", "OpenAI")
	v.Set("ARK_TEMPERATURE", "0.3")
	v.Set("ARK_MODEL", "ep-123")
	v.Set("ARK_API_KEY", "key")
	v.Set("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := config.FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, config.BackendOpenAI, cfg.Chat.Backend)
	require.NotNil(t, cfg.AI.Temperature)
	assert.InDelta(t, 0.3, *cfg.AI.Temperature, 1e-9)
	assert.True(t, cfg.AI.Enabled())
	assert.Len(t, cfg.Server.AllowedOrigins, 2)
}

func TestInvalidValuesNameTheKey(t *testing.T) {
	cases := map[string]string{
		"PORT":                 "80 80",
		"CHAT_BACKEND":         "carrier-pigeon",
		"CHAT_TIMEOUT":         "soon",
		"ARK_MAX_TOKENS":       "many",
		"STORAGE_DRIVER":       "floppy",
		"CLOUD_DRIVER":         "redis",
		"LOG_DEVELOPMENT":      "maybe",
		"PLACES_RADIUS_METERS": "far",
	}
	for key, value := range cases {
		v := viper.New()
		v.Set(key, value)
		_, err := config.FromViper(v)
		require.Error(t, err, key)
		assert.Contains(t, err.Error(), key)
	}
}
