package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/spf13/viper"
)

// Config aggregates every setting of the service.
type Config struct {
	Server  ServerConfig
	Log     LogConfig
	Storage StorageConfig
	Chat    ChatConfig
	AI      AIConfig
	OpenAI  OpenAIConfig
	Search  SearchConfig
	Places  PlacesConfig
	Cloud   CloudConfig
}

// Chat backends.
const (
	BackendRemote = "remote"
	BackendArk    = "ark"
	BackendOpenAI = "openai"
)

// Storage and cloud drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverBolt     = "bolt"
	DriverNone     = "none"
)

// Load resolves configuration from the environment and, when CONFIG_FILE
// names one, a config file.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	if path := strings.TrimSpace(v.GetString("CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	server, err := loadServerConfig(v)
	if err != nil {
		return nil, err
	}
	logCfg, err := loadLogConfig(v)
	if err != nil {
		return nil, err
	}
	storage, err := loadStorageConfig(v)
	if err != nil {
		return nil, err
	}
	chat, err := loadChatConfig(v)
	if err != nil {
		return nil, err
	}
	ai, err := loadAIConfig(v)
	if err != nil {
		return nil, err
	}
	openai, err := loadOpenAIConfig(v)
	if err != nil {
		return nil, err
	}
	search, err := loadSearchConfig(v)
	if err != nil {
		return nil, err
	}
	places, err := loadPlacesConfig(v)
	if err != nil {
		return nil, err
	}
	cloud, err := loadCloudConfig(v)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		Log:     logCfg,
		Storage: storage,
		Chat:    chat,
		AI:      ai,
		OpenAI:  openai,
		Search:  search,
		Places:  places,
		Cloud:   cloud,
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DEVELOPMENT", false)
	v.SetDefault("STORAGE_DRIVER", DriverSQLite)
	v.SetDefault("SQLITE_PATH", "data/companion.db")
	v.SetDefault("CHAT_BACKEND", BackendRemote)
	v.SetDefault("CHAT_BASE_URL", "http://localhost:5002/")
	v.SetDefault("CHAT_USER_ID", "android_user")
	v.SetDefault("CHAT_TIMEOUT", "60s")
	v.SetDefault("CHAT_REPLAY_DELAY", "50ms")
	v.SetDefault("CHAT_HISTORY_LIMIT", 10)
	v.SetDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3")
	v.SetDefault("ARK_REGION", "cn-beijing")
	v.SetDefault("OPENAI_MODEL", "gpt-3.5-turbo")
	v.SetDefault("OPENAI_MAX_TOKENS", 512)
	v.SetDefault("OPENAI_TEMPERATURE", 0.7)
	v.SetDefault("TAVILY_BASE_URL", "https://api.tavily.com")
	v.SetDefault("TAVILY_CACHE_TTL", "5m")
	v.SetDefault("PLACES_BASE_URL", "https://places.googleapis.com/v1")
	v.SetDefault("PLACES_RADIUS_METERS", 5000)
	v.SetDefault("CLOUD_DRIVER", DriverBolt)
	v.SetDefault("BOLT_PATH", "data/cloud.db")
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

func loadServerConfig(v *viper.Viper) (ServerConfig, error) {
	port := strings.TrimSpace(v.GetString("PORT"))
	origins := splitList(v.GetString("CORS_ALLOWED_ORIGINS"))

	if strings.Contains(port, ":") {
		// ":8080" and "127.0.0.1:8080" are taken as-is
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}
	if _, err := strconv.Atoi(port); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}
	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// LogConfig selects the logger flavour.
type LogConfig struct {
	Level       string
	Development bool
}

func loadLogConfig(v *viper.Viper) (LogConfig, error) {
	dev, err := parseBool(v, "LOG_DEVELOPMENT")
	if err != nil {
		return LogConfig{}, err
	}
	return LogConfig{Level: strings.TrimSpace(v.GetString("LOG_LEVEL")), Development: dev}, nil
}

// StorageConfig picks the local store.
type StorageConfig struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
	Debug       bool
}

func loadStorageConfig(v *viper.Viper) (StorageConfig, error) {
	driver := strings.ToLower(strings.TrimSpace(v.GetString("STORAGE_DRIVER")))
	dsn := strings.TrimSpace(v.GetString("DATABASE_URL"))
	switch driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if dsn == "" {
			return StorageConfig{}, errors.New("STORAGE_DRIVER=postgres requires DATABASE_URL")
		}
	default:
		return StorageConfig{}, fmt.Errorf("invalid STORAGE_DRIVER value: %q", driver)
	}
	debug, err := parseBool(v, "STORAGE_DEBUG")
	if err != nil {
		return StorageConfig{}, err
	}
	return StorageConfig{
		Driver:      driver,
		SQLitePath:  strings.TrimSpace(v.GetString("SQLITE_PATH")),
		PostgresDSN: dsn,
		Debug:       debug,
	}, nil
}

// ChatConfig selects and tunes the chat responder.
type ChatConfig struct {
	Backend      string
	BaseURL      string
	UserID       string
	Timeout      time.Duration
	ReplayDelay  time.Duration
	HistoryLimit int
}

func loadChatConfig(v *viper.Viper) (ChatConfig, error) {
	backend := strings.ToLower(strings.TrimSpace(v.GetString("CHAT_BACKEND")))
	switch backend {
	case BackendRemote, BackendArk, BackendOpenAI:
	default:
		return ChatConfig{}, fmt.Errorf("invalid CHAT_BACKEND value: %q", backend)
	}

	timeout, err := parseDuration(v, "CHAT_TIMEOUT")
	if err != nil {
		return ChatConfig{}, err
	}
	delay, err := parseDuration(v, "CHAT_REPLAY_DELAY")
	if err != nil {
		return ChatConfig{}, err
	}
	limit, err := parseInt(v, "CHAT_HISTORY_LIMIT")
	if err != nil {
		return ChatConfig{}, err
	}
	if limit < 0 {
		limit = 0
	}

	return ChatConfig{
		Backend:      backend,
		BaseURL:      strings.TrimSpace(v.GetString("CHAT_BASE_URL")),
		UserID:       strings.TrimSpace(v.GetString("CHAT_USER_ID")),
		Timeout:      timeout,
		ReplayDelay:  delay,
		HistoryLimit: limit,
	}, nil
}

// AIConfig holds the Ark model settings.
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled reports whether enough credentials were provided.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel creates an Ark chat model from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, errors.New("ark credentials or model missing: set ARK_API_KEY and ARK_MODEL, or ARK_ACCESS_KEY/ARK_SECRET_KEY")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig(v *viper.Viper) (AIConfig, error) {
	temperature, err := parseOptionalFloat(v, "ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	topP, err := parseOptionalFloat(v, "ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}
	maxTokens, err := parseOptionalInt(v, "ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(v.GetString("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(v.GetString("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(v.GetString("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(v.GetString("ARK_MODEL")),
		BaseURL:     strings.TrimSpace(v.GetString("ARK_BASE_URL")),
		Region:      strings.TrimSpace(v.GetString("ARK_REGION")),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// OpenAIConfig targets any OpenAI-compatible chat completion endpoint.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
}

// Enabled reports whether an API key is set.
func (c OpenAIConfig) Enabled() bool { return c.APIKey != "" }

func loadOpenAIConfig(v *viper.Viper) (OpenAIConfig, error) {
	maxTokens, err := parseInt(v, "OPENAI_MAX_TOKENS")
	if err != nil {
		return OpenAIConfig{}, err
	}
	temperature, err := parseFloat(v, "OPENAI_TEMPERATURE")
	if err != nil {
		return OpenAIConfig{}, err
	}
	return OpenAIConfig{
		APIKey:      strings.TrimSpace(v.GetString("OPENAI_API_KEY")),
		BaseURL:     strings.TrimSpace(v.GetString("OPENAI_BASE_URL")),
		Model:       strings.TrimSpace(v.GetString("OPENAI_MODEL")),
		MaxTokens:   maxTokens,
		Temperature: float32(temperature),
	}, nil
}

// SearchConfig configures the Tavily search client.
type SearchConfig struct {
	APIKey   string
	BaseURL  string
	CacheTTL time.Duration
}

func loadSearchConfig(v *viper.Viper) (SearchConfig, error) {
	ttl, err := parseDuration(v, "TAVILY_CACHE_TTL")
	if err != nil {
		return SearchConfig{}, err
	}
	return SearchConfig{
		APIKey:   strings.TrimSpace(v.GetString("TAVILY_API_KEY")),
		BaseURL:  strings.TrimSpace(v.GetString("TAVILY_BASE_URL")),
		CacheTTL: ttl,
	}, nil
}

// PlacesConfig configures the places lookup.
type PlacesConfig struct {
	APIKey       string
	BaseURL      string
	RadiusMeters float64
}

func loadPlacesConfig(v *viper.Viper) (PlacesConfig, error) {
	radius, err := parseFloat(v, "PLACES_RADIUS_METERS")
	if err != nil {
		return PlacesConfig{}, err
	}
	return PlacesConfig{
		APIKey:       strings.TrimSpace(v.GetString("PLACES_API_KEY")),
		BaseURL:      strings.TrimSpace(v.GetString("PLACES_BASE_URL")),
		RadiusMeters: radius,
	}, nil
}

// CloudConfig picks the realtime metrics store.
type CloudConfig struct {
	Driver   string
	RedisURL string
	BoltPath string
}

func loadCloudConfig(v *viper.Viper) (CloudConfig, error) {
	driver := strings.ToLower(strings.TrimSpace(v.GetString("CLOUD_DRIVER")))
	redisURL := strings.TrimSpace(v.GetString("REDIS_URL"))
	switch driver {
	case DriverBolt, DriverNone:
	case DriverRedis:
		if redisURL == "" {
			return CloudConfig{}, errors.New("CLOUD_DRIVER=redis requires REDIS_URL")
		}
	default:
		return CloudConfig{}, fmt.Errorf("invalid CLOUD_DRIVER value: %q", driver)
	}
	return CloudConfig{
		Driver:   driver,
		RedisURL: redisURL,
		BoltPath: strings.TrimSpace(v.GetString("BOLT_PATH")),
	}, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(v *viper.Viper, key string) (bool, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return false, nil
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseInt(v *viper.Viper, key string) (int, error) {
	raw := strings.TrimSpace(v.GetString(key))
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseFloat(v *viper.Viper, key string) (float64, error) {
	raw := strings.TrimSpace(v.GetString(key))
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloat(v *viper.Viper, key string) (*float64, error) {
	if strings.TrimSpace(v.GetString(key)) == "" {
		return nil, nil
	}
	val, err := parseFloat(v, key)
	if err != nil {
		return nil, err
	}
	return &val, nil
}

func parseOptionalInt(v *viper.Viper, key string) (*int, error) {
	if strings.TrimSpace(v.GetString(key)) == "" {
		return nil, nil
	}
	val, err := parseInt(v, key)
	if err != nil {
		return nil, err
	}
	return &val, nil
}
