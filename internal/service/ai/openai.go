package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/helpyourself/companion/backend/internal/config"
	"github.com/helpyourself/companion/backend/internal/model/chat"
)

// OpenAIResponder answers chat turns through any OpenAI-compatible
// chat completion endpoint.
type OpenAIResponder struct {
	client       *openai.Client
	model        string
	maxTokens    int
	temperature  float32
	historyLimit int
	logger       *zap.Logger
}

// NewOpenAIResponder configures a client from cfg. A non-empty BaseURL
// points it at a compatible server.
func NewOpenAIResponder(cfg config.OpenAIConfig, historyLimit int, logger *zap.Logger) (*OpenAIResponder, error) {
	if !cfg.Enabled() {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIResponder{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		historyLimit: historyLimit,
		logger:       logger.Named("openai"),
	}, nil
}

// Reply answers one chat turn.
func (r *OpenAIResponder) Reply(ctx context.Context, req chat.ReplyRequest) (string, error) {
	system := req.SystemPrompt
	if system == "" {
		system = SystemPrompt(req.Category)
	}

	messages := make([]openai.ChatCompletionMessage, 0, r.historyLimit+2)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})

	history := req.History
	if len(history) > r.historyLimit {
		history = history[len(history)-r.historyLimit:]
	}
	for _, msg := range history {
		role := openai.ChatMessageRoleUser
		if msg.Role == chat.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Text})

	return r.complete(ctx, messages)
}

// Generate answers a single standalone prompt.
func (r *OpenAIResponder) Generate(ctx context.Context, text string) (string, error) {
	return r.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: text},
	})
}

// Describe turns an error from Reply into user-facing text.
func (r *OpenAIResponder) Describe(err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return describeStatus(apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return describeStatus(reqErr.HTTPStatusCode, reqErr.HTTPStatus)
	}
	return describeModelError(err)
}

func (r *OpenAIResponder) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		Messages:    messages,
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	})
	if err != nil {
		r.logger.Warn("chat completion failed", zap.Error(err))
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyReply
	}
	return content, nil
}

func describeStatus(code int, detail string) string {
	switch code {
	case 404:
		return "Error: Server endpoint not found. Please check server configuration."
	case 500:
		return "Error: Server error occurred. The server may be experiencing issues."
	default:
		return fmt.Sprintf("Error connecting to server: %s", detail)
	}
}
