// Package ai talks to generative language models for chat replies and
// personalised reviews.
package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/helpyourself/companion/backend/internal/config"
	"github.com/helpyourself/companion/backend/internal/model/chat"
)

// DefaultHistoryLimit caps the number of earlier turns sent to the model.
const DefaultHistoryLimit = 10

// ErrEmptyReply is returned when the model answers with no text.
var ErrEmptyReply = errors.New("model returned an empty reply")

// Generator answers standalone prompts. Service and OpenAIResponder
// implement it.
type Generator interface {
	Generate(ctx context.Context, text string) (string, error)
}

// Service runs the prompt chain against an Ark chat model.
type Service struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	historyLimit int
	logger       *zap.Logger
}

// NewService builds the Ark model from cfg and compiles the chain.
func NewService(ctx context.Context, cfg config.AIConfig, historyLimit int, logger *zap.Logger) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel, historyLimit, logger)
}

// NewServiceWithModel compiles the chain around an existing model.
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, historyLimit int, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{chain: runnable, historyLimit: historyLimit, logger: logger.Named("ai")}, nil
}

// Reply answers one chat turn.
func (s *Service) Reply(ctx context.Context, req chat.ReplyRequest) (string, error) {
	out, err := s.invoke(ctx, s.chainInput(req))
	if err != nil {
		return "", err
	}
	s.logger.Debug("generated reply",
		zap.String("session_id", req.SessionID),
		zap.String("category", string(req.Category)),
		zap.Int("length", len(out)))
	return out, nil
}

// Stream answers one chat turn through the model's streaming API. emit
// receives the reply accumulated so far after every non-empty chunk.
func (s *Service) Stream(ctx context.Context, req chat.ReplyRequest, emit func(partial string) error) (string, error) {
	stream, err := s.chain.Stream(ctx, s.chainInput(req))
	if err != nil {
		return "", fmt.Errorf("failed to stream AI chain output: %w", err)
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)
	var partial strings.Builder
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", fmt.Errorf("failed to read AI stream: %w", recvErr)
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content == "" {
			continue
		}
		partial.WriteString(chunk.Content)
		if trimmed := strings.TrimSpace(partial.String()); trimmed != "" {
			if err := emit(trimmed); err != nil {
				return "", err
			}
		}
	}
	if len(chunks) == 0 {
		return "", ErrEmptyReply
	}

	response, err := schema.ConcatMessages(chunks)
	if err != nil {
		return "", fmt.Errorf("failed to join AI stream: %w", err)
	}
	content := strings.TrimSpace(response.Content)
	if content == "" {
		return "", ErrEmptyReply
	}
	s.logger.Debug("streamed reply",
		zap.String("session_id", req.SessionID),
		zap.Int("chunks", len(chunks)),
		zap.Int("length", len(content)))
	return content, nil
}

// Generate answers a single standalone prompt.
func (s *Service) Generate(ctx context.Context, text string) (string, error) {
	return s.invoke(ctx, map[string]any{
		"system":  "You are a supportive mental health assistant.",
		"history": []*schema.Message(nil),
		"query":   text,
	})
}

// Describe turns an error from Reply into user-facing text.
func (s *Service) Describe(err error) string {
	return describeModelError(err)
}

func (s *Service) chainInput(req chat.ReplyRequest) map[string]any {
	system := req.SystemPrompt
	if system == "" {
		system = SystemPrompt(req.Category)
	}
	return map[string]any{
		"system":  system,
		"history": buildHistory(req.History, s.historyLimit),
		"query":   req.Text,
	}
}

func (s *Service) invoke(ctx context.Context, input map[string]any) (string, error) {
	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	content := strings.TrimSpace(response.Content)
	if content == "" {
		return "", ErrEmptyReply
	}
	return content, nil
}

func buildHistory(messages []chat.Message, limit int) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if limit > 0 && len(messages) > limit {
		startIdx = len(messages) - limit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}

func describeModelError(err error) string {
	if err == nil {
		return ""
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return "Network error: Could not connect to server. Please check your internet connection and server status."
	}
	return "Error: " + err.Error()
}
