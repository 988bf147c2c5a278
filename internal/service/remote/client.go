// Package remote is the client of the custom chat backend.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/helpyourself/companion/backend/internal/model/chat"
	"github.com/helpyourself/companion/backend/pkg/utils"
)

const (
	// DefaultReplayDelay spaces the words of a replayed reply.
	DefaultReplayDelay = 50 * time.Millisecond
	noResponseText     = "No response received"
	defaultSessionID   = "default-session"
)

// HTTPError is a non-2xx answer from the backend.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("chat backend returned %s", e.Status)
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	UserID      string
	Timeout     time.Duration
	ReplayDelay time.Duration
	HTTPClient  *http.Client
}

// Client posts chat turns to {base}/chat and {base}/chat/stream.
type Client struct {
	baseURL     string
	userID      string
	replayDelay time.Duration
	http        *http.Client
	logger      *zap.Logger
}

// New builds a Client. BaseURL must be absolute.
func New(opts Options, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid chat base url %q", opts.BaseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	delay := opts.ReplayDelay
	if delay < 0 {
		delay = DefaultReplayDelay
	}

	return &Client{
		baseURL:     strings.TrimRight(base.String(), "/"),
		userID:      opts.UserID,
		replayDelay: delay,
		http:        httpClient,
		logger:      logger.Named("remote"),
	}, nil
}

type chatRequest struct {
	Message   string         `json:"message"`
	ChatType  string         `json:"chat_type"`
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id"`
	Context   map[string]any `json:"context,omitempty"`
	Stream    bool           `json:"stream"`
}

type chatResponse struct {
	Response *string `json:"response"`
}

// Reply posts one turn to /chat and returns the reply text.
func (c *Client) Reply(ctx context.Context, req chat.ReplyRequest) (string, error) {
	return c.post(ctx, "/chat", c.buildRequest(req, false))
}

// Stream posts to /chat/stream and replays the reply word by word
// through emit. The full reply is returned.
func (c *Client) Stream(ctx context.Context, req chat.ReplyRequest, emit func(partial string) error) (string, error) {
	text, err := c.post(ctx, "/chat/stream", c.buildRequest(req, true))
	if err != nil {
		return "", err
	}
	if err := utils.Replay(ctx, text, c.replayDelay, emit); err != nil {
		return "", err
	}
	return text, nil
}

func (c *Client) buildRequest(req chat.ReplyRequest, stream bool) chatRequest {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = defaultSessionID
	}
	userID := req.UserID
	if userID == "" {
		userID = c.userID
	}
	category := req.Category
	if category == "" {
		category = chat.CategoryGeneral
	}

	out := chatRequest{
		Message:   req.Text,
		ChatType:  string(category),
		SessionID: sessionID,
		UserID:    userID,
		Stream:    stream,
	}
	if req.SystemPrompt != "" {
		out.Context = map[string]any{"system_prompt": req.SystemPrompt}
	}
	return out
}

func (c *Client) post(ctx context.Context, path string, body chatRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("chat backend error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("session_id", body.SessionID))
		return "", &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(raw)}
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("decode %s response: %w", path, err)
	}

	c.logger.Debug("chat backend replied",
		zap.String("path", path),
		zap.String("session_id", body.SessionID),
		zap.Duration("took", time.Since(start)))

	if decoded.Response == nil {
		return noResponseText, nil
	}
	return *decoded.Response, nil
}

// Describe maps an error from Reply or Stream to the text shown in place
// of a reply.
func (c *Client) Describe(err error) string {
	return Describe(err)
}

// Describe is the package-level form of Client.Describe.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusNotFound:
			return "Error: Server endpoint not found. Please check server configuration."
		case http.StatusInternalServerError:
			return "Error: Server error occurred. The server may be experiencing issues."
		default:
			return fmt.Sprintf("Error connecting to server: %s", httpErr.Status)
		}
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return "Network error: Could not connect to server. Please check your internet connection and server status."
	}
	return "Error: " + err.Error()
}

// IsErrorText reports whether a reply is one of the texts Describe
// produces rather than a real answer.
func IsErrorText(text string) bool {
	return strings.HasPrefix(text, "Error:") ||
		strings.HasPrefix(text, "Error connecting to server:") ||
		strings.HasPrefix(text, "Network error:")
}
