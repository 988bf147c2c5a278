package ai_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpyourself/companion/backend/internal/config"
	"github.com/helpyourself/companion/backend/internal/model/chat"
	"github.com/helpyourself/companion/backend/internal/service/ai"
)

func TestOpenAIResponderReply(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Take a slow breath."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	responder, err := ai.NewOpenAIResponder(config.OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "gpt-test"}, 10, nil)
	require.NoError(t, err)

	out, err := responder.Reply(t.Context(), chat.ReplyRequest{
		Text:     "I feel overwhelmed",
		Category: chat.CategoryCrisis,
		History:  []chat.Message{{Role: chat.RoleAssistant, Content: "Hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Take a slow breath.", out)

	assert.Equal(t, "gpt-test", got.Model)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[1].Role)
	assert.Equal(t, "I feel overwhelmed", got.Messages[2].Content)
}

func TestOpenAIResponderDescribesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	responder, err := ai.NewOpenAIResponder(config.OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"}, 0, nil)
	require.NoError(t, err)

	_, err = responder.Generate(t.Context(), "hello")
	require.Error(t, err)
	assert.Equal(t, "Error: Server error occurred. The server may be experiencing issues.", responder.Describe(err))
}

func TestOpenAIResponderRequiresKey(t *testing.T) {
	_, err := ai.NewOpenAIResponder(config.OpenAIConfig{}, 0, nil)
	assert.Error(t, err)
}
