package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
)

func newTestBackend(t *testing.T, handler http.HandlerFunc) *Backend {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	b, err := New(Config{APIKey: "test-key", BaseURL: server.URL, Model: "claude-test"})
	require.NoError(t, err)
	return b
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	b, err := New(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, b.ModelName())
	assert.Equal(t, DefaultBaseURL, b.baseURL)
	assert.Equal(t, DefaultTimeout, b.timeout)
}

func TestComplete_Success(t *testing.T) {
	var got messagesRequest
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "claude-test-20250101",
			"content": [{"type": "text", "text": "[{\"field\":"}, {"type": "text", "text": "\"owner\"}]"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 120, "output_tokens": 30}
		}`))
	})

	resp, err := b.Complete(context.Background(), driven.CompletionRequest{
		SystemPrompt: "extract evidence",
		Messages: []driven.ChatMessage{{
			Role:    "user",
			Content: "chunk text",
			Images:  []domain.Image{{MediaType: "image/png", Data: []byte{1, 2, 3}}},
		}},
		MaxTokens:   500,
		Temperature: 0.1,
	})
	require.NoError(t, err)

	assert.Equal(t, `[{"field":"owner"}]`, resp.Text)
	assert.Equal(t, 120, resp.Usage.InputTokens)
	assert.Equal(t, 30, resp.Usage.OutputTokens)
	assert.Equal(t, "claude-test-20250101", resp.Model)

	assert.Equal(t, "claude-test", got.Model)
	assert.Equal(t, "extract evidence", got.System)
	assert.Equal(t, 500, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	require.Len(t, got.Messages[0].Content, 2)
	assert.Equal(t, "image", got.Messages[0].Content[0].Type)
	assert.Equal(t, "AQID", got.Messages[0].Content[0].Source.Data)
	assert.Equal(t, "image/png", got.Messages[0].Content[0].Source.MediaType)
	assert.Equal(t, "text", got.Messages[0].Content[1].Type)
	assert.Equal(t, "chunk text", got.Messages[0].Content[1].Text)
}

func TestComplete_DefaultMaxTokens(t *testing.T) {
	var got messagesRequest
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	})

	resp, err := b.Complete(context.Background(), driven.CompletionRequest{
		Messages: []driven.ChatMessage{{Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, defaultMaxTokens, got.MaxTokens)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "claude-test", resp.Model)
}

func TestComplete_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   domain.BackendErrorKind
	}{
		{"rate limited", http.StatusTooManyRequests, domain.BackendRateLimited},
		{"unauthorised", http.StatusUnauthorized, domain.BackendAuthFailure},
		{"overloaded", 529, domain.BackendTransientServer},
		{"server error", http.StatusInternalServerError, domain.BackendTransientServer},
		{"bad request", http.StatusBadRequest, domain.BackendMalformedRequest},
		{"gateway timeout", http.StatusGatewayTimeout, domain.BackendTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"type":"error","error":{"type":"some_error","message":"nope"}}`))
			})

			_, err := b.Complete(context.Background(), driven.CompletionRequest{
				Messages: []driven.ChatMessage{{Content: "hi"}},
			})
			require.Error(t, err)

			var be *domain.BackendError
			require.True(t, errors.As(err, &be))
			assert.Equal(t, tt.want, be.Kind)
			assert.Equal(t, tt.status, be.Status)
			assert.Contains(t, be.Message, "nope")
		})
	}
}

func TestComplete_Timeout(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	_, err := b.Complete(context.Background(), driven.CompletionRequest{
		Messages: []driven.ChatMessage{{Content: "hi"}},
		Timeout:  50 * time.Millisecond,
	})
	require.Error(t, err)

	kind, ok := domain.BackendErrorKindOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.BackendTimeout, kind)
	assert.True(t, domain.IsTransientBackend(err))
}

func TestComplete_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	b, err := New(Config{APIKey: "k", BaseURL: url})
	require.NoError(t, err)

	_, err = b.Complete(context.Background(), driven.CompletionRequest{
		Messages: []driven.ChatMessage{{Content: "hi"}},
	})
	assert.True(t, domain.IsTransientBackend(err))
}

func TestPing(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/v1/models", r.URL.Path)
			_, _ = w.Write([]byte(`{"data":[]}`))
		})
		assert.NoError(t, b.Ping(context.Background()))
	})

	t.Run("bad key", func(t *testing.T) {
		b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		err := b.Ping(context.Background())
		require.Error(t, err)
		assert.True(t, domain.IsPermanentBackend(err))
	})
}

func TestClose(t *testing.T) {
	b, err := New(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.NoError(t, b.Close())
}
