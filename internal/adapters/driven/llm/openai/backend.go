// Package openai provides an extraction backend for OpenAI-compatible
// chat completion APIs.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
)

// Ensure Backend implements the interface.
var _ driven.ExtractionBackend = (*Backend)(nil)

// Default configuration values.
const (
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 60 * time.Second

	defaultMaxTokens = 4096
)

// Config holds configuration for the OpenAI backend.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL points at an OpenAI-compatible server (optional).
	// Local servers such as Ollama or vLLM expose one at <host>/v1.
	BaseURL string

	// Model is the model to use.
	Model string

	// Timeout is the default per-request timeout.
	Timeout time.Duration

	// HTTPClient overrides the transport. Intended for tests.
	HTTPClient *http.Client
}

// Backend calls the chat completions endpoint through go-openai.
type Backend struct {
	client     *openai.Client
	httpClient *http.Client
	model      string
	timeout    time.Duration
}

// New creates a new OpenAI backend.
func New(cfg Config) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	clientCfg.HTTPClient = httpClient

	return &Backend{
		client:     openai.NewClientWithConfig(clientCfg),
		httpClient: httpClient,
		model:      cfg.Model,
		timeout:    cfg.Timeout,
	}, nil
}

// Complete sends one chat completion. Failures are *domain.BackendError.
func (b *Backend) Complete(ctx context.Context, req driven.CompletionRequest) (*driven.Completion, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = b.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       b.model,
		Messages:    toMessages(req.SystemPrompt, req.Messages),
		MaxTokens:   maxTokens,
		Temperature: float32(req.Temperature),
	}

	resp, err := b.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return nil, &domain.BackendError{Kind: domain.BackendTransientServer, Message: "no choices in response"}
	}

	model := resp.Model
	if model == "" {
		model = b.model
	}
	return &driven.Completion{
		Text: resp.Choices[0].Message.Content,
		Usage: domain.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
		Model: model,
	}, nil
}

// toMessages converts chat messages. Messages with images use multi-part
// content with data URLs; plain messages use the text field.
func toMessages(system string, messages []driven.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		role := msg.Role
		if role == "" {
			role = openai.ChatMessageRoleUser
		}
		if len(msg.Images) == 0 {
			out = append(out, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
			continue
		}

		parts := make([]openai.ChatMessagePart, 0, len(msg.Images)+1)
		if msg.Content != "" {
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: msg.Content,
			})
		}
		for _, img := range msg.Images {
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURL(img),
					Detail: openai.ImageURLDetailAuto,
				},
			})
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, MultiContent: parts})
	}
	return out
}

func dataURL(img domain.Image) string {
	return "data:" + img.MediaType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// classify maps go-openai and transport errors to backend errors.
func classify(ctx context.Context, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &domain.BackendError{
			Kind:    domain.BackendKindForStatus(apiErr.HTTPStatusCode),
			Status:  apiErr.HTTPStatusCode,
			Message: apiErr.Message,
			Err:     err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &domain.BackendError{
			Kind:    domain.BackendKindForStatus(reqErr.HTTPStatusCode),
			Status:  reqErr.HTTPStatusCode,
			Message: strings.TrimSpace(string(reqErr.Body)),
			Err:     err,
		}
	}

	var netErr net.Error
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return &domain.BackendError{Kind: domain.BackendTimeout, Message: "request timed out", Err: err}
	case errors.Is(err, context.Canceled):
		return err
	case errors.As(err, &netErr) && netErr.Timeout():
		return &domain.BackendError{Kind: domain.BackendTimeout, Message: "network timeout", Err: err}
	default:
		return &domain.BackendError{Kind: domain.BackendTransientServer, Message: "send request", Err: err}
	}
}

// ModelName returns the name of the model being used.
func (b *Backend) ModelName() string {
	return b.model
}

// Ping validates the API key by listing models.
func (b *Backend) Ping(ctx context.Context) error {
	if _, err := b.client.ListModels(ctx); err != nil {
		return fmt.Errorf("openai: ping: %w", classify(ctx, err))
	}
	return nil
}

// Close releases resources.
func (b *Backend) Close() error {
	b.httpClient.CloseIdleConnections()
	return nil
}
