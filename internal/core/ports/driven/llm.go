// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import (
	"context"
	"time"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
)

// ExtractionBackend is a language model used to extract evidence.
// This is an optional service - when nil, extraction falls back to pattern matching.
//
// Failures must be returned as *domain.BackendError so the retry policy can
// decide whether to try again. Context deadlines are treated as timeouts.
type ExtractionBackend interface {
	// Complete sends one request and returns the model's text and token usage.
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)

	// ModelName returns the name of the model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// CompletionRequest is a single model request.
type CompletionRequest struct {
	// SystemPrompt sets the model's instructions.
	SystemPrompt string

	// Messages is the conversation, normally a single user turn.
	Messages []ChatMessage

	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64

	// Timeout bounds the call. Zero means the adapter default.
	Timeout time.Duration
}

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	// Role is "user" or "assistant".
	Role string

	// Content is the message text.
	Content string

	// Images are sent alongside the text for multimodal models.
	Images []domain.Image
}

// Completion is the model's reply.
type Completion struct {
	Text  string
	Usage domain.TokenUsage
	Model string
}

// BackendValidator checks that a backend configuration can reach its provider.
type BackendValidator interface {
	// ValidateBackend creates the configured backend and pings it.
	// Pattern-only or disabled configurations are valid.
	ValidateBackend(ctx context.Context, extraction domain.ExtractionSettings, llm domain.LLMSettings) error
}
