// Package ai provides factory functions for creating extraction backends.
package ai

import (
	"context"
	"fmt"
	"time"

	anthropicllm "github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/adapters/driven/llm/anthropic"
	openaillm "github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/adapters/driven/llm/openai"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/logger"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// InitResult contains the result of backend initialisation.
type InitResult struct {
	Backend  driven.ExtractionBackend // Nil when extraction runs on patterns only.
	Warnings []string                 // Non-fatal issues that caused fallback.
	FellBack bool                     // True if a configured backend could not be used.
}

// Close releases all resources held by InitResult.
func (r *InitResult) Close() {
	if r.Backend != nil {
		_ = r.Backend.Close()
	}
}

// Initialise creates the configured backend and pings it. Any failure falls
// back to pattern extraction with a warning rather than failing the command.
func Initialise(ctx context.Context, extraction domain.ExtractionSettings, llm domain.LLMSettings) *InitResult {
	result := &InitResult{}

	backend, err := CreateAndValidateBackend(ctx, extraction, llm)
	if err != nil {
		logger.Warn("%s", err.Error())
		result.Warnings = append(result.Warnings, err.Error())
		result.FellBack = true
		return result
	}
	result.Backend = backend
	return result
}

// CreateAndValidateBackend creates a backend and validates connectivity.
// Returns nil without error when extraction is disabled or pattern-only.
func CreateAndValidateBackend(ctx context.Context, extraction domain.ExtractionSettings, llm domain.LLMSettings) (driven.ExtractionBackend, error) {
	backend, err := CreateBackend(extraction, llm)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. Set the API key or run with backend = \"pattern\"",
			domain.ErrLLMUnavailable, err)
	}
	if backend == nil {
		return nil, nil
	}

	// Validate connectivity.
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := backend.Ping(ctx); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("%w: %s unreachable (%w)",
			domain.ErrLLMUnavailable, extraction.Provider, err)
	}

	return backend, nil
}

// ValidateBackendConfig creates a backend and pings it, then closes it.
// Pattern-only configurations are always valid.
func ValidateBackendConfig(ctx context.Context, extraction domain.ExtractionSettings, llm domain.LLMSettings) error {
	backend, err := CreateBackend(extraction, llm)
	if err != nil {
		return err
	}
	if backend == nil {
		return nil
	}
	defer backend.Close()

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return backend.Ping(ctx)
}

// CreateBackend creates the backend named by the extraction settings.
// Returns nil if the model path is disabled or the provider is pattern.
func CreateBackend(extraction domain.ExtractionSettings, llm domain.LLMSettings) (driven.ExtractionBackend, error) {
	if !extraction.Enabled {
		return nil, nil
	}

	switch extraction.Provider {
	case domain.AIProviderPattern, "":
		return nil, nil

	case domain.AIProviderAnthropic:
		return createAnthropic(extraction, llm)

	case domain.AIProviderOpenAI:
		return createOpenAI(extraction, llm)

	default:
		return nil, fmt.Errorf("unsupported extraction backend: %s", extraction.Provider)
	}
}

// createAnthropic creates an Anthropic backend.
func createAnthropic(extraction domain.ExtractionSettings, llm domain.LLMSettings) (driven.ExtractionBackend, error) {
	backend, err := anthropicllm.New(anthropicllm.Config{
		APIKey:  llm.AnthropicAPIKey,
		BaseURL: llm.AnthropicBaseURL,
		Model:   extraction.Model,
		Timeout: extraction.CallTimeout,
	})
	if err != nil {
		return nil, err
	}
	return backend, nil
}

// createOpenAI creates an OpenAI backend.
func createOpenAI(extraction domain.ExtractionSettings, llm domain.LLMSettings) (driven.ExtractionBackend, error) {
	backend, err := openaillm.New(openaillm.Config{
		APIKey:  llm.OpenAIAPIKey,
		BaseURL: llm.OpenAIBaseURL,
		Model:   extraction.Model,
		Timeout: extraction.CallTimeout,
	})
	if err != nil {
		return nil, err
	}
	return backend, nil
}
