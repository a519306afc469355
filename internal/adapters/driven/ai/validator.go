package ai

import (
	"context"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
)

// Ensure ConfigValidator implements the interface.
var _ driven.BackendValidator = (*ConfigValidator)(nil)

// ConfigValidator validates extraction backend configurations.
type ConfigValidator struct{}

// NewConfigValidator creates a new backend config validator.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{}
}

// ValidateBackend validates a backend configuration by pinging the provider.
func (v *ConfigValidator) ValidateBackend(ctx context.Context, extraction domain.ExtractionSettings, llm domain.LLMSettings) error {
	return ValidateBackendConfig(ctx, extraction, llm)
}
