package driving

import (
	"context"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
)

// SettingsService builds and edits the application configuration.
type SettingsService interface {
	// Get returns defaults overlaid with the config file and environment,
	// validated.
	Get() (*domain.Settings, error)

	// Set parses and persists one dotted key ("extraction.model").
	Set(key, value string) error

	// Keys lists the configurable keys with their current values.
	Keys() ([]SettingValue, error)

	// ValidateBackend pings the configured extraction backend.
	ValidateBackend(ctx context.Context) error
}

// SettingValue is one configurable key.
type SettingValue struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Source string `json:"source"` // default, file or env
}
