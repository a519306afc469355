package driven

import (
	"context"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
)

// ChecklistCatalog is the read-only requirement catalog.
type ChecklistCatalog interface {
	// Load returns the checklist for a methodology.
	// A missing or empty checklist is a *domain.MissingChecklistError.
	Load(ctx context.Context, methodologyID string) (*domain.Checklist, error)

	// Methodologies lists the available methodology ids.
	Methodologies(ctx context.Context) ([]string, error)
}
