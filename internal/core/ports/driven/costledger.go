package driven

import (
	"context"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
)

// CostLedger records paid operations for later aggregation.
// Callers wrap it so write failures never reach business operations.
type CostLedger interface {
	// Record appends an entry.
	Record(ctx context.Context, entry domain.CostEntry) error

	// Summary aggregates entries for a session. An empty session id aggregates everything.
	Summary(ctx context.Context, sessionID string) (*domain.CostSummary, error)

	// Entries lists entries for a session, oldest first.
	Entries(ctx context.Context, sessionID string) ([]domain.CostEntry, error)
}
