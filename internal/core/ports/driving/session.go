package driving

import (
	"context"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
)

// SessionService manages review sessions.
type SessionService interface {
	// Create starts a session. The initialize stage is completed by the same
	// write that creates the session. Returns *domain.DuplicateSessionError if a
	// session already points at the same resolved documents path.
	Create(ctx context.Context, project domain.ProjectMetadata) (*domain.Session, error)

	// Load returns a session by id.
	Load(ctx context.Context, id string) (*domain.Session, error)

	// Delete removes a session. Only explicit operator action deletes sessions.
	Delete(ctx context.Context, id string) error

	// List returns session summaries, oldest first.
	List(ctx context.Context) ([]domain.SessionSummary, error)

	// AdvanceStage moves a stage forward. Completed stages never move backwards.
	AdvanceStage(ctx context.Context, id string, stage domain.WorkflowStage, status domain.StageStatus) (*domain.Session, error)

	// ResetStage explicitly returns a stage to pending.
	ResetStage(ctx context.Context, id string, stage domain.WorkflowStage) (*domain.Session, error)

	// MergeEvidence adds fields to the evidence set, deduplicating by
	// (field type, normalized value). Rejected fields are dropped.
	MergeEvidence(ctx context.Context, id string, fields []domain.ExtractedField) (*domain.Session, error)

	// UpdateStatistics applies fn to the session's counters under the session lock.
	UpdateStatistics(ctx context.Context, id string, fn func(*domain.SessionStatistics)) (*domain.Session, error)

	// Reconcile rebuilds the session index from the session store.
	Reconcile(ctx context.Context) (int, error)
}
