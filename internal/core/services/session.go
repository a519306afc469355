package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driving"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/logger"
)

// Ensure SessionService implements the interface.
var _ driving.SessionService = (*SessionService)(nil)

// claimGrace is how long Reconcile leaves an index row without a stored
// session alone.
const claimGrace = time.Minute

// SessionService is the review state machine. Every mutation is a locked
// read-modify-write of the whole session document through the store.
type SessionService struct {
	store    driven.SessionStore
	index    driven.SessionIndex
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
}

// SessionOption configures a SessionService.
type SessionOption func(*SessionService)

// WithSessionClock overrides the clock used for stage timestamps.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(newID func() string) SessionOption {
	return func(s *SessionService) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewSessionService creates a session service.
func NewSessionService(store driven.SessionStore, index driven.SessionIndex, opts ...SessionOption) *SessionService {
	s := &SessionService{
		store:    store,
		index:    index,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
		newID:    newSessionID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newSessionID() string {
	return "session-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Create starts a session with the initialize stage completed.
func (s *SessionService) Create(ctx context.Context, project domain.ProjectMetadata) (*domain.Session, error) {
	project.Name = strings.TrimSpace(project.Name)
	project.MethodologyID = strings.TrimSpace(project.MethodologyID)
	if err := s.validate.Struct(project); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, describeValidation(err))
	}

	resolved, err := ResolveDocumentsPath(project.DocumentsPath)
	if err != nil {
		return nil, err
	}
	project.DocumentsPath = resolved

	session := domain.NewSession(s.newID(), project, s.now().UTC())

	// The index claim decides which of several concurrent creators owns
	// the path; only the winner writes a session document.
	if err := s.index.Claim(ctx, session.Summary()); err != nil {
		if _, ok := domain.IsDuplicateSession(err); ok {
			return nil, err
		}
		return nil, fmt.Errorf("index session %s: %w", session.ID, err)
	}
	if err := s.store.Create(ctx, session); err != nil {
		if rerr := s.index.Remove(ctx, session.ID); rerr != nil {
			logger.Warn("releasing path claim of session %s: %v", session.ID, rerr)
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	logger.Info("created session %s for %s", session.ID, resolved)
	return session, nil
}

// Load returns a session by id.
func (s *SessionService) Load(ctx context.Context, id string) (*domain.Session, error) {
	session, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Delete removes a session and its index row.
func (s *SessionService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.index.Remove(ctx, id); err != nil {
		return fmt.Errorf("unindex session %s: %w", id, err)
	}
	logger.Info("deleted session %s", id)
	return nil
}

// List returns session summaries, oldest first.
func (s *SessionService) List(ctx context.Context) ([]domain.SessionSummary, error) {
	summaries := []domain.SessionSummary{}
	for summary, err := range s.index.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// AdvanceStage moves a stage forward.
func (s *SessionService) AdvanceStage(ctx context.Context, id string, stage domain.WorkflowStage, status domain.StageStatus) (*domain.Session, error) {
	return s.update(ctx, id, func(session *domain.Session, now time.Time) error {
		return session.SetStage(stage, status, now)
	})
}

// ResetStage returns a stage to pending.
func (s *SessionService) ResetStage(ctx context.Context, id string, stage domain.WorkflowStage) (*domain.Session, error) {
	return s.update(ctx, id, func(session *domain.Session, now time.Time) error {
		return session.ResetStage(stage, now)
	})
}

// MergeEvidence adds fields to the evidence set.
func (s *SessionService) MergeEvidence(ctx context.Context, id string, fields []domain.ExtractedField) (*domain.Session, error) {
	return s.update(ctx, id, func(session *domain.Session, _ time.Time) error {
		MergeEvidence(session, fields)
		return nil
	})
}

// UpdateStatistics applies fn to the session's counters.
func (s *SessionService) UpdateStatistics(ctx context.Context, id string, fn func(*domain.SessionStatistics)) (*domain.Session, error) {
	return s.update(ctx, id, func(session *domain.Session, _ time.Time) error {
		fn(&session.Statistics)
		return nil
	})
}

// Reconcile rebuilds the index from the store: every stored session gets a
// row and rows without a stored session are removed once they are older
// than claimGrace. It returns the number of indexed sessions.
func (s *SessionService) Reconcile(ctx context.Context) (int, error) {
	ids, err := s.store.IDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stored sessions: %w", err)
	}

	stored := make(map[string]bool, len(ids))
	for _, id := range ids {
		session, err := s.store.Load(ctx, id)
		if err != nil {
			logger.Warn("skipping unreadable session %s: %v", id, err)
			continue
		}
		if err := s.index.Put(ctx, session.Summary()); err != nil {
			if dup, ok := domain.IsDuplicateSession(err); ok {
				logger.Warn("session %s shares %s with %s; leaving it unindexed", id, dup.Path, dup.ExistingID)
				continue
			}
			return 0, fmt.Errorf("index session %s: %w", id, err)
		}
		stored[id] = true
	}

	// rows younger than claimGrace may belong to a Create still writing
	// its session document in another process
	cutoff := s.now().UTC().Add(-claimGrace)
	var stale []string
	for summary, err := range s.index.All(ctx) {
		if err != nil {
			return 0, fmt.Errorf("list indexed sessions: %w", err)
		}
		if !stored[summary.ID] && summary.CreatedAt.Before(cutoff) {
			stale = append(stale, summary.ID)
		}
	}
	for _, id := range stale {
		if err := s.index.Remove(ctx, id); err != nil {
			return 0, fmt.Errorf("unindex session %s: %w", id, err)
		}
	}

	if len(stale) > 0 {
		logger.Info("removed %d stale session index entries", len(stale))
	}
	return len(stored), nil
}

// update runs fn under the session lock, stamps UpdatedAt and refreshes the
// index row.
func (s *SessionService) update(ctx context.Context, id string, fn func(*domain.Session, time.Time) error) (*domain.Session, error) {
	now := s.now().UTC()
	session, err := s.store.Update(ctx, id, func(session *domain.Session) error {
		if err := fn(session, now); err != nil {
			return err
		}
		session.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.index.Put(ctx, session.Summary()); err != nil {
		logger.Warn("refreshing index for session %s: %v", id, err)
	}
	return session, nil
}

// MergeEvidence folds fields into the session's evidence set, deduplicating
// by field type and normalized value, and refreshes the evidence count.
func MergeEvidence(session *domain.Session, fields []domain.ExtractedField) {
	merged := make([]domain.ExtractedField, 0, len(session.Evidence)+len(fields))
	merged = append(merged, session.Evidence...)
	merged = append(merged, fields...)
	session.Evidence = domain.DedupFields(merged)
	session.Statistics.EvidenceCount = len(session.Evidence)
}

// ResolveDocumentsPath returns the absolute, symlink-free form of path.
// The path must be an existing directory. A leading ~ is expanded.
func ResolveDocumentsPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: empty documents path", domain.ErrInvalidInput)
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand documents path: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve documents path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: documents path %s does not exist", domain.ErrInvalidInput, abs)
		}
		return "", fmt.Errorf("resolve documents path: %w", err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("stat documents path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: documents path %s is not a directory", domain.ErrInvalidInput, resolved)
	}
	return resolved, nil
}

// describeValidation turns validator errors into "Name is required" phrases.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}
