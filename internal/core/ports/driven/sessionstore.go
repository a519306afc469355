package driven

import (
	"context"
	"iter"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
)

// SessionStore persists one document per session.
// Update is a locked read-modify-write; concurrent Updates to one session
// never interleave, Updates to different sessions never wait on each other.
type SessionStore interface {
	// Create writes a new session. Returns domain.ErrAlreadyExists if the id is taken.
	Create(ctx context.Context, session *domain.Session) error

	// Load reads a session. Returns domain.ErrSessionNotFound if absent.
	Load(ctx context.Context, id string) (*domain.Session, error)

	// Update loads the session under its lock, applies fn, and writes the
	// result atomically. If fn returns an error nothing is written.
	Update(ctx context.Context, id string, fn func(*domain.Session) error) (*domain.Session, error)

	// Delete removes a session and its lock.
	Delete(ctx context.Context, id string) error

	// IDs lists every stored session id.
	IDs(ctx context.Context) ([]string, error)
}

// SessionIndex is the one shared session enumeration used by listing and
// duplicate detection.
type SessionIndex interface {
	// Claim inserts a new summary and so takes ownership of its documents
	// path. If another session already holds the path it returns a
	// *domain.DuplicateSessionError carrying that session's id. Claim is
	// atomic across every process sharing the index.
	Claim(ctx context.Context, summary domain.SessionSummary) error

	// Put inserts or replaces a summary. Like Claim it fails with a
	// *domain.DuplicateSessionError if another session holds the path.
	Put(ctx context.Context, summary domain.SessionSummary) error

	// Remove deletes a summary.
	Remove(ctx context.Context, id string) error

	// FindByPath returns the id of a session with the resolved documents path.
	FindByPath(ctx context.Context, documentsPath string) (string, bool, error)

	// All iterates over summaries ordered by creation time.
	All(ctx context.Context) iter.Seq2[domain.SessionSummary, error]
}
