package memory

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
)

// Ensure SessionIndex implements the interface.
var _ driven.SessionIndex = (*SessionIndex)(nil)

// SessionIndex is an in-memory implementation of driven.SessionIndex.
type SessionIndex struct {
	mu       sync.RWMutex
	sessions map[string]domain.SessionSummary
}

// NewSessionIndex creates a new in-memory session index.
func NewSessionIndex() *SessionIndex {
	return &SessionIndex{sessions: make(map[string]domain.SessionSummary)}
}

// Claim inserts a new summary unless its path is already held.
func (i *SessionIndex) Claim(_ context.Context, summary domain.SessionSummary) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.conflict(summary); err != nil {
		return err
	}
	if _, ok := i.sessions[summary.ID]; ok {
		return fmt.Errorf("%w: session %s is already indexed", domain.ErrAlreadyExists, summary.ID)
	}
	i.sessions[summary.ID] = summary
	return nil
}

// Put inserts or replaces a summary.
func (i *SessionIndex) Put(_ context.Context, summary domain.SessionSummary) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.conflict(summary); err != nil {
		return err
	}
	i.sessions[summary.ID] = summary
	return nil
}

// conflict must be called with mu held.
func (i *SessionIndex) conflict(summary domain.SessionSummary) error {
	for id, s := range i.sessions {
		if id != summary.ID && s.DocumentsPath == summary.DocumentsPath {
			return &domain.DuplicateSessionError{ExistingID: id, Path: summary.DocumentsPath}
		}
	}
	return nil
}

// Remove deletes a summary.
func (i *SessionIndex) Remove(_ context.Context, id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.sessions, id)
	return nil
}

// FindByPath returns the session covering a documents path.
func (i *SessionIndex) FindByPath(_ context.Context, documentsPath string) (string, bool, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	for id, s := range i.sessions {
		if s.DocumentsPath == documentsPath {
			return id, true, nil
		}
	}
	return "", false, nil
}

// All iterates over a snapshot of the summaries, oldest first.
func (i *SessionIndex) All(_ context.Context) iter.Seq2[domain.SessionSummary, error] {
	i.mu.RLock()
	snapshot := make([]domain.SessionSummary, 0, len(i.sessions))
	for _, s := range i.sessions {
		snapshot = append(snapshot, s)
	}
	i.mu.RUnlock()

	sort.Slice(snapshot, func(a, b int) bool {
		if snapshot[a].CreatedAt.Equal(snapshot[b].CreatedAt) {
			return snapshot[a].ID < snapshot[b].ID
		}
		return snapshot[a].CreatedAt.Before(snapshot[b].CreatedAt)
	})

	return func(yield func(domain.SessionSummary, error) bool) {
		for _, s := range snapshot {
			if !yield(s, nil) {
				return
			}
		}
	}
}
