// Package mcp provides an MCP (Model Context Protocol) server adapter for
// registry review. It exposes session management and evidence extraction as
// tools an AI assistant can drive.
package mcp

import (
	"errors"
	"fmt"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
)

var (
	// ErrMissingSessionService is returned when the session service is not provided.
	ErrMissingSessionService = errors.New("mcp: session service is required")

	// ErrMissingEvidenceService is returned when the evidence service is not provided.
	ErrMissingEvidenceService = errors.New("mcp: evidence service is required")
)

// toolError wraps a service failure with a message the operator can act on.
// The original error stays in the chain.
func toolError(op, sessionID string, err error) error {
	if dup, ok := domain.IsDuplicateSession(err); ok {
		return fmt.Errorf("%s: session %s already reviews %s; load it instead: %w",
			op, dup.ExistingID, dup.Path, err)
	}
	switch {
	case domain.IsMissingChecklist(err):
		return fmt.Errorf("%s: session %s: %w; install a checklist for the methodology and retry", op, sessionID, err)
	case errors.Is(err, domain.ErrDiscoveryRequired):
		return fmt.Errorf("%s: session %s: %w; run discover_documents first", op, sessionID, err)
	case domain.IsLockContention(err):
		return fmt.Errorf("%s: session %s: %w; retry when the other writer finishes", op, sessionID, err)
	case sessionID != "":
		return fmt.Errorf("%s: session %s: %w", op, sessionID, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
