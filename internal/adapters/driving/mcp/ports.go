package mcp

import (
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Sessions manages review sessions.
	Sessions driving.SessionService

	// Evidence runs discovery and extraction.
	Evidence driving.EvidenceService
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Sessions == nil {
		return ErrMissingSessionService
	}
	if p.Evidence == nil {
		return ErrMissingEvidenceService
	}
	return nil
}
