package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
)

const (
	// uriScheme is the custom URI scheme for registry review resources.
	uriScheme = "registry://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Static resource for listing sessions.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "sessions",
		Name:        "sessions",
		Description: "List of all review sessions",
		MIMEType:    "application/json",
	}, s.handleSessionsResource)

	// Template for one session's state.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "sessions/{sessionId}",
		Name:        "session",
		Description: "Workflow stages and statistics of a review session",
		MIMEType:    "application/json",
	}, s.handleSessionResource)

	// Template for a session's evidence set.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "sessions/{sessionId}/evidence",
		Name:        "session-evidence",
		Description: "Verified evidence extracted for a review session",
		MIMEType:    "application/json",
	}, s.handleEvidenceResource)
}

// handleSessionsResource returns a list of all sessions.
func (s *Server) handleSessionsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	summaries, err := s.ports.Sessions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	infos := make([]SessionSummaryOutput, len(summaries))
	for i := range summaries {
		infos[i] = toSummaryOutput(summaries[i])
	}
	return jsonResource(req.Params.URI, infos)
}

// handleSessionResource returns one session without its evidence.
func (s *Server) handleSessionResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	// Extract sessionId from URI: registry://sessions/{sessionId}
	id := extractSessionID(req.Params.URI, "")
	if id == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	session, err := s.ports.Sessions.Load(ctx, id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return jsonResource(req.Params.URI, toSessionOutput(session))
}

// handleEvidenceResource returns a session's evidence set.
func (s *Server) handleEvidenceResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	// Extract sessionId from URI: registry://sessions/{sessionId}/evidence
	id := extractSessionID(req.Params.URI, "/evidence")
	if id == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	session, err := s.ports.Sessions.Load(ctx, id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return jsonResource(req.Params.URI, toFieldOutputs(session.Evidence))
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractSessionID extracts the session ID from a URI like
// registry://sessions/{sessionId}{suffix}. The id may not contain a slash.
func extractSessionID(uri, suffix string) string {
	const prefix = uriScheme + "sessions/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}
	uri = strings.TrimPrefix(uri, prefix)

	if suffix != "" {
		if !strings.HasSuffix(uri, suffix) {
			return ""
		}
		uri = strings.TrimSuffix(uri, suffix)
	}

	if strings.Contains(uri, "/") {
		return ""
	}
	return uri
}
