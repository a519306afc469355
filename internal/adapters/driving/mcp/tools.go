package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
)

// CreateSessionInput is the input schema for the create_session tool.
type CreateSessionInput struct {
	ProjectName   string `json:"project_name" jsonschema:"human-readable project name"`
	MethodologyID string `json:"methodology_id" jsonschema:"methodology whose checklist the review follows, e.g. soil-carbon-v1"`
	DocumentsPath string `json:"documents_path" jsonschema:"directory holding the project documents"`
	ProjectID     string `json:"project_id,omitempty" jsonschema:"registry identifier of the project, if known"`
}

// SessionIDInput is the input schema for tools addressing one session.
type SessionIDInput struct {
	SessionID string `json:"session_id" jsonschema:"the review session id"`
}

// ListSessionsInput is the input schema for the list_sessions tool.
type ListSessionsInput struct{}

// ListSessionsOutput is the output schema for the list_sessions tool.
type ListSessionsOutput struct {
	Sessions []SessionSummaryOutput `json:"sessions"`
	Count    int                    `json:"count"`
}

// DeleteSessionOutput is the output schema for the delete_session tool.
type DeleteSessionOutput struct {
	SessionID string `json:"session_id"`
	Deleted   bool   `json:"deleted"`
}

// DiscoverOutput is the output schema for the discover_documents tool.
type DiscoverOutput struct {
	SessionID       string           `json:"session_id"`
	Documents       []DocumentOutput `json:"documents"`
	New             int              `json:"new"`
	Changed         int              `json:"changed"`
	Duplicates      int              `json:"duplicates"`
	Removed         int              `json:"removed"`
	Skipped         int              `json:"skipped"`
	EvidenceDropped int              `json:"evidence_dropped"`
}

// ExtractOutput is the output schema for the extract_all_evidence tool.
type ExtractOutput struct {
	SessionID     string                     `json:"session_id"`
	EvidenceCount int                        `json:"evidence_count"`
	ModelCalls    int                        `json:"model_calls"`
	CacheHits     int                        `json:"cache_hits"`
	FailedChunks  int                        `json:"failed_chunks"`
	Documents     []DocumentExtractionOutput `json:"documents"`
}

// EvidenceSummaryOutput is the output schema for the get_evidence_summary tool.
type EvidenceSummaryOutput struct {
	SessionID           string            `json:"session_id"`
	ProjectName         string            `json:"project_name"`
	Documents           int               `json:"documents"`
	DuplicateDocuments  int               `json:"duplicate_documents"`
	PendingDocuments    int               `json:"pending_documents"`
	EvidenceCount       int               `json:"evidence_count"`
	ByFieldType         map[string]int    `json:"by_field_type"`
	ByBackend           map[string]int    `json:"by_backend"`
	ByVerification      map[string]int    `json:"by_verification"`
	RequirementsTotal   int               `json:"requirements_total"`
	RequirementsCovered int               `json:"requirements_covered"`
	CoverageRatio       float64           `json:"coverage_ratio"`
	Cost                CostOutput        `json:"cost"`
	Stages              map[string]string `json:"stages"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "create_session",
		Description: "Start a registry review session for a project's documents. " +
			"Fails with the existing session id if another session already reviews the same directory.",
	}, s.handleCreateSession)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "load_session",
		Description: "Load a review session with its workflow stages and statistics",
	}, s.handleLoadSession)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_sessions",
		Description: "List review sessions, oldest first",
	}, s.handleListSessions)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "delete_session",
		Description: "Delete a review session and its stored state",
	}, s.handleDeleteSession)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "discover_documents",
		Description: "Index the session's documents directory: fingerprint, classify and " +
			"deduplicate every supported file, and complete the document_discovery stage",
	}, s.handleDiscoverDocuments)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "extract_all_evidence",
		Description: "Extract compliance evidence from every discovered document, verify each claim " +
			"against its source text, and complete the evidence_extraction stage",
	}, s.handleExtractAllEvidence)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_evidence_summary",
		Description: "Report evidence counts, requirement coverage and extraction cost for a session",
	}, s.handleGetEvidenceSummary)
}

func requireSessionID(input SessionIDInput) (string, error) {
	id := strings.TrimSpace(input.SessionID)
	if id == "" {
		return "", fmt.Errorf("%w: session_id is required", domain.ErrInvalidInput)
	}
	return id, nil
}

// handleCreateSession handles the create_session tool invocation.
func (s *Server) handleCreateSession(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input CreateSessionInput,
) (*mcp.CallToolResult, SessionOutput, error) {
	session, err := s.ports.Sessions.Create(ctx, domain.ProjectMetadata{
		Name:          input.ProjectName,
		MethodologyID: input.MethodologyID,
		DocumentsPath: input.DocumentsPath,
		ProjectID:     input.ProjectID,
	})
	if err != nil {
		return nil, SessionOutput{}, toolError("create_session", "", err)
	}
	return nil, toSessionOutput(session), nil
}

// handleLoadSession handles the load_session tool invocation.
func (s *Server) handleLoadSession(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SessionIDInput,
) (*mcp.CallToolResult, SessionOutput, error) {
	id, err := requireSessionID(input)
	if err != nil {
		return nil, SessionOutput{}, err
	}
	session, err := s.ports.Sessions.Load(ctx, id)
	if err != nil {
		return nil, SessionOutput{}, toolError("load_session", id, err)
	}
	return nil, toSessionOutput(session), nil
}

// handleListSessions handles the list_sessions tool invocation.
func (s *Server) handleListSessions(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ListSessionsInput,
) (*mcp.CallToolResult, ListSessionsOutput, error) {
	summaries, err := s.ports.Sessions.List(ctx)
	if err != nil {
		return nil, ListSessionsOutput{}, toolError("list_sessions", "", err)
	}

	output := ListSessionsOutput{
		Sessions: make([]SessionSummaryOutput, len(summaries)),
		Count:    len(summaries),
	}
	for i := range summaries {
		output.Sessions[i] = toSummaryOutput(summaries[i])
	}
	return nil, output, nil
}

// handleDeleteSession handles the delete_session tool invocation.
func (s *Server) handleDeleteSession(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SessionIDInput,
) (*mcp.CallToolResult, DeleteSessionOutput, error) {
	id, err := requireSessionID(input)
	if err != nil {
		return nil, DeleteSessionOutput{}, err
	}
	if err := s.ports.Sessions.Delete(ctx, id); err != nil {
		return nil, DeleteSessionOutput{}, toolError("delete_session", id, err)
	}
	return nil, DeleteSessionOutput{SessionID: id, Deleted: true}, nil
}

// handleDiscoverDocuments handles the discover_documents tool invocation.
func (s *Server) handleDiscoverDocuments(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SessionIDInput,
) (*mcp.CallToolResult, DiscoverOutput, error) {
	id, err := requireSessionID(input)
	if err != nil {
		return nil, DiscoverOutput{}, err
	}
	result, err := s.ports.Evidence.DiscoverDocuments(ctx, id)
	if err != nil {
		return nil, DiscoverOutput{}, toolError("discover_documents", id, err)
	}
	return nil, DiscoverOutput{
		SessionID:       result.SessionID,
		Documents:       toDocumentOutputs(result.Documents),
		New:             result.New,
		Changed:         result.Changed,
		Duplicates:      result.Duplicates,
		Removed:         result.Removed,
		Skipped:         result.Skipped,
		EvidenceDropped: result.EvidenceDropped,
	}, nil
}

// handleExtractAllEvidence handles the extract_all_evidence tool invocation.
func (s *Server) handleExtractAllEvidence(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SessionIDInput,
) (*mcp.CallToolResult, ExtractOutput, error) {
	id, err := requireSessionID(input)
	if err != nil {
		return nil, ExtractOutput{}, err
	}
	result, err := s.ports.Evidence.ExtractAllEvidence(ctx, id)
	if err != nil {
		return nil, ExtractOutput{}, toolError("extract_all_evidence", id, err)
	}
	return nil, ExtractOutput{
		SessionID:     result.SessionID,
		EvidenceCount: result.EvidenceCount,
		ModelCalls:    result.ModelCalls,
		CacheHits:     result.CacheHits,
		FailedChunks:  result.FailedChunks,
		Documents:     toExtractionOutputs(result.Documents),
	}, nil
}

// handleGetEvidenceSummary handles the get_evidence_summary tool invocation.
func (s *Server) handleGetEvidenceSummary(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SessionIDInput,
) (*mcp.CallToolResult, EvidenceSummaryOutput, error) {
	id, err := requireSessionID(input)
	if err != nil {
		return nil, EvidenceSummaryOutput{}, err
	}
	summary, err := s.ports.Evidence.GetEvidenceSummary(ctx, id)
	if err != nil {
		return nil, EvidenceSummaryOutput{}, toolError("get_evidence_summary", id, err)
	}
	return nil, summaryFromService(summary), nil
}
