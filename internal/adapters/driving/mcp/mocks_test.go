package mcp

import (
	"context"
	"time"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driving"
)

var testTime = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

func testSession() *domain.Session {
	s := domain.NewSession("session-abc", domain.ProjectMetadata{
		Name:          "Ranch Soil Carbon",
		MethodologyID: "soil-carbon-v1",
		DocumentsPath: "/projects/ranch",
	}, testTime)
	s.Evidence = []domain.ExtractedField{{
		FieldType:      domain.FieldProjectID,
		Value:          "C06-4997",
		Confidence:     0.9,
		SourceDocument: "plan.md",
		Citation:       domain.Citation{Page: 2, Section: "Overview", Excerpt: "Project ID: C06-4997"},
		Verification:   domain.VerificationVerified,
		Backend:        domain.BackendLLM,
	}}
	s.Statistics.EvidenceCount = 1
	return s
}

// mockSessionService is a mock implementation of driving.SessionService.
type mockSessionService struct {
	session   *domain.Session
	summaries []domain.SessionSummary
	created   domain.ProjectMetadata
	deleted   string
	err       error
}

func (m *mockSessionService) Create(_ context.Context, project domain.ProjectMetadata) (*domain.Session, error) {
	m.created = project
	if m.err != nil {
		return nil, m.err
	}
	return m.session, nil
}

func (m *mockSessionService) Load(_ context.Context, _ string) (*domain.Session, error) {
	return m.session, m.err
}

func (m *mockSessionService) Delete(_ context.Context, id string) error {
	m.deleted = id
	return m.err
}

func (m *mockSessionService) List(_ context.Context) ([]domain.SessionSummary, error) {
	return m.summaries, m.err
}

func (m *mockSessionService) AdvanceStage(_ context.Context, _ string, _ domain.WorkflowStage, _ domain.StageStatus) (*domain.Session, error) {
	return m.session, m.err
}

func (m *mockSessionService) ResetStage(_ context.Context, _ string, _ domain.WorkflowStage) (*domain.Session, error) {
	return m.session, m.err
}

func (m *mockSessionService) MergeEvidence(_ context.Context, _ string, _ []domain.ExtractedField) (*domain.Session, error) {
	return m.session, m.err
}

func (m *mockSessionService) UpdateStatistics(_ context.Context, _ string, _ func(*domain.SessionStatistics)) (*domain.Session, error) {
	return m.session, m.err
}

func (m *mockSessionService) Reconcile(_ context.Context) (int, error) {
	return len(m.summaries), m.err
}

// mockEvidenceService is a mock implementation of driving.EvidenceService.
type mockEvidenceService struct {
	discovery  *driving.DiscoveryResult
	extraction *driving.ExtractionResult
	summary    *driving.EvidenceSummary
	err        error
}

func (m *mockEvidenceService) DiscoverDocuments(_ context.Context, _ string) (*driving.DiscoveryResult, error) {
	return m.discovery, m.err
}

func (m *mockEvidenceService) ExtractAllEvidence(_ context.Context, _ string) (*driving.ExtractionResult, error) {
	return m.extraction, m.err
}

func (m *mockEvidenceService) GetEvidenceSummary(_ context.Context, _ string) (*driving.EvidenceSummary, error) {
	return m.summary, m.err
}

func newTestServer(sessions *mockSessionService, evidence *mockEvidenceService) *Server {
	if sessions == nil {
		sessions = &mockSessionService{}
	}
	if evidence == nil {
		evidence = &mockEvidenceService{}
	}
	server, err := NewServer(&Ports{Sessions: sessions, Evidence: evidence})
	if err != nil {
		panic(err)
	}
	return server
}
