package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/adapters/driven/storage/memory"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
)

// readingConverter converts files by reading them as markdown.
type readingConverter struct{}

func (readingConverter) Convert(_ context.Context, path string) (*domain.ConvertedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ConversionError{Path: path, Err: err}
	}
	return &domain.ConvertedDocument{Text: string(data), PageCount: 1, Format: "markdown"}, nil
}

func (readingConverter) Supports(path string) bool {
	return strings.HasSuffix(path, ".md")
}

type mockCatalog struct {
	checklists map[string]*domain.Checklist
}

func (m *mockCatalog) Load(_ context.Context, id string) (*domain.Checklist, error) {
	c, ok := m.checklists[id]
	if !ok {
		return nil, &domain.MissingChecklistError{MethodologyID: id}
	}
	return c, nil
}

func (m *mockCatalog) Methodologies(context.Context) ([]string, error) {
	ids := make([]string, 0, len(m.checklists))
	for id := range m.checklists {
		ids = append(ids, id)
	}
	return ids, nil
}

func testCatalog() *mockCatalog {
	return &mockCatalog{checklists: map[string]*domain.Checklist{
		"soil-carbon-v1": {
			MethodologyID: "soil-carbon-v1",
			Version:       "1.0",
			Requirements: []domain.Requirement{
				{ID: "REQ-001", FieldTypes: []domain.FieldType{domain.FieldProjectID, domain.FieldRegistryID}},
				{ID: "REQ-002", FieldTypes: []domain.FieldType{domain.FieldProjectStartDate}},
				{ID: "REQ-003", FieldTypes: []domain.FieldType{domain.FieldLandOwner}},
				{ID: "REQ-004", FieldTypes: []domain.FieldType{domain.FieldProjectID}},
			},
		},
		"empty-v1": {MethodologyID: "empty-v1", Requirements: []domain.Requirement{{ID: "REQ-001"}}},
	}}
}

type evidenceFixture struct {
	sessions *SessionService
	evidence *EvidenceService
	backend  *mockBackend
	ledger   *memory.CostLedger
	root     string
}

func newEvidenceFixture(t *testing.T) *evidenceFixture {
	t.Helper()
	backend := &mockBackend{model: testModel, respond: replyWith(planReply)}
	ledger := memory.NewCostLedger()
	costs := NewCostRecorder(ledger)
	settings := testSettings()

	sessions := NewSessionService(memory.NewSessionStore(), memory.NewSessionIndex(),
		WithSessionClock(steppingClock()), WithIDGenerator(sequentialIDs()))
	engine := NewExtractionEngine(settings, backend, readingConverter{}, memory.NewCache(), costs, testEngineOptions()...)
	indexer := NewDocumentIndexer(readingConverter{})

	root := resolvedTempDir(t)
	writeFile(t, root, "ProjectPlan.md", planText)
	writeFile(t, root, "plan-copy.md", planText)
	writeFile(t, root, "baseline.md", "# Baseline Report\n\nSoil samples were taken across the ranch.")

	return &evidenceFixture{
		sessions: sessions,
		evidence: NewEvidenceService(settings, sessions, testCatalog(), indexer, engine, costs),
		backend:  backend,
		ledger:   ledger,
		root:     root,
	}
}

func (f *evidenceFixture) createSession(t *testing.T, methodology string) *domain.Session {
	t.Helper()
	session, err := f.sessions.Create(context.Background(), domain.ProjectMetadata{
		Name:          "Ranch Soil Carbon",
		MethodologyID: methodology,
		DocumentsPath: f.root,
	})
	require.NoError(t, err)
	return session
}

func (f *evidenceFixture) paidEntries(t *testing.T, sessionID string) int {
	t.Helper()
	entries, err := f.ledger.Entries(context.Background(), sessionID)
	require.NoError(t, err)
	n := 0
	for _, e := range entries {
		if !e.CacheHit {
			n++
		}
	}
	return n
}

// ==================== DiscoverDocuments ====================

func TestEvidenceService_DiscoverDocuments(t *testing.T) {
	f := newEvidenceFixture(t)
	ctx := context.Background()
	session := f.createSession(t, "soil-carbon-v1")

	result, err := f.evidence.DiscoverDocuments(ctx, session.ID)
	require.NoError(t, err)

	assert.Equal(t, session.ID, result.SessionID)
	assert.Len(t, result.Documents, 2)
	assert.Equal(t, 2, result.New)
	assert.Equal(t, 1, result.Duplicates)

	loaded, err := f.sessions.Load(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, loaded.StageStatus(domain.StageDocumentDiscovery))
	assert.Equal(t, 2, loaded.Statistics.DocumentsDiscovered)
	assert.Equal(t, 1, loaded.Statistics.DuplicateDocuments)
	assert.Equal(t, result.Documents, loaded.Documents)

	again, err := f.evidence.DiscoverDocuments(ctx, session.ID)
	require.NoError(t, err)
	assert.Zero(t, again.New)
	assert.Zero(t, again.Duplicates)
	assert.Equal(t, result.Documents, again.Documents)
}

func TestEvidenceService_DiscoverMissingSession(t *testing.T) {
	f := newEvidenceFixture(t)
	_, err := f.evidence.DiscoverDocuments(context.Background(), "session-404")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

// ==================== ExtractAllEvidence ====================

func TestEvidenceService_ExtractAllEvidence(t *testing.T) {
	f := newEvidenceFixture(t)
	ctx := context.Background()
	session := f.createSession(t, "soil-carbon-v1")
	_, err := f.evidence.DiscoverDocuments(ctx, session.ID)
	require.NoError(t, err)

	result, err := f.evidence.ExtractAllEvidence(ctx, session.ID)
	require.NoError(t, err)

	assert.Len(t, result.Documents, 2)
	assert.Equal(t, 2, result.ModelCalls)
	assert.Zero(t, result.CacheHits)
	assert.Zero(t, result.FailedChunks)
	assert.Equal(t, 1, result.EvidenceCount)

	loaded, err := f.sessions.Load(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, loaded.StageStatus(domain.StageEvidenceExtraction))
	require.Len(t, loaded.Evidence, 1)
	assert.Equal(t, domain.FieldProjectID, loaded.Evidence[0].FieldType)
	assert.Equal(t, "C06-4997", loaded.Evidence[0].Value)
	for _, field := range loaded.Evidence {
		assert.NotEqual(t, domain.VerificationRejected, field.Verification)
	}

	stats := loaded.Statistics
	assert.Equal(t, 1, stats.EvidenceCount)
	assert.Equal(t, 4, stats.RequirementsTotal)
	assert.Equal(t, 2, stats.RequirementsCovered)
	assert.Equal(t, 2, stats.APICalls)
	assert.Greater(t, stats.TotalCostUSD, 0.0)

	for _, doc := range loaded.Documents {
		assert.Equal(t, 1, doc.PageCount, doc.Filename)
		assert.Equal(t, 1, doc.ChunkCount, doc.Filename)
	}
}

func TestEvidenceService_ExtractTwiceIsServedFromCache(t *testing.T) {
	f := newEvidenceFixture(t)
	ctx := context.Background()
	session := f.createSession(t, "soil-carbon-v1")
	_, err := f.evidence.DiscoverDocuments(ctx, session.ID)
	require.NoError(t, err)

	_, err = f.evidence.ExtractAllEvidence(ctx, session.ID)
	require.NoError(t, err)
	first, err := f.sessions.Load(ctx, session.ID)
	require.NoError(t, err)
	callsBefore := f.backend.calls()
	paidBefore := f.paidEntries(t, session.ID)

	second, err := f.evidence.ExtractAllEvidence(ctx, session.ID)
	require.NoError(t, err)
	assert.Zero(t, second.ModelCalls)
	assert.Equal(t, 2, second.CacheHits)
	assert.Equal(t, callsBefore, f.backend.calls())
	assert.Equal(t, paidBefore, f.paidEntries(t, session.ID))

	reloaded, err := f.sessions.Load(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Evidence, reloaded.Evidence)
	assert.Equal(t, first.Statistics.APICalls, reloaded.Statistics.APICalls)
}

func TestEvidenceService_ExtractRequiresDiscovery(t *testing.T) {
	f := newEvidenceFixture(t)
	session := f.createSession(t, "soil-carbon-v1")

	_, err := f.evidence.ExtractAllEvidence(context.Background(), session.ID)
	assert.ErrorIs(t, err, domain.ErrDiscoveryRequired)
	assert.Zero(t, f.backend.calls())
}

func TestEvidenceService_ExtractMissingChecklist(t *testing.T) {
	tests := []struct {
		name        string
		methodology string
	}{
		{"unknown methodology", "unknown-v9"},
		{"no field types", "empty-v1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEvidenceFixture(t)
			ctx := context.Background()
			session := f.createSession(t, tt.methodology)
			_, err := f.evidence.DiscoverDocuments(ctx, session.ID)
			require.NoError(t, err)

			_, err = f.evidence.ExtractAllEvidence(ctx, session.ID)
			require.Error(t, err)
			assert.True(t, domain.IsMissingChecklist(err))

			loaded, err := f.sessions.Load(ctx, session.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusPending, loaded.StageStatus(domain.StageEvidenceExtraction))
		})
	}
}

func TestEvidenceService_ContentChangeReopensExtraction(t *testing.T) {
	f := newEvidenceFixture(t)
	ctx := context.Background()
	session := f.createSession(t, "soil-carbon-v1")
	_, err := f.evidence.DiscoverDocuments(ctx, session.ID)
	require.NoError(t, err)
	_, err = f.evidence.ExtractAllEvidence(ctx, session.ID)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(f.root, "ProjectPlan.md"), []byte("# Plan\n\nRevised."), 0o600))
	require.NoError(t, os.Remove(filepath.Join(f.root, "plan-copy.md")))

	result, err := f.evidence.DiscoverDocuments(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Changed)
	assert.Equal(t, 1, result.EvidenceDropped)

	loaded, err := f.sessions.Load(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, loaded.Evidence)
	assert.Zero(t, loaded.Statistics.EvidenceCount)
	assert.Zero(t, loaded.Statistics.RequirementsCovered)
	assert.Zero(t, loaded.Statistics.DuplicateDocuments)
	assert.Equal(t, domain.StatusCompleted, loaded.StageStatus(domain.StageEvidenceExtraction),
		"discovery leaves the extraction stage alone")
	assert.Equal(t, domain.StatusCompleted, loaded.StageStatus(domain.StageDocumentDiscovery))

	summary, err := f.evidence.GetEvidenceSummary(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.PendingDocuments)

	calls := f.backend.calls()
	_, err = f.evidence.ExtractAllEvidence(ctx, session.ID)
	require.NoError(t, err)
	assert.Greater(t, f.backend.calls(), calls)

	loaded, err = f.sessions.Load(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, loaded.StageStatus(domain.StageEvidenceExtraction))
	for _, doc := range loaded.Documents {
		assert.True(t, doc.Extracted, doc.Filename)
	}

	summary, err = f.evidence.GetEvidenceSummary(ctx, session.ID)
	require.NoError(t, err)
	assert.Zero(t, summary.PendingDocuments)
}

func TestEvidenceService_PatternFallbackWithoutBackend(t *testing.T) {
	settings := testSettings()
	costs := NewCostRecorder(memory.NewCostLedger())
	sessions := NewSessionService(memory.NewSessionStore(), memory.NewSessionIndex())
	engine := NewExtractionEngine(settings, nil, readingConverter{}, memory.NewCache(), costs, testEngineOptions()...)
	svc := NewEvidenceService(settings, sessions, testCatalog(), NewDocumentIndexer(readingConverter{}), engine, costs)

	root := resolvedTempDir(t)
	writeFile(t, root, "plan.md", planText)
	ctx := context.Background()
	session, err := sessions.Create(ctx, domain.ProjectMetadata{Name: "p", MethodologyID: "soil-carbon-v1", DocumentsPath: root})
	require.NoError(t, err)
	_, err = svc.DiscoverDocuments(ctx, session.ID)
	require.NoError(t, err)

	result, err := svc.ExtractAllEvidence(ctx, session.ID)
	require.NoError(t, err)
	assert.Zero(t, result.ModelCalls)
	require.Len(t, result.Documents, 1)
	assert.Equal(t, domain.BackendPattern, result.Documents[0].Backend)

	loaded, err := sessions.Load(ctx, session.ID)
	require.NoError(t, err)
	for _, field := range loaded.Evidence {
		assert.Equal(t, domain.BackendPattern, field.Backend)
	}
}

// ==================== GetEvidenceSummary ====================

func TestEvidenceService_GetEvidenceSummary(t *testing.T) {
	f := newEvidenceFixture(t)
	ctx := context.Background()
	session := f.createSession(t, "soil-carbon-v1")
	_, err := f.evidence.DiscoverDocuments(ctx, session.ID)
	require.NoError(t, err)
	_, err = f.evidence.ExtractAllEvidence(ctx, session.ID)
	require.NoError(t, err)

	summary, err := f.evidence.GetEvidenceSummary(ctx, session.ID)
	require.NoError(t, err)

	assert.Equal(t, "Ranch Soil Carbon", summary.ProjectName)
	assert.Equal(t, 2, summary.Documents)
	assert.Equal(t, 1, summary.DuplicateDocuments)
	assert.Equal(t, 1, summary.EvidenceCount)
	assert.Equal(t, map[domain.FieldType]int{domain.FieldProjectID: 1}, summary.ByFieldType)
	assert.Equal(t, map[domain.ExtractionBackend]int{domain.BackendLLM: 1}, summary.ByBackend)
	assert.Equal(t, 1, summary.ByVerification[domain.VerificationVerified])
	assert.Equal(t, 4, summary.RequirementsTotal)
	assert.Equal(t, 2, summary.RequirementsCovered)
	assert.InDelta(t, 0.5, summary.CoverageRatio, 1e-9)
	assert.Greater(t, summary.Cost.TotalCostUSD, 0.0)
	assert.Len(t, summary.Stages, len(domain.WorkflowStages()))
	assert.Equal(t, domain.StatusCompleted, summary.Stages[domain.StageEvidenceExtraction])
	assert.Equal(t, domain.StatusPending, summary.Stages[domain.StageCrossValidation])
}

func TestEvidenceService_SummaryFallsBackToStoredCoverage(t *testing.T) {
	f := newEvidenceFixture(t)
	ctx := context.Background()
	session := f.createSession(t, "retired-v1")
	_, err := f.sessions.UpdateStatistics(ctx, session.ID, func(s *domain.SessionStatistics) {
		s.RequirementsTotal = 5
		s.RequirementsCovered = 4
	})
	require.NoError(t, err)

	summary, err := f.evidence.GetEvidenceSummary(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.RequirementsTotal)
	assert.Equal(t, 4, summary.RequirementsCovered)
	assert.InDelta(t, 0.8, summary.CoverageRatio, 1e-9)
	assert.Zero(t, summary.Cost.TotalCostUSD)
	assert.NotNil(t, summary.ByFieldType)
}
