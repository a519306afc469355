package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driving"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/logger"
)

// Ensure EvidenceService implements the interface.
var _ driving.EvidenceService = (*EvidenceService)(nil)

// EvidenceService runs document discovery and evidence extraction for a
// session and owns the stages those operations complete.
type EvidenceService struct {
	sessions *SessionService
	catalog  driven.ChecklistCatalog
	indexer  *DocumentIndexer
	engine   *ExtractionEngine
	costs    *CostRecorder
	maxDocs  int
}

// NewEvidenceService creates an evidence service.
func NewEvidenceService(
	settings domain.Settings,
	sessions *SessionService,
	catalog driven.ChecklistCatalog,
	indexer *DocumentIndexer,
	engine *ExtractionEngine,
	costs *CostRecorder,
) *EvidenceService {
	maxDocs := settings.Extraction.MaxConcurrentDocuments
	if maxDocs < 1 {
		maxDocs = 1
	}
	return &EvidenceService{
		sessions: sessions,
		catalog:  catalog,
		indexer:  indexer,
		engine:   engine,
		costs:    costs,
		maxDocs:  maxDocs,
	}
}

// DiscoverDocuments indexes the session's documents path and completes the
// document_discovery stage in the same write that stores the records.
func (s *EvidenceService) DiscoverDocuments(ctx context.Context, sessionID string) (*driving.DiscoveryResult, error) {
	session, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.StageStatus(domain.StageDocumentDiscovery) != domain.StatusCompleted {
		if _, err := s.sessions.AdvanceStage(ctx, sessionID, domain.StageDocumentDiscovery, domain.StatusInProgress); err != nil {
			return nil, err
		}
	}

	indexed, err := s.indexer.Discover(ctx, session.Project.DocumentsPath, session.Documents)
	if err != nil {
		return nil, fmt.Errorf("discover documents for session %s: %w", sessionID, err)
	}

	// The checklist is only used to refresh coverage after evidence is dropped.
	checklist, _ := s.catalog.Load(ctx, session.Project.MethodologyID)

	dropped := 0
	updated, err := s.sessions.update(ctx, sessionID, func(session *domain.Session, now time.Time) error {
		session.Documents = indexed.Documents
		session.Statistics.DocumentsDiscovered = len(indexed.Documents)
		session.Statistics.DuplicateDocuments = countAliases(indexed.Documents)

		dropped = dropOrphanedEvidence(session)
		if dropped > 0 && checklist != nil {
			session.Statistics.RequirementsCovered, session.Statistics.RequirementsTotal = checklist.Coverage(session.Evidence)
		}

		return session.SetStage(domain.StageDocumentDiscovery, domain.StatusCompleted, now)
	})
	if err != nil {
		return nil, fmt.Errorf("save discovery for session %s: %w", sessionID, err)
	}

	logger.Info("session %s: %d documents (%d new, %d changed, %d duplicates, %d removed)",
		sessionID, len(updated.Documents), indexed.New, indexed.Changed, indexed.Duplicates, indexed.Removed)

	return &driving.DiscoveryResult{
		SessionID:       sessionID,
		Documents:       updated.Documents,
		New:             indexed.New,
		Changed:         indexed.Changed,
		Duplicates:      indexed.Duplicates,
		Removed:         indexed.Removed,
		Skipped:         indexed.Skipped,
		EvidenceDropped: dropped,
	}, nil
}

// ExtractAllEvidence extracts the checklist's field types from every
// discovered document. Documents run concurrently up to the configured
// limit; the merged result is committed in one session write that also
// completes the evidence_extraction stage.
func (s *EvidenceService) ExtractAllEvidence(ctx context.Context, sessionID string) (*driving.ExtractionResult, error) {
	session, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	checklist, err := s.catalog.Load(ctx, session.Project.MethodologyID)
	if err != nil {
		return nil, err
	}
	fieldTypes := checklist.FieldTypes()
	if len(fieldTypes) == 0 {
		return nil, &domain.MissingChecklistError{MethodologyID: session.Project.MethodologyID}
	}

	if session.StageStatus(domain.StageDocumentDiscovery) != domain.StatusCompleted {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrDiscoveryRequired)
	}
	if err := s.startExtraction(ctx, session); err != nil {
		return nil, err
	}

	docs := session.Documents
	outcomes := make([]*domain.DocumentExtraction, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxDocs)
	for i := range docs {
		g.Go(func() error {
			out, err := s.engine.ExtractDocument(gctx, sessionID, docs[i], fieldTypes)
			if err != nil {
				return err
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extract evidence for session %s: %w", sessionID, err)
	}

	result := &driving.ExtractionResult{
		SessionID: sessionID,
		Documents: make([]domain.DocumentExtraction, 0, len(outcomes)),
	}
	var fields []domain.ExtractedField
	for _, out := range outcomes {
		result.Documents = append(result.Documents, *out)
		result.ModelCalls += out.ModelCalls
		result.CacheHits += out.CacheHits
		result.FailedChunks += out.ChunksFailed
		fields = append(fields, out.Fields...)
	}

	cost := s.costs.Summary(ctx, sessionID)
	updated, err := s.sessions.update(ctx, sessionID, func(session *domain.Session, now time.Time) error {
		MergeEvidence(session, fields)
		for _, out := range outcomes {
			recordExtraction(session, out.Document)
		}
		session.Statistics.RequirementsCovered, session.Statistics.RequirementsTotal = checklist.Coverage(session.Evidence)
		session.Statistics.APICalls += result.ModelCalls
		session.Statistics.TotalCostUSD = cost.TotalCostUSD
		return session.SetStage(domain.StageEvidenceExtraction, domain.StatusCompleted, now)
	})
	if err != nil {
		return nil, fmt.Errorf("save evidence for session %s: %w", sessionID, err)
	}
	result.EvidenceCount = len(updated.Evidence)

	logger.Info("session %s: %d evidence fields from %d documents (%d model calls, %d cache hits, %d failed chunks)",
		sessionID, result.EvidenceCount, len(docs), result.ModelCalls, result.CacheHits, result.FailedChunks)
	return result, nil
}

// startExtraction moves evidence_extraction to in_progress. A completed stage
// is reopened when discovery has since added documents that were never
// extracted.
func (s *EvidenceService) startExtraction(ctx context.Context, session *domain.Session) error {
	status := session.StageStatus(domain.StageEvidenceExtraction)
	if status == domain.StatusCompleted {
		pending := countPending(session.Documents)
		if pending == 0 {
			return nil
		}
		logger.Info("session %s: %d documents not yet extracted, reopening %s",
			session.ID, pending, domain.StageEvidenceExtraction)
		if _, err := s.sessions.ResetStage(ctx, session.ID, domain.StageEvidenceExtraction); err != nil {
			return err
		}
	}
	_, err := s.sessions.AdvanceStage(ctx, session.ID, domain.StageEvidenceExtraction, domain.StatusInProgress)
	return err
}

// GetEvidenceSummary reports counts, coverage and cost for a session.
func (s *EvidenceService) GetEvidenceSummary(ctx context.Context, sessionID string) (*driving.EvidenceSummary, error) {
	session, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	summary := &driving.EvidenceSummary{
		SessionID:          sessionID,
		ProjectName:        session.Project.Name,
		Documents:          len(session.Documents),
		DuplicateDocuments: countAliases(session.Documents),
		PendingDocuments:   countPending(session.Documents),
		EvidenceCount:      len(session.Evidence),
		ByFieldType:        make(map[domain.FieldType]int),
		ByBackend:          make(map[domain.ExtractionBackend]int),
		ByVerification:     make(map[domain.VerificationOutcome]int),
		Stages:             make(map[domain.WorkflowStage]domain.StageStatus, len(domain.WorkflowStages())),
		Cost:               s.costs.Summary(ctx, sessionID),
	}
	for _, f := range session.Evidence {
		summary.ByFieldType[f.FieldType]++
		summary.ByBackend[f.Backend]++
		summary.ByVerification[f.Verification]++
	}
	for _, stage := range domain.WorkflowStages() {
		summary.Stages[stage] = session.StageStatus(stage)
	}

	if checklist, err := s.catalog.Load(ctx, session.Project.MethodologyID); err == nil {
		summary.RequirementsCovered, summary.RequirementsTotal = checklist.Coverage(session.Evidence)
	} else {
		logger.Debug("session %s: using stored coverage: %v", sessionID, err)
		summary.RequirementsCovered = session.Statistics.RequirementsCovered
		summary.RequirementsTotal = session.Statistics.RequirementsTotal
	}
	if summary.RequirementsTotal > 0 {
		summary.CoverageRatio = float64(summary.RequirementsCovered) / float64(summary.RequirementsTotal)
	}
	return summary, nil
}

// countAliases returns the number of duplicate files merged into records.
func countAliases(docs []domain.DocumentRecord) int {
	n := 0
	for _, d := range docs {
		n += len(d.Aliases)
	}
	return n
}

// countPending returns the number of records evidence extraction has not
// run on.
func countPending(docs []domain.DocumentRecord) int {
	n := 0
	for _, d := range docs {
		if !d.Extracted {
			n++
		}
	}
	return n
}

// dropOrphanedEvidence removes evidence whose document record no longer
// exists and returns how many fields were removed.
func dropOrphanedEvidence(session *domain.Session) int {
	ids := make(map[string]bool, len(session.Documents))
	for _, d := range session.Documents {
		ids[d.ID] = true
	}
	kept := session.Evidence[:0]
	for _, f := range session.Evidence {
		if ids[f.DocumentID] {
			kept = append(kept, f)
		}
	}
	dropped := len(session.Evidence) - len(kept)
	session.Evidence = kept
	session.Statistics.EvidenceCount = len(kept)
	return dropped
}

// recordExtraction marks the stored record extracted and copies page and
// chunk counts learned during extraction onto it.
func recordExtraction(session *domain.Session, doc domain.DocumentRecord) {
	i := session.DocumentByFingerprint(doc.Fingerprint)
	if i < 0 {
		return
	}
	session.Documents[i].Extracted = true
	if doc.PageCount > 0 {
		session.Documents[i].PageCount = doc.PageCount
	}
	if doc.ChunkCount > 0 {
		session.Documents[i].ChunkCount = doc.ChunkCount
	}
}
