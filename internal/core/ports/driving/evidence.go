package driving

import (
	"context"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
)

// EvidenceService runs the review stages that touch documents and evidence.
type EvidenceService interface {
	// DiscoverDocuments indexes the session's documents path and completes
	// the document_discovery stage. It never changes evidence_extraction;
	// new or changed documents are left with Extracted unset.
	DiscoverDocuments(ctx context.Context, sessionID string) (*DiscoveryResult, error)

	// ExtractAllEvidence extracts evidence from every discovered document and
	// completes the evidence_extraction stage. A completed stage is reset
	// first when some document has not been extracted yet.
	ExtractAllEvidence(ctx context.Context, sessionID string) (*ExtractionResult, error)

	// GetEvidenceSummary reports counts, coverage and cost for a session.
	GetEvidenceSummary(ctx context.Context, sessionID string) (*EvidenceSummary, error)
}

// DiscoveryResult reports one discovery run.
type DiscoveryResult struct {
	SessionID  string                  `json:"session_id"`
	Documents  []domain.DocumentRecord `json:"documents"`
	New        int                     `json:"new"`
	Changed    int                     `json:"changed"`
	Duplicates int                     `json:"duplicates"`
	Removed    int                     `json:"removed"`
	Skipped    int                     `json:"skipped"`

	// EvidenceDropped counts evidence removed because its document is gone.
	EvidenceDropped int `json:"evidence_dropped"`
}

// ExtractionResult reports one extraction run.
type ExtractionResult struct {
	SessionID     string                      `json:"session_id"`
	Documents     []domain.DocumentExtraction `json:"documents"`
	EvidenceCount int                         `json:"evidence_count"`
	ModelCalls    int                         `json:"model_calls"`
	CacheHits     int                         `json:"cache_hits"`
	FailedChunks  int                         `json:"failed_chunks"`
}

// EvidenceSummary is the outer-layer view of a session's evidence.
type EvidenceSummary struct {
	SessionID           string                                      `json:"session_id"`
	ProjectName         string                                      `json:"project_name"`
	Documents           int                                         `json:"documents"`
	DuplicateDocuments  int                                         `json:"duplicate_documents"`
	PendingDocuments    int                                         `json:"pending_documents"`
	EvidenceCount       int                                         `json:"evidence_count"`
	ByFieldType         map[domain.FieldType]int                    `json:"by_field_type"`
	ByBackend           map[domain.ExtractionBackend]int            `json:"by_backend"`
	ByVerification      map[domain.VerificationOutcome]int          `json:"by_verification"`
	RequirementsTotal   int                                         `json:"requirements_total"`
	RequirementsCovered int                                         `json:"requirements_covered"`
	CoverageRatio       float64                                     `json:"coverage_ratio"`
	Cost                domain.CostSummary                          `json:"cost"`
	Stages              map[domain.WorkflowStage]domain.StageStatus `json:"stages"`
}
