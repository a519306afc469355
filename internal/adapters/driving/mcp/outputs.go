package mcp

import (
	"time"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driving"
)

// Tool outputs carry timestamps as RFC 3339 strings and never contain nil
// slices, so the structured content always matches the inferred schema.

// StageOutput is one workflow stage.
type StageOutput struct {
	Stage     string `json:"stage"`
	Status    string `json:"status"`
	UpdatedAt string `json:"updated_at"`
}

// StatisticsOutput mirrors the session counters.
type StatisticsOutput struct {
	DocumentsDiscovered int     `json:"documents_discovered"`
	DuplicateDocuments  int     `json:"duplicate_documents"`
	RequirementsTotal   int     `json:"requirements_total"`
	RequirementsCovered int     `json:"requirements_covered"`
	EvidenceCount       int     `json:"evidence_count"`
	APICalls            int     `json:"api_calls"`
	TotalCostUSD        float64 `json:"total_cost_usd"`
}

// SessionOutput is a full session view without documents and evidence.
type SessionOutput struct {
	SessionID     string           `json:"session_id"`
	ProjectName   string           `json:"project_name"`
	MethodologyID string           `json:"methodology_id"`
	DocumentsPath string           `json:"documents_path"`
	ProjectID     string           `json:"project_id,omitempty"`
	Stages        []StageOutput    `json:"stages"`
	Statistics    StatisticsOutput `json:"statistics"`
	CreatedAt     string           `json:"created_at"`
	UpdatedAt     string           `json:"updated_at"`
}

// SessionSummaryOutput is one row of list_sessions.
type SessionSummaryOutput struct {
	SessionID     string `json:"session_id"`
	ProjectName   string `json:"project_name"`
	MethodologyID string `json:"methodology_id"`
	DocumentsPath string `json:"documents_path"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// DocumentOutput is one discovered document.
type DocumentOutput struct {
	DocumentID  string   `json:"document_id"`
	Filename    string   `json:"filename"`
	Path        string   `json:"path"`
	Class       string   `json:"class"`
	Fingerprint string   `json:"fingerprint"`
	PageCount   int      `json:"page_count"`
	ChunkCount  int      `json:"chunk_count"`
	Aliases     []string `json:"aliases"`
}

// FieldOutput is one piece of evidence.
type FieldOutput struct {
	FieldType      string  `json:"field_type"`
	Value          string  `json:"value"`
	Confidence     float64 `json:"confidence"`
	SourceDocument string  `json:"source_document"`
	Page           int     `json:"page,omitempty"`
	Section        string  `json:"section,omitempty"`
	Excerpt        string  `json:"excerpt,omitempty"`
	Verification   string  `json:"verification"`
	Backend        string  `json:"backend"`
}

// DocumentExtractionOutput reports extraction for one document.
type DocumentExtractionOutput struct {
	DocumentID   string        `json:"document_id"`
	Filename     string        `json:"filename"`
	Backend      string        `json:"backend"`
	Fields       []FieldOutput `json:"fields"`
	ModelCalls   int           `json:"model_calls"`
	CacheHits    int           `json:"cache_hits"`
	ChunksFailed int           `json:"chunks_failed"`
	Rejected     int           `json:"rejected"`
	FromCache    bool          `json:"from_cache"`
}

// CostOutput is the ledger aggregation for a session.
type CostOutput struct {
	TotalCostUSD  float64 `json:"total_cost_usd"`
	TotalCalls    int     `json:"total_calls"`
	CacheHits     int     `json:"cache_hits"`
	InputTokens   int     `json:"input_tokens"`
	OutputTokens  int     `json:"output_tokens"`
	CacheHitRatio float64 `json:"cache_hit_ratio"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toSessionOutput(s *domain.Session) SessionOutput {
	out := SessionOutput{
		SessionID:     s.ID,
		ProjectName:   s.Project.Name,
		MethodologyID: s.Project.MethodologyID,
		DocumentsPath: s.Project.DocumentsPath,
		ProjectID:     s.Project.ProjectID,
		Stages:        make([]StageOutput, 0, len(domain.WorkflowStages())),
		Statistics:    StatisticsOutput(s.Statistics),
		CreatedAt:     formatTime(s.CreatedAt),
		UpdatedAt:     formatTime(s.UpdatedAt),
	}
	for _, stage := range domain.WorkflowStages() {
		out.Stages = append(out.Stages, StageOutput{
			Stage:     string(stage),
			Status:    string(s.StageStatus(stage)),
			UpdatedAt: formatTime(s.Stages[stage].UpdatedAt),
		})
	}
	return out
}

func toSummaryOutput(s domain.SessionSummary) SessionSummaryOutput {
	return SessionSummaryOutput{
		SessionID:     s.ID,
		ProjectName:   s.ProjectName,
		MethodologyID: s.MethodologyID,
		DocumentsPath: s.DocumentsPath,
		CreatedAt:     formatTime(s.CreatedAt),
		UpdatedAt:     formatTime(s.UpdatedAt),
	}
}

func toDocumentOutputs(docs []domain.DocumentRecord) []DocumentOutput {
	out := make([]DocumentOutput, len(docs))
	for i, d := range docs {
		aliases := make([]string, len(d.Aliases))
		for j, a := range d.Aliases {
			aliases[j] = a.Filename
		}
		out[i] = DocumentOutput{
			DocumentID:  d.ID,
			Filename:    d.Filename,
			Path:        d.Path,
			Class:       string(d.Class),
			Fingerprint: d.Fingerprint,
			PageCount:   d.PageCount,
			ChunkCount:  d.ChunkCount,
			Aliases:     aliases,
		}
	}
	return out
}

func toFieldOutputs(fields []domain.ExtractedField) []FieldOutput {
	out := make([]FieldOutput, len(fields))
	for i, f := range fields {
		out[i] = FieldOutput{
			FieldType:      string(f.FieldType),
			Value:          f.Value,
			Confidence:     f.Confidence,
			SourceDocument: f.SourceDocument,
			Page:           f.Citation.Page,
			Section:        f.Citation.Section,
			Excerpt:        f.Citation.Excerpt,
			Verification:   string(f.Verification),
			Backend:        string(f.Backend),
		}
	}
	return out
}

func toExtractionOutputs(docs []domain.DocumentExtraction) []DocumentExtractionOutput {
	out := make([]DocumentExtractionOutput, len(docs))
	for i, d := range docs {
		out[i] = DocumentExtractionOutput{
			DocumentID:   d.Document.ID,
			Filename:     d.Document.Filename,
			Backend:      string(d.Backend),
			Fields:       toFieldOutputs(d.Fields),
			ModelCalls:   d.ModelCalls,
			CacheHits:    d.CacheHits,
			ChunksFailed: d.ChunksFailed,
			Rejected:     d.Rejected,
			FromCache:    d.FromCache,
		}
	}
	return out
}

func toCostOutput(c domain.CostSummary) CostOutput {
	return CostOutput{
		TotalCostUSD:  c.TotalCostUSD,
		TotalCalls:    c.TotalCalls,
		CacheHits:     c.CacheHits,
		InputTokens:   c.InputTokens,
		OutputTokens:  c.OutputTokens,
		CacheHitRatio: c.CacheHitRatio,
	}
}

func countsByKey[K ~string](in map[K]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[string(k)] = v
	}
	return out
}

func stagesByName(in map[domain.WorkflowStage]domain.StageStatus) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[string(k)] = string(v)
	}
	return out
}

// summaryFromService converts the service view to the tool output.
func summaryFromService(s *driving.EvidenceSummary) EvidenceSummaryOutput {
	return EvidenceSummaryOutput{
		SessionID:           s.SessionID,
		ProjectName:         s.ProjectName,
		Documents:           s.Documents,
		DuplicateDocuments:  s.DuplicateDocuments,
		PendingDocuments:    s.PendingDocuments,
		EvidenceCount:       s.EvidenceCount,
		ByFieldType:         countsByKey(s.ByFieldType),
		ByBackend:           countsByKey(s.ByBackend),
		ByVerification:      countsByKey(s.ByVerification),
		RequirementsTotal:   s.RequirementsTotal,
		RequirementsCovered: s.RequirementsCovered,
		CoverageRatio:       s.CoverageRatio,
		Cost:                toCostOutput(s.Cost),
		Stages:              stagesByName(s.Stages),
	}
}
