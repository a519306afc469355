package domain

import (
	"fmt"
	"time"
)

// WorkflowStage names a phase of the review process.
type WorkflowStage string

// Review workflow stages, in order.
const (
	StageInitialize         WorkflowStage = "initialize"
	StageDocumentDiscovery  WorkflowStage = "document_discovery"
	StageEvidenceExtraction WorkflowStage = "evidence_extraction"
	StageCrossValidation    WorkflowStage = "cross_validation"
	StageReportGeneration   WorkflowStage = "report_generation"
	StageHumanReview        WorkflowStage = "human_review"
	StageCompletion         WorkflowStage = "completion"
)

// WorkflowStages returns every stage in workflow order.
func WorkflowStages() []WorkflowStage {
	return []WorkflowStage{
		StageInitialize,
		StageDocumentDiscovery,
		StageEvidenceExtraction,
		StageCrossValidation,
		StageReportGeneration,
		StageHumanReview,
		StageCompletion,
	}
}

// IsValid returns true if the stage is part of the workflow.
func (s WorkflowStage) IsValid() bool {
	for _, stage := range WorkflowStages() {
		if stage == s {
			return true
		}
	}
	return false
}

// StageStatus is the completion status of a workflow stage.
type StageStatus string

// Stage statuses.
const (
	StatusPending    StageStatus = "pending"
	StatusInProgress StageStatus = "in_progress"
	StatusCompleted  StageStatus = "completed"
)

// IsValid returns true if the status is recognised.
func (s StageStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	default:
		return false
	}
}

func (s StageStatus) rank() int {
	switch s {
	case StatusInProgress:
		return 1
	case StatusCompleted:
		return 2
	default:
		return 0
	}
}

// CanTransition reports whether a stage may move from one status to another
// without an explicit reset. Completed stages never move backwards.
// Any other transition, including re-entering in_progress, is allowed.
func CanTransition(from, to StageStatus) bool {
	if !to.IsValid() {
		return false
	}
	if from == StatusCompleted {
		return to == StatusCompleted
	}
	return to.rank() >= from.rank() || from == StatusInProgress
}

// StageState records a stage's status and when it last changed.
type StageState struct {
	Status    StageStatus `json:"status"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ProjectMetadata describes the project under review.
type ProjectMetadata struct {
	// Name is the human-readable project name.
	Name string `json:"name" validate:"required"`

	// MethodologyID selects the compliance checklist.
	MethodologyID string `json:"methodology_id" validate:"required"`

	// DocumentsPath is the absolute, resolved path to the source documents.
	DocumentsPath string `json:"documents_path" validate:"required"`

	// ProjectID is the registry's identifier for the project, if known.
	ProjectID string `json:"project_id,omitempty"`
}

// SessionStatistics are aggregate counters kept on the session.
type SessionStatistics struct {
	DocumentsDiscovered int     `json:"documents_discovered"`
	DuplicateDocuments  int     `json:"duplicate_documents"`
	RequirementsTotal   int     `json:"requirements_total"`
	RequirementsCovered int     `json:"requirements_covered"`
	EvidenceCount       int     `json:"evidence_count"`
	APICalls            int     `json:"api_calls"`
	TotalCostUSD        float64 `json:"total_cost_usd"`
}

// Session is the root aggregate of a review.
// It is persisted as one JSON document per session.
type Session struct {
	// ID is the unique identifier for the session.
	ID string `json:"id"`

	// Project is the metadata supplied at creation.
	Project ProjectMetadata `json:"project"`

	// Stages maps every workflow stage to its state.
	Stages map[WorkflowStage]StageState `json:"stages"`

	// Documents are the discovered source files, one per fingerprint.
	Documents []DocumentRecord `json:"documents"`

	// Evidence is the deduplicated evidence set. Rejected fields never appear here.
	Evidence []ExtractedField `json:"evidence"`

	// Statistics are aggregate counters.
	Statistics SessionStatistics `json:"statistics"`

	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the session document was last written.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession builds a session with every stage pending except initialize,
// which is completed at construction.
func NewSession(id string, project ProjectMetadata, now time.Time) *Session {
	stages := make(map[WorkflowStage]StageState, len(WorkflowStages()))
	for _, stage := range WorkflowStages() {
		stages[stage] = StageState{Status: StatusPending, UpdatedAt: now}
	}
	stages[StageInitialize] = StageState{Status: StatusCompleted, UpdatedAt: now}

	return &Session{
		ID:        id,
		Project:   project,
		Stages:    stages,
		Documents: []DocumentRecord{},
		Evidence:  []ExtractedField{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// StageStatus returns the status of a stage, pending if unknown.
func (s *Session) StageStatus(stage WorkflowStage) StageStatus {
	if st, ok := s.Stages[stage]; ok {
		return st.Status
	}
	return StatusPending
}

// SetStage moves a stage to a new status, enforcing monotonicity.
func (s *Session) SetStage(stage WorkflowStage, status StageStatus, now time.Time) error {
	if !stage.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	if !status.IsValid() {
		return fmt.Errorf("%w: status %q", ErrInvalidInput, status)
	}
	current := s.StageStatus(stage)
	if !CanTransition(current, status) {
		return fmt.Errorf("%w: %s is %s, cannot become %s", ErrStageRegression, stage, current, status)
	}
	if s.Stages == nil {
		s.Stages = make(map[WorkflowStage]StageState)
	}
	s.Stages[stage] = StageState{Status: status, UpdatedAt: now}
	return nil
}

// ResetStage is the explicit reset: the stage returns to pending.
func (s *Session) ResetStage(stage WorkflowStage, now time.Time) error {
	if !stage.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	if stage == StageInitialize {
		return fmt.Errorf("%w: initialize cannot be reset", ErrInvalidInput)
	}
	s.Stages[stage] = StageState{Status: StatusPending, UpdatedAt: now}
	return nil
}

// DocumentByFingerprint returns the index of the record with the fingerprint, or -1.
func (s *Session) DocumentByFingerprint(fingerprint string) int {
	for i := range s.Documents {
		if s.Documents[i].Fingerprint == fingerprint {
			return i
		}
	}
	return -1
}

// SessionSummary is the index row for a session.
type SessionSummary struct {
	ID            string    `json:"id"`
	ProjectName   string    `json:"project_name"`
	MethodologyID string    `json:"methodology_id"`
	DocumentsPath string    `json:"documents_path"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Summary returns the index row for the session.
func (s *Session) Summary() SessionSummary {
	return SessionSummary{
		ID:            s.ID,
		ProjectName:   s.Project.Name,
		MethodologyID: s.Project.MethodologyID,
		DocumentsPath: s.Project.DocumentsPath,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}
