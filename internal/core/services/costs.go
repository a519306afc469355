package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/logger"
)

// Cost ledger operation labels.
const (
	OperationExtractChunk    = "extract_chunk"
	OperationExtractDocument = "extract_document"
)

// CostRecorder wraps a CostLedger so accounting never fails the operation
// it observes. Write failures are logged and dropped.
type CostRecorder struct {
	ledger driven.CostLedger
	now    func() time.Time
}

// NewCostRecorder creates a recorder. A nil ledger records nothing.
func NewCostRecorder(ledger driven.CostLedger) *CostRecorder {
	return &CostRecorder{ledger: ledger, now: time.Now}
}

// RecordCall records a paid model call priced from the model's token rates.
func (r *CostRecorder) RecordCall(ctx context.Context, sessionID, model, operation string, usage domain.TokenUsage, duration time.Duration) {
	r.Record(ctx, domain.CostEntry{
		SessionID: sessionID,
		Model:     model,
		Operation: operation,
		Usage:     usage,
		CostUSD:   domain.EstimateCost(model, usage),
		Duration:  duration,
	})
}

// RecordCacheHit records a zero-cost entry for work served from the cache.
func (r *CostRecorder) RecordCacheHit(ctx context.Context, sessionID, model, operation string) {
	r.Record(ctx, domain.CostEntry{
		SessionID: sessionID,
		Model:     model,
		Operation: operation,
		CacheHit:  true,
	})
}

// Record appends an entry, filling in its id and timestamp.
func (r *CostRecorder) Record(ctx context.Context, entry domain.CostEntry) {
	if r == nil || r.ledger == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = r.now().UTC()
	}
	if err := r.ledger.Record(ctx, entry); err != nil {
		logger.Warn("cost ledger write failed for session %s: %v", entry.SessionID, err)
	}
}

// Summary aggregates the ledger for a session. Read failures yield an empty
// summary.
func (r *CostRecorder) Summary(ctx context.Context, sessionID string) domain.CostSummary {
	empty := domain.CostSummary{ByOperation: []domain.OperationCost{}}
	if r == nil || r.ledger == nil {
		return empty
	}
	sum, err := r.ledger.Summary(ctx, sessionID)
	if err != nil {
		logger.Warn("cost ledger summary failed for session %s: %v", sessionID, err)
		return empty
	}
	return *sum
}
