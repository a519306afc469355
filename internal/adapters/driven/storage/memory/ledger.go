package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
)

// Ensure CostLedger implements the interface.
var _ driven.CostLedger = (*CostLedger)(nil)

// CostLedger is an in-memory implementation of driven.CostLedger.
type CostLedger struct {
	mu      sync.RWMutex
	entries []domain.CostEntry
	failErr error
}

// NewCostLedger creates a new in-memory ledger.
func NewCostLedger() *CostLedger {
	return &CostLedger{}
}

// FailWith makes every subsequent Record return err. Intended for tests.
func (l *CostLedger) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failErr = err
}

// Record appends an entry.
func (l *CostLedger) Record(_ context.Context, entry domain.CostEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failErr != nil {
		return l.failErr
	}
	l.entries = append(l.entries, entry)
	return nil
}

// Entries lists entries for a session, oldest first. An empty id lists all.
func (l *CostLedger) Entries(_ context.Context, sessionID string) ([]domain.CostEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.CostEntry
	for _, e := range l.entries {
		if sessionID == "" || e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Summary aggregates entries for a session.
func (l *CostLedger) Summary(ctx context.Context, sessionID string) (*domain.CostSummary, error) {
	entries, err := l.Entries(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return Summarise(entries), nil
}

// Summarise aggregates ledger entries.
func Summarise(entries []domain.CostEntry) *domain.CostSummary {
	sum := &domain.CostSummary{ByOperation: []domain.OperationCost{}}
	byOp := make(map[string]*domain.OperationCost)
	for _, e := range entries {
		sum.TotalCalls++
		sum.TotalCostUSD += e.CostUSD
		sum.InputTokens += e.Usage.InputTokens
		sum.OutputTokens += e.Usage.OutputTokens
		op, ok := byOp[e.Operation]
		if !ok {
			op = &domain.OperationCost{Operation: e.Operation}
			byOp[e.Operation] = op
		}
		op.Calls++
		op.Tokens += e.Usage.Total()
		op.CostUSD += e.CostUSD
		if e.CacheHit {
			sum.CacheHits++
			op.CacheHits++
		}
	}
	for _, op := range byOp {
		sum.ByOperation = append(sum.ByOperation, *op)
	}
	sort.Slice(sum.ByOperation, func(i, j int) bool {
		return sum.ByOperation[i].Operation < sum.ByOperation[j].Operation
	})
	if sum.TotalCalls > 0 {
		sum.CacheHitRatio = float64(sum.CacheHits) / float64(sum.TotalCalls)
	}
	return sum
}
