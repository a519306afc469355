package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
)

func TestCostLedger_Summary(t *testing.T) {
	l := NewCostLedger()
	ctx := context.Background()

	entries := []domain.CostEntry{
		{SessionID: "s1", Operation: "extract_chunk", Usage: domain.TokenUsage{InputTokens: 100, OutputTokens: 50}, CostUSD: 0.5},
		{SessionID: "s1", Operation: "extract_chunk", CacheHit: true},
		{SessionID: "s1", Operation: "ping", Usage: domain.TokenUsage{InputTokens: 1, OutputTokens: 1}, CostUSD: 0.01},
		{SessionID: "s2", Operation: "extract_chunk", CostUSD: 9},
	}
	for _, e := range entries {
		require.NoError(t, l.Record(ctx, e))
	}

	sum, err := l.Summary(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, sum.TotalCalls)
	assert.Equal(t, 1, sum.CacheHits)
	assert.InDelta(t, 0.51, sum.TotalCostUSD, 1e-9)
	assert.InDelta(t, 1.0/3.0, sum.CacheHitRatio, 1e-9)
	require.Len(t, sum.ByOperation, 2)
	assert.Equal(t, "extract_chunk", sum.ByOperation[0].Operation)
	assert.Equal(t, 2, sum.ByOperation[0].Calls)
	assert.Equal(t, 150, sum.ByOperation[0].Tokens)

	all, err := l.Summary(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 4, all.TotalCalls)
}

func TestCostLedger_EmptySummary(t *testing.T) {
	sum, err := NewCostLedger().Summary(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, sum.TotalCalls)
	assert.Zero(t, sum.CacheHitRatio)
	assert.NotNil(t, sum.ByOperation)
}

func TestCostLedger_FailWith(t *testing.T) {
	l := NewCostLedger()
	l.FailWith(errors.New("disk full"))
	assert.Error(t, l.Record(context.Background(), domain.CostEntry{}))
}
