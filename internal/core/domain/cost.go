package domain

import (
	"strings"
	"time"
)

// TokenUsage is the token count reported by a backend call.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// CostEntry is one ledger row.
type CostEntry struct {
	ID         string
	SessionID  string
	Model      string
	Operation  string
	Usage      TokenUsage
	CostUSD    float64
	Duration   time.Duration
	CacheHit   bool
	RecordedAt time.Time
}

// OperationCost aggregates entries sharing an operation label.
type OperationCost struct {
	Operation string  `json:"operation"`
	Calls     int     `json:"calls"`
	CacheHits int     `json:"cache_hits"`
	Tokens    int     `json:"tokens"`
	CostUSD   float64 `json:"cost_usd"`
}

// CostSummary is the ledger aggregation.
type CostSummary struct {
	TotalCostUSD  float64         `json:"total_cost_usd"`
	TotalCalls    int             `json:"total_calls"`
	CacheHits     int             `json:"cache_hits"`
	InputTokens   int             `json:"input_tokens"`
	OutputTokens  int             `json:"output_tokens"`
	ByOperation   []OperationCost `json:"by_operation"`
	CacheHitRatio float64         `json:"cache_hit_ratio"`
}

// ModelPrice is USD per million tokens.
type ModelPrice struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

var modelPrices = map[string]ModelPrice{
	"claude-sonnet-4":  {InputPerMillion: 3, OutputPerMillion: 15},
	"claude-opus-4":    {InputPerMillion: 15, OutputPerMillion: 75},
	"claude-haiku-4":   {InputPerMillion: 1, OutputPerMillion: 5},
	"claude-3-5-haiku": {InputPerMillion: 0.8, OutputPerMillion: 4},
	"gpt-4o-mini":      {InputPerMillion: 0.15, OutputPerMillion: 0.6},
	"gpt-4o":           {InputPerMillion: 2.5, OutputPerMillion: 10},
	"gpt-4.1":          {InputPerMillion: 2, OutputPerMillion: 8},
}

// EstimateCost prices a call. Models are matched by longest known prefix;
// unknown models cost zero.
func EstimateCost(model string, usage TokenUsage) float64 {
	var price ModelPrice
	best := -1
	for prefix, p := range modelPrices {
		if strings.HasPrefix(model, prefix) && len(prefix) > best {
			price, best = p, len(prefix)
		}
	}
	if best < 0 {
		return 0
	}
	return float64(usage.InputTokens)*price.InputPerMillion/1e6 +
		float64(usage.OutputTokens)*price.OutputPerMillion/1e6
}
