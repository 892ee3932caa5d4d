package llm

import (
	"sync"
	"time"

	"github.com/recalldev/recall/internal/config"
)

// modelPricing holds dollars per million tokens
type modelPricing struct {
	Input  float64
	Output float64
}

// defaultPricing covers the model families the service ships with;
// provider configs override it. Unknown models are accounted at zero
// cost rather than guessed.
var defaultPricing = map[string]modelPricing{
	"qwen3-embedding-8b": {Input: 0.01},
	"qwen3-reranker-8b":  {Input: 0.01},
	"qwen3-30b":          {Input: 0.10, Output: 0.30},
	"qwen3-235b":         {Input: 0.60, Output: 1.80},
}

// UsageTotals is a snapshot of accumulated gateway usage
type UsageTotals struct {
	Requests     int64     `json:"requests"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	CostDollars  float64   `json:"cost_dollars"`
	Since        time.Time `json:"since"`
}

// UsageTracker accumulates per-model token usage and estimated spend
type UsageTracker struct {
	mu      sync.Mutex
	pricing map[string]modelPricing
	totals  map[string]*UsageTotals
	since   time.Time
}

// NewUsageTracker builds a tracker from the built-in price table with
// the configured per-model prices layered on top.
func NewUsageTracker(prices map[string]config.ModelPrice) *UsageTracker {
	pricing := make(map[string]modelPricing, len(defaultPricing)+len(prices))
	for model, p := range defaultPricing {
		pricing[model] = p
	}
	for model, p := range prices {
		pricing[model] = modelPricing{Input: p.Input, Output: p.Output}
	}
	return &UsageTracker{
		pricing: pricing,
		totals:  make(map[string]*UsageTotals),
		since:   time.Now().UTC(),
	}
}

// Record accumulates one call's usage and returns its estimated cost.
func (t *UsageTracker) Record(model string, inputTokens, outputTokens int) float64 {
	p := t.pricing[model]
	cost := float64(inputTokens)/1e6*p.Input + float64(outputTokens)/1e6*p.Output

	t.mu.Lock()
	defer t.mu.Unlock()

	tot, ok := t.totals[model]
	if !ok {
		tot = &UsageTotals{Since: t.since}
		t.totals[model] = tot
	}
	tot.Requests++
	tot.InputTokens += int64(inputTokens)
	tot.OutputTokens += int64(outputTokens)
	tot.CostDollars += cost
	return cost
}

// Snapshot returns per-model usage totals.
func (t *UsageTracker) Snapshot() map[string]UsageTotals {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]UsageTotals, len(t.totals))
	for model, tot := range t.totals {
		out[model] = *tot
	}
	return out
}
