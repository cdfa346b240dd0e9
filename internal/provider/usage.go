package provider

import (
	"sync"
)

// ModelPrice is the cost per million tokens for one model
type ModelPrice struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// defaultPrices covers the models this service commonly runs. Unknown
// models accumulate tokens but report zero cost.
var defaultPrices = map[string]ModelPrice{
	"gpt-4o":                   {InputPerMTok: 2.50, OutputPerMTok: 10.00},
	"gpt-4o-mini":              {InputPerMTok: 0.15, OutputPerMTok: 0.60},
	"claude-sonnet-4-20250514": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-3-5-haiku-latest":  {InputPerMTok: 0.80, OutputPerMTok: 4.00},
	"glm-4-plus":               {InputPerMTok: 0.60, OutputPerMTok: 0.60},
}

// UsageTracker accumulates token usage and estimated cost per session
type UsageTracker struct {
	mu     sync.Mutex
	prices map[string]ModelPrice
	bySess map[string]*SessionUsage
}

// SessionUsage is the accumulated usage for one session
type SessionUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Calls        int     `json:"calls"`
	CostUSD      float64 `json:"cost_usd"`
}

// NewUsageTracker creates a tracker with the default price table
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{
		prices: defaultPrices,
		bySess: make(map[string]*SessionUsage),
	}
}

// SetPrice overrides the price entry for a model
func (t *UsageTracker) SetPrice(model string, price ModelPrice) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prices[model] = price
}

// Record adds one call's usage to a session's totals
func (t *UsageTracker) Record(sessionID, model string, usage Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.bySess[sessionID]
	if !ok {
		s = &SessionUsage{}
		t.bySess[sessionID] = s
	}

	s.InputTokens += usage.InputTokens
	s.OutputTokens += usage.OutputTokens
	s.Calls++

	if price, ok := t.prices[model]; ok {
		s.CostUSD += float64(usage.InputTokens) / 1e6 * price.InputPerMTok
		s.CostUSD += float64(usage.OutputTokens) / 1e6 * price.OutputPerMTok
	}
}

// Session returns a copy of the accumulated usage for a session
func (t *UsageTracker) Session(sessionID string) SessionUsage {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.bySess[sessionID]; ok {
		return *s
	}
	return SessionUsage{}
}

// Forget drops the accumulated usage for a session
func (t *UsageTracker) Forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.bySess, sessionID)
}
