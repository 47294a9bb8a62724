package usage

import (
	"sync"

	"priceradar/pkg/models"
)

// Flat per-call cost estimates in USD. These are coarse figures for a
// single short navigation exchange, not metered token accounting.
var costPerCall = map[string]float64{
	"anthropic": 0.03,
	"deepseek":  0.002,
	"openai":    0.02,
}

// Tracker accumulates AI usage over a crawl run. All methods are safe
// for concurrent use.
type Tracker struct {
	mu          sync.Mutex
	provider    string
	agentCalls  int64
	callsByGoal map[string]int64
}

// NewTracker creates a tracker for the given provider. An empty
// provider means AI is disabled and Record becomes a no-op.
func NewTracker(provider string) *Tracker {
	return &Tracker{
		provider:    provider,
		callsByGoal: make(map[string]int64),
	}
}

// Record counts one agent model call made in service of the given goal.
func (t *Tracker) Record(goal string) {
	if t.provider == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.agentCalls++
	t.callsByGoal[goal]++
}

// Calls returns the total number of agent model calls recorded.
func (t *Tracker) Calls() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.agentCalls
}

// Summary returns the usage record for the run so far.
func (t *Tracker) Summary() models.UsageRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	byGoal := make(map[string]int64, len(t.callsByGoal))
	for k, v := range t.callsByGoal {
		byGoal[k] = v
	}

	return models.UsageRecord{
		Provider:         t.provider,
		AgentCalls:       t.agentCalls,
		CallsByGoal:      byGoal,
		EstimatedCostUSD: float64(t.agentCalls) * costPerCall[t.provider],
	}
}
