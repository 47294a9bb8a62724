package models

import "time"

// Result represents one structured price extraction from a storefront
// search results page. Immutable once produced by the extraction engine.
type Result struct {
	Platform      string    `json:"platform"`
	StoreID       string    `json:"store_id"`
	StoreName     string    `json:"store_name"`
	StoreAddress  string    `json:"store_address"`
	DistanceMeter int       `json:"distance_meters"`
	ProductName   string    `json:"product_name"`
	Price         float64   `json:"price"`
	OriginalPrice float64   `json:"original_price"`
	Promotion     string    `json:"promotion"`
	InStock       bool      `json:"in_stock"`
	CrawledAt     time.Time `json:"crawled_at"`
}

// ProductQuery is a single search term submitted to the storefront.
type ProductQuery string

// QueryOutcome is one slot of a crawl run: exactly one of Results or
// FailReason is populated, never both, never neither.
type QueryOutcome struct {
	Query      ProductQuery `json:"query"`
	Results    []Result     `json:"results,omitempty"`
	FailReason string       `json:"fail_reason,omitempty"`
	FailKind   string       `json:"fail_kind,omitempty"`
}

// Failed reports whether this slot recorded a failure instead of results.
func (o QueryOutcome) Failed() bool {
	return o.FailReason != ""
}

// CrawlRun aggregates the configuration of one crawl with its ordered
// per-query outcomes. len(Outcomes) always equals len(Queries) once the
// run has finished.
type CrawlRun struct {
	ID           string         `json:"id"`
	Platform     string         `json:"platform"`
	Location     Location       `json:"location"`
	AIRequested  bool           `json:"ai_requested"`
	AIActive     bool           `json:"ai_active"`
	AIDowngraded bool           `json:"ai_downgraded"`
	Provider     string         `json:"provider,omitempty"`
	Queries      []ProductQuery `json:"queries"`
	Outcomes     []QueryOutcome `json:"outcomes"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	Usage        UsageRecord    `json:"usage"`
}

// Complete reports whether every requested query has exactly one
// recorded outcome.
func (r *CrawlRun) Complete() bool {
	if len(r.Outcomes) != len(r.Queries) {
		return false
	}
	for _, o := range r.Outcomes {
		if (len(o.Results) > 0) == o.Failed() {
			return false
		}
	}
	return true
}

// ResultCount returns the total number of price results across all slots.
func (r *CrawlRun) ResultCount() int {
	n := 0
	for _, o := range r.Outcomes {
		n += len(o.Results)
	}
	return n
}

// UsageRecord is the accumulated bookkeeping of navigation agent calls
// for one crawl run. Written only by the usage tracker.
type UsageRecord struct {
	Provider         string           `json:"provider,omitempty"`
	AgentCalls       int64            `json:"agent_calls"`
	CallsByGoal      map[string]int64 `json:"calls_by_goal,omitempty"`
	EstimatedCostUSD float64          `json:"estimated_cost_usd"`
}
