package models

import "time"

type IntentResult struct {
	Intent     string     `json:"intent"`
	Confidence Confidence `json:"confidence"`
	Keywords   []string   `json:"keywords"`
}

type SuggestionType string

const (
	SuggestionTypo        SuggestionType = "typo"
	SuggestionSynonym     SuggestionType = "synonym"
	SuggestionRelated     SuggestionType = "related"
	SuggestionAlternative SuggestionType = "alternative"
)

type Suggestion struct {
	Type       SuggestionType `json:"type"`
	Original   string         `json:"original"`
	Suggestion string         `json:"suggestion"`
	Confidence float64        `json:"confidence"`
	Reason     string         `json:"reason"`
}

type ConversionPath struct {
	Path        string `json:"path"`
	Conversions int    `json:"conversions"`
}

type QueryPattern struct {
	Pattern        string  `json:"pattern"`
	Count          int     `json:"count"`
	ConversionRate float64 `json:"conversion_rate"`
}

type SessionFlowAnalysis struct {
	TotalSessions         int                   `json:"total_sessions"`
	AvgSearchesPerSession float64               `json:"avg_searches_per_session"`
	ConversionRate        float64               `json:"conversion_rate"`
	AddToCartRate         float64               `json:"add_to_cart_rate"`
	AbandonmentRate       float64               `json:"abandonment_rate"`
	TopConversionPaths    []ConversionPath      `json:"top_conversion_paths"`
	CommonPatterns        []QueryPattern        `json:"common_patterns"`
	BehaviorBreakdown     map[BehaviorLabel]int `json:"behavior_breakdown"`
}

type FunnelMetrics struct {
	TotalSearches       int     `json:"total_searches"`
	SearchesWithResults int     `json:"searches_with_results"`
	AddedToCart         int     `json:"added_to_cart"`
	CompletedCheckout   int     `json:"completed_checkout"`
	SearchToView        float64 `json:"search_to_view"`
	ViewToCart          float64 `json:"view_to_cart"`
	CartToCheckout      float64 `json:"cart_to_checkout"`
	TotalRevenue        float64 `json:"total_revenue"`
	AvgRevenuePerSearch float64 `json:"avg_revenue_per_search"`
	AvgTimeToCart       float64 `json:"avg_time_to_cart_ms"`
	AvgTimeToCheckout   float64 `json:"avg_time_to_checkout_ms"`
}

type SearchTermRevenue struct {
	Query            string  `json:"query"`
	SearchCount      int     `json:"search_count"`
	Conversions      int     `json:"conversions"`
	ConversionRate   float64 `json:"conversion_rate"`
	TotalRevenue     float64 `json:"total_revenue"`
	RevenuePerSearch float64 `json:"revenue_per_search"`
}

type TrendPoint struct {
	Date           string  `json:"date"`
	SearchCount    int     `json:"search_count"`
	ConversionRate float64 `json:"conversion_rate"`
}

type PathNode struct {
	Query        string         `json:"query"`
	Filters      map[string]any `json:"filters,omitempty"`
	ResultsCount *int           `json:"results_count,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

type StuckIndicators struct {
	ExcessiveRefinements bool `json:"excessive_refinements"`
	LoopsDetected        bool `json:"loops_detected"`
	RepeatedZeroResults  bool `json:"repeated_zero_results"`
}

type RefinementSessionAnalysis struct {
	SessionID            string          `json:"session_id"`
	TotalRefinements     int             `json:"total_refinements"`
	Path                 []PathNode      `json:"path"`
	StuckIndicators      StuckIndicators `json:"stuck_indicators"`
	MostCommonTransition string          `json:"most_common_transition"`
}

func (a *RefinementSessionAnalysis) IsStuck() bool {
	s := a.StuckIndicators
	return s.ExcessiveRefinements || s.LoopsDetected || s.RepeatedZeroResults
}

type ZeroResultQuery struct {
	Query       string       `json:"query"`
	Count       int          `json:"count"`
	Suggestions []Suggestion `json:"suggestions"`
}

// Report envelopes returned by the orchestrator. Skipped counts malformed
// records dropped while building the report.

type SessionFlowReport struct {
	LookbackDays int                 `json:"lookback_days"`
	GeneratedAt  time.Time           `json:"generated_at"`
	EventCount   int                 `json:"event_count"`
	Skipped      int                 `json:"skipped"`
	Analysis     SessionFlowAnalysis `json:"analysis"`
	Sessions     []SearchSession     `json:"sessions"`
}

type FunnelReport struct {
	LookbackDays      int                 `json:"lookback_days"`
	GeneratedAt       time.Time           `json:"generated_at"`
	EventCount        int                 `json:"event_count"`
	Skipped           int                 `json:"skipped"`
	Unmatched         int                 `json:"unmatched_conversions"`
	Metrics           FunnelMetrics       `json:"metrics"`
	TopTerms          []SearchTermRevenue `json:"top_terms"`
	Trend             []TrendPoint        `json:"trend"`
	ZeroResultQueries []ZeroResultQuery   `json:"zero_result_queries"`
}

type RevenueReport struct {
	LookbackDays int                 `json:"lookback_days"`
	GeneratedAt  time.Time           `json:"generated_at"`
	EventCount   int                 `json:"event_count"`
	Skipped      int                 `json:"skipped"`
	Unmatched    int                 `json:"unmatched_conversions"`
	Terms        []SearchTermRevenue `json:"terms"`
}

type TrendReport struct {
	LookbackDays int          `json:"lookback_days"`
	GeneratedAt  time.Time    `json:"generated_at"`
	EventCount   int          `json:"event_count"`
	Points       []TrendPoint `json:"points"`
}

type RefinementReport struct {
	LookbackDays  int                         `json:"lookback_days"`
	GeneratedAt   time.Time                   `json:"generated_at"`
	EventCount    int                         `json:"event_count"`
	Skipped       int                         `json:"skipped"`
	StuckSessions int                         `json:"stuck_sessions"`
	Sessions      []RefinementSessionAnalysis `json:"sessions"`
}
