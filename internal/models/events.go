package models

import "time"

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

type ConversionType string

const (
	ConversionAddToCart ConversionType = "add_to_cart"
	ConversionCheckout  ConversionType = "checkout"
)

func (c ConversionType) Valid() bool {
	return c == ConversionAddToCart || c == ConversionCheckout
}

// EventFilters is the enrichment and filter bag attached to a search event.
// Known enrichment keys are typed; anything else lands in Extra.
type EventFilters struct {
	DeviceType string         `json:"device_type,omitempty" firestore:"device_type,omitempty"`
	Locale     string         `json:"locale,omitempty" firestore:"locale,omitempty"`
	Country    string         `json:"country,omitempty" firestore:"country,omitempty"`
	Region     string         `json:"region,omitempty" firestore:"region,omitempty"`
	Timezone   string         `json:"timezone,omitempty" firestore:"timezone,omitempty"`
	Extra      map[string]any `json:"extra,omitempty" firestore:"extra,omitempty"`
}

// AsMap flattens the filters into a single key-value map. Typed fields win
// over Extra entries with the same key.
func (f EventFilters) AsMap() map[string]any {
	out := make(map[string]any, len(f.Extra)+5)
	for k, v := range f.Extra {
		out[k] = v
	}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set("device_type", f.DeviceType)
	set("locale", f.Locale)
	set("country", f.Country)
	set("region", f.Region)
	set("timezone", f.Timezone)
	return out
}

// SearchEvent is one query attempt as recorded by the storefront.
// CheckoutCompleted does not imply AddedToCart; source data may violate that.
type SearchEvent struct {
	ID                string       `json:"id" firestore:"id"`
	Query             string       `json:"query" firestore:"query"`
	OriginalQuery     string       `json:"original_query" firestore:"original_query"`
	Category          string       `json:"category,omitempty" firestore:"category,omitempty"`
	ResultsCount      int          `json:"results_count" firestore:"results_count"`
	UserID            string       `json:"user_id,omitempty" firestore:"user_id,omitempty"`
	SessionID         string       `json:"session_id,omitempty" firestore:"session_id,omitempty"`
	Timestamp         time.Time    `json:"timestamp" firestore:"timestamp"`
	Filters           EventFilters `json:"filters" firestore:"filters"`
	Intent            string       `json:"intent,omitempty" firestore:"intent,omitempty"`
	IntentConfidence  Confidence   `json:"intent_confidence,omitempty" firestore:"intent_confidence,omitempty"`
	AddedToCart       bool         `json:"added_to_cart" firestore:"added_to_cart"`
	CheckoutCompleted bool         `json:"checkout_completed" firestore:"checkout_completed"`
	OrderTotal        float64      `json:"order_total,omitempty" firestore:"order_total,omitempty"`
	ConvertedAt       *time.Time   `json:"converted_at,omitempty" firestore:"converted_at,omitempty"`
}

func (e *SearchEvent) IsGuest() bool {
	return e.UserID == ""
}

type ConvertedProduct struct {
	ProductID string  `json:"product_id" firestore:"product_id"`
	Name      string  `json:"name,omitempty" firestore:"name,omitempty"`
	Quantity  int     `json:"quantity" firestore:"quantity"`
	Price     float64 `json:"price" firestore:"price"`
}

// ConversionEvent is an append-only add-to-cart or checkout record tied to
// the session and normalized query that led to it.
type ConversionEvent struct {
	ID             string             `json:"id" firestore:"id"`
	SessionID      string             `json:"session_id" firestore:"session_id"`
	SearchQuery    string             `json:"search_query" firestore:"search_query"`
	ConversionType ConversionType     `json:"conversion_type" firestore:"conversion_type"`
	OrderTotal     float64            `json:"order_total,omitempty" firestore:"order_total,omitempty"`
	Products       []ConvertedProduct `json:"products,omitempty" firestore:"products,omitempty"`
	Timestamp      time.Time          `json:"timestamp" firestore:"timestamp"`
}

// RefinementEvent is one query/filter transition inside a session.
type RefinementEvent struct {
	ID                   string         `json:"id,omitempty" firestore:"id,omitempty"`
	SessionID            string         `json:"session_id" firestore:"session_id"`
	PreviousQuery        string         `json:"previous_query" firestore:"previous_query"`
	NewQuery             string         `json:"new_query" firestore:"new_query"`
	AddedFilters         map[string]any `json:"added_filters,omitempty" firestore:"added_filters,omitempty"`
	RemovedFilters       map[string]any `json:"removed_filters,omitempty" firestore:"removed_filters,omitempty"`
	PreviousResultsCount *int           `json:"previous_results_count,omitempty" firestore:"previous_results_count,omitempty"`
	NewResultsCount      *int           `json:"new_results_count,omitempty" firestore:"new_results_count,omitempty"`
	Timestamp            time.Time      `json:"timestamp" firestore:"timestamp"`
}

// SearchSession is derived from a batch of events on every request and is
// never mutated after construction.
type SearchSession struct {
	SessionID     string        `json:"session_id"`
	UserID        string        `json:"user_id,omitempty"`
	Queries       []string      `json:"queries"`
	Pattern       string        `json:"pattern"`
	TotalSearches int           `json:"total_searches"`
	Duration      int64         `json:"duration_ms"`
	StartedAt     time.Time     `json:"started_at"`
	EndedAt       time.Time     `json:"ended_at"`
	AddedToCart   bool          `json:"added_to_cart"`
	Converted     bool          `json:"converted"`
	Behavior      BehaviorLabel `json:"behavior,omitempty"`
}

type BehaviorLabel string

const (
	BehaviorNarrowing  BehaviorLabel = "Narrowing Search"
	BehaviorBroadening BehaviorLabel = "Broadening Search"
	BehaviorExploring  BehaviorLabel = "Exploring Options"
	BehaviorStatic     BehaviorLabel = "Single/Static Search"
)
