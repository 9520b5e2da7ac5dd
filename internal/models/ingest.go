package models

import (
	"fmt"
	"time"
)

type EventKind string

const (
	KindSearch     EventKind = "search"
	KindConversion EventKind = "conversion"
	KindRefinement EventKind = "refinement"
)

// EventEnvelope is the wire format on the ingest topic. Exactly one payload
// field is set, matching Kind.
type EventEnvelope struct {
	Kind       EventKind        `json:"kind"`
	Search     *SearchEvent     `json:"search,omitempty"`
	Conversion *ConversionEvent `json:"conversion,omitempty"`
	Refinement *RefinementEvent `json:"refinement,omitempty"`
	Filters    *FilterChange    `json:"filters,omitempty"`
	ReceivedAt time.Time        `json:"received_at"`
}

// FilterChange is the full filter state on both sides of a refinement.
// Ingest derives the added and removed filters from it.
type FilterChange struct {
	Previous EventFilters `json:"previous"`
	Next     EventFilters `json:"next"`
}

func (e *EventEnvelope) Validate() error {
	switch e.Kind {
	case KindSearch:
		if e.Search == nil {
			return fmt.Errorf("search envelope without payload")
		}
	case KindConversion:
		if e.Conversion == nil {
			return fmt.Errorf("conversion envelope without payload")
		}
		if !e.Conversion.ConversionType.Valid() {
			return fmt.Errorf("unknown conversion type %q", e.Conversion.ConversionType)
		}
	case KindRefinement:
		if e.Refinement == nil {
			return fmt.Errorf("refinement envelope without payload")
		}
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}

// Key is the partition key on the ingest topic; events of one session stay
// on one partition.
func (e *EventEnvelope) Key() string {
	switch e.Kind {
	case KindSearch:
		if e.Search.SessionID != "" {
			return e.Search.SessionID
		}
		return e.Search.UserID
	case KindConversion:
		return e.Conversion.SessionID
	case KindRefinement:
		return e.Refinement.SessionID
	}
	return ""
}

type ReportPerformance struct {
	Report       string    `json:"report"`
	LookbackDays int       `json:"lookback_days"`
	DurationMs   float64   `json:"duration_ms"`
	EventCount   int       `json:"event_count"`
	Skipped      int       `json:"skipped"`
	Severity     string    `json:"severity"`
	Timestamp    time.Time `json:"timestamp"`
	TraceID      string    `json:"trace_id"`
}
