package funnel

import (
	"sort"
	"time"

	"github.com/shubhsaxena/search-insights/internal/intent"
	"github.com/shubhsaxena/search-insights/internal/models"
)

// AttributedSearch is a search with its conversion times resolved. CartAt and
// CheckoutAt are nil when the corresponding conversion time is unknown.
type AttributedSearch struct {
	models.SearchEvent
	CartAt     *time.Time
	CheckoutAt *time.Time
}

type attributionKey struct {
	session string
	query   string
}

// Attribute copies searches and folds conversion events into them. Each
// conversion goes to the latest search in the same session with the same
// normalized query at or before the conversion time (last touch). Attribution
// only fills in what a search lacks; it never clears a flag. The second return
// value counts conversions that were skipped as malformed or unmatched.
func Attribute(searches []models.SearchEvent, conversions []models.ConversionEvent) ([]AttributedSearch, int) {
	out := make([]AttributedSearch, len(searches))
	index := make(map[attributionKey][]int)
	for i, s := range searches {
		out[i] = AttributedSearch{SearchEvent: s}
		if s.ConvertedAt != nil {
			at := *s.ConvertedAt
			if s.AddedToCart {
				out[i].CartAt = &at
			}
			if s.CheckoutCompleted {
				out[i].CheckoutAt = &at
			}
		}
		if s.SessionID == "" {
			continue
		}
		k := attributionKey{session: s.SessionID, query: queryKey(s)}
		index[k] = append(index[k], i)
	}
	for _, idxs := range index {
		sort.SliceStable(idxs, func(a, b int) bool {
			return out[idxs[a]].Timestamp.Before(out[idxs[b]].Timestamp)
		})
	}

	unmatched := 0
	for _, c := range conversions {
		if c.SessionID == "" || !c.ConversionType.Valid() {
			unmatched++
			continue
		}
		idxs := index[attributionKey{session: c.SessionID, query: intent.Normalize(c.SearchQuery)}]
		target := -1
		for _, i := range idxs {
			if out[i].Timestamp.After(c.Timestamp) {
				break
			}
			target = i
		}
		if target < 0 {
			unmatched++
			continue
		}

		s := &out[target]
		at := c.Timestamp
		switch c.ConversionType {
		case models.ConversionAddToCart:
			s.AddedToCart = true
			if s.CartAt == nil {
				s.CartAt = &at
			}
		case models.ConversionCheckout:
			s.CheckoutCompleted = true
			if s.CheckoutAt == nil {
				s.CheckoutAt = &at
			}
			if s.OrderTotal == 0 {
				s.OrderTotal = c.OrderTotal
			}
		}
		if s.ConvertedAt == nil {
			s.ConvertedAt = &at
		}
	}
	return out, unmatched
}

func queryKey(s models.SearchEvent) string {
	if s.Query != "" {
		return intent.Normalize(s.Query)
	}
	return intent.Normalize(s.OriginalQuery)
}
