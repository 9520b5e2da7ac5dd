// Package funnel computes search-to-checkout conversion metrics, per-term
// revenue attribution and day-bucketed conversion trends. Empty batches and
// zero denominators yield 0, never NaN or Inf.
package funnel

import (
	"sort"
	"time"

	"github.com/shubhsaxena/search-insights/internal/models"
)

// ComputeFunnelMetrics computes stage counts and percentages. The stage flags
// are independent: completed checkouts may exceed carts in source data and the
// percentages are still computed from the raw counts.
func ComputeFunnelMetrics(searches []models.SearchEvent, conversions []models.ConversionEvent) models.FunnelMetrics {
	attributed, _ := Attribute(searches, conversions)
	return metricsFor(attributed)
}

// Summary holds everything derived from one attribution pass. Searches are
// the attributed copies, suitable for GetConversionTrend.
type Summary struct {
	Metrics   models.FunnelMetrics
	Terms     []models.SearchTermRevenue
	Searches  []models.SearchEvent
	Unmatched int
}

// Summarize attributes conversions once and derives both the funnel metrics
// and the ranked term revenue from the same attributed batch.
func Summarize(searches []models.SearchEvent, conversions []models.ConversionEvent) Summary {
	attributed, unmatched := Attribute(searches, conversions)
	flat := make([]models.SearchEvent, len(attributed))
	for i, a := range attributed {
		flat[i] = a.SearchEvent
	}
	return Summary{
		Metrics:   metricsFor(attributed),
		Terms:     termRevenueFor(attributed),
		Searches:  flat,
		Unmatched: unmatched,
	}
}

func metricsFor(searches []AttributedSearch) models.FunnelMetrics {
	m := models.FunnelMetrics{TotalSearches: len(searches)}

	var cartTotal, checkoutTotal float64
	var cartN, checkoutN int
	for _, s := range searches {
		if s.ResultsCount > 0 {
			m.SearchesWithResults++
		}
		if s.AddedToCart {
			m.AddedToCart++
			if d, ok := elapsedMs(s.Timestamp, s.CartAt); ok {
				cartTotal += d
				cartN++
			}
		}
		if s.CheckoutCompleted {
			m.CompletedCheckout++
			m.TotalRevenue += s.OrderTotal
			if d, ok := elapsedMs(s.Timestamp, s.CheckoutAt); ok {
				checkoutTotal += d
				checkoutN++
			}
		}
	}

	m.SearchToView = percent(m.SearchesWithResults, m.TotalSearches)
	m.ViewToCart = stagePercent(m.AddedToCart, m.SearchesWithResults)
	m.CartToCheckout = stagePercent(m.CompletedCheckout, m.AddedToCart)
	m.AvgRevenuePerSearch = ratio(m.TotalRevenue, m.TotalSearches)
	m.AvgTimeToCart = ratio(cartTotal, cartN)
	m.AvgTimeToCheckout = ratio(checkoutTotal, checkoutN)
	return m
}

// ComputeSearchTermRevenue aggregates per normalized query. Output is ordered
// by total revenue descending, then search count descending, then query.
func ComputeSearchTermRevenue(searches []models.SearchEvent, conversions []models.ConversionEvent) []models.SearchTermRevenue {
	attributed, _ := Attribute(searches, conversions)
	return termRevenueFor(attributed)
}

func termRevenueFor(searches []AttributedSearch) []models.SearchTermRevenue {
	byTerm := make(map[string]*models.SearchTermRevenue)
	for _, s := range searches {
		key := queryKey(s.SearchEvent)
		if key == "" {
			continue
		}
		t, ok := byTerm[key]
		if !ok {
			t = &models.SearchTermRevenue{Query: key}
			byTerm[key] = t
		}
		t.SearchCount++
		if s.CheckoutCompleted {
			t.Conversions++
			t.TotalRevenue += s.OrderTotal
		}
	}

	out := make([]models.SearchTermRevenue, 0, len(byTerm))
	for _, t := range byTerm {
		t.ConversionRate = percent(t.Conversions, t.SearchCount)
		t.RevenuePerSearch = ratio(t.TotalRevenue, t.SearchCount)
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalRevenue != out[j].TotalRevenue {
			return out[i].TotalRevenue > out[j].TotalRevenue
		}
		if out[i].SearchCount != out[j].SearchCount {
			return out[i].SearchCount > out[j].SearchCount
		}
		return out[i].Query < out[j].Query
	})
	return out
}

// TopTerms returns at most n entries of ranked term revenue.
func TopTerms(terms []models.SearchTermRevenue, n int) []models.SearchTermRevenue {
	if n >= 0 && len(terms) > n {
		return terms[:n]
	}
	return terms
}

// ZeroResultQueries counts searches that returned nothing, grouped by
// normalized query, most frequent first. Suggestions are left for the caller.
func ZeroResultQueries(searches []models.SearchEvent, n int) []models.ZeroResultQuery {
	counts := make(map[string]int)
	for _, s := range searches {
		if s.ResultsCount > 0 {
			continue
		}
		if key := queryKey(s); key != "" {
			counts[key]++
		}
	}

	out := make([]models.ZeroResultQuery, 0, len(counts))
	for q, c := range counts {
		out = append(out, models.ZeroResultQuery{Query: q, Count: c, Suggestions: []models.Suggestion{}})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Query < out[j].Query
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// GetConversionTrend buckets searches by UTC calendar day over the trailing
// window of days ending on now's day, inclusive. Days without searches are
// omitted; rows are in ascending date order.
func GetConversionTrend(searches []models.SearchEvent, days int, now time.Time) []models.TrendPoint {
	out := []models.TrendPoint{}
	if days <= 0 {
		return out
	}

	today := truncateDay(now.UTC())
	start := today.AddDate(0, 0, -(days - 1))
	end := today.AddDate(0, 0, 1)

	type bucket struct{ searches, checkouts int }
	buckets := make(map[string]*bucket)
	for _, s := range searches {
		ts := s.Timestamp.UTC()
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		key := ts.Format("2006-01-02")
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		b.searches++
		if s.CheckoutCompleted {
			b.checkouts++
		}
	}

	for date, b := range buckets {
		out = append(out, models.TrendPoint{
			Date:           date,
			SearchCount:    b.searches,
			ConversionRate: percent(b.checkouts, b.searches),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func elapsedMs(from time.Time, to *time.Time) (float64, bool) {
	if to == nil || to.Before(from) {
		return 0, false
	}
	return float64(to.Sub(from).Milliseconds()), true
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return 100 * float64(part) / float64(whole)
}

// stagePercent divides by max(whole, 1), so a later stage with no earlier
// stage still reports its raw count as a percentage instead of vanishing.
func stagePercent(part, whole int) float64 {
	if whole < 1 {
		whole = 1
	}
	return 100 * float64(part) / float64(whole)
}

func ratio(total float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return total / float64(n)
}
