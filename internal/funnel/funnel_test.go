package funnel

import (
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/shubhsaxena/search-insights/internal/models"
)

var now = time.Date(2024, 6, 10, 15, 0, 0, 0, time.UTC)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func ptr(t time.Time) *time.Time { return &t }

func TestComputeFunnelMetrics_Empty(t *testing.T) {
	m := ComputeFunnelMetrics(nil, nil)

	vals := []float64{m.SearchToView, m.ViewToCart, m.CartToCheckout, m.TotalRevenue,
		m.AvgRevenuePerSearch, m.AvgTimeToCart, m.AvgTimeToCheckout}
	for i, v := range vals {
		if v != 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("value %d = %v, want 0", i, v)
		}
	}
}

// 100 searches over 7 days, all with results; 10 added to cart, 4 of those
// checked out at 500 each.
func endToEndBatch() []models.SearchEvent {
	var out []models.SearchEvent
	for i := 0; i < 100; i++ {
		ts := now.Add(-time.Duration(i%7) * 24 * time.Hour).Add(-time.Duration(i) * time.Minute)
		s := models.SearchEvent{
			ID:           fmt.Sprintf("e%d", i),
			SessionID:    fmt.Sprintf("s%d", i/5),
			Query:        fmt.Sprintf("q%d", i%10),
			ResultsCount: 12,
			Timestamp:    ts,
		}
		if i < 10 {
			s.AddedToCart = true
			s.ConvertedAt = ptr(ts.Add(30 * time.Second))
		}
		if i < 4 {
			s.CheckoutCompleted = true
			s.OrderTotal = 500
		}
		out = append(out, s)
	}
	return out
}

func TestComputeFunnelMetrics_EndToEnd(t *testing.T) {
	m := ComputeFunnelMetrics(endToEndBatch(), nil)

	if m.TotalSearches != 100 || m.SearchesWithResults != 100 || m.AddedToCart != 10 || m.CompletedCheckout != 4 {
		t.Fatalf("unexpected counts %+v", m)
	}
	if !approx(m.SearchToView, 100) {
		t.Errorf("searchToView = %v, want 100", m.SearchToView)
	}
	if !approx(m.ViewToCart, 10) {
		t.Errorf("viewToCart = %v, want 10", m.ViewToCart)
	}
	if !approx(m.CartToCheckout, 40) {
		t.Errorf("cartToCheckout = %v, want 40", m.CartToCheckout)
	}
	if !approx(m.TotalRevenue, 2000) {
		t.Errorf("totalRevenue = %v, want 2000", m.TotalRevenue)
	}
	if !approx(m.AvgRevenuePerSearch, 20) {
		t.Errorf("avgRevenuePerSearch = %v, want 20", m.AvgRevenuePerSearch)
	}
	if !approx(m.AvgTimeToCart, 30000) {
		t.Errorf("avgTimeToCart = %v, want 30000", m.AvgTimeToCart)
	}
	if !approx(m.AvgTimeToCheckout, 30000) {
		t.Errorf("avgTimeToCheckout = %v, want 30000", m.AvgTimeToCheckout)
	}
}

func TestComputeFunnelMetrics_NonMonotonicSource(t *testing.T) {
	// More checkouts than carts and more carts than searches with results.
	searches := []models.SearchEvent{
		{ResultsCount: 0, AddedToCart: true, CheckoutCompleted: true, OrderTotal: 10},
		{ResultsCount: 0, CheckoutCompleted: true, OrderTotal: 20},
		{ResultsCount: 5},
		{ResultsCount: 0, CheckoutCompleted: true},
	}
	m := ComputeFunnelMetrics(searches, nil)

	if m.SearchesWithResults != 1 || m.AddedToCart != 1 || m.CompletedCheckout != 3 {
		t.Fatalf("unexpected counts %+v", m)
	}
	if !approx(m.SearchToView, 25) {
		t.Errorf("searchToView = %v, want 25", m.SearchToView)
	}
	if !approx(m.ViewToCart, 100) {
		t.Errorf("viewToCart = %v, want 100", m.ViewToCart)
	}
	if !approx(m.CartToCheckout, 300) {
		t.Errorf("cartToCheckout = %v, want 300", m.CartToCheckout)
	}
	if !approx(m.TotalRevenue, 30) {
		t.Errorf("totalRevenue = %v, want 30", m.TotalRevenue)
	}
}

func TestComputeFunnelMetrics_StageWithoutPriorStage(t *testing.T) {
	searches := []models.SearchEvent{{ResultsCount: 0, AddedToCart: true}}
	m := ComputeFunnelMetrics(searches, nil)
	if !approx(m.ViewToCart, 100) {
		t.Errorf("viewToCart = %v, want 100 (denominator floored at 1)", m.ViewToCart)
	}
	if m.CartToCheckout != 0 {
		t.Errorf("cartToCheckout = %v, want 0", m.CartToCheckout)
	}
}

func TestComputeFunnelMetrics_ConvertedBeforeSearchIgnored(t *testing.T) {
	ts := now
	searches := []models.SearchEvent{
		{Timestamp: ts, AddedToCart: true, ConvertedAt: ptr(ts.Add(-time.Minute))},
		{Timestamp: ts, AddedToCart: true, ConvertedAt: ptr(ts.Add(2 * time.Second))},
		{Timestamp: ts, AddedToCart: true},
	}
	m := ComputeFunnelMetrics(searches, nil)
	if !approx(m.AvgTimeToCart, 2000) {
		t.Errorf("avgTimeToCart = %v, want 2000", m.AvgTimeToCart)
	}
}

func TestAttribute_LastTouch(t *testing.T) {
	searches := []models.SearchEvent{
		{ID: "a", SessionID: "s1", Query: "rtx 4070", Timestamp: now},
		{ID: "b", SessionID: "s1", Query: "rtx 4070", Timestamp: now.Add(time.Minute)},
		{ID: "c", SessionID: "s1", Query: "rtx 4070", Timestamp: now.Add(10 * time.Minute)},
		{ID: "d", SessionID: "s2", Query: "rtx 4070", Timestamp: now},
	}
	conversions := []models.ConversionEvent{
		{SessionID: "s1", SearchQuery: "RTX 4070", ConversionType: models.ConversionAddToCart, Timestamp: now.Add(2 * time.Minute)},
		{SessionID: "s1", SearchQuery: "rtx 4070", ConversionType: models.ConversionCheckout, OrderTotal: 599, Timestamp: now.Add(5 * time.Minute)},
		{SessionID: "s3", SearchQuery: "rtx 4070", ConversionType: models.ConversionCheckout, Timestamp: now},
		{SessionID: "", SearchQuery: "rtx 4070", ConversionType: models.ConversionCheckout, Timestamp: now},
		{SessionID: "s1", SearchQuery: "rtx 4070", ConversionType: "refund", Timestamp: now},
	}

	out, unmatched := Attribute(searches, conversions)
	if unmatched != 3 {
		t.Errorf("expected 3 unmatched conversions, got %d", unmatched)
	}

	b := out[1]
	if !b.AddedToCart || !b.CheckoutCompleted || b.OrderTotal != 599 {
		t.Errorf("search b should carry both conversions: %+v", b)
	}
	if b.CartAt == nil || b.CartAt.Sub(b.Timestamp) != time.Minute {
		t.Errorf("unexpected cart time %v", b.CartAt)
	}
	if b.CheckoutAt == nil || b.CheckoutAt.Sub(b.Timestamp) != 4*time.Minute {
		t.Errorf("unexpected checkout time %v", b.CheckoutAt)
	}
	for _, i := range []int{0, 2, 3} {
		if out[i].AddedToCart || out[i].CheckoutCompleted {
			t.Errorf("search %s should not be attributed: %+v", out[i].ID, out[i])
		}
	}
	if searches[1].AddedToCart {
		t.Error("Attribute must not mutate its input")
	}
}

func TestAttribute_NeverClearsFlags(t *testing.T) {
	searches := []models.SearchEvent{
		{SessionID: "s1", Query: "gpu", Timestamp: now, CheckoutCompleted: true, OrderTotal: 100},
	}
	conversions := []models.ConversionEvent{
		{SessionID: "s1", SearchQuery: "gpu", ConversionType: models.ConversionCheckout, OrderTotal: 999, Timestamp: now.Add(time.Second)},
	}
	out, _ := Attribute(searches, conversions)
	if !out[0].CheckoutCompleted || out[0].OrderTotal != 100 {
		t.Errorf("existing order total should win: %+v", out[0])
	}
}

func TestComputeFunnelMetrics_WithConversions(t *testing.T) {
	searches := []models.SearchEvent{
		{SessionID: "s1", Query: "gpu", ResultsCount: 3, Timestamp: now},
		{SessionID: "s2", Query: "cpu", ResultsCount: 3, Timestamp: now},
	}
	conversions := []models.ConversionEvent{
		{SessionID: "s1", SearchQuery: "gpu", ConversionType: models.ConversionAddToCart, Timestamp: now.Add(10 * time.Second)},
		{SessionID: "s1", SearchQuery: "gpu", ConversionType: models.ConversionCheckout, OrderTotal: 300, Timestamp: now.Add(40 * time.Second)},
	}
	m := ComputeFunnelMetrics(searches, conversions)
	if m.AddedToCart != 1 || m.CompletedCheckout != 1 || m.TotalRevenue != 300 {
		t.Fatalf("unexpected metrics %+v", m)
	}
	if !approx(m.AvgTimeToCart, 10000) || !approx(m.AvgTimeToCheckout, 40000) {
		t.Errorf("unexpected times cart=%v checkout=%v", m.AvgTimeToCart, m.AvgTimeToCheckout)
	}
}

func TestComputeSearchTermRevenue(t *testing.T) {
	searches := []models.SearchEvent{
		{Query: "rtx 4070", CheckoutCompleted: true, OrderTotal: 600},
		{Query: "RTX  4070"},
		{Query: "rtx 4070"},
		{Query: "rtx 4070", CheckoutCompleted: true, OrderTotal: 600},
		{Query: "ram", CheckoutCompleted: true, OrderTotal: 100},
		{Query: "cpu"},
		{Query: "cpu"},
		{OriginalQuery: "SSD"},
		{},
	}

	got := ComputeSearchTermRevenue(searches, nil)
	if len(got) != 4 {
		t.Fatalf("expected 4 terms, got %d: %+v", len(got), got)
	}

	top := got[0]
	if top.Query != "rtx 4070" || top.SearchCount != 4 || top.Conversions != 2 {
		t.Errorf("unexpected top term %+v", top)
	}
	if !approx(top.ConversionRate, 50) || !approx(top.TotalRevenue, 1200) || !approx(top.RevenuePerSearch, 300) {
		t.Errorf("unexpected top term rates %+v", top)
	}
	if got[1].Query != "ram" {
		t.Errorf("expected ram second, got %q", got[1].Query)
	}
	// zero-revenue ties: higher search count first
	if got[2].Query != "cpu" || got[3].Query != "ssd" {
		t.Errorf("unexpected tail order %q, %q", got[2].Query, got[3].Query)
	}
}

func TestTopTerms(t *testing.T) {
	terms := make([]models.SearchTermRevenue, 20)
	if len(TopTerms(terms, 15)) != 15 {
		t.Error("expected truncation to 15")
	}
	if len(TopTerms(terms[:3], 15)) != 3 {
		t.Error("expected short list untouched")
	}
}

func TestZeroResultQueries(t *testing.T) {
	searches := []models.SearchEvent{
		{Query: "rtx 4009", ResultsCount: 0},
		{Query: "rtx 4009", ResultsCount: 0},
		{Query: "ryzne", ResultsCount: 0},
		{Query: "gpu", ResultsCount: 10},
	}
	got := ZeroResultQueries(searches, 10)
	if len(got) != 2 || got[0].Query != "rtx 4009" || got[0].Count != 2 {
		t.Errorf("unexpected zero-result queries %+v", got)
	}
	if len(ZeroResultQueries(searches, 1)) != 1 {
		t.Error("expected limit to apply")
	}
}

func TestGetConversionTrend(t *testing.T) {
	searches := []models.SearchEvent{
		{Timestamp: now, CheckoutCompleted: true},
		{Timestamp: now.Add(-time.Hour)},
		{Timestamp: now.Add(-24 * time.Hour)},
		{Timestamp: now.Add(-24 * time.Hour), CheckoutCompleted: true},
		{Timestamp: now.Add(-24 * time.Hour), CheckoutCompleted: true},
		{Timestamp: now.Add(-24 * time.Hour)},
		{Timestamp: now.Add(-7 * 24 * time.Hour)}, // outside a 7 day window
		{Timestamp: now.Add(24 * time.Hour)},      // future
	}

	got := GetConversionTrend(searches, 7, now)
	if len(got) != 2 {
		t.Fatalf("expected 2 days, got %d: %+v", len(got), got)
	}
	if got[0].Date != "2024-06-09" || got[0].SearchCount != 4 || !approx(got[0].ConversionRate, 50) {
		t.Errorf("unexpected first row %+v", got[0])
	}
	if got[1].Date != "2024-06-10" || got[1].SearchCount != 2 || !approx(got[1].ConversionRate, 50) {
		t.Errorf("unexpected second row %+v", got[1])
	}
}

func TestGetConversionTrend_NonPositiveDays(t *testing.T) {
	searches := []models.SearchEvent{{Timestamp: now}}
	for _, d := range []int{0, -3} {
		if got := GetConversionTrend(searches, d, now); got == nil || len(got) != 0 {
			t.Errorf("days=%d: expected empty slice, got %v", d, got)
		}
	}
}

func TestDeterminism_PermutationInvariant(t *testing.T) {
	batch := endToEndBatch()
	want := ComputeFunnelMetrics(batch, nil)
	wantTerms := ComputeSearchTermRevenue(batch, nil)

	r := rand.New(rand.NewSource(42))
	for i := 0; i < 5; i++ {
		shuffled := make([]models.SearchEvent, len(batch))
		copy(shuffled, batch)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := ComputeFunnelMetrics(shuffled, nil)
		if got.TotalSearches != want.TotalSearches || got.AddedToCart != want.AddedToCart ||
			got.CompletedCheckout != want.CompletedCheckout || !approx(got.TotalRevenue, want.TotalRevenue) ||
			!approx(got.AvgTimeToCart, want.AvgTimeToCart) {
			t.Errorf("metrics changed under permutation: %+v vs %+v", got, want)
		}

		terms := ComputeSearchTermRevenue(shuffled, nil)
		for j := range wantTerms {
			if terms[j].Query != wantTerms[j].Query || terms[j].SearchCount != wantTerms[j].SearchCount {
				t.Errorf("term %d changed under permutation", j)
			}
		}
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(endToEndBatch(), []models.ConversionEvent{{SessionID: "nope", ConversionType: models.ConversionCheckout}})
	if s.Metrics.TotalSearches != 100 || len(s.Terms) != 10 || len(s.Searches) != 100 || s.Unmatched != 1 {
		t.Errorf("unexpected summary: metrics=%+v terms=%d unmatched=%d", s.Metrics, len(s.Terms), s.Unmatched)
	}
}
