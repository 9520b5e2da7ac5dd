package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shubhsaxena/search-insights/internal/funnel"
	"github.com/shubhsaxena/search-insights/internal/models"
	"github.com/shubhsaxena/search-insights/internal/refinement"
)

func (o *Orchestrator) SessionFlow(ctx context.Context, days int) (models.SessionFlowReport, error) {
	return buildReport(ctx, o, ReportSessions, days, func(ctx context.Context, now time.Time) (models.SessionFlowReport, reportStats, error) {
		events, skippedDocs, err := o.deps.Store.SearchEvents(ctx, o.since(now, days), o.cfg.MaxBatchSize)
		if err != nil {
			return models.SessionFlowReport{}, reportStats{}, fmt.Errorf("fetching search events: %w", err)
		}
		report := o.analyzeSessions(events)
		report.LookbackDays = days
		report.GeneratedAt = now
		report.Skipped += skippedDocs
		return report, reportStats{events: len(events), skipped: report.Skipped}, nil
	})
}

// AnalyzeSessions runs session reconstruction and flow analysis over a
// caller-supplied batch without touching the event store.
func (o *Orchestrator) AnalyzeSessions(events []models.SearchEvent) (models.SessionFlowReport, error) {
	if len(events) > o.cfg.MaxBatchSize {
		return models.SessionFlowReport{}, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(events), o.cfg.MaxBatchSize)
	}
	report := o.analyzeSessions(events)
	report.GeneratedAt = o.now().UTC()
	return report, nil
}

func (o *Orchestrator) analyzeSessions(events []models.SearchEvent) models.SessionFlowReport {
	grouped, skippedEvents := o.reconstructor.Group(events)
	skipped("session_reconstructor", skippedEvents, o.logger)
	if grouped == nil {
		grouped = []models.SearchSession{}
	}
	return models.SessionFlowReport{
		EventCount: len(events),
		Skipped:    skippedEvents,
		Analysis:   o.flow.Analyze(grouped),
		Sessions:   grouped,
	}
}

// Funnel reports funnel metrics, the top revenue terms, the daily trend and
// the most frequent zero-result queries with suggestions.
func (o *Orchestrator) Funnel(ctx context.Context, days int) (models.FunnelReport, error) {
	return buildReport(ctx, o, ReportFunnel, days, func(ctx context.Context, now time.Time) (models.FunnelReport, reportStats, error) {
		searches, conversions, skippedDocs, err := o.searchesAndConversions(ctx, o.since(now, days))
		if err != nil {
			return models.FunnelReport{}, reportStats{}, err
		}

		summary := funnel.Summarize(searches, conversions)
		skipped("funnel_attribution", summary.Unmatched, o.logger)

		zero := funnel.ZeroResultQueries(searches, o.cfg.TopZeroResults)
		if len(zero) > 0 {
			terms := o.corpusTerms(ctx)
			for i := range zero {
				zero[i].Suggestions = o.suggester.Generate(zero[i].Query, "", terms)
			}
		}

		report := models.FunnelReport{
			LookbackDays:      days,
			GeneratedAt:       now,
			EventCount:        len(searches) + len(conversions),
			Skipped:           skippedDocs,
			Unmatched:         summary.Unmatched,
			Metrics:           summary.Metrics,
			TopTerms:          funnel.TopTerms(summary.Terms, o.cfg.TopRevenueTerms),
			Trend:             funnel.GetConversionTrend(summary.Searches, days, now),
			ZeroResultQueries: zero,
		}

		o.persist("funnel_snapshot", func(ctx context.Context, sink AggregateWriter) error {
			return sink.WriteFunnelSnapshot(ctx, days, now, report.Metrics)
		})
		return report, reportStats{events: report.EventCount, skipped: skippedDocs + summary.Unmatched}, nil
	})
}

// Revenue reports per-term revenue. limit <= 0 selects the configured
// default; the cached report always holds the full ranking.
func (o *Orchestrator) Revenue(ctx context.Context, days, limit int) (models.RevenueReport, error) {
	report, err := buildReport(ctx, o, ReportRevenue, days, func(ctx context.Context, now time.Time) (models.RevenueReport, reportStats, error) {
		searches, conversions, skippedDocs, err := o.searchesAndConversions(ctx, o.since(now, days))
		if err != nil {
			return models.RevenueReport{}, reportStats{}, err
		}

		summary := funnel.Summarize(searches, conversions)
		report := models.RevenueReport{
			LookbackDays: days,
			GeneratedAt:  now,
			EventCount:   len(searches) + len(conversions),
			Skipped:      skippedDocs,
			Unmatched:    summary.Unmatched,
			Terms:        summary.Terms,
		}

		o.persist("term_revenue", func(ctx context.Context, sink AggregateWriter) error {
			return sink.WriteTermRevenue(ctx, days, now, report.Terms)
		})
		return report, reportStats{events: report.EventCount, skipped: skippedDocs + summary.Unmatched}, nil
	})
	if err != nil {
		return report, err
	}

	if limit <= 0 {
		limit = o.cfg.TopRevenueTerms
	}
	report.Terms = funnel.TopTerms(report.Terms, limit)
	if report.Terms == nil {
		report.Terms = []models.SearchTermRevenue{}
	}
	return report, nil
}

func (o *Orchestrator) Trend(ctx context.Context, days int) (models.TrendReport, error) {
	return buildReport(ctx, o, ReportTrend, days, func(ctx context.Context, now time.Time) (models.TrendReport, reportStats, error) {
		searches, conversions, skippedDocs, err := o.searchesAndConversions(ctx, o.since(now, days))
		if err != nil {
			return models.TrendReport{}, reportStats{}, err
		}
		summary := funnel.Summarize(searches, conversions)
		report := models.TrendReport{
			LookbackDays: days,
			GeneratedAt:  now,
			EventCount:   len(searches) + len(conversions),
			Points:       funnel.GetConversionTrend(summary.Searches, days, now),
		}
		return report, reportStats{events: report.EventCount, skipped: skippedDocs}, nil
	})
}

func (o *Orchestrator) Refinements(ctx context.Context, days int) (models.RefinementReport, error) {
	return buildReport(ctx, o, ReportRefinements, days, func(ctx context.Context, now time.Time) (models.RefinementReport, reportStats, error) {
		events, skippedDocs, err := o.deps.Store.RefinementEvents(ctx, o.since(now, days), o.cfg.MaxBatchSize)
		if err != nil {
			return models.RefinementReport{}, reportStats{}, fmt.Errorf("fetching refinement events: %w", err)
		}

		analyses, skippedEvents := o.detector.Analyze(events)
		skipped("refinement_detector", skippedEvents, o.logger)
		if analyses == nil {
			analyses = []models.RefinementSessionAnalysis{}
		}

		report := models.RefinementReport{
			LookbackDays:  days,
			GeneratedAt:   now,
			EventCount:    len(events),
			Skipped:       skippedDocs + skippedEvents,
			StuckSessions: refinement.StuckCount(analyses),
			Sessions:      analyses,
		}

		top := topTransition(analyses)
		o.persist("refinement_snapshot", func(ctx context.Context, sink AggregateWriter) error {
			return sink.WriteRefinementSnapshot(ctx, days, now, len(analyses), report.StuckSessions, top)
		})
		return report, reportStats{events: len(events), skipped: report.Skipped}, nil
	})
}

// topTransition is the transition most sessions name as their most common,
// ties broken by text.
func topTransition(analyses []models.RefinementSessionAnalysis) string {
	counts := make(map[string]int)
	for _, a := range analyses {
		if a.MostCommonTransition != "" {
			counts[a.MostCommonTransition]++
		}
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}
