// Package orchestrator builds analytics reports: it fetches a lookback window
// of raw events, runs the analytics components over it, caches the result and
// persists derived aggregates.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/shubhsaxena/search-insights/internal/config"
	"github.com/shubhsaxena/search-insights/internal/intent"
	"github.com/shubhsaxena/search-insights/internal/models"
	"github.com/shubhsaxena/search-insights/internal/observability"
	"github.com/shubhsaxena/search-insights/internal/refinement"
	"github.com/shubhsaxena/search-insights/internal/rules"
	"github.com/shubhsaxena/search-insights/internal/sessions"
	"github.com/shubhsaxena/search-insights/internal/suggest"
)

const (
	ReportSessions    = "sessions"
	ReportFunnel      = "funnel"
	ReportRevenue     = "revenue"
	ReportTrend       = "trend"
	ReportRefinements = "refinements"
)

var (
	ErrInvalidLookback  = errors.New("lookback days not allowed")
	ErrBatchTooLarge    = errors.New("event batch exceeds maximum size")
	ErrStoreUnavailable = errors.New("event store unavailable")
)

type EventStore interface {
	SearchEvents(ctx context.Context, since time.Time, limit int) ([]models.SearchEvent, int, error)
	ConversionEvents(ctx context.Context, since time.Time, limit int) ([]models.ConversionEvent, int, error)
	RefinementEvents(ctx context.Context, since time.Time, limit int) ([]models.RefinementEvent, int, error)
}

type AggregateWriter interface {
	WriteFunnelSnapshot(ctx context.Context, lookbackDays int, at time.Time, m models.FunnelMetrics) error
	WriteTermRevenue(ctx context.Context, lookbackDays int, at time.Time, terms []models.SearchTermRevenue) error
	WriteRefinementSnapshot(ctx context.Context, lookbackDays int, at time.Time, sessions, stuck int, topTransition string) error
}

type ReportCache interface {
	GetReport(ctx context.Context, kind string, days int, dest any) (bool, error)
	SetReport(ctx context.Context, kind string, days int, report any) error
	GetStaleReport(ctx context.Context, kind string, days int, dest any) (bool, error)
	GetCorpusTerms(ctx context.Context) ([]string, error)
	SetCorpusTerms(ctx context.Context, terms []string) error
	GetSuggestions(ctx context.Context, query, category string) ([]models.Suggestion, bool, error)
	SetSuggestions(ctx context.Context, query, category string, suggestions []models.Suggestion) error
}

type CorpusProvider interface {
	KnownTerms(ctx context.Context, limit int) ([]string, error)
}

// Deps groups the orchestrator's collaborators. Store is required; any other
// field may be nil and the corresponding step is skipped.
type Deps struct {
	Store  EventStore
	Sink   AggregateWriter
	Cache  ReportCache
	Corpus CorpusProvider
	Slow   *observability.SlowReportDetector
}

type Orchestrator struct {
	deps          Deps
	cfg           config.AnalyticsConfig
	classifier    *intent.Classifier
	suggester     *suggest.Engine
	reconstructor *sessions.Reconstructor
	flow          *sessions.FlowAnalyzer
	detector      *refinement.Detector
	logger        *zap.Logger
	now           func() time.Time

	wg sync.WaitGroup
}

func New(deps Deps, r *rules.Rules, cfg config.AnalyticsConfig, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		deps:          deps,
		cfg:           cfg,
		classifier:    intent.NewClassifier(r),
		suggester:     suggest.NewEngine(r),
		reconstructor: sessions.NewReconstructor(cfg.ParallelThreshold, cfg.Workers),
		flow:          sessions.NewFlowAnalyzer(cfg.TopPaths, cfg.TopPatterns),
		detector: refinement.NewDetector(refinement.Thresholds{
			ExcessiveRefinements: cfg.Stuck.ExcessiveRefinements,
			LoopOccurrences:      cfg.Stuck.LoopOccurrences,
			ZeroResultStreak:     cfg.Stuck.ZeroResultStreak,
		}, cfg.Stuck.PerSessionTransitions),
		logger: logger,
		now:    time.Now,
	}
}

// Close waits for in-flight aggregate writes.
func (o *Orchestrator) Close() {
	o.wg.Wait()
}

// reportStats describes the batch a report was built from.
type reportStats struct {
	events  int
	skipped int
}

// buildReport serves kind from the live cache, or builds it and caches the
// result. When the build fails the stale copy is served if one exists.
func buildReport[T any](ctx context.Context, o *Orchestrator, kind string, days int, build func(ctx context.Context, now time.Time) (T, reportStats, error)) (T, error) {
	var report T
	if !o.cfg.AllowsLookback(days) {
		return report, fmt.Errorf("%w: %d (allowed %v)", ErrInvalidLookback, days, o.cfg.LookbackDays)
	}

	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "orchestrator."+kind,
		attribute.String("report", kind),
		attribute.Int("lookback_days", days),
	)
	defer span.End()

	if o.deps.Cache != nil {
		hit, err := o.deps.Cache.GetReport(ctx, kind, days, &report)
		if err != nil {
			o.logger.Warn("report cache lookup error", zap.String("report", kind), zap.Error(err))
		}
		if hit {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			observability.ReportsTotal.WithLabelValues(kind, "cache").Inc()
			return report, nil
		}
	}

	buildCtx := ctx
	if o.cfg.ReportTimeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, o.cfg.ReportTimeout)
		defer cancel()
	}

	report, stats, err := build(buildCtx, o.now().UTC())
	if err != nil {
		span.RecordError(err)
		observability.ReportDuration.WithLabelValues(kind, "error").Observe(time.Since(start).Seconds())
		var stale T
		if o.staleReport(ctx, kind, days, &stale) {
			o.logger.Warn("serving stale report", zap.String("report", kind), zap.Int("lookback_days", days), zap.Error(err))
			observability.ReportsTotal.WithLabelValues(kind, "stale_cache").Inc()
			return stale, nil
		}
		span.SetStatus(codes.Error, err.Error())
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	elapsed := time.Since(start)
	observability.ReportDuration.WithLabelValues(kind, "success").Observe(elapsed.Seconds())
	observability.ReportsTotal.WithLabelValues(kind, "computed").Inc()
	span.SetAttributes(attribute.Int("event_count", stats.events), attribute.Int("skipped", stats.skipped))
	if o.deps.Slow != nil {
		o.deps.Slow.Observe(ctx, kind, days, elapsed, stats.events, stats.skipped)
	}

	if o.deps.Cache != nil {
		if err := o.deps.Cache.SetReport(ctx, kind, days, report); err != nil {
			o.logger.Warn("report cache set error", zap.String("report", kind), zap.Error(err))
		}
	}
	return report, nil
}

func (o *Orchestrator) staleReport(ctx context.Context, kind string, days int, dest any) bool {
	if o.deps.Cache == nil {
		return false
	}
	ok, err := o.deps.Cache.GetStaleReport(ctx, kind, days, dest)
	if err != nil {
		o.logger.Warn("stale report lookup error", zap.String("report", kind), zap.Error(err))
		return false
	}
	return ok
}

func (o *Orchestrator) since(now time.Time, days int) time.Time {
	return now.AddDate(0, 0, -days)
}

// searchesAndConversions fetches both collections concurrently.
func (o *Orchestrator) searchesAndConversions(ctx context.Context, since time.Time) ([]models.SearchEvent, []models.ConversionEvent, int, error) {
	type searchResult struct {
		events  []models.SearchEvent
		skipped int
		err     error
	}
	type conversionResult struct {
		events  []models.ConversionEvent
		skipped int
		err     error
	}

	searchCh := make(chan searchResult, 1)
	convCh := make(chan conversionResult, 1)

	go func() {
		events, skipped, err := o.deps.Store.SearchEvents(ctx, since, o.cfg.MaxBatchSize)
		searchCh <- searchResult{events: events, skipped: skipped, err: err}
	}()
	go func() {
		events, skipped, err := o.deps.Store.ConversionEvents(ctx, since, o.cfg.MaxBatchSize)
		convCh <- conversionResult{events: events, skipped: skipped, err: err}
	}()

	sr := <-searchCh
	cr := <-convCh
	if sr.err != nil {
		return nil, nil, 0, fmt.Errorf("fetching search events: %w", sr.err)
	}
	if cr.err != nil {
		return nil, nil, 0, fmt.Errorf("fetching conversion events: %w", cr.err)
	}
	return sr.events, cr.events, sr.skipped + cr.skipped, nil
}

// persist runs an aggregate write in the background. Failures are logged.
func (o *Orchestrator) persist(name string, fn func(ctx context.Context, sink AggregateWriter) error) {
	if o.deps.Sink == nil {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := fn(ctx, o.deps.Sink); err != nil {
			o.logger.Warn("aggregate write failed", zap.String("aggregate", name), zap.Error(err))
		}
	}()
}

func skipped(component string, n int, logger *zap.Logger) {
	if n == 0 {
		return
	}
	observability.SkippedRecords.WithLabelValues(component).Add(float64(n))
	logger.Warn("skipped malformed records", zap.String("component", component), zap.Int("count", n))
}
