package orchestrator

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/shubhsaxena/search-insights/internal/models"
	"github.com/shubhsaxena/search-insights/internal/observability"
)

func (o *Orchestrator) ClassifyIntent(query string) models.IntentResult {
	res := o.classifier.Classify(query)
	observability.IntentClassifications.WithLabelValues(res.Intent, string(res.Confidence)).Inc()
	return res
}

// Suggest returns suggestions for query. Cache and corpus failures degrade to
// a rule-only pipeline rather than an error.
func (o *Orchestrator) Suggest(ctx context.Context, query, category string) []models.Suggestion {
	ctx, span := observability.StartSpan(ctx, "orchestrator.suggest",
		attribute.String("query", query),
		attribute.String("category", category),
	)
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return []models.Suggestion{}
	}

	if o.deps.Cache != nil {
		cached, hit, err := o.deps.Cache.GetSuggestions(ctx, query, category)
		if err != nil {
			o.logger.Warn("suggestion cache lookup error", zap.Error(err))
		}
		if hit && cached != nil {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return cached
		}
	}

	out := o.suggester.Generate(query, category, o.corpusTerms(ctx))
	for _, s := range out {
		observability.SuggestionsTotal.WithLabelValues(string(s.Type)).Inc()
	}

	if o.deps.Cache != nil {
		if err := o.deps.Cache.SetSuggestions(ctx, query, category, out); err != nil {
			o.logger.Warn("suggestion cache set error", zap.Error(err))
		}
	}
	return out
}

// corpusTerms returns the known-term corpus, cached in redis. It returns nil
// when no corpus is available, which disables fuzzy matching.
func (o *Orchestrator) corpusTerms(ctx context.Context) []string {
	if o.deps.Cache != nil {
		terms, err := o.deps.Cache.GetCorpusTerms(ctx)
		if err != nil {
			o.logger.Warn("corpus cache lookup error", zap.Error(err))
		}
		if len(terms) > 0 {
			return terms
		}
	}
	if o.deps.Corpus == nil {
		return nil
	}

	terms, err := o.deps.Corpus.KnownTerms(ctx, o.cfg.CorpusLimit)
	if err != nil {
		o.logger.Warn("corpus unavailable, skipping fuzzy suggestions", zap.Error(err))
		return nil
	}
	if o.deps.Cache != nil && len(terms) > 0 {
		if err := o.deps.Cache.SetCorpusTerms(ctx, terms); err != nil {
			o.logger.Warn("corpus cache set error", zap.Error(err))
		}
	}
	return terms
}
