// Package ingest prepares raw events from the ingest topic and writes them
// to the event store in buffered batches.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubhsaxena/search-insights/internal/intent"
	"github.com/shubhsaxena/search-insights/internal/models"
	"github.com/shubhsaxena/search-insights/internal/observability"
	"github.com/shubhsaxena/search-insights/internal/refinement"
	"github.com/shubhsaxena/search-insights/internal/resilience"
)

var ErrNoVisitor = errors.New("search event has neither session id nor user id")

type EventWriter interface {
	WriteEvents(ctx context.Context, envelopes []models.EventEnvelope) error
}

type AuditWriter interface {
	InsertIngestLog(ctx context.Context, envelopes []models.EventEnvelope) error
}

type CorpusIndexer interface {
	IndexQueries(ctx context.Context, events []models.SearchEvent) error
}

type ReportInvalidator interface {
	InvalidateReports(ctx context.Context) error
}

type SessionResolver interface {
	Resolve(ctx context.Context, visitor string, now time.Time) (string, bool, error)
}

// Deps groups the processor's collaborators. Only Writer is required.
type Deps struct {
	Writer      EventWriter
	Audit       AuditWriter
	Corpus      CorpusIndexer
	Invalidator ReportInvalidator
	Sessions    SessionResolver
}

type Processor struct {
	deps       Deps
	classifier *intent.Classifier
	batchSize  int
	logger     *zap.Logger

	mu     sync.Mutex
	buffer []models.EventEnvelope
	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewProcessor(deps Deps, classifier *intent.Classifier, batchSize int, flushInterval time.Duration, logger *zap.Logger) *Processor {
	if batchSize <= 0 {
		batchSize = 500
	}
	p := &Processor{
		deps:       deps,
		classifier: classifier,
		batchSize:  batchSize,
		logger:     logger,
		buffer:     make([]models.EventEnvelope, 0, batchSize),
		ticker:     time.NewTicker(flushInterval),
		done:       make(chan struct{}),
	}

	go p.flushLoop()

	return p
}

// HandleEvent prepares env and buffers it. Events that can never be stored
// are returned as permanent errors so the consumer dead-letters them at once.
func (p *Processor) HandleEvent(ctx context.Context, env *models.EventEnvelope) error {
	if err := p.prepare(ctx, env); err != nil {
		return resilience.Permanent(fmt.Errorf("preparing %s event: %w", env.Kind, err))
	}

	p.mu.Lock()
	p.buffer = append(p.buffer, *env)
	shouldFlush := len(p.buffer) >= p.batchSize
	p.mu.Unlock()

	if shouldFlush {
		if err := p.flush(ctx); err != nil {
			p.logger.Error("flush on buffer full failed", zap.Error(err))
		}
	}
	return nil
}

func (p *Processor) prepare(ctx context.Context, env *models.EventEnvelope) error {
	if err := env.Validate(); err != nil {
		return err
	}
	if env.ReceivedAt.IsZero() {
		env.ReceivedAt = time.Now().UTC()
	}

	switch env.Kind {
	case models.KindSearch:
		return p.prepareSearch(ctx, env.Search, env.ReceivedAt)
	case models.KindConversion:
		if env.Conversion.SessionID == "" {
			return fmt.Errorf("conversion without session id")
		}
		if env.Conversion.Timestamp.IsZero() {
			env.Conversion.Timestamp = env.ReceivedAt
		}
	case models.KindRefinement:
		if env.Refinement.SessionID == "" {
			return fmt.Errorf("refinement without session id")
		}
		if env.Refinement.Timestamp.IsZero() {
			env.Refinement.Timestamp = env.ReceivedAt
		}
		refinement.FillFilterDiff(env.Refinement, env.Filters)
	}
	return nil
}

// prepareSearch normalizes the query, classifies intent at write time and
// assigns a session to events that arrive with only a user id.
func (p *Processor) prepareSearch(ctx context.Context, s *models.SearchEvent, receivedAt time.Time) error {
	if s.Timestamp.IsZero() {
		s.Timestamp = receivedAt
	}
	if s.OriginalQuery == "" {
		s.OriginalQuery = s.Query
	}
	if s.Query == "" {
		s.Query = s.OriginalQuery
	}
	s.Query = intent.Normalize(s.Query)

	if s.Intent == "" && p.classifier != nil {
		res := p.classifier.Classify(s.Query)
		s.Intent = res.Intent
		s.IntentConfidence = res.Confidence
		observability.IntentClassifications.WithLabelValues(res.Intent, string(res.Confidence)).Inc()
	}

	if s.SessionID != "" {
		return nil
	}
	if s.IsGuest() || p.deps.Sessions == nil {
		return ErrNoVisitor
	}
	id, _, err := p.deps.Sessions.Resolve(ctx, s.UserID, s.Timestamp)
	if err != nil {
		return fmt.Errorf("resolving session: %w", err)
	}
	s.SessionID = id
	return nil
}

func (p *Processor) flushLoop() {
	for {
		select {
		case <-p.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := p.flush(ctx); err != nil {
				p.logger.Error("periodic flush failed", zap.Error(err))
			}
			cancel()
		case <-p.done:
			return
		}
	}
}

func (p *Processor) flush(ctx context.Context) error {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return nil
	}
	batch := make([]models.EventEnvelope, len(p.buffer))
	copy(batch, p.buffer)
	p.buffer = p.buffer[:0]
	p.mu.Unlock()

	start := time.Now()
	if err := p.deps.Writer.WriteEvents(ctx, batch); err != nil {
		// Put failed items back into buffer for retry
		p.mu.Lock()
		p.buffer = append(batch, p.buffer...)
		p.mu.Unlock()

		observability.IngestEventsTotal.WithLabelValues("batch", "error").Inc()
		return fmt.Errorf("event store flush: %w", err)
	}

	observability.IngestEventsTotal.WithLabelValues("batch", "success").Add(float64(len(batch)))
	observability.IngestLag.Set(time.Since(oldestReceived(batch)).Seconds())
	p.logger.Info("event batch flushed",
		zap.Int("count", len(batch)),
		zap.Duration("duration", time.Since(start)),
	)

	p.afterFlush(batch)
	return nil
}

// afterFlush runs best-effort side effects of a stored batch in the
// background: audit rows, corpus growth and report invalidation.
func (p *Processor) afterFlush(batch []models.EventEnvelope) {
	if p.deps.Audit != nil {
		p.background("clickhouse ingest log", 5*time.Second, func(ctx context.Context) error {
			return p.deps.Audit.InsertIngestLog(ctx, batch)
		})
	}

	if p.deps.Corpus != nil {
		if searches := searchesOf(batch); len(searches) > 0 {
			p.background("corpus index", 5*time.Second, func(ctx context.Context) error {
				return p.deps.Corpus.IndexQueries(ctx, searches)
			})
		}
	}

	if p.deps.Invalidator != nil {
		p.background("report invalidation", 2*time.Second, func(ctx context.Context) error {
			return p.deps.Invalidator.InvalidateReports(ctx)
		})
	}
}

func (p *Processor) background(name string, timeout time.Duration, fn func(context.Context) error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			p.logger.Warn("post-flush step failed", zap.String("step", name), zap.Error(err))
		}
	}()
}

// Stop flushes what is buffered and waits for background steps to finish.
func (p *Processor) Stop() error {
	p.ticker.Stop()
	close(p.done)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := p.flush(ctx)
	p.wg.Wait()
	return err
}

func (p *Processor) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

func searchesOf(batch []models.EventEnvelope) []models.SearchEvent {
	var out []models.SearchEvent
	for _, env := range batch {
		if env.Kind == models.KindSearch && env.Search != nil {
			out = append(out, *env.Search)
		}
	}
	return out
}

func oldestReceived(batch []models.EventEnvelope) time.Time {
	oldest := batch[0].ReceivedAt
	for _, env := range batch[1:] {
		if env.ReceivedAt.Before(oldest) {
			oldest = env.ReceivedAt
		}
	}
	return oldest
}
