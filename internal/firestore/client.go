package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/shubhsaxena/search-insights/internal/config"
	"github.com/shubhsaxena/search-insights/internal/models"
	"github.com/shubhsaxena/search-insights/internal/observability"
	"github.com/shubhsaxena/search-insights/internal/resilience"
)

// Client is the raw event store. Reads are bounded by lookback window and
// batch size; malformed documents are skipped and counted.
type Client struct {
	client   *firestore.Client
	cfg      config.FirestoreConfig
	cb       *gobreaker.CircuitBreaker
	retryCfg resilience.RetryConfig
	logger   *zap.Logger
}

func NewClient(ctx context.Context, cfg config.FirestoreConfig, analytics config.AnalyticsConfig, logger *zap.Logger) (*Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	logger.Info("firestore client connected", zap.String("project", cfg.ProjectID))

	return &Client{
		client:   client,
		cfg:      cfg,
		cb:       resilience.NewCircuitBreaker("firestore-events", analytics.CircuitBreaker, logger),
		retryCfg: resilience.RetryConfigFrom(analytics.Retry),
		logger:   logger,
	}, nil
}

// Batch is one page of raw events read from a collection.
type Batch[T any] struct {
	Events  []T
	Skipped int
}

func (c *Client) SearchEvents(ctx context.Context, since time.Time, limit int) ([]models.SearchEvent, int, error) {
	b, err := fetch(ctx, c, c.cfg.SearchCollection, since, limit, func(e *models.SearchEvent, id string) error {
		if e.ID == "" {
			e.ID = id
		}
		if e.Timestamp.IsZero() {
			return fmt.Errorf("missing timestamp")
		}
		return nil
	})
	return b.Events, b.Skipped, err
}

func (c *Client) ConversionEvents(ctx context.Context, since time.Time, limit int) ([]models.ConversionEvent, int, error) {
	b, err := fetch(ctx, c, c.cfg.ConversionCollection, since, limit, func(e *models.ConversionEvent, id string) error {
		if e.ID == "" {
			e.ID = id
		}
		if e.SessionID == "" {
			return fmt.Errorf("missing session id")
		}
		return nil
	})
	return b.Events, b.Skipped, err
}

func (c *Client) RefinementEvents(ctx context.Context, since time.Time, limit int) ([]models.RefinementEvent, int, error) {
	b, err := fetch(ctx, c, c.cfg.RefinementCollection, since, limit, func(e *models.RefinementEvent, id string) error {
		if e.ID == "" {
			e.ID = id
		}
		return nil
	})
	return b.Events, b.Skipped, err
}

// fetch reads the newest limit documents at or after since. Documents that
// fail to decode or validate are skipped.
func fetch[T any](ctx context.Context, c *Client, collection string, since time.Time, limit int, check func(*T, string) error) (Batch[T], error) {
	ctx, span := observability.StartSpan(ctx, "firestore.fetch_events",
		attribute.String("collection", collection),
		attribute.Int("limit", limit),
	)
	defer span.End()

	start := time.Now()
	batch, err := resilience.Guarded(ctx, c.cb, c.retryCfg, func(ctx context.Context) (Batch[T], error) {
		ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()

		q := c.client.Collection(collection).
			Where("timestamp", ">=", since).
			OrderBy("timestamp", firestore.Desc).
			Limit(limit)
		iter := q.Documents(ctx)
		defer iter.Stop()

		out := Batch[T]{Events: make([]T, 0, limit)}
		for {
			doc, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return Batch[T]{}, fmt.Errorf("iterating %s: %w", collection, err)
			}
			var ev T
			if err := doc.DataTo(&ev); err != nil {
				c.logger.Warn("skipping malformed event document",
					zap.String("collection", collection),
					zap.String("doc_id", doc.Ref.ID),
					zap.Error(err),
				)
				out.Skipped++
				continue
			}
			if err := check(&ev, doc.Ref.ID); err != nil {
				c.logger.Warn("skipping invalid event document",
					zap.String("collection", collection),
					zap.String("doc_id", doc.Ref.ID),
					zap.Error(err),
				)
				out.Skipped++
				continue
			}
			out.Events = append(out.Events, ev)
		}
		return out, nil
	})

	status := "success"
	if err != nil {
		status = "error"
	}
	observability.StoreQueryDuration.WithLabelValues(collection, status).Observe(time.Since(start).Seconds())
	if err != nil {
		return Batch[T]{}, fmt.Errorf("firestore fetch %s: %w", collection, err)
	}
	if batch.Skipped > 0 {
		observability.SkippedRecords.WithLabelValues("firestore." + collection).Add(float64(batch.Skipped))
	}
	return batch, nil
}

// WriteEvents bulk-writes ingested envelopes into their collections, keyed by
// event id. Events without an id are assigned one first.
func (c *Client) WriteEvents(ctx context.Context, envelopes []models.EventEnvelope) error {
	if len(envelopes) == 0 {
		return nil
	}

	ctx, span := observability.StartSpan(ctx, "firestore.write_events",
		attribute.Int("count", len(envelopes)),
	)
	defer span.End()

	bw := c.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(envelopes))
	for i := range envelopes {
		collection, id, data := c.documentFor(&envelopes[i])
		if collection == "" {
			continue
		}
		job, err := bw.Set(c.client.Collection(collection).Doc(id), data)
		if err != nil {
			bw.End()
			return fmt.Errorf("firestore enqueue %s/%s: %w", collection, id, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	failed := 0
	var firstErr error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return fmt.Errorf("firestore bulk write: %d of %d failed: %w", failed, len(jobs), firstErr)
	}
	return nil
}

func (c *Client) documentFor(env *models.EventEnvelope) (string, string, any) {
	switch env.Kind {
	case models.KindSearch:
		if env.Search.ID == "" {
			env.Search.ID = uuid.NewString()
		}
		return c.cfg.SearchCollection, env.Search.ID, env.Search
	case models.KindConversion:
		if env.Conversion.ID == "" {
			env.Conversion.ID = uuid.NewString()
		}
		return c.cfg.ConversionCollection, env.Conversion.ID, env.Conversion
	case models.KindRefinement:
		if env.Refinement.ID == "" {
			env.Refinement.ID = uuid.NewString()
		}
		return c.cfg.RefinementCollection, env.Refinement.ID, env.Refinement
	}
	return "", "", nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	iter := c.client.Collection("_health_check").Limit(1).Documents(ctx)
	defer iter.Stop()

	_, err := iter.Next()
	// iterator.Done means the collection is empty; Firestore is reachable.
	if err != nil && err != iterator.Done {
		return fmt.Errorf("firestore health check: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
