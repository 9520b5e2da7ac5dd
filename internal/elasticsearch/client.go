package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/shubhsaxena/search-insights/internal/config"
	"github.com/shubhsaxena/search-insights/internal/intent"
	"github.com/shubhsaxena/search-insights/internal/models"
	"github.com/shubhsaxena/search-insights/internal/observability"
	"github.com/shubhsaxena/search-insights/internal/resilience"
)

// Client reads the known-term corpus used for fuzzy suggestions and feeds
// successful queries back into it.
type Client struct {
	es       *elasticsearch.Client
	cb       *gobreaker.CircuitBreaker
	cfg      config.ElasticsearchConfig
	retryCfg resilience.RetryConfig
	logger   *zap.Logger
}

func NewClient(cfg config.ElasticsearchConfig, analytics config.AnalyticsConfig, logger *zap.Logger) (*Client, error) {
	esCfg := elasticsearch.Config{
		Addresses:  cfg.Addresses,
		Username:   cfg.Username,
		Password:   cfg.Password,
		MaxRetries: cfg.MaxRetries,
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}

	res, err := es.Ping()
	if err != nil {
		return nil, fmt.Errorf("pinging elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch ping returned status: %s", res.Status())
	}

	logger.Info("elasticsearch client connected", zap.Strings("addresses", cfg.Addresses))

	return &Client{
		es:       es,
		cb:       resilience.NewCircuitBreaker("elasticsearch-corpus", analytics.CircuitBreaker, logger),
		cfg:      cfg,
		retryCfg: resilience.RetryConfigFrom(analytics.Retry),
		logger:   logger,
	}, nil
}

// KnownTerms returns up to limit of the most frequent known query terms.
func (c *Client) KnownTerms(ctx context.Context, limit int) ([]string, error) {
	ctx, span := observability.StartSpan(ctx, "es.known_terms",
		attribute.String("es.index", c.cfg.TermsIndex),
		attribute.Int("limit", limit),
	)
	defer span.End()

	start := time.Now()
	terms, err := resilience.Guarded(ctx, c.cb, c.retryCfg, func(ctx context.Context) ([]string, error) {
		return c.executeTerms(ctx, limit)
	})

	status := "success"
	if err != nil {
		status = "error"
	}
	observability.ESQueryDuration.WithLabelValues(c.cfg.TermsIndex, status).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("es known terms (index=%s): %w", c.cfg.TermsIndex, err)
	}
	return terms, nil
}

func (c *Client) executeTerms(ctx context.Context, limit int) ([]string, error) {
	body, err := json.Marshal(knownTermsQuery(c.cfg.TermsField, limit))
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("marshaling es query: %w", err))
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.cfg.TermsIndex),
		c.es.Search.WithBody(bytes.NewReader(body)),
		c.es.Search.WithTimeout(c.cfg.RequestTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("executing es search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		err := fmt.Errorf("es search error status=%s body=%s", res.Status(), string(bodyBytes))
		if res.StatusCode >= 400 && res.StatusCode < 500 {
			return nil, resilience.Permanent(err)
		}
		return nil, err
	}

	return parseTermsResponse(res.Body)
}

func knownTermsQuery(field string, limit int) map[string]any {
	return map[string]any{
		"size": 0,
		"aggs": map[string]any{
			"known_terms": map[string]any{
				"terms": map[string]any{
					"field": field,
					"size":  limit,
				},
			},
		},
	}
}

func parseTermsResponse(r io.Reader) ([]string, error) {
	var resp esTermsResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding es response: %w", err)
	}
	terms := make([]string, 0, len(resp.Aggregations.KnownTerms.Buckets))
	for _, b := range resp.Aggregations.KnownTerms.Buckets {
		if t := intent.Normalize(b.Key); t != "" {
			terms = append(terms, t)
		}
	}
	return terms, nil
}

// IndexQueries adds queries that returned results to the terms index, so the
// corpus tracks what shoppers actually find.
func (c *Client) IndexQueries(ctx context.Context, events []models.SearchEvent) error {
	body, n, err := buildQueryBulk(c.cfg.TermsIndex, events)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	ctx, span := observability.StartSpan(ctx, "es.bulk_index_queries",
		attribute.Int("batch_size", n),
	)
	defer span.End()

	res, err := c.es.Bulk(
		bytes.NewReader(body),
		c.es.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("executing bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return fmt.Errorf("bulk request error status=%s body=%s", res.Status(), string(bodyBytes))
	}

	var bulkResp bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("decoding bulk response: %w", err)
	}

	if bulkResp.Errors {
		var errMsgs []string
		for _, item := range bulkResp.Items {
			for _, result := range item {
				if result.Error != nil {
					errMsgs = append(errMsgs, fmt.Sprintf("id=%s: %s", result.ID, result.Error.Reason))
				}
			}
		}
		return fmt.Errorf("bulk indexing had errors: %s", strings.Join(errMsgs, "; "))
	}

	return nil
}

func buildQueryBulk(index string, events []models.SearchEvent) ([]byte, int, error) {
	var buf bytes.Buffer
	n := 0
	for _, e := range events {
		q := intent.Normalize(e.Query)
		if q == "" || e.ResultsCount <= 0 {
			continue
		}
		meta := map[string]any{"index": map[string]any{"_index": index}}
		if e.ID != "" {
			meta["index"].(map[string]any)["_id"] = e.ID
		}
		metaLine, err := json.Marshal(meta)
		if err != nil {
			return nil, 0, fmt.Errorf("marshaling bulk meta: %w", err)
		}
		buf.Write(metaLine)
		buf.WriteByte('\n')

		bodyLine, err := json.Marshal(map[string]any{
			"query":         q,
			"category":      e.Category,
			"results_count": e.ResultsCount,
			"timestamp":     e.Timestamp.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return nil, 0, fmt.Errorf("marshaling bulk body: %w", err)
		}
		buf.Write(bodyLine)
		buf.WriteByte('\n')
		n++
	}
	return buf.Bytes(), n, nil
}

func (c *Client) HealthCheck(ctx context.Context) (string, error) {
	res, err := c.es.Cluster.Health(
		c.es.Cluster.Health.WithContext(ctx),
	)
	if err != nil {
		return "red", fmt.Errorf("es health check: %w", err)
	}
	defer res.Body.Close()

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(res.Body).Decode(&health); err != nil {
		return "red", fmt.Errorf("decoding health response: %w", err)
	}
	return health.Status, nil
}

func (c *Client) Close() error {
	return nil
}

// ES response types

type esTermsResponse struct {
	Aggregations struct {
		KnownTerms struct {
			Buckets []struct {
				Key      string `json:"key"`
				DocCount int64  `json:"doc_count"`
			} `json:"buckets"`
		} `json:"known_terms"`
	} `json:"aggregations"`
}

type bulkResponse struct {
	Errors bool                        `json:"errors"`
	Items  []map[string]bulkItemResult `json:"items"`
}

type bulkItemResult struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error,omitempty"`
}
