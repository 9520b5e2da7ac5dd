package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/shubhsaxena/search-insights/internal/config"
	"github.com/shubhsaxena/search-insights/internal/models"
	"github.com/shubhsaxena/search-insights/internal/observability"
)

// Client persists derived aggregates. Nothing here is a source of truth;
// every row can be recomputed from the raw events.
type Client struct {
	conn   driver.Conn
	logger *zap.Logger
}

func NewClient(cfg config.ClickHouseConfig, logger *zap.Logger) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addresses,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": int(cfg.QueryTimeout.Seconds()),
		},
		DialTimeout:  cfg.DialTimeout,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("opening clickhouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging clickhouse: %w", err)
	}

	logger.Info("clickhouse client connected", zap.Strings("addresses", cfg.Addresses))

	return &Client{
		conn:   conn,
		logger: logger,
	}, nil
}

func (c *Client) WriteFunnelSnapshot(ctx context.Context, lookbackDays int, at time.Time, m models.FunnelMetrics) error {
	ctx, span := observability.StartSpan(ctx, "ch.write_funnel_snapshot",
		attribute.Int("lookback_days", lookbackDays),
	)
	defer span.End()

	start := time.Now()
	query := `
		INSERT INTO funnel_snapshots (
			snapshot_at, lookback_days, total_searches, searches_with_results,
			added_to_cart, completed_checkout, search_to_view, view_to_cart,
			cart_to_checkout, total_revenue, avg_revenue_per_search,
			avg_time_to_cart_ms, avg_time_to_checkout_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	err := c.conn.Exec(ctx, query,
		at,
		uint16(lookbackDays),
		uint64(m.TotalSearches),
		uint64(m.SearchesWithResults),
		uint64(m.AddedToCart),
		uint64(m.CompletedCheckout),
		m.SearchToView,
		m.ViewToCart,
		m.CartToCheckout,
		m.TotalRevenue,
		m.AvgRevenuePerSearch,
		m.AvgTimeToCart,
		m.AvgTimeToCheckout,
	)
	observeCH("funnel_snapshot", start, err)
	if err != nil {
		return fmt.Errorf("ch insert funnel snapshot: %w", err)
	}
	return nil
}

func (c *Client) WriteTermRevenue(ctx context.Context, lookbackDays int, at time.Time, terms []models.SearchTermRevenue) error {
	if len(terms) == 0 {
		return nil
	}

	ctx, span := observability.StartSpan(ctx, "ch.write_term_revenue",
		attribute.Int("lookback_days", lookbackDays),
		attribute.Int("terms", len(terms)),
	)
	defer span.End()

	start := time.Now()
	batch, err := c.conn.PrepareBatch(ctx, `INSERT INTO search_term_revenue`)
	if err != nil {
		observeCH("term_revenue", start, err)
		return fmt.Errorf("ch prepare term revenue batch: %w", err)
	}
	for _, t := range terms {
		if err := batch.Append(
			at,
			uint16(lookbackDays),
			t.Query,
			uint64(t.SearchCount),
			uint64(t.Conversions),
			t.ConversionRate,
			t.TotalRevenue,
			t.RevenuePerSearch,
		); err != nil {
			observeCH("term_revenue", start, err)
			return fmt.Errorf("ch append term revenue row: %w", err)
		}
	}
	err = batch.Send()
	observeCH("term_revenue", start, err)
	if err != nil {
		return fmt.Errorf("ch send term revenue batch: %w", err)
	}
	return nil
}

func (c *Client) WriteRefinementSnapshot(ctx context.Context, lookbackDays int, at time.Time, sessions, stuck int, topTransition string) error {
	start := time.Now()
	query := `
		INSERT INTO refinement_snapshots (
			snapshot_at, lookback_days, sessions, stuck_sessions, top_transition
		) VALUES (?, ?, ?, ?, ?)
	`
	err := c.conn.Exec(ctx, query, at, uint16(lookbackDays), uint64(sessions), uint64(stuck), topTransition)
	observeCH("refinement_snapshot", start, err)
	if err != nil {
		return fmt.Errorf("ch insert refinement snapshot: %w", err)
	}
	return nil
}

func (c *Client) WriteReportPerformance(ctx context.Context, perf *models.ReportPerformance) error {
	query := `
		INSERT INTO report_performance (
			report, lookback_days, duration_ms, event_count, skipped,
			severity, timestamp, trace_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	return c.conn.Exec(ctx, query,
		perf.Report,
		uint16(perf.LookbackDays),
		perf.DurationMs,
		uint64(perf.EventCount),
		uint64(perf.Skipped),
		perf.Severity,
		perf.Timestamp,
		perf.TraceID,
	)
}

// InsertIngestLog records one row per ingested envelope for ingest auditing.
func (c *Client) InsertIngestLog(ctx context.Context, envelopes []models.EventEnvelope) error {
	if len(envelopes) == 0 {
		return nil
	}
	start := time.Now()
	batch, err := c.conn.PrepareBatch(ctx, `INSERT INTO ingest_log`)
	if err != nil {
		observeCH("ingest_log", start, err)
		return fmt.Errorf("ch prepare ingest batch: %w", err)
	}
	for _, env := range envelopes {
		if err := batch.Append(string(env.Kind), env.Key(), env.ReceivedAt); err != nil {
			observeCH("ingest_log", start, err)
			return fmt.Errorf("ch append ingest row: %w", err)
		}
	}
	err = batch.Send()
	observeCH("ingest_log", start, err)
	if err != nil {
		return fmt.Errorf("ch send ingest batch: %w", err)
	}
	return nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) EnsureTables(ctx context.Context) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS funnel_snapshots (
			snapshot_at DateTime,
			lookback_days UInt16,
			total_searches UInt64,
			searches_with_results UInt64,
			added_to_cart UInt64,
			completed_checkout UInt64,
			search_to_view Float64,
			view_to_cart Float64,
			cart_to_checkout Float64,
			total_revenue Float64,
			avg_revenue_per_search Float64,
			avg_time_to_cart_ms Float64,
			avg_time_to_checkout_ms Float64
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(snapshot_at)
		ORDER BY (lookback_days, snapshot_at)`,

		`CREATE TABLE IF NOT EXISTS search_term_revenue (
			snapshot_at DateTime,
			lookback_days UInt16,
			query String,
			search_count UInt64,
			conversions UInt64,
			conversion_rate Float64,
			total_revenue Float64,
			revenue_per_search Float64
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(snapshot_at)
		ORDER BY (lookback_days, snapshot_at, query)`,

		`CREATE TABLE IF NOT EXISTS refinement_snapshots (
			snapshot_at DateTime,
			lookback_days UInt16,
			sessions UInt64,
			stuck_sessions UInt64,
			top_transition String
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(snapshot_at)
		ORDER BY (lookback_days, snapshot_at)`,

		`CREATE TABLE IF NOT EXISTS report_performance (
			report String,
			lookback_days UInt16,
			duration_ms Float64,
			event_count UInt64,
			skipped UInt64,
			severity String,
			timestamp DateTime,
			trace_id String
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (timestamp, report)`,

		`CREATE TABLE IF NOT EXISTS ingest_log (
			kind String,
			session_key String,
			received_at DateTime
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(received_at)
		ORDER BY (received_at, kind)`,
	}

	for _, ddl := range tables {
		if err := c.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("creating table: %w", err)
		}
	}

	c.logger.Info("clickhouse tables ensured")
	return nil
}

func observeCH(queryType string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	observability.CHQueryDuration.WithLabelValues(queryType, status).Observe(time.Since(start).Seconds())
}
