package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shubhsaxena/search-insights/internal/api"
	"github.com/shubhsaxena/search-insights/internal/cache"
	"github.com/shubhsaxena/search-insights/internal/clickhouse"
	"github.com/shubhsaxena/search-insights/internal/config"
	"github.com/shubhsaxena/search-insights/internal/elasticsearch"
	"github.com/shubhsaxena/search-insights/internal/firestore"
	"github.com/shubhsaxena/search-insights/internal/ingest"
	"github.com/shubhsaxena/search-insights/internal/intent"
	"github.com/shubhsaxena/search-insights/internal/kafka"
	"github.com/shubhsaxena/search-insights/internal/observability"
	"github.com/shubhsaxena/search-insights/internal/orchestrator"
	"github.com/shubhsaxena/search-insights/internal/rules"
	"github.com/shubhsaxena/search-insights/internal/sessionid"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting search insights service",
		zap.String("service", cfg.Observability.ServiceName),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracerShutdown, err := observability.InitTracer(ctx, cfg.Observability.ServiceName, cfg.Observability.TraceSampling)
	if err != nil {
		logger.Warn("tracing initialization failed, continuing without tracing", zap.Error(err))
	}

	ruleSet, err := loadRules(cfg.Analytics.RulesFile, logger)
	if err != nil {
		return err
	}

	// The event store is the one hard dependency: reports and ingest both need it.
	fsClient, err := firestore.NewClient(ctx, cfg.Firestore, cfg.Analytics, logger)
	if err != nil {
		return fmt.Errorf("initializing firestore: %w", err)
	}
	defer fsClient.Close()

	healthHandler := api.NewHealthHandler(logger)
	healthHandler.Register("firestore", fsClient, true)

	orchDeps := orchestrator.Deps{Store: fsClient}
	ingestDeps := ingest.Deps{Writer: fsClient}
	var sessionStore sessionid.Store = sessionid.NewMemoryStore()

	redisCache, err := cache.NewRedisCache(cfg.Redis, logger)
	if err != nil {
		logger.Warn("redis unavailable, reports will not be cached and session ids stay in memory", zap.Error(err))
	} else {
		defer redisCache.Close()
		orchDeps.Cache = redisCache
		ingestDeps.Invalidator = redisCache
		sessionStore = redisCache
		healthHandler.Register("redis", redisCache, false)
	}

	esClient, err := elasticsearch.NewClient(cfg.Elasticsearch, cfg.Analytics, logger)
	if err != nil {
		logger.Warn("elasticsearch unavailable, fuzzy suggestions disabled", zap.Error(err))
	} else {
		defer esClient.Close()
		orchDeps.Corpus = esClient
		ingestDeps.Corpus = esClient
		healthHandler.Register("elasticsearch", api.ClusterCheck(esClient), false)
	}

	var perfWriter observability.PerformanceWriter
	chClient, err := clickhouse.NewClient(cfg.ClickHouse, logger)
	if err != nil {
		logger.Warn("clickhouse unavailable, aggregates will not be persisted", zap.Error(err))
	} else {
		defer chClient.Close()
		if err := chClient.EnsureTables(ctx); err != nil {
			logger.Warn("clickhouse table creation failed", zap.Error(err))
		}
		orchDeps.Sink = chClient
		ingestDeps.Audit = chClient
		perfWriter = chClient
		healthHandler.Register("clickhouse", chClient, false)
	}

	orchDeps.Slow = observability.NewSlowReportDetector(
		cfg.Analytics.SlowReport.WarningThreshold,
		cfg.Analytics.SlowReport.CriticalThreshold,
		logger,
		perfWriter,
	)

	issuer := sessionid.NewIssuer(sessionStore, cfg.Analytics.SessionTimeout)
	ingestDeps.Sessions = issuer

	orch := orchestrator.New(orchDeps, ruleSet, cfg.Analytics, logger)
	defer orch.Close()

	processor := ingest.NewProcessor(ingestDeps, intent.NewClassifier(ruleSet),
		cfg.Kafka.BatchSize, cfg.Kafka.FlushInterval, logger)
	defer func() {
		if err := processor.Stop(); err != nil {
			logger.Error("ingest processor final flush failed", zap.Error(err))
		}
	}()

	consumer := kafka.NewConsumer(cfg.Kafka, processor.HandleEvent, logger)
	if err := consumer.Start(ctx); err != nil {
		logger.Warn("kafka consumer start failed, ingest pipeline will be unavailable", zap.Error(err))
	} else {
		defer consumer.Stop()
		healthHandler.Register("kafka", consumer, false)
		logger.Info("kafka consumer started")
	}

	producer := kafka.NewProducer(cfg.Kafka, logger)
	defer producer.Close()

	handler := api.NewHandler(orch, producer, issuer, cfg.Analytics.DefaultLookback, logger)
	router := api.NewRouter(handler, healthHandler, cfg.Server.RateLimit, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var metricsServer *http.Server
	if p := cfg.Observability.MetricsPort; p > 0 && p != cfg.Server.Port {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, p),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		return err
	}

	logger.Info("starting graceful shutdown", zap.Duration("timeout", cfg.Server.ShutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}

	cancel()

	if tracerShutdown != nil {
		if err := tracerShutdown(shutdownCtx); err != nil {
			logger.Error("tracer shutdown error", zap.Error(err))
		}
	}

	logger.Info("shutdown complete")
	return nil
}

func loadRules(path string, logger *zap.Logger) (*rules.Rules, error) {
	if path == "" {
		logger.Info("using built-in heuristic rules")
		return rules.Default(), nil
	}
	r, err := rules.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}
	logger.Info("heuristic rules loaded", zap.String("path", path), zap.String("version", r.Version))
	return r, nil
}
