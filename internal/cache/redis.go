package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shubhsaxena/search-insights/internal/config"
	"github.com/shubhsaxena/search-insights/internal/intent"
	"github.com/shubhsaxena/search-insights/internal/models"
	"github.com/shubhsaxena/search-insights/internal/observability"
	"github.com/shubhsaxena/search-insights/internal/sessionid"
)

const (
	liveReportPrefix  = "rpt:live:"
	staleReportPrefix = "rpt:stale:"
	corpusKey         = "corpus:terms"
)

type RedisCache struct {
	client redis.UniversalClient
	ttl    config.CacheTTLConfig
	logger *zap.Logger
}

func NewRedisCache(cfg config.RedisConfig, logger *zap.Logger) (*RedisCache, error) {
	var client redis.UniversalClient

	if len(cfg.Addresses) > 1 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.Addresses,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:         cfg.Addresses[0],
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("redis cache connected", zap.Strings("addresses", cfg.Addresses))

	return &RedisCache{
		client: client,
		ttl:    cfg.TTL,
		logger: logger,
	}, nil
}

// GetReport decodes the cached report into dest. It reports false on a miss.
func (rc *RedisCache) GetReport(ctx context.Context, kind string, days int, dest any) (bool, error) {
	return rc.getJSON(ctx, reportKey(liveReportPrefix, kind, days), dest)
}

// SetReport stores a live copy and a long-lived stale copy used when the
// event store is unavailable.
func (rc *RedisCache) SetReport(ctx context.Context, kind string, days int, report any) error {
	if err := rc.setJSON(ctx, reportKey(liveReportPrefix, kind, days), report, rc.ttl.Reports); err != nil {
		return err
	}
	return rc.setJSON(ctx, reportKey(staleReportPrefix, kind, days), report, rc.ttl.StaleReports)
}

func (rc *RedisCache) GetStaleReport(ctx context.Context, kind string, days int, dest any) (bool, error) {
	return rc.getJSON(ctx, reportKey(staleReportPrefix, kind, days), dest)
}

// InvalidateReports drops live reports so the next request recomputes them.
// Stale copies are kept for fallback.
func (rc *RedisCache) InvalidateReports(ctx context.Context) error {
	return rc.InvalidatePattern(ctx, []string{liveReportPrefix + "*"})
}

func (rc *RedisCache) InvalidatePattern(ctx context.Context, patterns []string) error {
	for _, pattern := range patterns {
		iter := rc.client.Scan(ctx, 0, pattern, 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			rc.logger.Warn("cache scan error", zap.String("pattern", pattern), zap.Error(err))
			continue
		}
		if len(keys) > 0 {
			if err := rc.client.Del(ctx, keys...).Err(); err != nil {
				rc.logger.Warn("cache delete error", zap.Strings("keys", keys), zap.Error(err))
			}
		}
	}
	return nil
}

func (rc *RedisCache) GetCorpusTerms(ctx context.Context) ([]string, error) {
	var terms []string
	if _, err := rc.getJSON(ctx, corpusKey, &terms); err != nil {
		return nil, fmt.Errorf("cache get corpus: %w", err)
	}
	return terms, nil
}

func (rc *RedisCache) SetCorpusTerms(ctx context.Context, terms []string) error {
	return rc.setJSON(ctx, corpusKey, terms, rc.ttl.CorpusTerms)
}

func (rc *RedisCache) GetSuggestions(ctx context.Context, query, category string) ([]models.Suggestion, bool, error) {
	var out []models.Suggestion
	ok, err := rc.getJSON(ctx, suggestionKey(query, category), &out)
	return out, ok, err
}

func (rc *RedisCache) SetSuggestions(ctx context.Context, query, category string, suggestions []models.Suggestion) error {
	return rc.setJSON(ctx, suggestionKey(query, category), suggestions, rc.ttl.Suggestions)
}

func (rc *RedisCache) GetSession(ctx context.Context, visitor string) (sessionid.State, bool, error) {
	var st sessionid.State
	ok, err := rc.getJSON(ctx, sessionKey(visitor), &st)
	return st, ok, err
}

func (rc *RedisCache) PutSession(ctx context.Context, visitor string, st sessionid.State, ttl time.Duration) error {
	return rc.setJSON(ctx, sessionKey(visitor), st, ttl)
}

func (rc *RedisCache) HealthCheck(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

func (rc *RedisCache) getJSON(ctx context.Context, key string, dest any) (bool, error) {
	val, err := rc.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		observability.CacheMisses.Inc()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get: %w", err)
	}

	observability.CacheHits.Inc()
	if err := json.Unmarshal(val, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal: %w", err)
	}
	return true, nil
}

func (rc *RedisCache) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	return rc.client.Set(ctx, key, data, ttl).Err()
}

func reportKey(prefix, kind string, days int) string {
	return fmt.Sprintf("%s%s:%d", prefix, kind, days)
}

func suggestionKey(query, category string) string {
	raw := fmt.Sprintf("%s|%s", intent.Normalize(query), intent.Normalize(category))
	return fmt.Sprintf("sg:%s", hashString(raw))
}

func sessionKey(visitor string) string {
	return fmt.Sprintf("sess:%s", hashString(visitor))
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:8])
}
