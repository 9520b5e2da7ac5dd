package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Redis         RedisConfig         `yaml:"redis"`
	ClickHouse    ClickHouseConfig    `yaml:"clickhouse"`
	Firestore     FirestoreConfig     `yaml:"firestore"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Analytics     AnalyticsConfig     `yaml:"analytics"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       int           `yaml:"rate_limit"`
}

// ElasticsearchConfig points at the product search index whose query log
// provides the known-term corpus for fuzzy suggestions.
type ElasticsearchConfig struct {
	Addresses      []string      `yaml:"addresses"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	MaxRetries     int           `yaml:"max_retries"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	TermsIndex     string        `yaml:"terms_index"`
	TermsField     string        `yaml:"terms_field"`
}

type RedisConfig struct {
	Addresses    []string       `yaml:"addresses"`
	Password     string         `yaml:"password"`
	DB           int            `yaml:"db"`
	PoolSize     int            `yaml:"pool_size"`
	MinIdleConns int            `yaml:"min_idle_conns"`
	DialTimeout  time.Duration  `yaml:"dial_timeout"`
	ReadTimeout  time.Duration  `yaml:"read_timeout"`
	WriteTimeout time.Duration  `yaml:"write_timeout"`
	TTL          CacheTTLConfig `yaml:"ttl"`
}

type CacheTTLConfig struct {
	Reports      time.Duration `yaml:"reports"`
	StaleReports time.Duration `yaml:"stale_reports"`
	CorpusTerms  time.Duration `yaml:"corpus_terms"`
	Suggestions  time.Duration `yaml:"suggestions"`
}

type ClickHouseConfig struct {
	Addresses    []string      `yaml:"addresses"`
	Database     string        `yaml:"database"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
}

type FirestoreConfig struct {
	ProjectID            string        `yaml:"project_id"`
	CredentialsFile      string        `yaml:"credentials_file"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
	SearchCollection     string        `yaml:"search_collection"`
	ConversionCollection string        `yaml:"conversion_collection"`
	RefinementCollection string        `yaml:"refinement_collection"`
}

type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	TopicEvents   string        `yaml:"topic_events"`
	TopicDLQ      string        `yaml:"topic_dlq"`
	ConsumerGroup string        `yaml:"consumer_group"`
	BatchSize     int           `yaml:"batch_size"`
	BatchTimeout  time.Duration `yaml:"batch_timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

type AnalyticsConfig struct {
	LookbackDays      []int                `yaml:"lookback_days"`
	DefaultLookback   int                  `yaml:"default_lookback"`
	MaxBatchSize      int                  `yaml:"max_batch_size"`
	TopPaths          int                  `yaml:"top_paths"`
	TopPatterns       int                  `yaml:"top_patterns"`
	TopRevenueTerms   int                  `yaml:"top_revenue_terms"`
	TopZeroResults    int                  `yaml:"top_zero_results"`
	Stuck             StuckConfig          `yaml:"stuck"`
	SessionTimeout    time.Duration        `yaml:"session_timeout"`
	ParallelThreshold int                  `yaml:"parallel_threshold"`
	Workers           int                  `yaml:"workers"`
	RulesFile         string               `yaml:"rules_file"`
	CorpusLimit       int                  `yaml:"corpus_limit"`
	ReportTimeout     time.Duration        `yaml:"report_timeout"`
	CircuitBreaker    CircuitBreakerConfig `yaml:"circuit_breaker"`
	Retry             RetryConfig          `yaml:"retry"`
	SlowReport        SlowReportConfig     `yaml:"slow_report"`
}

type StuckConfig struct {
	ExcessiveRefinements  int  `yaml:"excessive_refinements"`
	LoopOccurrences       int  `yaml:"loop_occurrences"`
	ZeroResultStreak      int  `yaml:"zero_result_streak"`
	PerSessionTransitions bool `yaml:"per_session_transitions"`
}

type CircuitBreakerConfig struct {
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	InitialWait time.Duration `yaml:"initial_wait"`
	MaxWait     time.Duration `yaml:"max_wait"`
	Multiplier  float64       `yaml:"multiplier"`
}

type SlowReportConfig struct {
	WarningThreshold  time.Duration `yaml:"warning_threshold"`
	CriticalThreshold time.Duration `yaml:"critical_threshold"`
}

type ObservabilityConfig struct {
	MetricsPort   int     `yaml:"metrics_port"`
	LogLevel      string  `yaml:"log_level"`
	ServiceName   string  `yaml:"service_name"`
	TraceSampling float64 `yaml:"trace_sampling"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit:       200,
		},
		Elasticsearch: ElasticsearchConfig{
			Addresses:      []string{"http://localhost:9200"},
			MaxRetries:     3,
			RequestTimeout: 500 * time.Millisecond,
			TermsIndex:     "search_queries",
			TermsField:     "query.keyword",
		},
		Redis: RedisConfig{
			Addresses:    []string{"localhost:6379"},
			PoolSize:     50,
			MinIdleConns: 5,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  1 * time.Second,
			WriteTimeout: 1 * time.Second,
			TTL: CacheTTLConfig{
				Reports:      5 * time.Minute,
				StaleReports: 6 * time.Hour,
				CorpusTerms:  15 * time.Minute,
				Suggestions:  10 * time.Minute,
			},
		},
		ClickHouse: ClickHouseConfig{
			Addresses:    []string{"localhost:9000"},
			Database:     "search_analytics",
			DialTimeout:  5 * time.Second,
			QueryTimeout: 2 * time.Second,
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Firestore: FirestoreConfig{
			RequestTimeout:       10 * time.Second,
			SearchCollection:     "search_events",
			ConversionCollection: "conversion_events",
			RefinementCollection: "refinement_events",
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			TopicEvents:   "search.events",
			TopicDLQ:      "search.events.dlq",
			ConsumerGroup: "search-insights-ingest",
			BatchSize:     500,
			BatchTimeout:  1 * time.Second,
			MaxRetries:    3,
			FlushInterval: 2 * time.Second,
		},
		Analytics: AnalyticsConfig{
			LookbackDays:    []int{1, 7, 30, 90},
			DefaultLookback: 7,
			MaxBatchSize:    1000,
			TopPaths:        5,
			TopPatterns:     5,
			TopRevenueTerms: 15,
			TopZeroResults:  10,
			Stuck: StuckConfig{
				ExcessiveRefinements: 5,
				LoopOccurrences:      3,
				ZeroResultStreak:     2,
			},
			SessionTimeout:    30 * time.Minute,
			ParallelThreshold: 256,
			Workers:           8,
			CorpusLimit:       5000,
			ReportTimeout:     15 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				MaxRequests:      10,
				Interval:         30 * time.Second,
				Timeout:          30 * time.Second,
				FailureThreshold: 5,
			},
			Retry: RetryConfig{
				MaxAttempts: 3,
				InitialWait: 100 * time.Millisecond,
				MaxWait:     2 * time.Second,
				Multiplier:  2.0,
			},
			SlowReport: SlowReportConfig{
				WarningThreshold:  2 * time.Second,
				CriticalThreshold: 8 * time.Second,
			},
		},
		Observability: ObservabilityConfig{
			MetricsPort:   9090,
			LogLevel:      "info",
			ServiceName:   "search-insights",
			TraceSampling: 0.1,
		},
	}
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if len(c.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("at least one elasticsearch address required")
	}
	if len(c.Redis.Addresses) == 0 {
		return fmt.Errorf("at least one redis address required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("at least one kafka broker required")
	}

	a := c.Analytics
	if len(a.LookbackDays) == 0 {
		return fmt.Errorf("at least one lookback window required")
	}
	for _, d := range a.LookbackDays {
		if d <= 0 {
			return fmt.Errorf("lookback days must be positive, got %d", d)
		}
	}
	if !a.AllowsLookback(a.DefaultLookback) {
		return fmt.Errorf("default lookback %d not in allowed windows %v", a.DefaultLookback, a.LookbackDays)
	}
	if a.MaxBatchSize <= 0 || a.MaxBatchSize > 10000 {
		return fmt.Errorf("max batch size must be between 1 and 10000")
	}
	if a.TopPaths <= 0 || a.TopPatterns <= 0 || a.TopRevenueTerms <= 0 {
		return fmt.Errorf("top-N sizes must be positive")
	}
	if a.Stuck.ExcessiveRefinements < 1 || a.Stuck.LoopOccurrences < 2 || a.Stuck.ZeroResultStreak < 1 {
		return fmt.Errorf("invalid stuck thresholds: %+v", a.Stuck)
	}
	if a.SessionTimeout <= 0 {
		return fmt.Errorf("session timeout must be positive")
	}
	if a.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	return nil
}

// AllowsLookback reports whether days is one of the configured windows.
func (a AnalyticsConfig) AllowsLookback(days int) bool {
	for _, d := range a.LookbackDays {
		if d == days {
			return true
		}
	}
	return false
}
