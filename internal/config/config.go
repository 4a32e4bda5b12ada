package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Analysis sink and history backend names.
const (
	SinkElasticsearch = "elasticsearch"
	SinkKafka         = "kafka"

	HistoryMemory = "memory"
	HistoryRedis  = "redis"

	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Common contains Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddr string
	ArticleIndex      string
	AnalysisIndex     string
}

// Kafka describes the analysis-record topic.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Completion configures the text-completion backend.
type Completion struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

// Pipeline holds the tunables of the retrieval-and-synthesis pipeline.
type Pipeline struct {
	MaxKeywords          int
	CollectionCap        int
	Anchors              []int
	ScoreConcurrency     int
	SummaryConcurrency   int
	LookupTimeout        time.Duration
	NeutralityThreshold  float64
	TopicThreshold       float64
	FallbackHistoryLimit int
}

// History configures the conversational session history.
type History struct {
	Backend     string
	RedisAddr   string
	Capacity    int
	TTL         time.Duration
	MaxSessions int
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr     string
	AnalysisSink string
	Kafka        Kafka
	Completion   Completion
	Pipeline     Pipeline
	History      History
}

// Worker holds configuration for the Kafka -> Elasticsearch analysis-log worker.
type Worker struct {
	Common
	Kafka          Kafka
	KafkaConsumer  string
	DedupeCapacity int
	DedupeTTL      time.Duration
	BatchSize      int
}

// Retention configures the analysis-log pruning loop.
type Retention struct {
	Common
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

var dotenvOnce sync.Once

// loadDotEnv reads an optional .env file. Variables already set in the environment win.
func loadDotEnv() {
	dotenvOnce.Do(func() {
		path := getEnv("DOTENV_PATH", ".env")
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	})
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddr: getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ArticleIndex:      getEnv("ARTICLE_INDEX", "news"),
		AnalysisIndex:     getEnv("ANALYSIS_INDEX", "analysis_results"),
	}
}

func loadKafka() Kafka {
	return Kafka{
		Brokers: splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		Topic:   getEnv("KAFKA_TOPIC", "analysis_records"),
	}
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	loadDotEnv()

	anchors, err := parseInts(getEnv("SELECTION_ANCHORS", "0,25,75,100"))
	if err != nil {
		return nil, fmt.Errorf("SELECTION_ANCHORS: %w", err)
	}

	c := &API{
		Common:       loadCommon(),
		BindAddr:     getEnv("API_BIND_ADDR", "0.0.0.0:8000"),
		AnalysisSink: strings.ToLower(getEnv("ANALYSIS_SINK", SinkElasticsearch)),
		Kafka:        loadKafka(),
		Completion: Completion{
			Provider: strings.ToLower(getEnv("COMPLETION_PROVIDER", ProviderGemini)),
			APIKey:   getEnv("COMPLETION_API_KEY", ""),
			Model:    getEnv("COMPLETION_MODEL", "gemini-2.0-flash"),
			BaseURL:  getEnv("COMPLETION_BASE_URL", ""),
			Timeout:  getDuration("COMPLETION_TIMEOUT", "30s"),
		},
		Pipeline: Pipeline{
			MaxKeywords:          getInt("MAX_KEYWORDS", 5),
			CollectionCap:        getInt("COLLECTION_CAP", 16),
			Anchors:              anchors,
			ScoreConcurrency:     getInt("SCORE_CONCURRENCY", 4),
			SummaryConcurrency:   getInt("SUMMARY_CONCURRENCY", 4),
			LookupTimeout:        getDuration("LOOKUP_TIMEOUT", "5s"),
			NeutralityThreshold:  getFloat("NEUTRALITY_SIMILARITY_THRESHOLD", 0.5),
			TopicThreshold:       getFloat("TOPIC_SIMILARITY_THRESHOLD", 0.6),
			FallbackHistoryLimit: getInt("FALLBACK_HISTORY_LIMIT", 20),
		},
		History: History{
			Backend:     strings.ToLower(getEnv("HISTORY_BACKEND", HistoryMemory)),
			RedisAddr:   getEnv("REDIS_ADDR", "redis:6379"),
			Capacity:    getInt("HISTORY_CAPACITY", 5),
			TTL:         getDuration("HISTORY_TTL", "24h"),
			MaxSessions: getInt("HISTORY_MAX_SESSIONS", 10000),
		},
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *API) validate() error {
	p := c.Pipeline
	if p.MaxKeywords <= 0 {
		return fmt.Errorf("MAX_KEYWORDS must be positive")
	}
	if p.CollectionCap <= 0 {
		return fmt.Errorf("COLLECTION_CAP must be positive")
	}
	if len(p.Anchors) == 0 {
		return fmt.Errorf("SELECTION_ANCHORS must contain at least one anchor")
	}
	for _, a := range p.Anchors {
		if a < 0 || a > 100 {
			return fmt.Errorf("SELECTION_ANCHORS values must be within 0..100, got %d", a)
		}
	}
	if p.ScoreConcurrency <= 0 {
		return fmt.Errorf("SCORE_CONCURRENCY must be positive")
	}
	if p.SummaryConcurrency <= 0 {
		return fmt.Errorf("SUMMARY_CONCURRENCY must be positive")
	}
	if p.NeutralityThreshold < 0 || p.NeutralityThreshold > 1 {
		return fmt.Errorf("NEUTRALITY_SIMILARITY_THRESHOLD must be within 0..1")
	}
	if p.TopicThreshold < 0 || p.TopicThreshold > 1 {
		return fmt.Errorf("TOPIC_SIMILARITY_THRESHOLD must be within 0..1")
	}
	if p.FallbackHistoryLimit <= 0 {
		return fmt.Errorf("FALLBACK_HISTORY_LIMIT must be positive")
	}

	switch c.AnalysisSink {
	case SinkElasticsearch:
	case SinkKafka:
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
		}
	default:
		return fmt.Errorf("ANALYSIS_SINK must be %q or %q", SinkElasticsearch, SinkKafka)
	}

	switch c.Completion.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("COMPLETION_PROVIDER must be %q or %q", ProviderGemini, ProviderOpenAI)
	}

	switch c.History.Backend {
	case HistoryMemory, HistoryRedis:
	default:
		return fmt.Errorf("HISTORY_BACKEND must be %q or %q", HistoryMemory, HistoryRedis)
	}
	if c.History.Capacity <= 0 {
		return fmt.Errorf("HISTORY_CAPACITY must be positive")
	}
	if c.History.MaxSessions <= 0 {
		return fmt.Errorf("HISTORY_MAX_SESSIONS must be positive")
	}
	return nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	loadDotEnv()

	c := &Worker{
		Common:         loadCommon(),
		Kafka:          loadKafka(),
		KafkaConsumer:  getEnv("KAFKA_CONSUMER_GROUP", "analysis-worker"),
		DedupeCapacity: getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:      getDuration("WORKER_DEDUPE_TTL", "24h"),
		BatchSize:      getInt("WORKER_BATCH_SIZE", 10),
	}

	if len(c.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	loadDotEnv()

	c := &Retention{
		Common:    loadCommon(),
		Interval:  getDuration("RETENTION_INTERVAL", "24h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "720h"),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_INTERVAL must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseInts(raw string) ([]int, error) {
	parts := splitAndTrim(raw)
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", part, err)
		}
		out = append(out, v)
	}
	return out, nil
}
