// Package app wires the pipeline and its collaborators from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/AveryLor/BiasBreaker/internal/analyzer"
	"github.com/AveryLor/BiasBreaker/internal/completion"
	"github.com/AveryLor/BiasBreaker/internal/config"
	"github.com/AveryLor/BiasBreaker/internal/conversation"
	"github.com/AveryLor/BiasBreaker/internal/elasticsearch"
	"github.com/AveryLor/BiasBreaker/internal/events"
	"github.com/AveryLor/BiasBreaker/internal/logger"
	"github.com/AveryLor/BiasBreaker/internal/neutrality"
	"github.com/AveryLor/BiasBreaker/internal/pipeline"
	"github.com/AveryLor/BiasBreaker/internal/retrieval"
	"github.com/AveryLor/BiasBreaker/internal/synthesis"
	"github.com/AveryLor/BiasBreaker/internal/voices"
)

// App holds the constructed services.
type App struct {
	Store     *elasticsearch.Client
	Pipeline  *pipeline.Pipeline
	Assistant *conversation.Assistant
	Voices    *voices.Analyzer

	closers []func() error
}

// Build constructs every component named by cfg.
func Build(ctx context.Context, cfg *config.API, log *slog.Logger) (*App, error) {
	log = logger.OrDiscard(log)

	store, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ArticleIndex, cfg.AnalysisIndex, log)
	if err != nil {
		return nil, err
	}

	client, err := completion.New(ctx, cfg.Completion)
	if err != nil {
		return nil, fmt.Errorf("init completion client: %w", err)
	}

	return assemble(cfg, store, client, log), nil
}

func assemble(cfg *config.API, store *elasticsearch.Client, client completion.Client, log *slog.Logger) *App {
	a := &App{Store: store}

	var sink neutrality.AnalysisSink = store
	if cfg.AnalysisSink == config.SinkKafka {
		pub := events.NewPublisher(events.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		a.closers = append(a.closers, pub.Close)
		sink = pub
	}

	var history conversation.HistoryStore
	switch cfg.History.Backend {
	case config.HistoryRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.History.RedisAddr})
		a.closers = append(a.closers, rdb.Close)
		history = conversation.NewRedisStore(rdb, cfg.History.Capacity, cfg.History.TTL)
	default:
		history = conversation.NewMemoryStore(cfg.History.Capacity, cfg.History.TTL, cfg.History.MaxSessions)
	}

	p := cfg.Pipeline
	keywords := analyzer.New(client, p.MaxKeywords, log.With(slog.String("component", "analyzer")))
	retriever := retrieval.New(store, p.CollectionCap, p.LookupTimeout, log.With(slog.String("component", "retrieval")))
	scorer := neutrality.New(client, store, sink, neutrality.Options{
		Threshold:    p.NeutralityThreshold,
		HistoryLimit: p.FallbackHistoryLimit,
	}, log.With(slog.String("component", "neutrality")))
	synth := synthesis.New(client, p.SummaryConcurrency, log.With(slog.String("component", "synthesis")))

	a.Pipeline = pipeline.New(keywords, retriever, scorer, synth, pipeline.Options{
		Anchors:          p.Anchors,
		ScoreConcurrency: p.ScoreConcurrency,
	}, log.With(slog.String("component", "pipeline")))

	a.Assistant = conversation.NewAssistant(conversation.Deps{
		Client:    client,
		Keywords:  keywords,
		Retriever: retriever,
		History:   history,
		Analyses:  store,
		Sink:      sink,
	}, conversation.Options{
		TopicThreshold: p.TopicThreshold,
		HistoryLimit:   p.FallbackHistoryLimit,
	}, log.With(slog.String("component", "conversation")))

	a.Voices = voices.New(voices.Deps{
		Client:   client,
		Articles: store,
		History:  store,
		Sink:     sink,
	}, 0, log.With(slog.String("component", "voices")))

	return a
}

// Close releases the Kafka writer and Redis client when they were created.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
