package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/AveryLor/BiasBreaker/internal/config"
	"github.com/AveryLor/BiasBreaker/internal/dedupe"
	"github.com/AveryLor/BiasBreaker/internal/elasticsearch"
	"github.com/AveryLor/BiasBreaker/internal/events"
	"github.com/AveryLor/BiasBreaker/internal/logger"
	"github.com/AveryLor/BiasBreaker/internal/models"
)

const (
	dlqAttempts = 5
	dlqBackoff  = time.Second
)

type analysisAppender interface {
	AppendAnalysis(ctx context.Context, rec models.AnalysisRecord) error
}

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ArticleIndex, cfg.AnalysisIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := esClient.WaitReady(ctx, 10, 2*time.Second); err != nil {
		log.Error("elasticsearch unavailable", slog.Any("err", err))
		os.Exit(1)
	}

	seen := dedupe.NewSeenSet(cfg.DedupeCapacity, cfg.DedupeTTL)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          cfg.Kafka.Topic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit only
	})
	defer reader.Close()

	dlqTopic := cfg.Kafka.Topic + events.DLQSuffix
	dlqWriter := events.NewWriter(cfg.Kafka.Brokers, dlqTopic)
	defer dlqWriter.Close()

	log.Info("worker started",
		slog.String("topic", cfg.Kafka.Topic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", dlqTopic),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := processMessage(ctx, log, esClient, seen, msg); err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)

			attempts, dlqErr := events.WriteWithBackoff(ctx, dlqWriter, events.DeadLetter(msg, err, time.Now()), dlqAttempts, dlqBackoff)
			if errors.Is(dlqErr, context.Canceled) {
				log.Info("context canceled during DLQ retry")
				return
			}
			// Without a DLQ copy the offset stays uncommitted so the message is reprocessed on restart.
			if dlqErr != nil {
				log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
					slog.Any("err", dlqErr),
					slog.Int("partition", msg.Partition),
					slog.Int64("offset", msg.Offset),
				)
				continue
			}
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempts),
			)
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

func processMessage(ctx context.Context, log *slog.Logger, store analysisAppender, seen *dedupe.SeenSet, msg kafka.Message) error {
	rec, err := events.DecodeRecord(msg.Value)
	if err != nil {
		return err
	}

	if seen.Contains(rec.ID) {
		log.Debug("duplicate analysis record", slog.String("id", rec.ID))
		return nil
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = msg.Time.UTC()
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now().UTC()
		}
	}

	if err := store.AppendAnalysis(ctx, rec); err != nil {
		return err
	}

	seen.Add(rec.ID)
	log.Info("appended analysis record",
		slog.String("id", rec.ID),
		slog.String("module", rec.Module),
	)
	return nil
}
