package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AveryLor/BiasBreaker/internal/config"
	"github.com/AveryLor/BiasBreaker/internal/elasticsearch"
	"github.com/AveryLor/BiasBreaker/internal/logger"
)

type analysisPruner interface {
	PruneAnalyses(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

func main() {
	log := logger.New("retention")
	cfg, err := config.LoadRetention()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ArticleIndex, cfg.AnalysisIndex, log)
	if err != nil {
		log.Error("create elasticsearch client", slog.Any("err", err))
		os.Exit(1)
	}
	if err := store.WaitReady(ctx, 10, 2*time.Second); err != nil {
		if ctx.Err() != nil {
			log.Info("shutdown signal received during startup")
			return
		}
		log.Error("failed to connect to elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("retention job running",
		slog.Duration("interval", cfg.Interval),
		slog.Duration("max_age", cfg.MaxAge),
		slog.String("index", cfg.AnalysisIndex),
	)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	runOnce(ctx, log, store, cfg, time.Now())
	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case now := <-ticker.C:
			runOnce(ctx, log, store, cfg, now)
		}
	}
}

// runOnce prunes one round and reports how many records went away. Failures
// are left for the next tick.
func runOnce(ctx context.Context, log *slog.Logger, store analysisPruner, cfg *config.Retention, now time.Time) int64 {
	subCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	deleted, err := store.PruneAnalyses(subCtx, now.Add(-cfg.MaxAge), cfg.BatchSize)
	if err != nil {
		log.Warn("retention run failed, will retry on next interval",
			slog.Any("err", err),
			slog.Int64("deleted", deleted),
		)
		return deleted
	}

	if deleted > 0 {
		log.Info("retention run completed", slog.Int64("deleted", deleted))
	} else {
		log.Debug("retention run completed, no old analysis records")
	}
	return deleted
}
