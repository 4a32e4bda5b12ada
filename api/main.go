package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AveryLor/BiasBreaker/internal/app"
	"github.com/AveryLor/BiasBreaker/internal/config"
	"github.com/AveryLor/BiasBreaker/internal/logger"
)

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	services, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("init services", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := services.Close(); err != nil {
			log.Error("close services", slog.Any("err", err))
		}
	}()

	// One-time startup probe; the API still starts so /health can report the outage.
	if err := services.Store.WaitReady(ctx, 5, time.Second); err != nil {
		log.Warn("elasticsearch not ready", slog.Any("err", err))
	} else if err := services.Store.CheckIndices(ctx); err != nil {
		log.Warn("elasticsearch indices missing", slog.Any("err", err))
	}

	srv := &server{
		log:       log,
		pipeline:  services.Pipeline,
		assistant: services.Assistant,
		voices:    services.Voices,
		health:    services.Store,
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}
