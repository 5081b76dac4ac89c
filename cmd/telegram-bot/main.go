package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"piatto/internal/app"
	"piatto/internal/config"
	"piatto/internal/logger"
	"piatto/internal/telegram"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const metricsRetentionDays = 30

func main() {
	// 1. Load Configuration
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateBot(); err != nil {
		log.Fatalf("Invalid bot config: %v", err)
	}

	zl, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		Development: cfg.LogDevelopment,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zl.Sync()

	// 2. Database, metrics and API client
	a, err := app.New(cfg, zl)
	if err != nil {
		zl.Fatal("failed to initialize app", zap.Error(err))
	}
	defer a.Close()

	// 3. Telegram Bot
	bot, err := telegram.NewBot(cfg, telegram.Deps{
		Backend:        a.Client(),
		Storage:        a.Storage(),
		Metrics:        a.Metrics(),
		MetricsHandler: promhttp.HandlerFor(a.Registry(), promhttp.HandlerOpts{}),
		Logger:         zl,
	})
	if err != nil {
		zl.Fatal("failed to initialize telegram bot", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go cleanupLoop(ctx, a, zl)

	// 4. Start Server with Graceful Shutdown
	mux := http.NewServeMux()
	bot.RegisterHandlers(mux)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zl.Info("telegram bot server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down server")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		zl.Error("server forced to shutdown", zap.Error(err))
	}
	bot.Close()

	zl.Info("server exiting")
	if err := zl.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) {
		os.Exit(1)
	}
}

// cleanupLoop drops old request metrics and stale chat sessions once a day.
func cleanupLoop(ctx context.Context, a *app.App, zl *zap.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		if _, _, err := a.Cleanup(ctx, metricsRetentionDays); err != nil && ctx.Err() == nil {
			zl.Warn("cleanup failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
