package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feedback-sync/internal/config"
	"feedback-sync/internal/di"
	"feedback-sync/internal/feedback/usecase"
	"feedback-sync/internal/shared/logger"
	"feedback-sync/internal/shared/metrics"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	appLogger := logger.NewLoggerWithConfig(cfg.Log.Level, cfg.Log.Format, cfg.Log.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container := di.NewContainer(cfg, appLogger)
	defer func() {
		if err := container.Close(); err != nil {
			appLogger.Errorf("Failed to close container: %v", err)
		}
	}()

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = container.Initialize(initCtx)
	cancel()
	if err != nil {
		appLogger.Fatalf("Failed to initialize client: %v", err)
	}

	if cfg.MetricsAddr != "" {
		metrics.StartServer(ctx, appLogger, cfg.MetricsAddr, container.Registry)
	}

	unsubscribe := container.LiveQuery.Subscribe(func(u usecase.Update) {
		if u.Err != nil {
			appLogger.Warnf("subscription degraded: %v", u.Err)
			return
		}
		appLogger.WithFields(map[string]interface{}{
			"owner":   u.Snapshot.Owner(),
			"version": u.Snapshot.Version(),
			"records": u.Snapshot.Len(),
		}).Info("snapshot published")
	})
	defer unsubscribe()

	if err := container.LiveQuery.Start(ctx); err != nil {
		appLogger.Fatalf("Failed to start live query: %v", err)
	}

	if cfg.ClientScript {
		if err := runScript(ctx, container, appLogger); err != nil {
			appLogger.Errorf("script failed: %v", err)
			return
		}
		appLogger.Info("script finished")
		return
	}

	appLogger.Infof("client ready on %s backend", cfg.Backend)
	<-ctx.Done()
	appLogger.Info("client stopped")
}
