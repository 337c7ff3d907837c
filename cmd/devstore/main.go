package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feedback-sync/internal/auth"
	authmemory "feedback-sync/internal/auth/adapter/persistence/memory"
	"feedback-sync/internal/config"
	storehttp "feedback-sync/internal/feedback/adapter/http"
	"feedback-sync/internal/feedback/adapter/memstore"
	"feedback-sync/internal/shared/logger"
	"feedback-sync/internal/shared/metrics"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	appLogger := logger.NewLoggerWithConfig(cfg.Log.Level, cfg.Log.Format, cfg.Log.Backend).WithComponent("devstore")

	accounts := authmemory.NewRepository()
	authModule, err := auth.NewAuthModule(accounts, accounts, &cfg.Auth, appLogger)
	if err != nil {
		appLogger.Fatalf("Failed to initialize auth module: %v", err)
	}

	store := memstore.New(appLogger,
		memstore.WithRules(memstore.DefaultRules()),
		memstore.WithLatencyCompensation(true),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	serverMetrics := metrics.NewServerMetrics(registry)

	app := storehttp.NewServer(store, authModule, registry, serverMetrics, appLogger)

	serverShutdown := make(chan error, 1)
	go func() {
		appLogger.Infof("dev store listening on %s", cfg.DevStoreAddr)
		serverShutdown <- app.Listen(cfg.DevStoreAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverShutdown:
		if err != nil {
			appLogger.Fatalf("Server startup failed: %v", err)
		}
	case sig := <-quit:
		appLogger.Infof("Received shutdown signal: %v", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			appLogger.Errorf("Server forced to shutdown: %v", err)
		}
		appLogger.Info("dev store stopped")
	}
}
