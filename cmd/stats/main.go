package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tsiken/backend/internal/config"
	"github.com/tsiken/backend/internal/db"
	"github.com/tsiken/backend/internal/repositories"
	"github.com/tsiken/backend/internal/services"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	sensorService := services.NewSensorService(repositories.NewSensorRepo(pool), log)

	log.Info("sensor averages job started", zap.Duration("interval", cfg.SensorAverageInterval))

	// Initial run
	runRecompute(ctx, sensorService, log)

	ticker := time.NewTicker(cfg.SensorAverageInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			runRecompute(ctx, sensorService, log)
		case <-sigCh:
			log.Info("shutting down sensor averages job")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

func runRecompute(ctx context.Context, sensorService *services.SensorService, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if _, err := sensorService.Recompute(ctx); err != nil {
		log.Error("failed to recompute sensor averages", zap.Error(err))
	}
}
