package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/tsiken/backend/internal/blob"
	"github.com/tsiken/backend/internal/config"
	"github.com/tsiken/backend/internal/db"
	"github.com/tsiken/backend/internal/docstore"
	"github.com/tsiken/backend/internal/events"
	"github.com/tsiken/backend/internal/repositories"
	"github.com/tsiken/backend/internal/services"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if len(cfg.DetectionServerURLs) == 0 {
		log.Fatal("DETECTION_SERVER_URLS is not set")
	}
	if cfg.DetectionOwnerEmail == "" {
		log.Fatal("DETECTION_OWNER_EMAIL is not set")
	}

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	minioClient, err := db.NewMinioClient(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL, log)
	if err != nil {
		log.Fatal("failed to connect to minio", zap.Error(err))
	}

	// Repos
	userRepo := repositories.NewUserRepo(pool)
	detectionRepo := repositories.NewDetectionRepo(pool)
	var logs services.LogWriter = repositories.NewActivityLogRepo(pool)
	if cfg.LogBackend == config.LogBackendFirestore {
		fs, err := db.NewFirestoreClient(ctx, cfg.FirestoreProjectID, log)
		if err != nil {
			log.Fatal("failed to connect to firestore", zap.Error(err))
		}
		defer fs.Close()
		logs = docstore.NewLogSource(fs)
	}

	owner, err := userRepo.GetByEmail(ctx, cfg.DetectionOwnerEmail)
	if err != nil {
		log.Fatal("detection owner not found", zap.String("email", cfg.DetectionOwnerEmail), zap.Error(err))
	}

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	camera := services.NewDetectionClient(cfg.RemoteTimeout, log)
	blobs := blob.NewStore(minioClient, cfg.MinioBucket, cfg.PresignExpiry, log)
	detectionService := services.NewDetectionService(detectionRepo, userRepo, blobs, logs, camera, publisher, cfg.DetectionServerURLs, log)
	watcher := services.NewDetectionWatcher(detectionService, camera, rdb, cfg.DetectionMinConfidence, cfg.DetectionCooldown, log)

	log.Info("detection worker started",
		zap.Strings("servers", cfg.DetectionServerURLs),
		zap.Duration("interval", cfg.DetectionPollInterval),
		zap.String("owner", owner.Email),
	)

	ticker := time.NewTicker(cfg.DetectionPollInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			runDetectionPoll(ctx, watcher, owner.ID, cfg.DetectionServerURLs, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

func runDetectionPoll(ctx context.Context, watcher *services.DetectionWatcher, owner uuid.UUID, servers []string, log *zap.Logger) {
	g, gctx := errgroup.WithContext(ctx)
	for _, server := range servers {
		g.Go(func() error {
			if _, err := watcher.Check(gctx, owner, server); err != nil {
				log.Warn("detection poll failed", zap.String("server_url", server), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}
