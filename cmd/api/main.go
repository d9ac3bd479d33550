package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/tsiken/backend/internal/activity"
	"github.com/tsiken/backend/internal/blob"
	"github.com/tsiken/backend/internal/config"
	"github.com/tsiken/backend/internal/db"
	"github.com/tsiken/backend/internal/docstore"
	"github.com/tsiken/backend/internal/events"
	apphttp "github.com/tsiken/backend/internal/http"
	"github.com/tsiken/backend/internal/http/handlers"
	"github.com/tsiken/backend/internal/report"
	"github.com/tsiken/backend/internal/repositories"
	"github.com/tsiken/backend/internal/services"
	"github.com/tsiken/backend/internal/session"
	"github.com/tsiken/backend/migrations"
	"go.uber.org/zap"
)

// logStore is where activity is read from and appended to.
type logStore interface {
	activity.Source
	services.LogWriter
}

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Blob store
	minioClient, err := db.NewMinioClient(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL, log)
	if err != nil {
		log.Fatal("failed to connect to minio", zap.Error(err))
	}
	blobs := blob.NewStore(minioClient, cfg.MinioBucket, cfg.PresignExpiry, log)

	// Repositories
	userRepo := repositories.NewUserRepo(pool)
	detectionRepo := repositories.NewDetectionRepo(pool)
	sensorRepo := repositories.NewSensorRepo(pool)
	scheduleRepo := repositories.NewScheduleRepo(pool)

	var logs logStore = repositories.NewActivityLogRepo(pool)
	var profiles activity.ProfileLookup = userRepo
	if cfg.LogBackend == config.LogBackendFirestore {
		fs, err := db.NewFirestoreClient(ctx, cfg.FirestoreProjectID, log)
		if err != nil {
			log.Fatal("failed to connect to firestore", zap.Error(err))
		}
		defer fs.Close()
		logs = docstore.NewLogSource(fs)
		profiles = docstore.NewUserDirectory(fs)
	}
	log.Info("activity log backend", zap.String("backend", cfg.LogBackend))

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Services
	sessions := session.NewStore(rdb, cfg.AdminSessionTimeout, log)
	mailer := services.NewMailerClient(cfg.AccountMailFunctionURL, cfg.RemoteTimeout, log)
	accountService := services.NewAccountService(ctx, userRepo, logs, sessions, mailer, publisher, rdb, cfg, log)

	exporter := report.NewExporter(
		report.NewRenderer(cfg.ReportLocation, cfg.ExportPageSize),
		report.NewGotenbergPrinter(cfg.PDFServiceURL, cfg.RemoteTimeout, log),
		blobs,
		log,
	)
	aggregator := activity.NewAggregator(logs, profiles, log)
	activityService := services.NewActivityService(aggregator, exporter, logs, cfg.ReportLocation, cfg.LogPageSize, cfg.RecentLogsLimit, log)

	camera := services.NewDetectionClient(cfg.RemoteTimeout, log)
	detectionService := services.NewDetectionService(detectionRepo, userRepo, blobs, logs, camera, publisher, cfg.DetectionServerURLs, log)
	sensorService := services.NewSensorService(sensorRepo, log)
	scheduleService := services.NewScheduleService(scheduleRepo, userRepo, logs, cfg.ReportLocation, log)

	// Handlers
	authHandler := handlers.NewAuthHandler(accountService, log)
	userHandler := handlers.NewUserHandler(accountService, log)
	adminUserHandler := handlers.NewAdminUserHandler(accountService, log)
	activityHandler := handlers.NewActivityHandler(activityService, log)
	sessionHandler := handlers.NewSessionHandler(sessions, log)
	detectionHandler := handlers.NewDetectionHandler(detectionService, log)
	sensorHandler := handlers.NewSensorHandler(sensorService, log)
	scheduleHandler := handlers.NewScheduleHandler(scheduleService, log)
	wsHub := handlers.NewWSHub(cfg, accountService, subscriber, log)

	// Start WS hub
	if err := wsHub.Start(ctx); err != nil {
		log.Error("failed to subscribe ws hub", zap.Error(err))
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, sessions, accountService,
		authHandler, userHandler, adminUserHandler, activityHandler, sessionHandler,
		detectionHandler, sensorHandler, scheduleHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
	accountService.Wait()
}
