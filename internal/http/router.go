package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/tsiken/backend/internal/config"
	"github.com/tsiken/backend/internal/http/handlers"
	"github.com/tsiken/backend/internal/middleware"
	"github.com/tsiken/backend/internal/rbac"
	"github.com/tsiken/backend/internal/session"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	sessions *session.Store,
	accounts middleware.AccountChecker,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	adminUserHandler *handlers.AdminUserHandler,
	activityHandler *handlers.ActivityHandler,
	sessionHandler *handlers.SessionHandler,
	detectionHandler *handlers.DetectionHandler,
	sensorHandler *handlers.SensorHandler,
	scheduleHandler *handlers.ScheduleHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID, " + middleware.HeaderDeviceID,
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Auth (public)
	api.Post("/auth/signup", authHandler.SignUp)
	api.Post("/auth/signin", authHandler.SignIn)
	api.Post("/auth/password/forgot", authHandler.ForgotPassword)
	api.Post("/auth/password/reset", authHandler.ResetPassword)

	// Meta (public, no auth required)
	metaHandler := handlers.NewMetaHandler()
	api.Get("/meta/collections", metaHandler.GetCollections)
	api.Get("/meta/predator-classes", metaHandler.GetPredatorClasses)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, accounts, log))
	perm := func(p string) fiber.Handler {
		return middleware.RequirePermission(sessions, p, log)
	}

	protected.Post("/auth/signout", authHandler.SignOut)

	// User
	protected.Get("/me", userHandler.GetMe)
	protected.Put("/me", userHandler.UpdateMe)
	protected.Post("/me/password", userHandler.ChangePassword)

	// Activity log
	protected.Get("/activity", perm(rbac.PermViewOwnLogs), activityHandler.MyLogs)
	protected.Get("/activity/recent", perm(rbac.PermViewOwnLogs), activityHandler.Recent)

	// Admin session
	protected.Get("/admin/session", sessionHandler.Check)
	protected.Post("/admin/session/refresh", sessionHandler.Refresh)

	// Admin (role + device session)
	protected.Get("/admin/activity", perm(rbac.PermViewAllLogs), activityHandler.AllLogs)
	protected.Post("/admin/activity/export", perm(rbac.PermExportLogs), activityHandler.Export)

	users := protected.Group("/admin/users", perm(rbac.PermManageUsers))
	users.Get("", adminUserHandler.List)
	users.Post("", adminUserHandler.Create)
	users.Get("/:id", adminUserHandler.Get)
	users.Patch("/:id/role", adminUserHandler.SetRole)
	users.Patch("/:id/lock", adminUserHandler.SetLocked)
	users.Delete("/:id", adminUserHandler.Delete)

	// Predator detections
	protected.Get("/detections", detectionHandler.List)
	protected.Get("/detections/discover", detectionHandler.Discover)
	protected.Post("/detections/capture", perm(rbac.PermCaptureDetection), detectionHandler.Capture)
	protected.Get("/detections/:id", detectionHandler.Get)
	protected.Patch("/detections/:id/status", perm(rbac.PermReviewDetection), detectionHandler.UpdateStatus)
	protected.Delete("/detections/:id", perm(rbac.PermDeleteDetection), detectionHandler.Delete)

	// Sensors
	protected.Post("/sensors/readings", perm(rbac.PermRecordSensor), sensorHandler.Record)
	protected.Get("/sensors/averages", sensorHandler.Averages)

	// Schedules
	schedules := protected.Group("/schedules", perm(rbac.PermManageSchedules))
	schedules.Get("/feeds", scheduleHandler.ListFeeds)
	schedules.Post("/feeds", scheduleHandler.AddFeed)
	schedules.Put("/feeds/:id", scheduleHandler.UpdateFeed)
	schedules.Delete("/feeds/:id", scheduleHandler.DeleteFeed)
	schedules.Get("/watering", scheduleHandler.GetWatering)
	schedules.Put("/watering", scheduleHandler.SaveWatering)
	schedules.Delete("/watering", scheduleHandler.DeleteWatering)
	schedules.Get("/night-time", scheduleHandler.GetNightTime)
	schedules.Put("/night-time", scheduleHandler.SetNightTime)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
