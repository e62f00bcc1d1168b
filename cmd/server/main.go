package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/tariel-x/wellpush/internal/config"
	"github.com/tariel-x/wellpush/internal/database"
	"github.com/tariel-x/wellpush/internal/devices"
	"github.com/tariel-x/wellpush/internal/dispatch"
	"github.com/tariel-x/wellpush/internal/handlers"
	"github.com/tariel-x/wellpush/internal/models"
	"github.com/tariel-x/wellpush/internal/notifylog"
	"github.com/tariel-x/wellpush/internal/preferences"
	"github.com/tariel-x/wellpush/internal/push"
	"github.com/tariel-x/wellpush/internal/reminders"
	"github.com/tariel-x/wellpush/internal/static"
)

const AppVersion = "1.0.0"

const runLockKey = "wellpush:checkin-reminders:lock"

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(newLogger("info"))
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)
	logger.Info(fmt.Sprintf("Wellpush Server v%s", AppVersion), "tls_mode", cfg.TLSMode)

	db, err := database.Initialize(cfg.DatabaseDriver, cfg.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	loc, err := cfg.ReferenceLocation()
	if err != nil {
		return err
	}

	providers := push.NewRegistry()
	if cfg.PushConfigured() {
		providers.Register(models.PlatformWeb, push.NewWebPushProvider(push.WebPushConfig{
			PublicKey:       cfg.VAPIDKeys.PublicKey,
			PrivateKey:      cfg.VAPIDKeys.PrivateKey,
			Subject:         cfg.VAPIDKeys.Subject,
			Timeout:         cfg.PushTimeout,
			TTL:             cfg.PushTTL,
			BreakerFailures: cfg.BreakerFailures,
			BreakerCooldown: cfg.BreakerCooldown,
		}, logger))
	}

	registry := devices.NewRegistry(db)
	logs := notifylog.NewStore(db)
	dispatcher := dispatch.New(registry, logs, providers, logger, dispatch.WithFanout(cfg.DeviceFanout))

	lock, closeLock, err := newRunLock(cfg, logger)
	if err != nil {
		return err
	}
	defer closeLock()
	runner := reminders.NewBatchRunner(reminders.NewEngine(db, loc), dispatcher, lock, logger)

	h := handlers.New(cfg, handlers.Deps{
		DB:         db,
		Devices:    registry,
		Prefs:      preferences.NewStore(db),
		Logs:       logs,
		Providers:  providers,
		Dispatcher: dispatcher,
		Runner:     runner,
		Scheduler:  newSchedulerAuth(cfg, logger),
		Logger:     logger,
	})
	router := setupRouter(h, cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runServer(ctx, router, cfg, logger)
}

func setupRouter(h *handlers.Handlers, cfg *config.Config, logger *slog.Logger) *gin.Engine {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), slogGinLogger(logger))

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", cfg.CORSOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.GET("/healthz", h.Health)
	static.RegisterServiceWorker(router)
	h.Register(router.Group("/api"))

	return router
}

func newSchedulerAuth(cfg *config.Config, logger *slog.Logger) handlers.SchedulerAuthenticator {
	if cfg.SchedulerAuth == config.SchedulerAuthJWT {
		if cfg.JWTSecret == "" {
			logger.Warn("SCHEDULER_AUTH=jwt without JWT_SECRET, reminder runs will be rejected")
		}
		return handlers.JWTScheduler{Secret: []byte(cfg.JWTSecret)}
	}
	if cfg.CronSecret == "" {
		logger.Warn("CRON_SECRET is empty, reminder runs will be rejected")
	}
	return handlers.SharedSecret{Secret: cfg.CronSecret}
}

// newRunLock picks a Redis lock when REDIS_URL is set so that replicas do not
// run the batch concurrently.
func newRunLock(cfg *config.Config, logger *slog.Logger) (reminders.Locker, func(), error) {
	if cfg.RedisURL == "" {
		return &reminders.MemoryLock{}, func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("using redis run lock", "addr", opts.Addr)

	return reminders.NewRedisLock(client, runLockKey, cfg.RunLockTTL), func() { client.Close() }, nil
}
