package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tariel-x/wellpush/internal/config"
	"github.com/tariel-x/wellpush/internal/devices"
	"github.com/tariel-x/wellpush/internal/dispatch"
	"github.com/tariel-x/wellpush/internal/notifylog"
	"github.com/tariel-x/wellpush/internal/preferences"
	"github.com/tariel-x/wellpush/internal/push"
	"github.com/tariel-x/wellpush/internal/reminders"
)

type Handlers struct {
	config     *config.Config
	db         *gorm.DB
	devices    *devices.Registry
	prefs      *preferences.Store
	logs       *notifylog.Store
	providers  *push.Registry
	dispatcher *dispatch.Dispatcher
	runner     *reminders.BatchRunner
	scheduler  SchedulerAuthenticator
	logger     *slog.Logger
	now        func() time.Time
}

type Deps struct {
	DB         *gorm.DB
	Devices    *devices.Registry
	Prefs      *preferences.Store
	Logs       *notifylog.Store
	Providers  *push.Registry
	Dispatcher *dispatch.Dispatcher
	Runner     *reminders.BatchRunner
	Scheduler  SchedulerAuthenticator
	Logger     *slog.Logger
}

func New(cfg *config.Config, deps Deps) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		config:     cfg,
		db:         deps.DB,
		devices:    deps.Devices,
		prefs:      deps.Prefs,
		logs:       deps.Logs,
		providers:  deps.Providers,
		dispatcher: deps.Dispatcher,
		runner:     deps.Runner,
		scheduler:  deps.Scheduler,
		logger:     logger,
		now:        time.Now,
	}
}

// Register mounts the notification API on r.
func (h *Handlers) Register(r gin.IRouter) {
	n := r.Group("/notifications")
	n.GET("/vapid-public-key", h.GetVAPIDPublicKey)
	n.POST("/send-checkin-reminders", h.SchedulerMiddleware(), h.SendCheckinReminders)

	user := n.Group("", h.AuthMiddleware())
	{
		user.POST("/devices", h.RegisterDevice)
		user.GET("/devices", h.ListDevices)
		user.DELETE("/devices/:id", h.DeleteDevice)
		user.GET("/preferences", h.GetPreferences)
		user.PATCH("/preferences", h.UpdatePreferences)
		user.POST("/test", h.SendTestNotification)
		user.GET("/history", h.GetHistory)
	}
}

func (h *Handlers) GetVAPIDPublicKey(c *gin.Context) {
	if !h.config.PushConfigured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": config.ErrPushNotConfigured.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": h.config.VAPIDKeys.PublicKey})
}

func (h *Handlers) Health(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		h.logger.Error("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func currentUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
