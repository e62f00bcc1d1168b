package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tariel-x/wellpush/internal/config"
	"github.com/tariel-x/wellpush/internal/reminders"
)

// SendCheckinReminders runs the daily reminder batch to completion.
func (h *Handlers) SendCheckinReminders(c *gin.Context) {
	if !h.config.PushConfigured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": config.ErrPushNotConfigured.Error()})
		return
	}

	// The batch outlives a scheduler that hangs up, and may run longer than
	// the server write timeout.
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("cannot clear write deadline", "error", err)
	}
	summary, err := h.runner.Run(context.WithoutCancel(c.Request.Context()), h.now())
	if errors.Is(err, reminders.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("reminder run failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Reminder run failed"})
		return
	}
	c.JSON(http.StatusOK, summary)
}
