package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tariel-x/wellpush/internal/config"
	"github.com/tariel-x/wellpush/internal/devices"
	"github.com/tariel-x/wellpush/internal/dispatch"
	"github.com/tariel-x/wellpush/internal/models"
	"github.com/tariel-x/wellpush/internal/push"
)

const (
	testTitle = "Test notification"
	testBody  = "Push notifications are working."
)

type TestNotificationRequest struct {
	DeviceID string `json:"device_id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
}

func (h *Handlers) SendTestNotification(c *gin.Context) {
	if !h.config.PushConfigured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": config.ErrPushNotConfigured.Error()})
		return
	}

	var req TestNotificationRequest
	// The body is optional.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payload := push.Payload{
		Title: req.Title,
		Body:  req.Body,
		Tag:   "test",
		Data: map[string]any{
			"type": string(models.NotificationTest),
			"url":  "/",
		},
	}
	if payload.Title == "" {
		payload.Title = testTitle
	}
	if payload.Body == "" {
		payload.Body = testBody
	}

	ctx := c.Request.Context()
	userID := currentUserID(c)

	var report *dispatch.Report
	if req.DeviceID != "" {
		device, err := h.devices.Get(ctx, req.DeviceID, userID)
		if errors.Is(err, devices.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
			return
		}
		if err != nil {
			h.logger.Error("failed to load device", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		report = h.dispatcher.SendToDevices(ctx, []models.DeviceToken{*device}, models.NotificationTest, payload)
	} else {
		var err error
		report, err = h.dispatcher.SendToUser(ctx, userID, models.NotificationTest, payload)
		if err != nil {
			h.logger.Error("failed to send test notification", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send notification"})
			return
		}
	}

	c.JSON(http.StatusOK, report)
}

func (h *Handlers) GetHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	rows, err := h.logs.ListRecent(c.Request.Context(), currentUserID(c), limit)
	if err != nil {
		h.logger.Error("failed to load notification history", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if rows == nil {
		rows = []models.NotificationLog{}
	}
	c.JSON(http.StatusOK, rows)
}
