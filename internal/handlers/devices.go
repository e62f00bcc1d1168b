package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tariel-x/wellpush/internal/devices"
	"github.com/tariel-x/wellpush/internal/models"
	"github.com/tariel-x/wellpush/internal/push"
)

type subscriptionKeys struct {
	P256DH string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// RegisterDeviceRequest accepts keys either flat or in the browser's
// PushSubscription.toJSON() shape.
type RegisterDeviceRequest struct {
	Platform   string            `json:"platform" binding:"required"`
	Endpoint   string            `json:"endpoint" binding:"required"`
	P256DHKey  string            `json:"p256dh_key"`
	AuthKey    string            `json:"auth_key"`
	Keys       *subscriptionKeys `json:"keys"`
	DeviceName *string           `json:"device_name"`
}

func (r RegisterDeviceRequest) input(userID string) devices.RegisterInput {
	in := devices.RegisterInput{
		UserID:     userID,
		Platform:   models.Platform(r.Platform),
		Endpoint:   r.Endpoint,
		P256DHKey:  r.P256DHKey,
		AuthKey:    r.AuthKey,
		DeviceName: r.DeviceName,
	}
	if r.Keys != nil {
		if in.P256DHKey == "" {
			in.P256DHKey = r.Keys.P256DH
		}
		if in.AuthKey == "" {
			in.AuthKey = r.Keys.Auth
		}
	}
	return in
}

func (h *Handlers) RegisterDevice(c *gin.Context) {
	userID := currentUserID(c)

	var req RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in := req.input(userID)

	if in.Platform == models.PlatformWeb && in.P256DHKey != "" && in.AuthKey != "" {
		if provider, ok := h.providers.For(models.PlatformWeb); ok {
			sub := push.Subscription{Endpoint: in.Endpoint, P256DH: in.P256DHKey, Auth: in.AuthKey}
			if !provider.ValidateSubscription(sub) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid push subscription"})
				return
			}
		}
	}

	device, err := h.devices.Register(c.Request.Context(), in)
	switch {
	case errors.Is(err, devices.ErrInvalidPlatform),
		errors.Is(err, devices.ErrMissingKeys),
		errors.Is(err, devices.ErrInvalidEndpoint):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Error("failed to register device", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register device"})
		return
	}

	h.logger.Info("device registered", "user_id", userID, "device_id", device.ID, "platform", string(device.Platform))
	c.JSON(http.StatusCreated, device)
}

func (h *Handlers) ListDevices(c *gin.Context) {
	list, err := h.devices.ListDevices(c.Request.Context(), currentUserID(c), true)
	if err != nil {
		h.logger.Error("failed to list devices", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if list == nil {
		list = []models.DeviceToken{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handlers) DeleteDevice(c *gin.Context) {
	removed, err := h.devices.Unregister(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		h.logger.Error("failed to delete device", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete device"})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
		return
	}
	c.Status(http.StatusNoContent)
}
