package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tariel-x/wellpush/internal/preferences"
)

func (h *Handlers) GetPreferences(c *gin.Context) {
	pref, err := h.prefs.GetOrCreate(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.logger.Error("failed to load preferences", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, pref)
}

func (h *Handlers) UpdatePreferences(c *gin.Context) {
	var req preferences.Update
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pref, err := h.prefs.Update(c.Request.Context(), currentUserID(c), req)
	if errors.Is(err, preferences.ErrInvalidPreference) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("failed to update preferences", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update preferences"})
		return
	}
	c.JSON(http.StatusOK, pref)
}
