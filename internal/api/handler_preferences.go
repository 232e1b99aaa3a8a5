package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"push-alert-backend/internal/store"
)

// GetPreferences returns the stored preference map of one subscriber.
// Categories without a stored row follow the configured default on the
// delivery path, so an empty map is a valid response.
func (h *Handler) GetPreferences(c *gin.Context) {
	prefs, err := h.store.GetPreferences(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get preferences"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "preferences": prefs})
}

type preferencesRequest struct {
	Preferences map[string]bool `json:"preferences" binding:"required"`
}

// PostPreferences merges the submitted categories into the stored
// preference map. Unknown categories are accepted and stored.
func (h *Handler) PostPreferences(c *gin.Context) {
	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "preferences are required"})
		return
	}

	id := c.Param("id")
	if err := h.store.UpdatePreferences(c.Request.Context(), id, req.Preferences); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update preferences"})
		return
	}

	prefs, err := h.store.GetPreferences(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get preferences"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "preferences": prefs})
}
