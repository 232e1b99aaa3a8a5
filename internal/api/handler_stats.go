package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetStats returns aggregate registry metrics. The route is cached for
// a few seconds; clients treat it as near-real-time.
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetHistory returns the most recent delivery attempts for one
// subscription.
func (h *Handler) GetHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	history, err := h.store.History(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "history": history})
}

// GetHealth reports service and database status.
func (h *Handler) GetHealth(c *gin.Context) {
	dbStatus := "ok"
	if err := h.store.Ping(c.Request.Context()); err != nil {
		dbStatus = "unreachable"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"service":  "push-alert-backend",
		"database": dbStatus,
	})
}
