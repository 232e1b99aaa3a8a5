package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"push-alert-backend/internal/notification"
)

type sendRequest struct {
	Title    string         `json:"title" binding:"required"`
	Body     string         `json:"body" binding:"required"`
	Category string         `json:"category" binding:"required"`
	Tag      string         `json:"tag"`
	Data     map[string]any `json:"data"`
}

// PostSend broadcasts a free-form notification to all subscribers
// matching the category. Admin only. Individual delivery failures are
// reported through the summary, not as a request failure.
func (h *Handler) PostSend(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title, body and category are required"})
		return
	}

	n := &notification.Notification{
		Title:    req.Title,
		Body:     req.Body,
		Type:     req.Category,
		Category: req.Category,
		Tag:      req.Tag,
		Data:     req.Data,
	}

	summary, err := h.coordinator.Broadcast(c.Request.Context(), req.Category, n)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "broadcast failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "summary": summary})
}

// PostNotify handles the category-specific alert endpoints used by
// monitoring jobs, e.g. POST /api/notify/high-cpu. The alert type
// selects a message template and the preference category it is
// filtered by.
func (h *Handler) PostNotify(c *gin.Context) {
	build, ok := notification.Alerts[c.Param("alert")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown alert type"})
		return
	}

	var params notification.AlertParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert parameters"})
		return
	}

	n := build(params)
	summary, err := h.coordinator.Broadcast(c.Request.Context(), n.Category, n)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send notification"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": n.Title + " notification sent",
		"summary": summary,
	})
}
