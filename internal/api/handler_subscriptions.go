package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"push-alert-backend/internal/store"
)

type subscribeKeys struct {
	P256DH string `json:"p256dh" binding:"required"`
	Auth   string `json:"auth" binding:"required"`
}

type subscribeRequest struct {
	Endpoint    string          `json:"endpoint" binding:"required"`
	Keys        *subscribeKeys  `json:"keys" binding:"required"`
	Preferences map[string]bool `json:"preferences"`
}

// PostSubscribe registers a subscription, superseding any existing one
// with the same endpoint.
func (h *Handler) PostSubscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription"})
		return
	}

	sub, err := h.store.Register(c.Request.Context(), req.Endpoint, req.Keys.P256DH, req.Keys.Auth, req.Preferences)
	if err != nil {
		if errors.Is(err, store.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save subscription"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "id": sub.ID})
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// PostUnsubscribe removes the subscription for an endpoint. The store
// treats unknown endpoints as a no-op; the HTTP layer surfaces 404 so
// clients can tell nothing matched.
func (h *Handler) PostUnsubscribe(c *gin.Context) {
	var req unsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint is required"})
		return
	}

	found, err := h.store.Unregister(c.Request.Context(), req.Endpoint)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to unsubscribe"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type subscriptionSummary struct {
	ID       string `json:"id"`
	Endpoint string `json:"endpoint"`
	Created  string `json:"created"`
}

// GetSubscriptions lists all subscriptions with credentials redacted.
// Admin only.
func (h *Handler) GetSubscriptions(c *gin.Context) {
	subs, err := h.store.ListAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list subscriptions"})
		return
	}

	out := make([]subscriptionSummary, 0, len(subs))
	for _, sub := range subs {
		out = append(out, subscriptionSummary{
			ID:       sub.ID,
			Endpoint: sub.Endpoint,
			Created:  sub.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{"count": len(out), "subscriptions": out})
}
