package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"push-alert-backend/config"
	"push-alert-backend/internal/mw"
	"push-alert-backend/internal/notification"
	"push-alert-backend/internal/store"
)

// NewRouter creates and configures a new Gin router for the origin API.
func NewRouter(cfg *config.Config, s store.Store, coordinator *notification.Coordinator, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, coordinator, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)

	cacheTTL := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	adminAuth := mw.AdminAuth(cfg.Auth.JWTSecret)

	r.GET("/health", handler.GetHealth)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/subscribe", handler.PostSubscribe)
		api.POST("/unsubscribe", handler.PostUnsubscribe)
		api.GET("/preferences/:id", handler.GetPreferences)
		api.POST("/preferences/:id", handler.PostPreferences)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)

		// Read-heavy metrics, cached for a few seconds.
		api.GET("/stats", caching, handler.GetStats)
		api.GET("/history/:id", handler.GetHistory)

		// Category-specific alert entry points for monitoring jobs.
		api.POST("/notify/:alert", handler.PostNotify)

		admin := api.Group("")
		admin.Use(adminAuth)
		{
			admin.POST("/send", handler.PostSend)
			admin.GET("/subscriptions", handler.GetSubscriptions)
		}
	}

	return r
}
