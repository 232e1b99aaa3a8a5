package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"push-alert-backend/internal/notification"
	"push-alert-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store       store.Store
	coordinator *notification.Coordinator
	webpush     *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, coordinator *notification.Coordinator, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:       s,
		coordinator: coordinator,
		webpush:     webpushOptions,
	}
}
