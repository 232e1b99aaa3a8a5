package notification

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"push-alert-backend/internal/model"
)

// DeliveryStatus classifies the outcome of one delivery attempt.
type DeliveryStatus string

const (
	StatusDelivered       DeliveryStatus = model.DeliveryStatusDelivered
	StatusFailedTransient DeliveryStatus = model.DeliveryStatusTransient
	StatusFailedPermanent DeliveryStatus = model.DeliveryStatusPermanent
)

// DeliveryResult is the ephemeral outcome of pushing one payload to one
// subscriber. It lives only for the duration of a broadcast.
type DeliveryResult struct {
	SubscriptionID string
	Status         DeliveryStatus
	HTTPStatus     int
}

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of Sender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotificationWithContext(ctx, payload, sub, options)
}

// Deliverer pushes encrypted payloads to individual subscribers.
type Deliverer struct {
	sender  Sender
	options *webpush.Options
	timeout time.Duration
}

// NewDeliverer creates a delivery engine for the given VAPID options.
// Each attempt is bounded by timeout so one unreachable push service
// cannot stall a whole broadcast.
func NewDeliverer(sender Sender, options *webpush.Options, timeout time.Duration) *Deliverer {
	if sender == nil {
		sender = &WebPushSender{}
	}
	return &Deliverer{sender: sender, options: options, timeout: timeout}
}

// Deliver sends one payload to one subscriber and classifies the
// outcome. A 404 or 410 from the push service means the endpoint is
// permanently gone; the caller must evict the subscription. All other
// failures are transient and are never retried within a broadcast.
func (d *Deliverer) Deliver(ctx context.Context, sub *model.PushSubscription, payload []byte) DeliveryResult {
	result := DeliveryResult{SubscriptionID: sub.ID}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := d.sender.Send(ctx, payload, wpSub, d.options)
	if err != nil {
		result.Status = StatusFailedTransient
		return result
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	result.HTTPStatus = resp.StatusCode
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		result.Status = StatusDelivered
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		result.Status = StatusFailedPermanent
	default:
		result.Status = StatusFailedTransient
	}
	return result
}
