package notification

import (
	"context"
	"fmt"
	"log"
	"sync"

	"push-alert-backend/internal/model"
	"push-alert-backend/internal/store"
)

// Summary aggregates the outcomes of one broadcast. It is only valid
// once every dispatched delivery has settled.
type Summary struct {
	Attempted       int `json:"attempted"`
	Delivered       int `json:"delivered"`
	FailedTransient int `json:"failedTransient"`
	FailedPermanent int `json:"failedPermanent"`
}

// Coordinator fans a single logical alert out to all matching
// subscribers.
type Coordinator struct {
	store       store.Store
	filter      *Filter
	deliverer   *Deliverer
	concurrency int
}

// NewCoordinator creates a broadcast coordinator. concurrency caps the
// number of in-flight deliveries per broadcast.
func NewCoordinator(s store.Store, filter *Filter, deliverer *Deliverer, concurrency int) *Coordinator {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Coordinator{
		store:       s,
		filter:      filter,
		deliverer:   deliverer,
		concurrency: concurrency,
	}
}

// Broadcast snapshots the subscription list, filters it by preference
// and delivers the notification to every survivor concurrently. It
// returns only after all deliveries have settled, regardless of the
// caller's context. Individual delivery
// failures are absorbed into the summary; only a failure to read the
// subscription snapshot propagates as an error.
func (c *Coordinator) Broadcast(ctx context.Context, category string, n *Notification) (Summary, error) {
	var summary Summary

	// A broadcast runs to completion once started: a caller that goes
	// away must not cancel in-flight deliveries. Only the per-attempt
	// timeout bounds each send.
	ctx = context.WithoutCancel(ctx)

	payload, err := n.Payload()
	if err != nil {
		return summary, fmt.Errorf("failed to encode notification payload: %w", err)
	}

	subs, err := c.store.ListAll(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to snapshot subscriptions: %w", err)
	}

	matching := make([]model.PushSubscription, 0, len(subs))
	for _, sub := range subs {
		if c.filter.ShouldDeliver(&sub, category) {
			matching = append(matching, sub)
		}
	}
	summary.Attempted = len(matching)
	if len(matching) == 0 {
		return summary, nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, c.concurrency)
	)
	for i := range matching {
		sub := matching[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			result := c.deliverer.Deliver(ctx, &sub, payload)
			c.settle(ctx, &sub, n, result)

			mu.Lock()
			switch result.Status {
			case StatusDelivered:
				summary.Delivered++
			case StatusFailedPermanent:
				summary.FailedPermanent++
			default:
				summary.FailedTransient++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	log.Printf("broadcast %q settled: %d/%d delivered, %d transient, %d permanent",
		category, summary.Delivered, summary.Attempted, summary.FailedTransient, summary.FailedPermanent)
	return summary, nil
}

// settle applies the side effects of one delivery outcome: eviction of
// permanently gone endpoints and the audit record. Neither failure
// aborts the broadcast.
func (c *Coordinator) settle(ctx context.Context, sub *model.PushSubscription, n *Notification, result DeliveryResult) {
	if result.Status == StatusFailedPermanent {
		log.Printf("subscription %s is gone (status %d), evicting", sub.ID, result.HTTPStatus)
		if err := c.store.Evict(ctx, sub.Endpoint); err != nil {
			log.Printf("failed to evict subscription %s: %v", sub.ID, err)
		}
	}

	h := &model.NotificationHistory{
		SubscriptionID: sub.ID,
		Title:          n.Title,
		Body:           n.Body,
		Type:           n.Type,
		Status:         string(result.Status),
		HTTPStatus:     result.HTTPStatus,
	}
	if err := c.store.RecordDelivery(ctx, h); err != nil {
		log.Printf("failed to record delivery for subscription %s: %v", sub.ID, err)
	}
}
