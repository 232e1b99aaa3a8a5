package notification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"push-alert-backend/internal/model"
	"push-alert-backend/internal/store"
)

// mockSender is a mock implementation of the Sender interface.
type mockSender struct {
	mu        sync.Mutex
	endpoints []string
	payloads  []string

	SendFunc func(sub *webpush.Subscription) (*http.Response, error)
}

func (m *mockSender) Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	m.mu.Lock()
	m.endpoints = append(m.endpoints, sub.Endpoint)
	m.payloads = append(m.payloads, string(payload))
	m.mu.Unlock()
	return m.SendFunc(sub)
}

func (m *mockSender) seenEndpoints() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.endpoints...)
}

func httpResponse(status int) (*http.Response, error) {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString("")),
	}, nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.PushSubscription{},
		&model.Preference{},
		&model.NotificationHistory{},
	))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})
	return store.NewGormStore(db)
}

func newTestCoordinator(s store.Store, sender Sender) *Coordinator {
	deliverer := NewDeliverer(sender, &webpush.Options{}, 2*time.Second)
	return NewCoordinator(s, NewFilter(true), deliverer, 4)
}

func TestBroadcastZeroMatchingSubscribers(t *testing.T) {
	s := newTestStore(t)
	sender := &mockSender{SendFunc: func(*webpush.Subscription) (*http.Response, error) {
		return httpResponse(http.StatusCreated)
	}}

	summary, err := newTestCoordinator(s, sender).Broadcast(context.Background(), CategoryAlerts, &Notification{
		Title: "test", Body: "test", Category: CategoryAlerts,
	})
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
	assert.Empty(t, sender.seenEndpoints())
}

func TestBroadcastDeliversAndSummarizes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Register(ctx, fmt.Sprintf("https://push.example.com/%d", i), "key", "auth", nil)
		require.NoError(t, err)
	}

	sender := &mockSender{SendFunc: func(*webpush.Subscription) (*http.Response, error) {
		return httpResponse(http.StatusCreated)
	}}

	summary, err := newTestCoordinator(s, sender).Broadcast(ctx, CategoryAlerts, &Notification{
		Title: "test", Body: "test", Category: CategoryAlerts,
	})
	require.NoError(t, err)
	assert.Equal(t, Summary{Attempted: 3, Delivered: 3}, summary)
	assert.Len(t, sender.seenEndpoints(), 3)
}

func TestBroadcastGonePushEndpointIsEvicted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub, err := s.Register(ctx, "https://push.example.com/expired", "key", "auth", nil)
	require.NoError(t, err)

	sender := &mockSender{SendFunc: func(*webpush.Subscription) (*http.Response, error) {
		return httpResponse(http.StatusGone)
	}}

	summary, err := newTestCoordinator(s, sender).Broadcast(ctx, CategoryAlerts, &Notification{
		Title: "test", Body: "test", Category: CategoryAlerts,
	})
	require.NoError(t, err)
	assert.Equal(t, Summary{Attempted: 1, FailedPermanent: 1}, summary)

	subs, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs)

	// The attempt is still on record after the eviction.
	history, err := s.History(ctx, sub.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.DeliveryStatusPermanent, history[0].Status)
	assert.Equal(t, http.StatusGone, history[0].HTTPStatus)
}

func TestBroadcastTransientFailureKeepsSubscription(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Register(ctx, "https://push.example.com/busy", "key", "auth", nil)
	require.NoError(t, err)

	sender := &mockSender{SendFunc: func(*webpush.Subscription) (*http.Response, error) {
		return httpResponse(http.StatusServiceUnavailable)
	}}

	summary, err := newTestCoordinator(s, sender).Broadcast(ctx, CategoryAlerts, &Notification{
		Title: "test", Body: "test", Category: CategoryAlerts,
	})
	require.NoError(t, err)
	assert.Equal(t, Summary{Attempted: 1, FailedTransient: 1}, summary)

	subs, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestBroadcastRespectsPreferences(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// A opted out of performance alerts; B never stored a preference.
	_, err := s.Register(ctx, "https://push.example.com/a", "key", "auth", map[string]bool{
		CategoryPerformance: false,
	})
	require.NoError(t, err)
	_, err = s.Register(ctx, "https://push.example.com/b", "key", "auth", nil)
	require.NoError(t, err)

	sender := &mockSender{SendFunc: func(*webpush.Subscription) (*http.Response, error) {
		return httpResponse(http.StatusCreated)
	}}

	summary, err := newTestCoordinator(s, sender).Broadcast(ctx, CategoryPerformance, &Notification{
		Title: "⚠️ High CPU Usage", Body: "CPU usage at 85% (threshold: 80%)", Category: CategoryPerformance,
	})
	require.NoError(t, err)
	assert.Equal(t, Summary{Attempted: 1, Delivered: 1}, summary)
	assert.Equal(t, []string{"https://push.example.com/b"}, sender.seenEndpoints())
}

// gatedSender holds each attempt open until released and honours
// context cancellation the way the real webpush transport does.
type gatedSender struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedSender) Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	close(g.started)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-g.release:
		return httpResponse(http.StatusCreated)
	}
}

func TestBroadcastSurvivesCallerCancellation(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Register(context.Background(), "https://push.example.com/a", "key", "auth", nil)
	require.NoError(t, err)

	sender := &gatedSender{started: make(chan struct{}), release: make(chan struct{})}
	coordinator := newTestCoordinator(s, sender)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Summary, 1)
	go func() {
		summary, err := coordinator.Broadcast(ctx, CategoryAlerts, &Notification{
			Title: "test", Body: "test", Category: CategoryAlerts,
		})
		assert.NoError(t, err)
		done <- summary
	}()

	// The caller goes away while the send is in flight.
	<-sender.started
	cancel()
	time.Sleep(10 * time.Millisecond)
	close(sender.release)

	summary := <-done
	assert.Equal(t, Summary{Attempted: 1, Delivered: 1}, summary)

	subs, err := s.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

// stallingSender hangs on one endpoint until its context expires and
// answers everything else immediately.
type stallingSender struct {
	stall string
}

func (s stallingSender) Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	if sub.Endpoint == s.stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return httpResponse(http.StatusCreated)
}

func TestBroadcastStalledDeliveryTimesOutAsTransient(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Register(ctx, "https://push.example.com/stuck", "key", "auth", nil)
	require.NoError(t, err)
	_, err = s.Register(ctx, "https://push.example.com/fine", "key", "auth", nil)
	require.NoError(t, err)

	deliverer := NewDeliverer(stallingSender{stall: "https://push.example.com/stuck"}, &webpush.Options{}, 50*time.Millisecond)
	coordinator := NewCoordinator(s, NewFilter(true), deliverer, 4)

	start := time.Now()
	summary, err := coordinator.Broadcast(ctx, CategoryAlerts, &Notification{
		Title: "test", Body: "test", Category: CategoryAlerts,
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, Summary{Attempted: 2, Delivered: 1, FailedTransient: 1}, summary)

	// The stalled subscriber is kept for the next broadcast.
	subs, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, subs, 2)
}

func TestDelivererClassifiesNetworkErrorAsTransient(t *testing.T) {
	sender := &mockSender{SendFunc: func(*webpush.Subscription) (*http.Response, error) {
		return nil, fmt.Errorf("dial tcp: connection refused")
	}}
	d := NewDeliverer(sender, &webpush.Options{}, time.Second)

	result := d.Deliver(context.Background(), &model.PushSubscription{
		ID: "sub", Endpoint: "https://push.example.com/a", P256DH: "key", Auth: "auth",
	}, []byte("{}"))

	assert.Equal(t, StatusFailedTransient, result.Status)
	assert.Zero(t, result.HTTPStatus)
}
