package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"push-alert-backend/config"
	"push-alert-backend/internal/api"
	"push-alert-backend/internal/db"
	"push-alert-backend/internal/gateway"
	"push-alert-backend/internal/mw"
	"push-alert-backend/internal/notification"
	"push-alert-backend/internal/store"
)

const testJWTSecret = "integration-secret"

// scriptedSender replies with a configurable status per push endpoint.
type scriptedSender struct {
	mu        sync.Mutex
	statuses  map[string]int
	endpoints []string
}

func (m *scriptedSender) Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	m.mu.Lock()
	m.endpoints = append(m.endpoints, sub.Endpoint)
	status, ok := m.statuses[sub.Endpoint]
	m.mu.Unlock()
	if !ok {
		status = http.StatusCreated
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString("")),
	}, nil
}

func (m *scriptedSender) setStatus(endpoint string, status int) {
	m.mu.Lock()
	m.statuses[endpoint] = status
	m.mu.Unlock()
}

func (m *scriptedSender) seenEndpoints() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.endpoints...)
}

// TestAlertFanOutLifecycle drives the full pipeline through the edge
// gateway: register two subscribers with different preferences, fire a
// category alert, verify filtered delivery, then verify that a gone
// push endpoint is evicted by the next broadcast.
func TestAlertFanOutLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// 1. In-memory SQLite database with the real migrations.
	testDB, err := gorm.Open(sqlite.Open("file:integration?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, _ := testDB.DB()
	defer sqlDB.Close()
	require.NoError(t, db.Migrate(testDB))

	// 2. The origin: store, fan-out pipeline, API router.
	cfg := &config.Config{}
	cfg.Server.RateLimitPerSec = 1000
	cfg.Server.RateLimitBurst = 1000
	cfg.Server.CacheTTLSeconds = 1
	cfg.Auth.JWTSecret = testJWTSecret

	appStore := store.NewGormStore(testDB)
	sender := &scriptedSender{statuses: make(map[string]int)}
	webpushOptions := &webpush.Options{VAPIDPublicKey: "test-public-key"}

	coordinator := notification.NewCoordinator(
		appStore,
		notification.NewFilter(true),
		notification.NewDeliverer(sender, webpushOptions, 2*time.Second),
		8,
	)

	origin := httptest.NewServer(api.NewRouter(cfg, appStore, coordinator, webpushOptions))
	defer origin.Close()

	// 3. The edge gateway in front of the origin.
	gw, err := gateway.New(&config.GatewayConfig{
		OriginURL:          origin.URL,
		RateLimitPerMinute: 1000,
		CacheTTLSeconds:    2,
		AdminPaths:         []string{"/api/send", "/api/subscriptions"},
	}, testJWTSecret)
	require.NoError(t, err)

	edge := httptest.NewServer(gw.Router())
	defer edge.Close()

	postJSON := func(path string, body any, headers map[string]string) *http.Response {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req, err := http.NewRequest(http.MethodPost, edge.URL+path, bytes.NewReader(raw))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	endpointA := "https://push.example.com/device-a"
	endpointB := "https://push.example.com/device-b"

	// Register A with performance alerts disabled, B with no stored
	// preferences at all.
	resp := postJSON("/api/subscribe", map[string]any{
		"endpoint":    endpointA,
		"keys":        map[string]string{"p256dh": "ka", "auth": "aa"},
		"preferences": map[string]bool{"performance": false},
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON("/api/subscribe", map[string]any{
		"endpoint": endpointB,
		"keys":     map[string]string{"p256dh": "kb", "auth": "ab"},
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// Fire a performance alert: only B should receive it.
	resp = postJSON("/api/notify/high-cpu", map[string]any{"usage": 85, "threshold": 80}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var notifyResult struct {
		Success bool                 `json:"success"`
		Summary notification.Summary `json:"summary"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&notifyResult))
	resp.Body.Close()
	assert.True(t, notifyResult.Success)
	assert.Equal(t, notification.Summary{Attempted: 1, Delivered: 1}, notifyResult.Summary)
	assert.Equal(t, []string{endpointB}, sender.seenEndpoints())

	// B's push endpoint disappears; the next broadcast evicts it.
	sender.setStatus(endpointB, http.StatusGone)
	resp = postJSON("/api/notify/high-cpu", map[string]any{"usage": 91, "threshold": 80}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&notifyResult))
	resp.Body.Close()
	assert.Equal(t, notification.Summary{Attempted: 1, FailedPermanent: 1}, notifyResult.Summary)

	// The admin listing through the gateway shows only A remaining,
	// with credentials redacted.
	token, err := mw.GenerateAdminToken(testJWTSecret, "tests", time.Hour)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodGet, edge.URL+"/api/subscriptions", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	listResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer listResp.Body.Close()
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	raw, err := io.ReadAll(listResp.Body)
	require.NoError(t, err)

	var listed struct {
		Count         int `json:"count"`
		Subscriptions []struct {
			Endpoint string `json:"endpoint"`
		} `json:"subscriptions"`
	}
	require.NoError(t, json.Unmarshal(raw, &listed))
	require.Equal(t, 1, listed.Count)
	assert.Equal(t, endpointA, listed.Subscriptions[0].Endpoint)
	assert.NotContains(t, string(raw), "ka")

	// A broadcast with zero eligible subscribers is not an error.
	resp = postJSON("/api/notify/high-cpu", map[string]any{"usage": 95, "threshold": 80}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&notifyResult))
	resp.Body.Close()
	assert.Equal(t, notification.Summary{}, notifyResult.Summary)

	// Cached reads through the gateway: MISS, then HIT.
	statsReq := func() *http.Response {
		r, err := http.Get(edge.URL + "/api/stats")
		require.NoError(t, err)
		return r
	}
	first := statsReq()
	firstBody, _ := io.ReadAll(first.Body)
	first.Body.Close()
	assert.Equal(t, "MISS", first.Header.Get("X-Cache-Status"))

	time.Sleep(50 * time.Millisecond)

	second := statsReq()
	secondBody, _ := io.ReadAll(second.Body)
	second.Body.Close()
	assert.Equal(t, "HIT", second.Header.Get("X-Cache-Status"))
	assert.Equal(t, string(firstBody), string(secondBody))
}
