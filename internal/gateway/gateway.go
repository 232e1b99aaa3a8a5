// Package gateway implements the edge request-shaping layer in front
// of the origin API: CORS, fixed-window rate limiting, short-TTL read
// caching and a transparent reverse proxy. It holds no fan-out logic.
package gateway

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"push-alert-backend/config"
	"push-alert-backend/internal/mw"
)

// Gateway shapes requests before they reach the origin API.
type Gateway struct {
	origin     *url.URL
	proxy      *httputil.ReverseProxy
	respCache  *cache.Cache
	counters   *cache.Cache
	limit      int64
	window     time.Duration
	cacheTTL   time.Duration
	adminPaths []string
	jwtSecret  string
	now        func() time.Time
}

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

// New creates a gateway proxying to the configured origin.
func New(cfg *config.GatewayConfig, jwtSecret string) (*Gateway, error) {
	origin, err := url.Parse(cfg.OriginURL)
	if err != nil {
		return nil, fmt.Errorf("invalid origin url %q: %w", cfg.OriginURL, err)
	}

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	g := &Gateway{
		origin:     origin,
		respCache:  cache.New(cacheTTL, 2*cacheTTL),
		counters:   cache.New(time.Minute, 2*time.Minute),
		limit:      int64(cfg.RateLimitPerMinute),
		window:     time.Minute,
		cacheTTL:   cacheTTL,
		adminPaths: cfg.AdminPaths,
		jwtSecret:  jwtSecret,
		now:        time.Now,
	}

	proxy := httputil.NewSingleHostReverseProxy(origin)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Printf("upstream %s unreachable for %s %s: %v", origin, r.Method, r.URL.Path, err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `{"error":"upstream unavailable"}`)
	}
	g.proxy = proxy

	return g, nil
}

// Router builds the gin engine serving the gateway.
func (g *Gateway) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.NoRoute(g.Handle)
	return r
}

// Handle runs the per-request state machine: CORS preflight, rate
// limit, admin auth, cache lookup, proxy.
func (g *Gateway) Handle(c *gin.Context) {
	setCORSHeaders(c.Writer.Header())

	if c.Request.Method == http.MethodOptions {
		c.Status(http.StatusNoContent)
		return
	}

	if retryAfter, limited := g.rateLimited(c.ClientIP(), c.Request.URL.Path); limited {
		c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	if g.isAdminPath(c.Request.URL.Path) && !g.authorized(c.Request) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if c.Request.Method == http.MethodGet {
		g.serveCached(c)
		return
	}

	c.Header("X-Cache-Status", "MISS")
	g.proxy.ServeHTTP(c.Writer, c.Request)
}

// rateLimited counts the request against its (ip, path, minute) window
// and reports how long the caller should back off when over the
// threshold. The increment tolerates races; this is admission control,
// not accounting.
func (g *Gateway) rateLimited(ip, path string) (retryAfter int, limited bool) {
	now := g.now().Unix()
	bucket := now / int64(g.window.Seconds())
	key := fmt.Sprintf("%s|%s|%d", ip, path, bucket)

	g.counters.Add(key, int64(0), g.window)
	count, err := g.counters.IncrementInt64(key, 1)
	if err != nil {
		// Counter expired between Add and Increment; let it through.
		return 0, false
	}
	if count > g.limit {
		elapsed := now % int64(g.window.Seconds())
		return int(int64(g.window.Seconds()) - elapsed), true
	}
	return 0, false
}

func (g *Gateway) isAdminPath(path string) bool {
	for _, prefix := range g.adminPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (g *Gateway) authorized(r *http.Request) bool {
	authHeader := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(authHeader, "Bearer ")
	if !found || token == "" {
		return false
	}
	return mw.ValidateAdminToken(g.jwtSecret, token) == nil
}

type bodyCaptureWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyCaptureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyCaptureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// serveCached answers idempotent reads from the cache when possible,
// and otherwise proxies to the origin while populating the cache from
// a detached goroutine so the caller never waits on the write.
func (g *Gateway) serveCached(c *gin.Context) {
	key := c.Request.URL.RequestURI()

	if entry, found := g.respCache.Get(key); found {
		cached := entry.(cachedResponse)
		for k, v := range cached.headers {
			c.Writer.Header()[k] = v
		}
		setCORSHeaders(c.Writer.Header())
		c.Writer.Header().Set("X-Cache-Status", "HIT")
		c.Writer.WriteHeader(cached.status)
		c.Writer.Write(cached.body)
		return
	}

	c.Header("X-Cache-Status", "MISS")
	bcw := &bodyCaptureWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
	g.proxy.ServeHTTP(bcw, c.Request)

	// Only successful reads are worth caching.
	if bcw.Status() != http.StatusOK {
		return
	}

	entry := cachedResponse{
		status:  bcw.Status(),
		headers: bcw.Header().Clone(),
		body:    bcw.body.Bytes(),
	}
	entry.headers.Del("X-Cache-Status")
	go g.respCache.Set(key, entry, g.cacheTTL)
}

func setCORSHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	h.Set("Access-Control-Max-Age", "86400")
}
