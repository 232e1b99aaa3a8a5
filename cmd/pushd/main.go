package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"push-alert-backend/config"
	"push-alert-backend/internal/api"
	"push-alert-backend/internal/db"
	"push-alert-backend/internal/notification"
	"push-alert-backend/internal/store"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "pushd ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	// Check for VAPID keys
	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Fatalf("VAPID keys must be configured. Please generate them and add them to your config file.")
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Fatalf("auth.jwt_secret must be configured for the admin endpoints.")
	}

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	logger.Println("subscription store initialized")

	// Wire the fan-out pipeline
	filter := notification.NewFilter(cfg.DefaultPreferenceEnabled())
	deliverer := notification.NewDeliverer(nil, &webpushOptions, cfg.Broadcast.DeliveryTimeout)
	coordinator := notification.NewCoordinator(appStore, filter, deliverer, cfg.Broadcast.Concurrency)

	// Retention sweep: idle subscriptions self-expire without a
	// delivery failure ever being observed.
	go runRetentionSweep(ctx, logger, appStore, cfg.Retention)

	// Initialize router
	router := api.NewRouter(cfg, appStore, coordinator, &webpushOptions)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}

// runRetentionSweep periodically purges subscriptions that have been
// idle longer than the configured retention.
func runRetentionSweep(ctx context.Context, logger *log.Logger, s store.Store, cfg config.RetentionConfig) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -cfg.Days)
			purged, err := s.PurgeExpired(ctx, cutoff)
			if err != nil {
				logger.Printf("retention sweep failed: %v", err)
				continue
			}
			if purged > 0 {
				logger.Printf("retention sweep purged %d subscriptions older than %d days", purged, cfg.Days)
			}
		case <-ctx.Done():
			return
		}
	}
}
