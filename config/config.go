package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Push      PushConfig      `yaml:"push"`
	Auth      AuthConfig      `yaml:"auth"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Retention RetentionConfig `yaml:"retention"`
	Gateway   GatewayConfig   `yaml:"gateway"`
}

// ServerConfig holds the origin API server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// AuthConfig holds the admin token settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// BroadcastConfig holds the fan-out settings.
type BroadcastConfig struct {
	Concurrency            int           `yaml:"concurrency"`
	DeliveryTimeoutSeconds int           `yaml:"delivery_timeout_seconds"`
	DeliveryTimeout        time.Duration `yaml:"-"`
	// DefaultEnabled decides delivery for categories a subscriber has
	// never recorded a preference for. Unset means fail-open.
	DefaultEnabled *bool `yaml:"default_enabled"`
}

// RetentionConfig bounds the lifetime of idle subscriptions.
type RetentionConfig struct {
	Days                 int           `yaml:"days"`
	SweepIntervalMinutes int           `yaml:"sweep_interval_minutes"`
	SweepInterval        time.Duration `yaml:"-"`
}

// GatewayConfig holds the edge gateway configuration.
type GatewayConfig struct {
	Port               int      `yaml:"port"`
	OriginURL          string   `yaml:"origin_url"`
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute"`
	CacheTTLSeconds    int      `yaml:"cache_ttl_seconds"`
	AdminPaths         []string `yaml:"admin_paths"`
}

// DefaultPreferenceEnabled reports the configured policy for categories
// without a stored preference.
func (c *Config) DefaultPreferenceEnabled() bool {
	if c.Broadcast.DefaultEnabled == nil {
		return true
	}
	return *c.Broadcast.DefaultEnabled
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 3011
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.Broadcast.Concurrency <= 0 {
		cfg.Broadcast.Concurrency = 20
	}
	if cfg.Broadcast.DeliveryTimeoutSeconds <= 0 {
		cfg.Broadcast.DeliveryTimeoutSeconds = 10
	}
	cfg.Broadcast.DeliveryTimeout = time.Duration(cfg.Broadcast.DeliveryTimeoutSeconds) * time.Second

	if cfg.Retention.Days <= 0 {
		cfg.Retention.Days = 30
	}
	if cfg.Retention.SweepIntervalMinutes <= 0 {
		cfg.Retention.SweepIntervalMinutes = 60
	}
	cfg.Retention.SweepInterval = time.Duration(cfg.Retention.SweepIntervalMinutes) * time.Minute

	if cfg.Gateway.Port <= 0 {
		cfg.Gateway.Port = 8787
	}
	if cfg.Gateway.RateLimitPerMinute <= 0 {
		cfg.Gateway.RateLimitPerMinute = 100
	}
	if cfg.Gateway.CacheTTLSeconds <= 0 {
		cfg.Gateway.CacheTTLSeconds = 5
	}
	if len(cfg.Gateway.AdminPaths) == 0 {
		cfg.Gateway.AdminPaths = []string{"/api/send", "/api/subscriptions"}
	}

	return &cfg, nil
}
