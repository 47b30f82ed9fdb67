package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

type Config struct {
	Server ServerConfig
	Auth   AuthConfig
	Redis  RedisConfig
}

type ServerConfig struct {
	Host         string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `envconfig:"SERVER_PORT" default:"9000"`
	ReadTimeout  time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	Environment  string        `envconfig:"ENVIRONMENT" default:"development"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s ServerConfig) Production() bool {
	return s.Environment == "production"
}

type AuthConfig struct {
	Domain             string        `envconfig:"AUTH_DOMAIN" default:"localhost"`
	EnforceDomain      bool          `envconfig:"AUTH_ENFORCE_DOMAIN" default:"false"`
	ChallengeTTL       time.Duration `envconfig:"AUTH_CHALLENGE_TTL" default:"168h"`
	SessionTTL         time.Duration `envconfig:"AUTH_SESSION_TTL" default:"24h"`
	CacheTTL           time.Duration `envconfig:"AUTH_CACHE_TTL" default:"1m"`
	CacheSweepInterval time.Duration `envconfig:"AUTH_CACHE_SWEEP_INTERVAL" default:"1m"`
	CacheMaxEntries    int           `envconfig:"AUTH_CACHE_MAX_ENTRIES" default:"10000"`
	CacheBackend       string        `envconfig:"AUTH_CACHE_BACKEND" default:"memory"`
	CompatibilityMode  bool          `envconfig:"AUTH_COMPATIBILITY_MODE" default:"false"`
	SecureCookies      bool          `envconfig:"AUTH_SECURE_COOKIES" default:"false"`
	CookieDomain       string        `envconfig:"AUTH_COOKIE_DOMAIN" default:""`
	SessionKeyFile     string        `envconfig:"AUTH_SESSION_KEY_FILE" default:""`
}

type RedisConfig struct {
	URL string `envconfig:"REDIS_URL" default:""`
}

func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Auth.CacheBackend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if !c.Redis.Enabled() {
			return fmt.Errorf("AUTH_CACHE_BACKEND=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown AUTH_CACHE_BACKEND %q", c.Auth.CacheBackend)
	}
	if c.Auth.CacheTTL <= 0 {
		return fmt.Errorf("AUTH_CACHE_TTL must be positive")
	}
	if c.Auth.ChallengeTTL <= 0 || c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("AUTH_CHALLENGE_TTL and AUTH_SESSION_TTL must be positive")
	}
	return nil
}
