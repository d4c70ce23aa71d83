// Package config provides configuration management for postraft-facade.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Token store kinds accepted by TOKEN_STORE.
const (
	TokenStoreMemory = "memory"
	TokenStoreFile   = "file"
	TokenStoreSQLite = "sqlite"
)

// Config holds the configuration for the facade and the CLI.
type Config struct {
	// Port is the port number for the local HTTP facade
	Port string `env:"FACADE_PORT" envDefault:"9300"`
	// APIBaseURL is the root of the remote Postraft API (including the /api prefix)
	APIBaseURL string `env:"API_BASE_URL" envDefault:"http://localhost:5000/api"`
	// RequestTimeout bounds a single JSON request to the remote API
	RequestTimeout time.Duration `env:"API_REQUEST_TIMEOUT" envDefault:"30s"`
	// UploadTimeout bounds multipart image uploads
	UploadTimeout time.Duration `env:"API_UPLOAD_TIMEOUT" envDefault:"2m"`
	// RateLimit is the sustained outbound request rate (requests per second)
	RateLimit float64 `env:"API_RATE_LIMIT" envDefault:"20"`
	// RateBurst is the outbound burst size
	RateBurst int `env:"API_RATE_BURST" envDefault:"40"`

	// Circuit breaker configuration
	CBFailureThreshold int           `env:"API_CB_FAILURE_THRESHOLD" envDefault:"5"`
	CBSuccessThreshold int           `env:"API_CB_SUCCESS_THRESHOLD" envDefault:"2"`
	CBOpenTimeout      time.Duration `env:"API_CB_OPEN_TIMEOUT" envDefault:"30s"`

	// TokenStore selects where the auth token is persisted: memory, file or sqlite
	TokenStore string `env:"TOKEN_STORE" envDefault:"file"`
	// TokenPath overrides the token file / database location
	TokenPath string `env:"TOKEN_PATH"`

	// Cache configuration
	CacheStaleTime    time.Duration `env:"CACHE_STALE_TIME" envDefault:"60s"`
	CacheGCTime       time.Duration `env:"CACHE_GC_TIME" envDefault:"5m"`
	CacheMaxIdle      int           `env:"CACHE_MAX_IDLE" envDefault:"256"`
	CacheQueryRetries int           `env:"CACHE_QUERY_RETRIES" envDefault:"3"`

	// NotificationBuffer is how many toasts the facade keeps for the UI
	NotificationBuffer int `env:"NOTIFICATION_BUFFER" envDefault:"64"`
}

// Load reads the optional .env file and parses the environment.
func Load() (*Config, error) {
	// .env is a convenience for local development; absence is fine
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("FACADE_PORT is required")
	}
	if c.APIBaseURL == "" {
		return errors.New("API_BASE_URL is required")
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute URL, got %q", c.APIBaseURL)
	}
	switch c.TokenStore {
	case TokenStoreMemory, TokenStoreFile, TokenStoreSQLite:
	default:
		return fmt.Errorf("TOKEN_STORE must be memory, file or sqlite, got %q", c.TokenStore)
	}
	if c.CacheStaleTime < 0 {
		return errors.New("CACHE_STALE_TIME cannot be negative")
	}
	if c.CacheGCTime <= 0 {
		return errors.New("CACHE_GC_TIME must be positive")
	}
	if c.CacheMaxIdle <= 0 {
		return errors.New("CACHE_MAX_IDLE must be positive")
	}
	if c.CacheQueryRetries < 0 {
		return errors.New("CACHE_QUERY_RETRIES cannot be negative")
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		return errors.New("API_RATE_LIMIT and API_RATE_BURST must be positive")
	}
	return nil
}

// ResolveTokenPath returns where the token store keeps its data.
// An explicit TOKEN_PATH wins; otherwise the user config directory is used.
func (c *Config) ResolveTokenPath() (string, error) {
	if c.TokenPath != "" {
		return c.TokenPath, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config dir: %w", err)
	}
	name := "token"
	if c.TokenStore == TokenStoreSQLite {
		name = "session.db"
	}
	return filepath.Join(dir, "postraft", name), nil
}
