// Package api provides the HTTP server for cry analysis.
package api

import (
	"fmt"
	"time"

	"github.com/ycry/ycry-go/internal/conf"
	"github.com/ycry/ycry-go/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultListen          = ":8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultMaxUploadMB     = 25
	DefaultRateBurst       = 10
	rateLimitExpiry        = 3 * time.Minute
)

// Config holds the HTTP server configuration.
type Config struct {
	Listen string // address to listen on

	// Timeouts
	ReadTimeout     time.Duration // Maximum duration for reading request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum time to wait for next request
	ShutdownTimeout time.Duration // Maximum time to wait for graceful shutdown

	// Limits
	BodyLimit string  // Maximum request body size (e.g., "1M", "10M")
	RateLimit float64 // sustained analysis requests per second per client, 0 = unlimited
	RateBurst int

	// Logging
	Debug bool // log every request
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:          DefaultListen,
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       fmt.Sprintf("%dM", DefaultMaxUploadMB),
		RateBurst:       DefaultRateBurst,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	w := settings.WebServer
	if w.Listen != "" {
		cfg.Listen = w.Listen
	}
	if w.MaxUploadMB > 0 {
		cfg.BodyLimit = fmt.Sprintf("%dM", w.MaxUploadMB)
	}
	cfg.RateLimit = w.RateLimit
	if w.RateBurst > 0 {
		cfg.RateBurst = w.RateBurst
	}
	cfg.Debug = w.Debug || settings.Debug
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.BodyLimit == "" {
		return fmt.Errorf("body limit is required")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		return fmt.Errorf("rate burst must be positive when rate limiting is enabled")
	}
	return nil
}
