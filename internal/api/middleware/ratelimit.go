package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RateLimitConfig configures NewRateLimiter.
type RateLimitConfig struct {
	Rate      float64       // sustained requests per second per client
	Burst     int           // burst size
	ExpiresIn time.Duration // idle time after which a client's limiter is dropped
	// OnLimited is called for every rejected request. It writes the response.
	OnLimited func(c echo.Context) error
}

// NewRateLimiter creates a per client IP rate limiter.
func NewRateLimiter(cfg RateLimitConfig) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(cfg.Rate),
				Burst:     cfg.Burst,
				ExpiresIn: cfg.ExpiresIn,
			},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(echo.Context, error) error {
			return echo.ErrForbidden
		},
		DenyHandler: func(ctx echo.Context, _ string, _ error) error {
			if cfg.OnLimited != nil {
				return cfg.OnLimited(ctx)
			}
			return echo.ErrTooManyRequests
		},
	})
}
