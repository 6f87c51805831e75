package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Allower is a keyed token bucket.
type Allower interface {
	Allow(key string, capacity, refillPerSec float64) bool
}

// RateLimit rejects requests with 429 once a client IP drains its bucket.
// The metrics and health endpoints are never throttled.
func RateLimit(limiter Allower, burst, rps float64) echo.MiddlewareFunc {
	if burst < 1 {
		burst = 1
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			switch c.Path() {
			case "/metrics", "/health":
				return next(c)
			}
			if !limiter.Allow(c.RealIP(), burst, rps) {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"status":  http.StatusTooManyRequests,
					"message": http.StatusText(http.StatusTooManyRequests),
				})
			}
			return next(c)
		}
	}
}
