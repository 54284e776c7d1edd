package middleware

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/limiter"
)

// RateLimitMiddleware creates an IP-based rate limiter for the public
// authentication and logging routes.
func RateLimitMiddleware() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        30,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c fiber.Ctx) string {
			return GetRealIP(c)
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"message": "Too many requests",
			})
		},
	})
}

// GetRealIP extracts the client IP from proxy headers or the connection.
// Priority: X-Real-IP > X-Forwarded-For > c.IP(). Returns "Unknown" if no
// source address is available at all.
func GetRealIP(c fiber.Ctx) string {
	if realIP := c.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	if forwardedFor := c.Get("X-Forwarded-For"); forwardedFor != "" {
		return forwardedFor
	}

	if ip := c.IP(); ip != "" {
		return ip
	}
	return "Unknown"
}
