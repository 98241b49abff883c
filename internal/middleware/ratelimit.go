package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis/v3"
)

// RateLimit limits each client IP to max requests per window on the route it guards.
// A nil storage keeps counters in process memory.
func RateLimit(max int, window time.Duration, storage fiber.Storage) fiber.Handler {
	if max <= 0 {
		max = 5
	}
	if window <= 0 {
		window = time.Minute
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		Storage:    storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "ratelimit:" + c.Path() + ":" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusTooManyRequests, "too many requests")
		},
	})
}

// NewRedisLimiterStorage shares limiter counters between instances through Redis.
func NewRedisLimiterStorage(url string) *redisstorage.Storage {
	return redisstorage.New(redisstorage.Config{
		URL:      url,
		PoolSize: 10,
	})
}
