package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control on GET responses that did not choose
// their own policy. Tiles and the province list are stable; directory reads
// change whenever a restaurant is edited or scanned, so they stay short.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Method() != fiber.MethodGet || c.Response().StatusCode() >= 400 {
			return err
		}
		if existing := c.GetRespHeader(fiber.HeaderCacheControl); existing != "" {
			return err
		}

		path := c.Path()
		var ttl string

		switch {
		case path == "/v1/health" || path == "/v1/ready" || path == "/metrics":
			ttl = "no-cache"

		case strings.HasPrefix(path, "/tiles/"):
			ttl = "public, max-age=86400" // basemap imagery

		case path == "/v1/provinces":
			ttl = "public, max-age=86400"

		case strings.HasPrefix(path, "/v1/map/"):
			ttl = "private, max-age=0"

		case path == "/v1/stats":
			ttl = "public, max-age=60"

		case strings.HasSuffix(path, "/verify"):
			ttl = "public, max-age=60"

		case strings.HasPrefix(path, "/v1/restaurants"), strings.HasPrefix(path, "/api/restaurants"):
			ttl = "public, max-age=30"

		case strings.HasPrefix(path, "/docs"):
			ttl = "public, max-age=3600"
		}

		if ttl != "" {
			c.Set(fiber.HeaderCacheControl, ttl)
		}
		return err
	}
}
