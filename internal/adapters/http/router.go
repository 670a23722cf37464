package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/halalchain/halalmap/internal/pkg/metrics"
)

const requestTimeout = 15 * time.Second

// legacySunset is when the unversioned /api aliases go away.
var legacySunset = time.Date(2027, time.June, 30, 0, 0, 0, 0, time.UTC)

// SetupRoutes registers all REST, GraphQL, tile and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
		Next: func(c *fiber.Ctx) bool {
			// PNG tiles are already compressed.
			return strings.HasPrefix(c.Path(), "/tiles/")
		},
	}))

	// Request ID
	app.Use(requestid.New())

	// Propagate request ID into slog context
	app.Use(RequestIDLogMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	// Rate limiting: 120 requests per minute per IP. Tiles have their own
	// upstream limiter and a single map view pulls dozens at once.
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			p := c.Path()
			return strings.HasPrefix(p, "/tiles/") || strings.HasPrefix(p, "/ws/")
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	// ETag for conditional caching
	app.Use(ETagMiddleware())

	// Default Cache-Control headers
	app.Use(CachingMiddleware())

	// Deprecated unversioned aliases
	app.Use(DeprecationMiddleware([]DeprecatedRoute{
		{Pattern: "/api/restaurants", SunsetDate: legacySunset, Alternative: "/v1/restaurants"},
		{Pattern: "/api/restaurants/:id", SunsetDate: legacySunset, Alternative: "/v1/restaurants/:id"},
	}))

	// Health & readiness (no timeout, fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	withTimeout := func(h fiber.Handler) fiber.Handler {
		return timeout.NewWithContext(h, requestTimeout)
	}
	auth := RequireAuth(deps.Auth)

	// REST API v1
	v1 := app.Group("/v1")
	v1.Get("/restaurants", withTimeout(ListRestaurantsHandler(deps)))
	v1.Get("/restaurants.geojson", withTimeout(RestaurantsGeoJSONHandler(deps)))
	v1.Get("/restaurants/:id", withTimeout(GetRestaurantHandler(deps)))
	v1.Put("/restaurants/:id", auth, withTimeout(UpdateRestaurantHandler(deps)))
	v1.Delete("/restaurants/:id", auth, withTimeout(DeleteRestaurantHandler(deps)))
	v1.Post("/restaurants/:id/scans", withTimeout(RecordScanHandler(deps)))
	v1.Get("/restaurants/:id/verify", withTimeout(VerifyRestaurantHandler(deps)))
	v1.Post("/restaurants/:id/certification/schedule", auth, withTimeout(ScheduleCertificationHandler(deps)))
	v1.Get("/provinces", ProvincesHandler(deps))
	v1.Get("/stats", withTimeout(StatsHandler(deps)))
	v1.Get("/map/frame", withTimeout(MapFrameHandler(deps)))

	// Legacy aliases
	app.Get("/api/restaurants", withTimeout(ListRestaurantsHandler(deps)))
	app.Get("/api/restaurants/:id", withTimeout(GetRestaurantHandler(deps)))

	// Raster tile proxy
	app.Get("/tiles/:z/:x/:y.png", TileHandler(deps))

	// GraphQL
	app.Post("/graphql", withTimeout(GraphQLHandler(deps)))

	// API documentation (Swagger UI)
	SetupDocs(app)

	// Interactive map sessions
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/map", websocket.New(MapSocketHandler(deps)))
}
