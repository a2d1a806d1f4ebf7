package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/discoverymap/internal/pkg/metrics"
)

// RecenterTimeout bounds a recenter request, device wait included.
const RecenterTimeout = 15 * time.Second

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// Gesture traffic is bursty: 600 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        600,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")

	v1.Post("/sessions", CreateSessionHandler(deps))
	v1.Get("/sessions", ListSessionsHandler(deps))
	v1.Get("/sessions/:id", GetSessionHandler(deps))
	v1.Delete("/sessions/:id", CloseSessionHandler(deps))

	v1.Post("/sessions/:id/mount", MountHandler(deps))
	v1.Post("/sessions/:id/unmount", UnmountHandler(deps))
	v1.Post("/sessions/:id/pan", PanHandler(deps))
	v1.Post("/sessions/:id/zoom", ZoomHandler(deps))
	v1.Post("/sessions/:id/recenter", timeout.NewWithContext(RecenterHandler(deps), RecenterTimeout))

	v1.Put("/sessions/:id/query", SetQueryHandler(deps))
	v1.Put("/sessions/:id/identity", SetIdentityHandler(deps))
	v1.Post("/sessions/:id/reload", ReloadHandler(deps))
	v1.Get("/sessions/:id/feed", FeedHandler(deps))
	v1.Get("/sessions/:id/feed.geojson", FeedGeoJSONHandler(deps))

	v1.Post("/sessions/:id/selection", SelectHandler(deps))
	v1.Delete("/sessions/:id/selection", ClearSelectionHandler(deps))
	v1.Post("/sessions/:id/handoff", HandoffHandler(deps))

	v1.Post("/devices/:id/fix", DeviceFixHandler(deps))
	v1.Post("/devices/:id/status", DeviceStatusHandler(deps))

	app.Post("/graphql", GraphQLHandler(deps))
	SetupDocs(app)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/sessions/:id", func(c *fiber.Ctx) error {
		if _, err := deps.Sessions.Get(c.Params("id")); err != nil {
			return sessionError(c, err)
		}
		return c.Next()
	}, websocket.New(WebSocketHandler(deps)))
}
