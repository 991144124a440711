package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/keeper-escrow/backend/internal/http/handlers"
	"github.com/keeper-escrow/backend/internal/middleware"
)

type RouterDeps struct {
	Log    *zap.Logger
	Redis  *redis.Client // nil disables rate limiting
	Authn  middleware.Authenticator
	Admins middleware.AdminChecker

	RateLimitPerMinute int

	AuthHandler   *handlers.AuthHandler
	OrderHandler  *handlers.OrderHandler
	LedgerHandler *handlers.LedgerHandler
	WSHub         *handlers.WSHub
}

func SetupRouter(app *fiber.App, d RouterDeps) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(d.Log))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")
	if d.Redis != nil && d.RateLimitPerMinute > 0 {
		api.Use(middleware.RateLimitMiddleware(d.Redis, d.RateLimitPerMinute, time.Minute, d.Log))
	}

	// Auth (public)
	api.Post("/auth/ton/payload", d.AuthHandler.GeneratePayload)
	api.Post("/auth/ton/login", d.AuthHandler.TonLogin)

	// Ledger reads (public)
	api.Get("/ledger/balances/:account", d.LedgerHandler.GetBalance)

	protected := api.Group("", middleware.AuthMiddleware(d.Authn, d.Log))

	// Orders
	protected.Post("/orders", d.OrderHandler.CreateOrder)
	protected.Get("/orders", d.OrderHandler.ListOrders)
	protected.Get("/orders/:asset/:orderId", d.OrderHandler.GetOrder)
	protected.Post("/orders/:asset/:orderId/ready", d.OrderHandler.MarkReady)
	protected.Post("/orders/:asset/:orderId/execute", d.OrderHandler.Execute)
	protected.Post("/orders/:asset/:orderId/cancel", d.OrderHandler.Cancel)
	protected.Get("/orders/:asset/:orderId/events", d.OrderHandler.GetOrderEvents)

	// Admin
	admin := protected.Group("/admin", middleware.AdminMiddleware(d.Admins))
	admin.Post("/ledger/credit", d.LedgerHandler.Credit)

	// WebSocket
	if d.WSHub != nil {
		app.Use("/ws", handlers.WSUpgradeMiddleware())
		app.Get("/ws", websocket.New(d.WSHub.HandleWS))
	}
}
