package http

import (
	"time"

	"github.com/aeroshield/backend/internal/config"
	"github.com/aeroshield/backend/internal/http/handlers"
	"github.com/aeroshield/backend/internal/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	policyHandler *handlers.PolicyHandler,
	claimHandler *handlers.ClaimHandler,
	poolHandler *handlers.PoolHandler,
	triggerHandler *handlers.TriggerHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Auth (public)
	api.Post("/auth/login", authHandler.Login)

	// Flight data provider webhook (HMAC-signed, no JWT)
	api.Post("/triggers/flight-status", triggerHandler.FlightStatus)

	// Rate-limited endpoints
	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Pool state is public
	api.Get("/pool/stats", poolHandler.Stats)
	api.Get("/pool/health", poolHandler.Health)
	api.Get("/pool/transactions", poolHandler.Transactions)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// User
	protected.Get("/me", userHandler.GetMe)
	protected.Post("/me/ping", userHandler.Ping)

	// Quotes and policies
	protected.Post("/quotes", policyHandler.Quote)
	protected.Post("/policies", policyHandler.Purchase)
	protected.Get("/policies", policyHandler.List)
	protected.Get("/policies/:id", policyHandler.Get)
	protected.Post("/policies/:id/activate", policyHandler.Activate)
	protected.Post("/policies/:id/cancel", policyHandler.Cancel)

	// Claims
	protected.Post("/claims", claimHandler.Initiate)
	protected.Post("/claims/auto", claimHandler.Auto)
	protected.Get("/claims", claimHandler.List)
	protected.Get("/claims/:id", claimHandler.Get)
	protected.Get("/claims/:id/status", claimHandler.Status)
	protected.Get("/claims/:id/events", claimHandler.Events)
	protected.Post("/claims/:id/verify", claimHandler.Verify)
	protected.Post("/claims/:id/payout", claimHandler.Payout)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
