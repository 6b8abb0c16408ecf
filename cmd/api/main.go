package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aeroshield/backend/internal/config"
	"github.com/aeroshield/backend/internal/db"
	"github.com/aeroshield/backend/internal/events"
	"github.com/aeroshield/backend/internal/flare"
	apphttp "github.com/aeroshield/backend/internal/http"
	"github.com/aeroshield/backend/internal/http/handlers"
	"github.com/aeroshield/backend/internal/repositories"
	"github.com/aeroshield/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	userRepo := repositories.NewUserRepo(pool)
	policyRepo := repositories.NewPolicyRepo(pool)
	claimRepo := repositories.NewClaimRepo(pool)
	oracleRepo := repositories.NewOracleRepo(pool)
	poolRepo := repositories.NewPoolRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Flare gateways
	fdcClient := flare.NewFDCClient(cfg.FDCVerifierURL, oracleRepo, cfg.FDCTimeout, cfg.FDCPollInterval, log)
	ftsoClient := flare.NewFTSOClient(cfg.FTSOBaseURL, cfg.FTSOPriceCacheTTL, log)

	// Services
	poolService := services.NewPoolService(poolRepo, ftsoClient, publisher, cfg, log)
	insurancePool, err := poolService.Bootstrap(ctx)
	if err != nil {
		log.Fatal("failed to bootstrap insurance pool", zap.Error(err))
	}
	riskScorer := services.NewRiskScorer()
	policyService := services.NewPolicyService(policyRepo, poolService, riskScorer, auditRepo, publisher, rdb, insurancePool.ID, cfg, log)
	claimsEngine := services.NewClaimsEngine(policyRepo, claimRepo, fdcClient, ftsoClient, auditRepo, publisher, insurancePool.ID, cfg, log)
	triggerService := services.NewTriggerService(policyRepo, userRepo, claimsEngine, log)

	// Handlers
	authHandler := handlers.NewAuthHandler(userRepo, cfg, log)
	userHandler := handlers.NewUserHandler(userRepo, log)
	policyHandler := handlers.NewPolicyHandler(policyService, log)
	claimHandler := handlers.NewClaimHandler(claimsEngine, claimRepo, auditRepo, log)
	poolHandler := handlers.NewPoolHandler(poolService, insurancePool.ID, log)
	triggerHandler := handlers.NewTriggerHandler(triggerService, cfg, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, authHandler, userHandler, policyHandler, claimHandler, poolHandler, triggerHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
