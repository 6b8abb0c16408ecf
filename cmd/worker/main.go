package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aeroshield/backend/internal/config"
	"github.com/aeroshield/backend/internal/db"
	"github.com/aeroshield/backend/internal/events"
	"github.com/aeroshield/backend/internal/flare"
	"github.com/aeroshield/backend/internal/models"
	"github.com/aeroshield/backend/internal/repositories"
	"github.com/aeroshield/backend/internal/services"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	policyRepo := repositories.NewPolicyRepo(pool)
	claimRepo := repositories.NewClaimRepo(pool)
	poolRepo := repositories.NewPoolRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	ftsoClient := flare.NewFTSOClient(cfg.FTSOBaseURL, cfg.FTSOPriceCacheTTL, log)
	poolService := services.NewPoolService(poolRepo, ftsoClient, publisher, cfg, log)
	insurancePool, err := poolService.Bootstrap(ctx)
	if err != nil {
		log.Fatal("failed to bootstrap insurance pool", zap.Error(err))
	}
	riskScorer := services.NewRiskScorer()
	policyService := services.NewPolicyService(policyRepo, poolService, riskScorer, auditRepo, publisher, rdb, insurancePool.ID, cfg, log)

	log.Info("worker started")

	// Run jobs on tickers
	expiryTicker := time.NewTicker(cfg.PolicyExpiryInterval)
	recoveryTicker := time.NewTicker(cfg.ClaimRecoveryInterval)
	healthTicker := time.NewTicker(cfg.PoolHealthInterval)
	defer expiryTicker.Stop()
	defer recoveryTicker.Stop()
	defer healthTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-expiryTicker.C:
			runPolicyExpiry(ctx, policyService, log)
		case <-recoveryTicker.C:
			runClaimRecovery(ctx, claimRepo, policyRepo, cfg, log)
		case <-healthTicker.C:
			runPoolHealthCheck(ctx, poolService, insurancePool.ID, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

func runPolicyExpiry(ctx context.Context, policyService *services.PolicyService, log *zap.Logger) {
	if _, err := policyService.ExpireOverduePolicies(ctx); err != nil {
		log.Error("failed to expire overdue policies", zap.Error(err))
	}
}

// runClaimRecovery fails claims stuck in verifying long past the oracle
// timeout (an API instance died mid-verification) and releases the policy
// hold so the holder can retry. The stored oracle request id survives, so
// a retried verification resumes the same attestation round.
func runClaimRecovery(ctx context.Context, claimRepo *repositories.ClaimRepo, policyRepo *repositories.PolicyRepo, cfg *config.Config, log *zap.Logger) {
	staleAfter := cfg.FDCTimeout + 5*time.Minute

	claims, err := claimRepo.ListStuckVerifying(ctx, staleAfter)
	if err != nil {
		log.Error("failed to list stuck claims", zap.Error(err))
		return
	}

	for _, claim := range claims {
		log.Warn("recovering stuck claim",
			zap.String("claim_id", claim.ID.String()),
			zap.String("claim_number", claim.ClaimNumber),
		)
		if err := claimRepo.MarkFailed(ctx, claim.ID, "verification interrupted"); err != nil {
			log.Error("failed to mark stuck claim failed", zap.String("claim_id", claim.ID.String()), zap.Error(err))
			continue
		}
		err := policyRepo.TransitionStatus(ctx, claim.PolicyID, models.PolicyStatusPayoutPending, models.PolicyStatusActive)
		if err != nil && !errors.Is(err, models.ErrConflict) {
			log.Error("failed to release policy hold", zap.String("policy_id", claim.PolicyID.String()), zap.Error(err))
		}
	}
}

func runPoolHealthCheck(ctx context.Context, poolService *services.PoolService, poolID uuid.UUID, log *zap.Logger) {
	health, err := poolService.CheckHealth(ctx, poolID)
	if err != nil {
		log.Error("failed to check pool health", zap.Error(err))
		return
	}
	if health.IsHealthy {
		return
	}
	log.Warn("insurance pool unhealthy",
		zap.String("risk_level", health.RiskLevel),
		zap.Strings("warnings", health.Warnings),
	)
}
