package handlers

import (
	"github.com/aeroshield/backend/internal/http/dto"
	"github.com/aeroshield/backend/internal/middleware"
	"github.com/aeroshield/backend/internal/models"
	"github.com/aeroshield/backend/internal/repositories"
	"github.com/aeroshield/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ClaimHandler struct {
	engine    *services.ClaimsEngine
	claimRepo *repositories.ClaimRepo
	auditRepo *repositories.AuditRepo
	log       *zap.Logger
}

func NewClaimHandler(engine *services.ClaimsEngine, claimRepo *repositories.ClaimRepo, auditRepo *repositories.AuditRepo, log *zap.Logger) *ClaimHandler {
	return &ClaimHandler{engine: engine, claimRepo: claimRepo, auditRepo: auditRepo, log: log}
}

func (h *ClaimHandler) Initiate(c *fiber.Ctx) error {
	var req dto.InitiateClaimRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	policyID, err := uuid.Parse(req.PolicyID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid policy_id"})
	}
	if req.PayoutAddress == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "payout_address is required"})
	}

	userID := middleware.GetUserID(c)
	claim, err := h.engine.InitiateClaim(c.Context(), userID, policyID, req.PayoutAddress, models.ClaimTypeManual)
	if err != nil {
		return c.Status(statusForError(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: claim})
}

// Verify drives the oracle round for an initiated claim. The request blocks
// until the attestation finalizes, fails, or times out.
func (h *ClaimHandler) Verify(c *fiber.Ctx) error {
	claimID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid claim id"})
	}

	userID := middleware.GetUserID(c)
	if _, err := h.engine.GetClaim(c.Context(), userID, claimID); err != nil {
		return c.Status(statusForError(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	claim, err := h.engine.VerifyWithOracle(c.Context(), claimID)
	if err != nil {
		if claim != nil {
			// The claim moved to a terminal failure state; return it with the error.
			return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.SuccessResponse{OK: false, Data: claim})
		}
		return c.Status(statusForError(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: claim})
}

func (h *ClaimHandler) Payout(c *fiber.Ctx) error {
	claimID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid claim id"})
	}

	userID := middleware.GetUserID(c)
	if _, err := h.engine.GetClaim(c.Context(), userID, claimID); err != nil {
		return c.Status(statusForError(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	claim, err := h.engine.ProcessPayout(c.Context(), claimID)
	if err != nil {
		if claim != nil {
			return c.Status(statusForError(err)).JSON(dto.SuccessResponse{OK: false, Data: claim})
		}
		return c.Status(statusForError(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: claim})
}

// Auto runs initiate, verify, and payout in one blocking call.
func (h *ClaimHandler) Auto(c *fiber.Ctx) error {
	var req dto.AutoClaimRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	policyID, err := uuid.Parse(req.PolicyID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid policy_id"})
	}
	if req.PayoutAddress == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "payout_address is required"})
	}

	userID := middleware.GetUserID(c)
	claim, err := h.engine.AutoProcessClaim(c.Context(), userID, policyID, req.PayoutAddress)
	if err != nil {
		if claim != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.SuccessResponse{OK: false, Data: claim})
		}
		return c.Status(statusForError(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: claim})
}

func (h *ClaimHandler) Get(c *fiber.Ctx) error {
	claimID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid claim id"})
	}

	userID := middleware.GetUserID(c)
	claim, err := h.engine.GetClaim(c.Context(), userID, claimID)
	if err != nil {
		return c.Status(statusForError(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: claim})
}

func (h *ClaimHandler) Status(c *fiber.Ctx) error {
	claimID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid claim id"})
	}

	userID := middleware.GetUserID(c)
	view, err := h.engine.GetClaimStatus(c.Context(), userID, claimID)
	if err != nil {
		return c.Status(statusForError(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: view})
}

func (h *ClaimHandler) List(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	limit, offset := paginationParams(c)

	claims, err := h.claimRepo.ListByUser(c.Context(), userID, limit, offset)
	if err != nil {
		h.log.Error("failed to list claims", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: claims})
}

func (h *ClaimHandler) Events(c *fiber.Ctx) error {
	claimID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid claim id"})
	}

	userID := middleware.GetUserID(c)
	if _, err := h.engine.GetClaim(c.Context(), userID, claimID); err != nil {
		return c.Status(statusForError(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	entries, err := h.auditRepo.GetByEntity(c.Context(), "claim", claimID, 100, 0)
	if err != nil {
		h.log.Error("failed to load claim events", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: entries})
}
