package handlers

import (
	"github.com/aeroshield/backend/internal/http/dto"
	"github.com/aeroshield/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PoolHandler struct {
	poolService *services.PoolService
	poolID      uuid.UUID
	log         *zap.Logger
}

func NewPoolHandler(poolService *services.PoolService, poolID uuid.UUID, log *zap.Logger) *PoolHandler {
	return &PoolHandler{poolService: poolService, poolID: poolID, log: log}
}

func (h *PoolHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.poolService.GetStats(c.Context(), h.poolID)
	if err != nil {
		return c.Status(statusForError(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: stats})
}

func (h *PoolHandler) Health(c *fiber.Ctx) error {
	health, err := h.poolService.CheckHealth(c.Context(), h.poolID)
	if err != nil {
		return c.Status(statusForError(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: health})
}

func (h *PoolHandler) Transactions(c *fiber.Ctx) error {
	limit, offset := paginationParams(c)
	txs, err := h.poolService.ListTransactions(c.Context(), h.poolID, limit, offset)
	if err != nil {
		h.log.Error("failed to list pool transactions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: txs})
}
