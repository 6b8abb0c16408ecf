package handlers

import (
	"strconv"

	"github.com/aeroshield/backend/internal/http/dto"
	"github.com/aeroshield/backend/internal/middleware"
	"github.com/aeroshield/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PolicyHandler struct {
	policyService *services.PolicyService
	log           *zap.Logger
}

func NewPolicyHandler(policyService *services.PolicyService, log *zap.Logger) *PolicyHandler {
	return &PolicyHandler{policyService: policyService, log: log}
}

func quoteInputFromRequest(req dto.QuoteRequest) services.QuoteInput {
	return services.QuoteInput{
		AirlineCode:           req.AirlineCode,
		FlightNumber:          req.FlightNumber,
		DepartureAirport:      req.DepartureAirport,
		ArrivalAirport:        req.ArrivalAirport,
		ScheduledDeparture:    req.ScheduledDeparture,
		ScheduledArrival:      req.ScheduledArrival,
		CoverageAmount:        req.CoverageAmount,
		DelayThresholdMinutes: req.DelayThresholdMinutes,
	}
}

func (h *PolicyHandler) Quote(c *fiber.Ctx) error {
	var req dto.QuoteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	quote, err := h.policyService.QuotePremium(c.Context(), quoteInputFromRequest(req))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: quote})
}

func (h *PolicyHandler) Purchase(c *fiber.Ctx) error {
	var req dto.QuoteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	userID := middleware.GetUserID(c)
	policy, err := h.policyService.PurchasePolicy(c.Context(), userID, quoteInputFromRequest(req))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: policy})
}

func (h *PolicyHandler) Activate(c *fiber.Ctx) error {
	policyID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid policy id"})
	}

	userID := middleware.GetUserID(c)
	policy, err := h.policyService.ActivatePolicy(c.Context(), userID, policyID)
	if err != nil {
		return c.Status(statusForError(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: policy})
}

func (h *PolicyHandler) Cancel(c *fiber.Ctx) error {
	policyID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid policy id"})
	}

	userID := middleware.GetUserID(c)
	if err := h.policyService.CancelPolicy(c.Context(), userID, policyID); err != nil {
		return c.Status(statusForError(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *PolicyHandler) Get(c *fiber.Ctx) error {
	policyID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid policy id"})
	}

	userID := middleware.GetUserID(c)
	policy, err := h.policyService.GetPolicy(c.Context(), userID, policyID)
	if err != nil {
		return c.Status(statusForError(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: policy})
}

func (h *PolicyHandler) List(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	limit, offset := paginationParams(c)

	policies, err := h.policyService.ListPolicies(c.Context(), userID, limit, offset)
	if err != nil {
		h.log.Error("failed to list policies", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: policies})
}

func paginationParams(c *fiber.Ctx) (limit, offset int) {
	limit, offset = 20, 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}
	return limit, offset
}
