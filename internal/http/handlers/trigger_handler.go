package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/aeroshield/backend/internal/config"
	"github.com/aeroshield/backend/internal/http/dto"
	"github.com/aeroshield/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type TriggerHandler struct {
	triggerService *services.TriggerService
	cfg            *config.Config
	log            *zap.Logger
}

func NewTriggerHandler(triggerService *services.TriggerService, cfg *config.Config, log *zap.Logger) *TriggerHandler {
	return &TriggerHandler{triggerService: triggerService, cfg: cfg, log: log}
}

// FlightStatus receives flight-status webhooks from the data provider. The
// raw body must carry an HMAC-SHA256 signature in X-Webhook-Signature.
func (h *TriggerHandler) FlightStatus(c *fiber.Ctx) error {
	if h.cfg.WebhookSecret == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: "webhooks are not configured"})
	}

	signature := c.Get("X-Webhook-Signature")
	if !verifySignature(c.Body(), signature, h.cfg.WebhookSecret) {
		h.log.Warn("webhook signature rejected", zap.String("ip", c.IP()))
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid signature"})
	}

	var req dto.FlightEventRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.AirlineCode == "" || req.FlightNumber == "" || req.DepartureDate.IsZero() {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "airline_code, flight_number, and departure_date are required"})
	}

	result, err := h.triggerService.ProcessFlightEvent(c.Context(), services.FlightEvent{
		AirlineCode:   req.AirlineCode,
		FlightNumber:  req.FlightNumber,
		DepartureDate: req.DepartureDate,
		FlightStatus:  req.FlightStatus,
		DelayMinutes:  req.DelayMinutes,
	})
	if err != nil {
		h.log.Error("flight event processing failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: result})
}

func verifySignature(body []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
