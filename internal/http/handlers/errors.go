package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/aeroshield/backend/internal/models"
)

// statusForError maps domain errors to HTTP status codes: NotFound to 404,
// CAS conflicts to 409, terminal user errors and insufficient funds to 4xx,
// everything else to 500.
func statusForError(err error) int {
	var insufficient *models.InsufficientFundsError
	switch {
	case errors.Is(err, models.ErrPolicyNotFound),
		errors.Is(err, models.ErrClaimNotFound),
		errors.Is(err, models.ErrPoolNotFound),
		errors.Is(err, models.ErrUserNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, models.ErrPolicyNotActive),
		errors.Is(err, models.ErrPolicyAlreadyClaimed),
		errors.Is(err, models.ErrClaimNotApproved):
		return fiber.StatusBadRequest
	case errors.As(err, &insufficient):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}
