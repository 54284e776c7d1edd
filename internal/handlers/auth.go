package handlers

import (
	"context"

	"github.com/gofiber/fiber/v3"

	"devicegate/internal/middleware"
	"devicegate/internal/models"
	"devicegate/internal/services"
)

type AuthHandler struct {
	auth *services.AuthService
}

func NewAuthHandler(auth *services.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// AuthRequest is the authenticate payload.
type AuthRequest struct {
	UserID   string `json:"userId"`
	DeviceID string `json:"deviceId"`
}

// Authenticate handles POST /auth. The device-format precheck runs before
// any store access.
func (h *AuthHandler) Authenticate(c fiber.Ctx) error {
	var req AuthRequest
	if err := decodeBody(c, &req); err != nil {
		return internalError(c, err)
	}

	if msg, ok := requiredMessage(
		field{"userId", req.UserID},
		field{"deviceId", req.DeviceID},
	); !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": msg})
	}

	if len(req.DeviceID) != models.DeviceIDLength {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"message": "Invalid Device ID",
		})
	}

	ctx := context.Background()
	result := h.auth.Authenticate(ctx, req.UserID, req.DeviceID, currentTimestamp(), middleware.GetRealIP(c))

	return c.Status(result.Status).JSON(fiber.Map{
		"message": result.Message,
	})
}
