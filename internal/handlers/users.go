package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"

	"devicegate/internal/services"
)

type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// UserRequest is the payload of the admin user operations.
type UserRequest struct {
	UserID string `json:"userId"`
}

// Create handles POST /user
func (h *UserHandler) Create(c fiber.Ctx) error {
	var req UserRequest
	if err := decodeBody(c, &req); err != nil {
		return internalError(c, err)
	}

	if msg, ok := requiredMessage(field{"userId", req.UserID}); !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": msg})
	}

	ctx := context.Background()
	err := h.users.Create(ctx, req.UserID, currentTimestamp())
	if errors.Is(err, services.ErrUserExists) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"message": "User already exists",
		})
	}
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User created",
	})
}

// Delete handles DELETE /user
func (h *UserHandler) Delete(c fiber.Ctx) error {
	var req UserRequest
	if err := decodeBody(c, &req); err != nil {
		return internalError(c, err)
	}

	if msg, ok := requiredMessage(field{"userId", req.UserID}); !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": msg})
	}

	ctx := context.Background()
	err := h.users.Delete(ctx, req.UserID)
	if errors.Is(err, services.ErrUserNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": "User not found",
		})
	}
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "User deleted",
	})
}

// Reset handles PUT /user, clearing the device binding
func (h *UserHandler) Reset(c fiber.Ctx) error {
	var req UserRequest
	if err := decodeBody(c, &req); err != nil {
		return internalError(c, err)
	}

	if msg, ok := requiredMessage(field{"userId", req.UserID}); !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": msg})
	}

	ctx := context.Background()
	err := h.users.Reset(ctx, req.UserID)
	if errors.Is(err, services.ErrUserNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": "User not found",
		})
	}
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "User key reset",
	})
}

// List handles POST /users
func (h *UserHandler) List(c fiber.Ctx) error {
	ctx := context.Background()
	users, err := h.users.List(ctx)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"users": users,
	})
}
