package handlers

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v3"

	"devicegate/internal/middleware"
	"devicegate/internal/models"
	"devicegate/internal/services"
)

type LogHandler struct {
	logs *services.LogService
}

func NewLogHandler(logs *services.LogService) *LogHandler {
	return &LogHandler{logs: logs}
}

// ActivityRequest is the payload of POST /log.
type ActivityRequest struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

// RecordActivity handles POST /log
func (h *LogHandler) RecordActivity(c fiber.Ctx) error {
	var req ActivityRequest
	if err := decodeBody(c, &req); err != nil {
		return internalError(c, err)
	}

	if msg, ok := requiredMessage(
		field{"userId", req.UserID},
		field{"message", req.Message},
	); !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": msg})
	}

	ctx := context.Background()
	// A failed append is logged inside RecordActivity and never changes
	// the response.
	_ = h.logs.RecordActivity(ctx, &models.ActivityLogEntry{
		UserID:    req.UserID,
		Message:   req.Message,
		Timestamp: currentTimestamp(),
		IP:        middleware.GetRealIP(c),
	})

	return c.JSON(fiber.Map{
		"message": "Log recorded",
	})
}

// FetchAuthLogs handles POST /log/auth/:user_id
func (h *LogHandler) FetchAuthLogs(c fiber.Ctx) error {
	userID := c.Params("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Empty userId",
		})
	}

	ctx := context.Background()
	entries, err := h.logs.FetchAuthLogs(ctx, userID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"logs": entries,
	})
}

// ExportAuthLogs handles POST /log/auth/:user_id/export, streaming the
// user's auth trail as an xlsx attachment.
func (h *LogHandler) ExportAuthLogs(c fiber.Ctx) error {
	userID := c.Params("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Empty userId",
		})
	}

	ctx := context.Background()
	entries, err := h.logs.FetchAuthLogs(ctx, userID)
	if err != nil {
		return internalError(c, err)
	}

	buf, err := services.BuildAuthLogWorkbook(entries)
	if err != nil {
		return internalError(c, err)
	}

	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="auth-logs-%s.xlsx"`, userID))
	return c.Send(buf.Bytes())
}
