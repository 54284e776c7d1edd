package routes

import (
	"github.com/gofiber/fiber/v3"

	"devicegate/config"
	"devicegate/internal/handlers"
	"devicegate/internal/middleware"
)

func SetupRoutes(app *fiber.App, cfg *config.Config, userHandler *handlers.UserHandler, authHandler *handlers.AuthHandler, logHandler *handlers.LogHandler) {
	admin := middleware.AdminMiddleware(cfg.AdminKey)
	rateLimit := middleware.RateLimitMiddleware()

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"message": "devicegate is running",
		})
	})

	// ==================
	// Admin Routes (body authKey required)
	// ==================
	app.Post("/user", userHandler.Create, admin)
	app.Delete("/user", userHandler.Delete, admin)
	app.Put("/user", userHandler.Reset, admin)
	app.Post("/users", userHandler.List, admin)
	app.Post("/log/auth/:user_id", logHandler.FetchAuthLogs, admin)
	app.Post("/log/auth/:user_id/export", logHandler.ExportAuthLogs, admin)

	// ==================
	// Public Routes (rate limited per IP)
	// ==================
	app.Post("/auth", authHandler.Authenticate, rateLimit)
	app.Post("/log", logHandler.RecordActivity, rateLimit)

	// Everything else
	app.Use(func(c fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": "Not found",
		})
	})
}
