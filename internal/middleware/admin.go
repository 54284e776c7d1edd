package middleware

import (
	"encoding/json"
	"log"

	"github.com/gofiber/fiber/v3"
)

type adminBody struct {
	AuthKey string `json:"authKey"`
}

// AdminMiddleware gates privileged routes on the shared admin secret carried
// in the request body. The check short-circuits before any field validation
// or store access; missing and wrong keys are indistinguishable to the
// caller.
func AdminMiddleware(adminKey string) fiber.Handler {
	return func(c fiber.Ctx) error {
		var body adminBody
		if raw := c.Body(); len(raw) > 0 {
			if err := json.Unmarshal(raw, &body); err != nil {
				// A body that does not parse is an unexpected failure,
				// not a validation outcome.
				log.Printf("Unparseable request body on %s %s: %v", c.Method(), c.Path(), err)
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"message": "Internal server error",
				})
			}
		}

		if body.AuthKey == "" || body.AuthKey != adminKey {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Unauthorized",
			})
		}

		return c.Next()
	}
}
