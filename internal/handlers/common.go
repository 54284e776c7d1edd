package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
)

// decodeBody unmarshals the request body into v. An absent body is treated
// as an empty object; a body that fails to parse is an unexpected failure.
func decodeBody(c fiber.Ctx, v any) error {
	raw := c.Body()
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// internalError logs the failure server-side and answers with the uniform
// generic 500 body. No internal detail crosses the trust boundary.
func internalError(c fiber.Ctx, err error) error {
	log.Printf("Unexpected error on %s %s: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"message": "Internal server error",
	})
}

type field struct {
	name  string
	value string
}

// requiredMessage checks every field and, if any is missing or empty,
// returns a message naming all of them, not just the first.
func requiredMessage(fields ...field) (string, bool) {
	var missing []string
	for _, f := range fields {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) == 0 {
		return "", true
	}
	return "Missing or empty required parameter(s): " + strings.Join(missing, ", "), false
}

// currentTimestamp is the server-generated unix-seconds timestamp injected
// into every dispatched request; client-supplied values are ignored.
func currentTimestamp() string {
	return strconv.FormatInt(time.Now().UTC().Unix(), 10)
}
