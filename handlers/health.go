package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// HandleCheckHealth handles GET /ping
func HandleCheckHealth(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
