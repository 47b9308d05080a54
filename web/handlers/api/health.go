package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/thanvanhai/smart-camera-backend/internal/broker"
)

// GetHealth godoc
// @Summary Gateway health
// @Description Reports broker connection state
// @Tags system
// @Produce json
// @Success 200
// @Failure 503
// @Router /healthz [get]
func GetHealth(c *fiber.Ctx, mgr *broker.Manager, version string) error {
	if !mgr.HealthCheck() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"broker": mgr.State().String(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":  "ok",
		"broker":  mgr.State().String(),
		"version": version,
	})
}
