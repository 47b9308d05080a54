package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/thanvanhai/smart-camera-backend/internal/broker"
)

type cameraEventRequest struct {
	Action    string `json:"action"`
	CameraID  string `json:"camera_id"`
	CameraURL string `json:"camera_url"`
}

// PublishCameraEvent godoc
// @Summary Publish a camera lifecycle event
// @Description Broadcasts a created/removed event to the camera control agent
// @Tags events
// @Accept json
// @Produce json
// @Param event body cameraEventRequest true "Lifecycle event"
// @Success 202
// @Failure 400
// @Failure 502
// @Router /events/camera [post]
func PublishCameraEvent(c *fiber.Ctx, publisher *broker.EventPublisher) error {
	var req cameraEventRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body: " + err.Error(),
		})
	}
	action := broker.Action(req.Action)
	if action != broker.ActionCreated && action != broker.ActionRemoved {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "action must be created or removed",
		})
	}
	if req.CameraID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "camera_id is required",
		})
	}
	if !publisher.PublishCameraEvent(c.Context(), action, req.CameraID, req.CameraURL) {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "event could not be delivered",
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "published",
	})
}
