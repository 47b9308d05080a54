package api

import (
	"bufio"
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/thanvanhai/smart-camera-backend/internal/stream"
)

// GetStreamInfo godoc
// @Summary Get camera stream metadata
// @Description Point-in-time stream metadata; inactive is a normal status
// @Tags stream
// @Produce json
// @Param id path string true "Camera ID"
// @Success 200 {object} stream.StreamInfo
// @Router /cameras/{id}/stream/info [get]
func GetStreamInfo(c *fiber.Ctx, gw *stream.Gateway) error {
	cameraID := c.Params("id")
	if cameraID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "camera id is required",
		})
	}
	info := gw.GetStreamInfo(c.Context(), cameraID)
	return c.Status(fiber.StatusOK).JSON(info)
}

// StreamCamera godoc
// @Summary Stream live camera video
// @Description Serves frames as multipart/x-mixed-replace until the client disconnects
// @Tags stream
// @Produce mpfd
// @Param id path string true "Camera ID"
// @Success 200
// @Router /cameras/{id}/stream [get]
func StreamCamera(c *fiber.Ctx, gw *stream.Gateway) error {
	cameraID := c.Params("id")
	if cameraID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "camera id is required",
		})
	}

	ctx, cancel := context.WithCancel(c.Context())
	frames, err := gw.StreamFrames(ctx, cameraID)
	if err != nil {
		cancel()
		log.Error().Err(err).Str("camera_id", cameraID).Msg("failed to open frame stream")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "stream unavailable",
		})
	}

	c.Set(fiber.HeaderContentType, stream.ContentType)
	c.Set(fiber.HeaderCacheControl, "no-cache, no-store, must-revalidate")
	c.Set("Pragma", "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		// cancelling releases the queue subscription; the keep-alive in
		// the pump surfaces a closed client connection as a write error
		// even when the camera sends no frames
		defer cancel()
		if err := stream.PumpFrames(w, frames, stream.KeepAlivePeriod); err != nil {
			log.Debug().Err(err).Str("camera_id", cameraID).Msg("stream client gone")
		}
	})
	return nil
}

// GetCameraStatus godoc
// @Summary Get camera activity status
// @Tags stream
// @Produce json
// @Param id path string true "Camera ID"
// @Success 200 {object} stream.CameraStatus
// @Router /cameras/{id}/status [get]
func GetCameraStatus(c *fiber.Ctx, prober *stream.Prober) error {
	cameraID := c.Params("id")
	if cameraID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "camera id is required",
		})
	}
	return c.Status(fiber.StatusOK).JSON(prober.Status(c.Context(), cameraID))
}
