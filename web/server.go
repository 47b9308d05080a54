package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/thanvanhai/smart-camera-backend/config"
	"github.com/thanvanhai/smart-camera-backend/internal/broker"
	"github.com/thanvanhai/smart-camera-backend/internal/stream"
	"github.com/thanvanhai/smart-camera-backend/pkg/metrics"
	"github.com/thanvanhai/smart-camera-backend/web/handlers/api"
)

const apiPrefix = "/api/v1"

// Server wires the HTTP surface of the gateway: stream endpoints, the
// lifecycle event endpoint, health and metrics.
type Server struct {
	cfg       *config.Config
	mgr       *broker.Manager
	gateway   *stream.Gateway
	prober    *stream.Prober
	publisher *broker.EventPublisher
	metrics   metrics.Collector
}

func NewServer(cfg *config.Config, mgr *broker.Manager, gw *stream.Gateway, prober *stream.Prober, publisher *broker.EventPublisher, collector metrics.Collector) *Server {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Server{
		cfg:       cfg,
		mgr:       mgr,
		gateway:   gw,
		prober:    prober,
		publisher: publisher,
		metrics:   collector,
	}
}

func (s *Server) SetupApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "smart-camera-backend",
		DisableStartupMessage: true,
	})
	app.Use(logger.New())

	apiGrp := app.Group(apiPrefix)
	apiGrp.Get("/cameras/:id/stream", func(c *fiber.Ctx) error {
		return api.StreamCamera(c, s.gateway)
	})
	apiGrp.Get("/cameras/:id/stream/info", func(c *fiber.Ctx) error {
		return api.GetStreamInfo(c, s.gateway)
	})
	apiGrp.Get("/cameras/:id/status", func(c *fiber.Ctx) error {
		return api.GetCameraStatus(c, s.prober)
	})
	apiGrp.Post("/events/camera", func(c *fiber.Ctx) error {
		return api.PublishCameraEvent(c, s.publisher)
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return api.GetHealth(c, s.mgr, s.cfg.Version)
	})

	if s.cfg.EnableMetrics && s.metrics.Registry() != nil {
		log.Info().Msg("metrics endpoint enabled")
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})))
	}

	return app
}
