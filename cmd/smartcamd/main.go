package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thanvanhai/smart-camera-backend/config"
	"github.com/thanvanhai/smart-camera-backend/internal/broker"
	"github.com/thanvanhai/smart-camera-backend/internal/stream"
	"github.com/thanvanhai/smart-camera-backend/pkg/logger"
	"github.com/thanvanhai/smart-camera-backend/pkg/metrics"
	"github.com/thanvanhai/smart-camera-backend/web"
)

var VERSION = "dev"

func main() {
	root := &cobra.Command{
		Use:     "smartcamd",
		Short:   "Broker gateway for the smart camera platform",
		Version: VERSION,
	}
	root.AddCommand(serveCmd(), consumeCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup() (*config.Config, *broker.Manager, metrics.Collector) {
	cfg := config.LoadConfig(VERSION)
	logger.Init(cfg.LogLevel)

	var collector metrics.Collector = metrics.Nop{}
	if cfg.EnableMetrics {
		collector = metrics.NewCollector()
	}
	return cfg, broker.NewManager(cfg, collector), collector
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the frame streaming gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, mgr, collector := setup()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if err := mgr.Connect(ctx); err != nil {
				return fmt.Errorf("initial broker connect: %w", err)
			}
			defer mgr.Disconnect()
			go mgr.Watch(ctx)

			app := buildApp(cfg, mgr, collector)
			if app != nil {
				go func() {
					addr := ":" + cfg.WebPort
					log.Info().Str("addr", addr).Msg("starting web server")
					if err := app.Listen(addr); err != nil {
						log.Fatal().Err(err).Msg("web server error")
					}
				}()
			} else {
				log.Info().Msg("web API disabled")
			}

			waitForSignal()
			log.Info().Msg("shutting down gateway...")
			cancel()

			if app != nil {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer shutdownCancel()
				if err := app.ShutdownWithContext(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("web server shutdown timed out")
				}
			}
			log.Info().Msg("gateway stopped")
			return nil
		},
	}
}

// buildApp wires the HTTP surface for the serve command. Returns nil when
// the web API is disabled.
func buildApp(cfg *config.Config, mgr *broker.Manager, collector metrics.Collector) *fiber.App {
	if !cfg.EnableWebAPI {
		return nil
	}
	gateway := stream.NewGateway(mgr, cfg, collector)
	prober := stream.NewProber(gateway)
	publisher := broker.NewEventPublisher(mgr, cfg, collector)
	return web.NewServer(cfg, mgr, gateway, prober, publisher, collector).SetupApp()
}

func consumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Run the telemetry consumer worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, mgr, collector := setup()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if err := mgr.Connect(ctx); err != nil {
				return fmt.Errorf("initial broker connect: %w", err)
			}
			defer mgr.Disconnect()
			go mgr.Watch(ctx)

			dispatcher := broker.NewDispatcher(mgr, cfg, telemetryHandlers(), collector)
			if err := dispatcher.SetupQueues(); err != nil {
				return err
			}
			if err := dispatcher.StartConsuming(ctx); err != nil {
				return err
			}
			log.Info().Msg("telemetry consumer running")

			waitForSignal()
			log.Info().Msg("shutting down consumer...")
			cancel()
			return nil
		},
	}
}

// telemetryHandlers are the wired collaborators for decoded telemetry.
// Persistence and analytics live in their own service; here decoded events
// are logged so the consumer can run standalone.
func telemetryHandlers() broker.Handlers {
	return broker.Handlers{
		Detection: func(ctx context.Context, d *broker.Detection) error {
			log.Info().Str("camera_id", d.CameraID).Int("objects", len(d.Objects)).Msg("detection received")
			return nil
		},
		Tracking: func(ctx context.Context, t *broker.Tracking) error {
			log.Info().Str("camera_id", t.CameraID).Int64("track_id", t.TrackID).Str("object_type", t.ObjectType).Msg("tracking received")
			return nil
		},
		Face: func(ctx context.Context, f *broker.Face) error {
			log.Info().Str("camera_id", f.CameraID).Str("person_id", f.PersonID).Msg("face recognition received")
			return nil
		},
		CameraEvent: func(ctx context.Context, e *broker.CameraEvent) error {
			log.Info().Str("camera_id", e.CameraID).Str("action", string(e.Action)).Msg("camera event received")
			return nil
		},
	}
}

func waitForSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}
