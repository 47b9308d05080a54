package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/thanvanhai/smart-camera-backend/config"
	"github.com/thanvanhai/smart-camera-backend/pkg/metrics"
)

// EventPublisher broadcasts camera lifecycle events to the fan-out
// exchange consumed by the camera control agent, and alerts to the
// alerts exchange. Publish failures never escape this boundary: the
// caller gets a boolean and decides what to surface.
type EventPublisher struct {
	mgr     *Manager
	cfg     *config.Config
	metrics metrics.Collector
}

func NewEventPublisher(mgr *Manager, cfg *config.Config, collector metrics.Collector) *EventPublisher {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &EventPublisher{mgr: mgr, cfg: cfg, metrics: collector}
}

// PublishCameraEvent publishes a created/removed notification. The fan-out
// exchange ignores the routing key, so every bound queue receives a copy.
// On failure it forces one reconnect and retries once; lifecycle events are
// not worth an unbounded retry loop.
func (p *EventPublisher) PublishCameraEvent(ctx context.Context, action Action, cameraID, cameraURL string) bool {
	body, err := json.Marshal(CameraEvent{
		Action:    action,
		CameraID:  cameraID,
		CameraURL: cameraURL,
	})
	if err != nil {
		log.Error().Err(err).Str("camera_id", cameraID).Msg("failed to encode camera event")
		return false
	}
	ok := p.publishWithRetry(ctx, p.cfg.EventsExchange, "fanout", "", body)
	outcome := "ok"
	if !ok {
		outcome = "failed"
		log.Error().Str("camera_id", cameraID).Str("action", string(action)).Msg("camera event left undelivered")
	}
	p.metrics.RecordEventPublished(string(action), outcome)
	return ok
}

// PublishAlert publishes an alert to the topic alerts exchange with the
// routing key alert.<type>. Same single reconnect-and-retry contract as
// lifecycle events.
func (p *EventPublisher) PublishAlert(ctx context.Context, alert *Alert) bool {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(alert)
	if err != nil {
		log.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to encode alert")
		return false
	}
	ok := p.publishWithRetry(ctx, p.cfg.AlertsExchange, "topic", "alert."+alert.Type, body)
	if !ok {
		log.Error().Str("alert_id", alert.ID).Msg("alert left undelivered")
	}
	return ok
}

func (p *EventPublisher) publishWithRetry(ctx context.Context, exchange, kind, key string, body []byte) bool {
	if err := p.publish(ctx, exchange, kind, key, body); err == nil {
		return true
	} else {
		log.Warn().Err(err).Str("exchange", exchange).Msg("publish failed, forcing reconnect")
	}
	if err := p.mgr.Reconnect(ctx); err != nil {
		log.Error().Err(err).Msg("reconnect before publish retry failed")
		return false
	}
	if err := p.publish(ctx, exchange, kind, key, body); err != nil {
		log.Error().Err(err).Str("exchange", exchange).Msg("publish retry failed")
		return false
	}
	return true
}

func (p *EventPublisher) publish(ctx context.Context, exchange, kind, key string, body []byte) error {
	ch, err := p.mgr.Channel("publisher")
	if err != nil {
		return err
	}
	// idempotent as long as the parameters never change
	if err := ch.ExchangeDeclare(exchange, kind, true, false, false, false, nil); err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}
