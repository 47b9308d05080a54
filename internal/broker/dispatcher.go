package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/thanvanhai/smart-camera-backend/config"
	"github.com/thanvanhai/smart-camera-backend/pkg/metrics"
)

// MessageKind tags the logical telemetry type a queue carries.
type MessageKind int

const (
	KindDetection MessageKind = iota
	KindTracking
	KindFace
	KindCameraEvent
)

func (k MessageKind) String() string {
	switch k {
	case KindDetection:
		return "detection"
	case KindTracking:
		return "tracking"
	case KindFace:
		return "face"
	case KindCameraEvent:
		return "camera_event"
	default:
		return "unknown"
	}
}

type outcomeCode int

const (
	outcomeProcessed outcomeCode = iota
	outcomeDropped
	outcomeRetry
)

func (c outcomeCode) String() string {
	switch c {
	case outcomeProcessed:
		return "processed"
	case outcomeDropped:
		return "dropped"
	case outcomeRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of the decode/validate/handle pipeline.
// Acknowledgement behavior is driven solely by this tag.
type Outcome struct {
	code   outcomeCode
	reason string
}

func Processed() Outcome            { return Outcome{code: outcomeProcessed} }
func Dropped(reason string) Outcome { return Outcome{code: outcomeDropped, reason: reason} }
func Retry(reason string) Outcome   { return Outcome{code: outcomeRetry, reason: reason} }

// Handlers are the external collaborators telemetry is routed to, one per
// message kind. A nil entry drops that kind's messages.
type Handlers struct {
	Detection   func(ctx context.Context, d *Detection) error
	Tracking    func(ctx context.Context, t *Tracking) error
	Face        func(ctx context.Context, f *Face) error
	CameraEvent func(ctx context.Context, e *CameraEvent) error
}

type queueBinding struct {
	kind    MessageKind
	queue   string
	pattern string
}

// Dispatcher declares the telemetry topology and routes inbound messages
// to their handlers with at-least-once semantics. Handler failures requeue
// once; a failure on a redelivered message dead-letters instead, so a
// poison message cannot loop forever.
type Dispatcher struct {
	mgr      *Manager
	cfg      *config.Config
	handlers Handlers
	metrics  metrics.Collector
}

func NewDispatcher(mgr *Manager, cfg *config.Config, handlers Handlers, collector metrics.Collector) *Dispatcher {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Dispatcher{mgr: mgr, cfg: cfg, handlers: handlers, metrics: collector}
}

func (d *Dispatcher) bindings() []queueBinding {
	return []queueBinding{
		{kind: KindDetection, queue: d.cfg.DetectionQueue, pattern: "camera.detection.*"},
		{kind: KindTracking, queue: d.cfg.TrackingQueue, pattern: "camera.tracking.*"},
		{kind: KindFace, queue: d.cfg.FaceQueue, pattern: "camera.face.*"},
		{kind: KindCameraEvent, queue: d.cfg.CameraEventQueue, pattern: "camera.lifecycle.*"},
	}
}

func (d *Dispatcher) deadLetterExchange() string {
	return d.cfg.TelemetryExchange + ".dlx"
}

// SetupQueues declares the topic exchange, the dead-letter exchange and
// the four durable telemetry queues with their wildcard bindings.
// Declarations are idempotent for identical parameters; the broker rejects
// conflicting redeclaration.
func (d *Dispatcher) SetupQueues() error {
	ch, err := d.mgr.Channel("dispatcher")
	if err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(d.cfg.TelemetryExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare telemetry exchange: %w", err)
	}

	dlx := d.deadLetterExchange()
	if err := ch.ExchangeDeclare(dlx, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter exchange: %w", err)
	}
	if _, err := ch.QueueDeclare("telemetry.dead", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter queue: %w", err)
	}
	if err := ch.QueueBind("telemetry.dead", "", dlx, false, nil); err != nil {
		return fmt.Errorf("bind dead-letter queue: %w", err)
	}

	args := amqp.Table{"x-dead-letter-exchange": dlx}
	for _, b := range d.bindings() {
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, args); err != nil {
			return fmt.Errorf("declare queue %s: %w", b.queue, err)
		}
		if err := ch.QueueBind(b.queue, b.pattern, d.cfg.TelemetryExchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", b.queue, err)
		}
		log.Info().Str("queue", b.queue).Str("pattern", b.pattern).Msg("telemetry queue ready")
	}
	return nil
}

// StartConsuming attaches one consumer per telemetry queue with the
// configured prefetch and runs until ctx is cancelled. In-flight messages
// are left unacknowledged at shutdown and redelivered to the next consumer.
func (d *Dispatcher) StartConsuming(ctx context.Context) error {
	ch, err := d.mgr.Channel("dispatcher")
	if err != nil {
		return err
	}
	if err := ch.Qos(d.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set dispatcher prefetch: %w", err)
	}
	for _, b := range d.bindings() {
		tag := fmt.Sprintf("%s-%s", b.kind, uuid.NewString())
		deliveries, err := ch.Consume(b.queue, tag, false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("consume %s: %w", b.queue, err)
		}
		go d.consumeLoop(ctx, b.kind, deliveries)
		log.Info().Str("queue", b.queue).Str("kind", b.kind.String()).Msg("consumer started")
	}
	return nil
}

func (d *Dispatcher) consumeLoop(ctx context.Context, kind MessageKind, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				log.Warn().Str("kind", kind.String()).Msg("delivery channel closed")
				return
			}
			d.settle(ctx, kind, delivery)
		}
	}
}

// settle runs the pipeline and acknowledges according to the outcome tag:
// Processed and Dropped remove the message, Retry requeues on first failure
// and dead-letters once the message has already been redelivered.
func (d *Dispatcher) settle(ctx context.Context, kind MessageKind, delivery amqp.Delivery) {
	out := d.process(ctx, kind, delivery.Body)
	d.metrics.RecordMessageConsumed(kind.String(), out.code.String())
	switch out.code {
	case outcomeProcessed:
		if err := delivery.Ack(false); err != nil {
			log.Error().Err(err).Str("kind", kind.String()).Msg("ack failed")
		}
	case outcomeDropped:
		log.Warn().Str("kind", kind.String()).Str("reason", out.reason).Msg("message dropped")
		if err := delivery.Ack(false); err != nil {
			log.Error().Err(err).Str("kind", kind.String()).Msg("ack failed")
		}
	case outcomeRetry:
		requeue := !delivery.Redelivered
		if !requeue {
			log.Error().Str("kind", kind.String()).Str("reason", out.reason).Msg("redelivery failed again, dead-lettering")
		} else {
			log.Warn().Str("kind", kind.String()).Str("reason", out.reason).Msg("handler failed, requeueing")
		}
		if err := delivery.Nack(false, requeue); err != nil {
			log.Error().Err(err).Str("kind", kind.String()).Msg("nack failed")
		}
	}
}

// process decodes, validates and dispatches one message body, returning
// the tagged outcome. Malformed or incomplete payloads are dropped so they
// can never be redelivered indefinitely.
func (d *Dispatcher) process(ctx context.Context, kind MessageKind, body []byte) Outcome {
	switch kind {
	case KindDetection:
		var msg Detection
		if err := json.Unmarshal(body, &msg); err != nil {
			return Dropped("malformed payload: " + err.Error())
		}
		if err := msg.Validate(); err != nil {
			return Dropped(err.Error())
		}
		if d.handlers.Detection == nil {
			return Dropped("no detection handler registered")
		}
		if err := d.handlers.Detection(ctx, &msg); err != nil {
			return Retry(err.Error())
		}
	case KindTracking:
		var msg Tracking
		if err := json.Unmarshal(body, &msg); err != nil {
			return Dropped("malformed payload: " + err.Error())
		}
		if err := msg.Validate(); err != nil {
			return Dropped(err.Error())
		}
		if d.handlers.Tracking == nil {
			return Dropped("no tracking handler registered")
		}
		if err := d.handlers.Tracking(ctx, &msg); err != nil {
			return Retry(err.Error())
		}
	case KindFace:
		var msg Face
		if err := json.Unmarshal(body, &msg); err != nil {
			return Dropped("malformed payload: " + err.Error())
		}
		if err := msg.Validate(); err != nil {
			return Dropped(err.Error())
		}
		if d.handlers.Face == nil {
			return Dropped("no face handler registered")
		}
		if err := d.handlers.Face(ctx, &msg); err != nil {
			return Retry(err.Error())
		}
	case KindCameraEvent:
		var msg CameraEvent
		if err := json.Unmarshal(body, &msg); err != nil {
			return Dropped("malformed payload: " + err.Error())
		}
		if err := msg.Validate(); err != nil {
			return Dropped(err.Error())
		}
		if d.handlers.CameraEvent == nil {
			return Dropped("no camera event handler registered")
		}
		if err := d.handlers.CameraEvent(ctx, &msg); err != nil {
			return Retry(err.Error())
		}
	default:
		return Dropped("unknown message kind")
	}
	return Processed()
}
