package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/thanvanhai/smart-camera-backend/config"
	"github.com/thanvanhai/smart-camera-backend/internal/broker"
	"github.com/thanvanhai/smart-camera-backend/pkg/metrics"
)

// Status is a camera streaming status value. Absence of stream metadata is
// a normal inactive state, never an error.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// StreamInfo is the point-in-time metadata for a camera stream.
type StreamInfo struct {
	CameraID   string  `json:"camera_id"`
	Status     Status  `json:"status"`
	FPS        float64 `json:"fps,omitempty"`
	Resolution string  `json:"resolution,omitempty"`
	Codec      string  `json:"codec,omitempty"`
	Bitrate    int     `json:"bitrate,omitempty"`
}

type infoPayload struct {
	FPS     float64 `json:"fps"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	Codec   string  `json:"codec"`
	Bitrate int     `json:"bitrate"`
}

// InfoQueueName is the transient metadata queue for a camera.
func InfoQueueName(cameraID string) string {
	return "stream.info." + cameraID
}

// FrameQueueName is the bounded, lossy frame queue for a camera.
func FrameQueueName(cameraID string) string {
	return "stream.frames." + cameraID
}

// ChannelSource hands out broker channels. Satisfied by *broker.Manager.
type ChannelSource interface {
	Channel(role string) (broker.Channel, error)
	OpenChannel() (broker.Channel, error)
}

// Gateway serves live per-camera video as a bounded, lossy frame stream.
// Frame queues are populated out-of-band by the camera control agent after
// it receives a created event; if no producer exists the queues are simply
// empty and the camera reads as inactive.
type Gateway struct {
	mgr     ChannelSource
	cfg     *config.Config
	metrics metrics.Collector

	mu       sync.Mutex
	declared map[string]struct{}
}

func NewGateway(mgr ChannelSource, cfg *config.Config, collector metrics.Collector) *Gateway {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Gateway{
		mgr:      mgr,
		cfg:      cfg,
		metrics:  collector,
		declared: make(map[string]struct{}),
	}
}

// EnsureChannel declares the per-camera info and frame queues. The
// declaration happens at most once per camera per process lifetime; the
// frame queue is bounded with drop-oldest overflow so latency and memory
// stay bounded at the cost of frame loss under load.
func (g *Gateway) EnsureChannel(cameraID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.declared[cameraID]; ok {
		return nil
	}
	ch, err := g.mgr.Channel("stream")
	if err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(InfoQueueName(cameraID), false, true, false, false, nil); err != nil {
		return fmt.Errorf("declare info queue: %w", err)
	}
	if _, err := g.declareFrameQueue(ch, cameraID); err != nil {
		return fmt.Errorf("declare frame queue: %w", err)
	}
	g.declared[cameraID] = struct{}{}
	log.Info().Str("camera_id", cameraID).Msg("stream queues declared")
	return nil
}

// declareFrameQueue is the idempotent declaration of a camera's bounded
// frame queue. The queue is auto-deleted when its last subscriber detaches,
// so every path that touches it declares rather than assumes existence; a
// passive lookup on a missing queue would error and close the channel.
func (g *Gateway) declareFrameQueue(ch broker.Channel, cameraID string) (amqp.Queue, error) {
	args := amqp.Table{
		"x-max-length":  int32(g.cfg.FrameQueueMaxLen),
		"x-message-ttl": int32(g.cfg.FrameTTL.Milliseconds()),
		"x-overflow":    "drop-head",
	}
	return ch.QueueDeclare(FrameQueueName(cameraID), false, true, false, false, args)
}

// GetStreamInfo fetches at most one metadata message within the configured
// timeout. A missing or unparsable message means the camera is not
// currently streaming, which is a normal status, not an error.
func (g *Gateway) GetStreamInfo(ctx context.Context, cameraID string) *StreamInfo {
	inactive := &StreamInfo{CameraID: cameraID, Status: StatusInactive}
	if err := g.EnsureChannel(cameraID); err != nil {
		log.Warn().Err(err).Str("camera_id", cameraID).Msg("stream queue declaration failed")
		return inactive
	}
	ch, err := g.mgr.Channel("stream")
	if err != nil {
		return inactive
	}

	deadline := time.Now().Add(g.cfg.InfoTimeout)
	for {
		msg, ok, err := ch.Get(InfoQueueName(cameraID), true)
		if err != nil {
			return inactive
		}
		if ok {
			var payload infoPayload
			if err := json.Unmarshal(msg.Body, &payload); err != nil {
				log.Warn().Err(err).Str("camera_id", cameraID).Msg("unparsable stream info")
				return inactive
			}
			info := &StreamInfo{
				CameraID: cameraID,
				Status:   StatusActive,
				FPS:      payload.FPS,
				Codec:    payload.Codec,
				Bitrate:  payload.Bitrate,
			}
			if payload.Width > 0 && payload.Height > 0 {
				info.Resolution = fmt.Sprintf("%dx%d", payload.Width, payload.Height)
			}
			return info
		}
		if time.Now().After(deadline) {
			return inactive
		}
		select {
		case <-ctx.Done():
			return inactive
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// StreamFrames returns an infinite sequence of validated frames for one
// camera. Each call starts a fresh subscription on its own channel;
// cancelling ctx stops the consumer and releases the subscription.
// Malformed frames are skipped without terminating the sequence.
func (g *Gateway) StreamFrames(ctx context.Context, cameraID string) (<-chan Frame, error) {
	if err := g.EnsureChannel(cameraID); err != nil {
		return nil, err
	}
	ch, err := g.mgr.OpenChannel()
	if err != nil {
		return nil, err
	}
	if _, err := g.declareFrameQueue(ch, cameraID); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare frame queue: %w", err)
	}
	tag := fmt.Sprintf("stream-%s-%s", cameraID, uuid.NewString())
	deliveries, err := ch.Consume(FrameQueueName(cameraID), tag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("subscribe to frame queue: %w", err)
	}

	out := make(chan Frame)
	go func() {
		defer close(out)
		defer ch.Close()
		g.metrics.RecordStreamOpened(cameraID)
		defer g.metrics.RecordStreamClosed(cameraID)
		for {
			select {
			case <-ctx.Done():
				_ = ch.Cancel(tag, false)
				log.Info().Str("camera_id", cameraID).Msg("frame stream cancelled")
				return
			case delivery, ok := <-deliveries:
				if !ok {
					return
				}
				data, err := decodeFrame(delivery.Body)
				// lossy path: consumed frames are gone either way
				_ = delivery.Ack(false)
				if err != nil {
					g.metrics.RecordFrameSkipped(cameraID)
					log.Debug().Err(err).Str("camera_id", cameraID).Msg("skipping invalid frame")
					continue
				}
				frame := Frame{CameraID: cameraID, Data: data, ReceivedAt: time.Now()}
				select {
				case out <- frame:
					g.metrics.RecordFrameStreamed(cameraID)
				case <-ctx.Done():
					_ = ch.Cancel(tag, false)
					return
				}
			}
		}
	}()
	return out, nil
}

// CheckActive reports whether the camera's frame queue currently holds at
// least one message, a proxy for a producer actively pushing frames. A
// missing queue is a normal idle state and reads as inactive.
func (g *Gateway) CheckActive(cameraID string) bool {
	ch, err := g.mgr.Channel("stream")
	if err != nil {
		return false
	}
	q, err := g.declareFrameQueue(ch, cameraID)
	if err != nil {
		return false
	}
	return q.Messages > 0
}
