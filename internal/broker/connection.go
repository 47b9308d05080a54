package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/thanvanhai/smart-camera-backend/config"
	"github.com/thanvanhai/smart-camera-backend/pkg/metrics"
)

// State tracks the connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Manager owns the process-wide broker connection. Every other component
// borrows a channel through Channel or OpenChannel and never closes or
// mutates the connection itself. One channel per logical role keeps
// prefetch on one role from starving another.
type Manager struct {
	url         string
	prefetch    int
	baseDelay   time.Duration
	maxAttempts int

	dial  Dialer
	sleep func(ctx context.Context, d time.Duration) error

	metrics metrics.Collector

	mu       sync.Mutex
	conn     Connection
	channels map[string]Channel
	state    State
	attempts int
}

func NewManager(cfg *config.Config, collector metrics.Collector) *Manager {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Manager{
		url:         cfg.AmqpURL,
		prefetch:    cfg.Prefetch,
		baseDelay:   cfg.ReconnectBaseDelay,
		maxAttempts: cfg.ReconnectAttempts,
		dial:        DialAMQP,
		sleep:       sleepCtx,
		metrics:     collector,
		channels:    make(map[string]Channel),
		state:       StateDisconnected,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Connect opens the connection and the primary channel with the consumer
// prefetch bound applied. Calling it while already connected is a no-op.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectLocked(ctx)
}

func (m *Manager) connectLocked(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.state == StateConnected && m.conn != nil && !m.conn.IsClosed() {
		return nil
	}
	m.state = StateConnecting
	conn, err := m.dial(m.url)
	if err != nil {
		m.state = StateDisconnected
		return fmt.Errorf("broker dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		m.state = StateDisconnected
		return fmt.Errorf("open primary channel: %w", err)
	}
	if err := ch.Qos(m.prefetch, 0, false); err != nil {
		_ = conn.Close()
		m.state = StateDisconnected
		return fmt.Errorf("set prefetch: %w", err)
	}
	m.conn = conn
	m.channels = map[string]Channel{"primary": ch}
	m.state = StateConnected
	m.attempts = 0
	log.Info().Int("prefetch", m.prefetch).Msg("connected to broker")
	return nil
}

// Reconnect closes any half-open state, waits baseDelay*attempt and dials
// again. It fails permanently with ErrReconnectExhausted once maxAttempts
// cumulative attempts have been made since the last successful connect;
// the counter resets on any successful connect.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.attempts >= m.maxAttempts {
		m.state = StateFailed
		m.mu.Unlock()
		return ErrReconnectExhausted
	}
	m.attempts++
	attempt := m.attempts
	m.closeLocked()
	m.state = StateReconnecting
	m.mu.Unlock()

	m.metrics.RecordReconnect()
	delay := m.baseDelay * time.Duration(attempt)
	log.Warn().Int("attempt", attempt).Dur("delay", delay).Msg("reconnecting to broker")
	if err := m.sleep(ctx, delay); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectLocked(ctx)
}

// Disconnect closes the connection and clears all cached channels.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
	m.state = StateDisconnected
	log.Info().Msg("broker connection closed")
}

func (m *Manager) closeLocked() {
	for role, ch := range m.channels {
		_ = ch.Close()
		delete(m.channels, role)
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
}

// Channel returns the cached channel for a logical role, opening it on
// first use. The channel stays owned by the Manager. A cached channel the
// broker has closed, for instance after a failed passive operation, is
// replaced instead of handed out dead.
func (m *Manager) Channel(role string) (Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil || m.conn.IsClosed() {
		return nil, ErrNotConnected
	}
	if ch, ok := m.channels[role]; ok {
		if !ch.IsClosed() {
			return ch, nil
		}
		delete(m.channels, role)
		log.Warn().Str("role", role).Msg("replacing closed channel")
	}
	ch, err := m.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open %s channel: %w", role, err)
	}
	m.channels[role] = ch
	return ch, nil
}

// OpenChannel opens an uncached channel. The caller owns it and must
// close it when done; per-stream subscriptions use this so cancelling one
// stream cannot disturb another.
func (m *Manager) OpenChannel() (Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil || m.conn.IsClosed() {
		return nil, ErrNotConnected
	}
	return m.conn.Channel()
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// HealthCheck reports whether the connection is currently open.
func (m *Manager) HealthCheck() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected && m.conn != nil && !m.conn.IsClosed()
}

// Probe declares and deletes a throwaway exclusive queue as a liveness
// check that exercises the full request/response path.
func (m *Manager) Probe() bool {
	ch, err := m.OpenChannel()
	if err != nil {
		return false
	}
	defer ch.Close()
	name := "healthcheck." + uuid.NewString()
	if _, err := ch.QueueDeclare(name, false, true, true, false, nil); err != nil {
		return false
	}
	_, err = ch.QueueDelete(name, false, false, false)
	return err == nil
}

// Watch re-establishes the connection whenever the broker drops it. It
// runs until ctx is cancelled, the connection is closed locally, or the
// reconnect budget is exhausted.
func (m *Manager) Watch(ctx context.Context) {
	for {
		m.mu.Lock()
		conn := m.conn
		m.mu.Unlock()
		if conn == nil {
			return
		}
		closed := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-ctx.Done():
			return
		case amqpErr := <-closed:
			if amqpErr == nil {
				// local Disconnect, nothing to recover
				return
			}
			log.Warn().Err(amqpErr).Msg("broker connection lost")
			for {
				err := m.Reconnect(ctx)
				if err == nil {
					break
				}
				if errors.Is(err, ErrReconnectExhausted) || ctx.Err() != nil {
					log.Error().Err(err).Msg("giving up on broker reconnection")
					return
				}
				log.Warn().Err(err).Msg("reconnect attempt failed")
			}
		}
	}
}
