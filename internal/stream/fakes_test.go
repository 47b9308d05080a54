package stream

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/thanvanhai/smart-camera-backend/config"
	"github.com/thanvanhai/smart-camera-backend/internal/broker"
)

func testConfig() *config.Config {
	return &config.Config{
		FrameQueueMaxLen: 5,
		FrameTTL:         2 * time.Second,
		InfoTimeout:      50 * time.Millisecond,
	}
}

type declaredQueue struct {
	name       string
	durable    bool
	autoDelete bool
	args       amqp.Table
}

type fakeChannel struct {
	mu sync.Mutex

	queues  []declaredQueue
	cancels []string
	tags    []string
	closed  bool

	// gets is consumed one entry per Get call; empty means no message.
	gets       [][]byte
	getErr     error
	consumeErr error
	deliveries chan amqp.Delivery

	// messages is the queue depth QueueDeclare reports.
	messages   int
	declareErr error
}

func (c *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error { return nil }

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.declareErr != nil {
		return amqp.Queue{}, c.declareErr
	}
	c.queues = append(c.queues, declaredQueue{name: name, durable: durable, autoDelete: autoDelete, args: args})
	return amqp.Queue{Name: name, Messages: c.messages}, nil
}

func (c *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	return nil
}

func (c *fakeChannel) QueueDelete(name string, ifUnused, ifEmpty, noWait bool) (int, error) {
	return 0, nil
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return nil
}

func (c *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.consumeErr != nil {
		return nil, c.consumeErr
	}
	c.tags = append(c.tags, consumer)
	if c.deliveries == nil {
		c.deliveries = make(chan amqp.Delivery, 16)
	}
	return c.deliveries, nil
}

func (c *fakeChannel) Get(queue string, autoAck bool) (amqp.Delivery, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return amqp.Delivery{}, false, c.getErr
	}
	if len(c.gets) == 0 {
		return amqp.Delivery{}, false, nil
	}
	body := c.gets[0]
	c.gets = c.gets[1:]
	return amqp.Delivery{Body: body}, true, nil
}

func (c *fakeChannel) Cancel(consumer string, noWait bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancels = append(c.cancels, consumer)
	return nil
}

func (c *fakeChannel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) cancelled() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.cancels...)
}

// fakeSource satisfies ChannelSource with one shared channel for cached
// roles and a fresh channel per OpenChannel call.
type fakeSource struct {
	mu             sync.Mutex
	shared         *fakeChannel
	opened         []*fakeChannel
	err            error
	openConsumeErr error
}

func (s *fakeSource) Channel(role string) (broker.Channel, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.shared, nil
}

func (s *fakeSource) OpenChannel() (broker.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	ch := &fakeChannel{consumeErr: s.openConsumeErr}
	s.opened = append(s.opened, ch)
	return ch, nil
}

type fakeAcker struct {
	mu   sync.Mutex
	acks int
}

func (a *fakeAcker) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *fakeAcker) Nack(tag uint64, multiple, requeue bool) error { return nil }
func (a *fakeAcker) Reject(tag uint64, requeue bool) error         { return nil }

func (a *fakeAcker) ackCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acks
}
