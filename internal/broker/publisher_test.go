package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPublisherHarness connects a manager whose every channel is the one
// scripted fake, so publish outcomes survive a reconnect.
func newPublisherHarness(t *testing.T, publishErrs []error) (*EventPublisher, *fakeChannel, *int, *[]time.Duration) {
	t.Helper()
	ch := &fakeChannel{publishErrs: publishErrs}
	dials := 0
	m, sleeps := newTestManager(func(url string) (Connection, error) {
		dials++
		return &fakeConn{shared: ch}, nil
	})
	require.NoError(t, m.Connect(context.Background()))
	return NewEventPublisher(m, testConfig(), nil), ch, &dials, sleeps
}

func TestPublishCameraEvent(t *testing.T) {
	p, ch, dials, sleeps := newPublisherHarness(t, nil)

	ok := p.PublishCameraEvent(context.Background(), ActionCreated, "cam-1", "rtsp://cam-1/stream")
	require.True(t, ok)

	// no reconnect on the happy path
	assert.Equal(t, 1, *dials)
	assert.Empty(t, *sleeps)

	require.Len(t, ch.exchanges, 1)
	assert.Equal(t, declaredExchange{name: "camera.events", kind: "fanout", durable: true}, ch.exchanges[0])

	require.Len(t, ch.publishes, 1)
	pub := ch.publishes[0]
	assert.Equal(t, "camera.events", pub.exchange)
	assert.Equal(t, "", pub.key)
	assert.Equal(t, "application/json", pub.msg.ContentType)
	assert.Equal(t, uint8(amqp.Persistent), pub.msg.DeliveryMode)
	assert.False(t, pub.msg.Timestamp.IsZero())

	var event CameraEvent
	require.NoError(t, json.Unmarshal(pub.msg.Body, &event))
	assert.Equal(t, ActionCreated, event.Action)
	assert.Equal(t, "cam-1", event.CameraID)
	assert.Equal(t, "rtsp://cam-1/stream", event.CameraURL)
}

func TestPublishCameraEventRetriesOnceAfterReconnect(t *testing.T) {
	p, ch, dials, sleeps := newPublisherHarness(t, []error{errors.New("channel closed")})

	ok := p.PublishCameraEvent(context.Background(), ActionRemoved, "cam-2", "")
	require.True(t, ok)

	// failed publish, one reconnect, one successful retry
	assert.Equal(t, 2, ch.publishCount())
	assert.Equal(t, 2, *dials)
	require.Len(t, *sleeps, 1)
}

func TestPublishCameraEventGivesUpAfterRetry(t *testing.T) {
	p, ch, dials, _ := newPublisherHarness(t, []error{
		errors.New("channel closed"),
		errors.New("channel closed"),
	})

	ok := p.PublishCameraEvent(context.Background(), ActionCreated, "cam-3", "rtsp://cam-3/stream")
	require.False(t, ok)
	assert.Equal(t, 2, ch.publishCount())
	assert.Equal(t, 2, *dials)
}

func TestPublishCameraEventFailsWhenReconnectExhausted(t *testing.T) {
	p, ch, dials, sleeps := newPublisherHarness(t, []error{errors.New("channel closed")})
	p.mgr.mu.Lock()
	p.mgr.attempts = p.mgr.maxAttempts
	p.mgr.mu.Unlock()

	ok := p.PublishCameraEvent(context.Background(), ActionCreated, "cam-4", "")
	require.False(t, ok)

	// no retry without a successful reconnect
	assert.Equal(t, 1, ch.publishCount())
	assert.Equal(t, 1, *dials)
	assert.Empty(t, *sleeps)
}

func TestPublishAlert(t *testing.T) {
	p, ch, _, _ := newPublisherHarness(t, nil)

	alert := &Alert{Type: "intrusion", Severity: "critical", Title: "Motion in restricted zone", CameraID: "cam-1"}
	require.True(t, p.PublishAlert(context.Background(), alert))
	assert.NotEmpty(t, alert.ID)
	assert.False(t, alert.Timestamp.IsZero())

	require.Len(t, ch.exchanges, 1)
	assert.Equal(t, declaredExchange{name: "camera.alerts", kind: "topic", durable: true}, ch.exchanges[0])

	require.Len(t, ch.publishes, 1)
	assert.Equal(t, "alert.intrusion", ch.publishes[0].key)

	var decoded Alert
	require.NoError(t, json.Unmarshal(ch.publishes[0].msg.Body, &decoded))
	assert.Equal(t, alert.ID, decoded.ID)
	assert.Equal(t, "critical", decoded.Severity)
}
