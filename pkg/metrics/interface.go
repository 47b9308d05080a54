package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector is the interface for gateway metrics collection.
// This interface allows for easy mocking in tests.
type Collector interface {
	// Publisher metrics
	RecordEventPublished(action, outcome string)

	// Dispatcher metrics
	RecordMessageConsumed(kind, outcome string)

	// Connection metrics
	RecordReconnect()

	// Streaming metrics
	RecordStreamOpened(cameraID string)
	RecordStreamClosed(cameraID string)
	RecordFrameStreamed(cameraID string)
	RecordFrameSkipped(cameraID string)

	// Registry exposes the underlying prometheus registry for the
	// scrape endpoint; nil when collection is disabled.
	Registry() *prometheus.Registry
	IsEnabled() bool
}

// Ensure both implementations satisfy Collector
var (
	_ Collector = (*PrometheusCollector)(nil)
	_ Collector = Nop{}
)
