package metrics

import "github.com/prometheus/client_golang/prometheus"

// Nop discards all metrics. Used when collection is disabled and in tests.
type Nop struct{}

func (Nop) RecordEventPublished(action, outcome string) {}
func (Nop) RecordMessageConsumed(kind, outcome string)  {}
func (Nop) RecordReconnect()                            {}
func (Nop) RecordStreamOpened(cameraID string)          {}
func (Nop) RecordStreamClosed(cameraID string)          {}
func (Nop) RecordFrameStreamed(cameraID string)         {}
func (Nop) RecordFrameSkipped(cameraID string)          {}
func (Nop) Registry() *prometheus.Registry              { return nil }
func (Nop) IsEnabled() bool                             { return false }
