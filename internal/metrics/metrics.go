// Package metrics exposes wire traffic as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/rdsync/internal/rdid"
)

const (
	directionSent     = "sent"
	directionReceived = "received"
)

// WireMetrics counts messages and bytes per endpoint and direction.
// It implements wire.Tap.
type WireMetrics struct {
	Messages    *prometheus.CounterVec
	Bytes       *prometheus.CounterVec
	PayloadSize *prometheus.HistogramVec
}

// NewWireMetrics creates the metrics and registers them with reg.
func NewWireMetrics(reg prometheus.Registerer) *WireMetrics {
	factory := promauto.With(reg)
	return &WireMetrics{
		Messages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rdsync_wire_messages_total",
			Help: "Total number of entity messages by endpoint and direction",
		}, []string{"endpoint", "direction"}),
		Bytes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rdsync_wire_payload_bytes_total",
			Help: "Total payload bytes by endpoint and direction",
		}, []string{"endpoint", "direction"}),
		PayloadSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rdsync_wire_payload_size_bytes",
			Help:    "Size of individual entity message payloads",
			Buckets: prometheus.ExponentialBuckets(8, 4, 8),
		}, []string{"direction"}),
	}
}

// Sent records an outbound message.
func (m *WireMetrics) Sent(endpoint string, _ rdid.ID, payload []byte) {
	m.observe(endpoint, directionSent, payload)
}

// Received records an inbound message.
func (m *WireMetrics) Received(endpoint string, _ rdid.ID, payload []byte) {
	m.observe(endpoint, directionReceived, payload)
}

func (m *WireMetrics) observe(endpoint, direction string, payload []byte) {
	m.Messages.WithLabelValues(endpoint, direction).Inc()
	m.Bytes.WithLabelValues(endpoint, direction).Add(float64(len(payload)))
	m.PayloadSize.WithLabelValues(direction).Observe(float64(len(payload)))
}
