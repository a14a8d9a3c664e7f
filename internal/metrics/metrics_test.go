package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rdsync/internal/lifetime"
	"github.com/roach88/rdsync/internal/scheduler"
	"github.com/roach88/rdsync/internal/wire"
)

func TestWireMetrics_CountsTraffic(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWireMetrics(reg)

	server := wire.NewBroker("server", scheduler.NewImmediate("server"), wire.WithTap(m))
	client := wire.NewBroker("client", scheduler.NewImmediate("client"), wire.WithTap(m))
	wire.Connect(server, client)
	require.NoError(t, client.Advise(lifetime.Eternal(), 1, func([]byte) error { return nil }))

	server.Send(1, []byte("hello"))
	server.Send(1, []byte("hi"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Messages.WithLabelValues("server", "sent")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Messages.WithLabelValues("client", "received")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.Bytes.WithLabelValues("server", "sent")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Messages.WithLabelValues("client", "sent")))

	assert.Equal(t, 2, testutil.CollectAndCount(m.PayloadSize))
}

func TestWireMetrics_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewWireMetrics(reg)
	assert.Panics(t, func() { NewWireMetrics(reg) })
}
