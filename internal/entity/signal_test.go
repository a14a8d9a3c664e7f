package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rdsync/internal/lifetime"
	"github.com/roach88/rdsync/internal/protocol"
	"github.com/roach88/rdsync/internal/rderr"
	"github.com/roach88/rdsync/internal/testutil"
)

func TestSignal_FireUnbound(t *testing.T) {
	s := NewSignal[string]()
	assert.ErrorIs(t, s.Fire("x"), rderr.ErrNotBound)
}

func TestSignal_DeliversToBothSides(t *testing.T) {
	p := testutil.NewPair(t)
	server, err := protocol.WithIDFromName(NewSignal[int](), "ticks")
	require.NoError(t, err)
	client, err := protocol.WithIDFromName(NewSignal[int](), "ticks")
	require.NoError(t, err)

	require.NoError(t, p.Server.BindStatic(server, "ticks"))
	require.NoError(t, p.Client.BindStatic(client, "ticks"))

	var serverLog, clientLog []int
	server.Advise(lifetime.Eternal(), func(v int) { serverLog = append(serverLog, v) })
	client.Advise(lifetime.Eternal(), func(v int) { clientLog = append(clientLog, v) })

	require.NoError(t, server.Fire(1))
	require.NoError(t, client.Fire(2))
	require.NoError(t, server.Fire(1))

	assert.Equal(t, []int{1, 2, 1}, serverLog)
	assert.Equal(t, []int{1, 2, 1}, clientLog)
	assert.Equal(t, uint64(2), p.ServerWire.Sent())
	assert.Equal(t, uint64(1), p.ClientWire.Sent())
}
