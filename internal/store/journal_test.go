package store

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rdsync/internal/lifetime"
	"github.com/roach88/rdsync/internal/rdid"
	"github.com/roach88/rdsync/internal/scheduler"
	"github.com/roach88/rdsync/internal/testutil"
	"github.com/roach88/rdsync/internal/wire"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// journaledPair wires two brokers through a recorder.
func journaledPair(t *testing.T, s *Store) (*wire.Broker, *wire.Broker, *Recorder) {
	t.Helper()
	ctx := context.Background()
	rec := NewRecorder(s, testutil.NewDeterministicClock(), discard())
	require.NoError(t, rec.Register(ctx, "server", testutil.SessionID(1), rdid.KindServer))
	require.NoError(t, rec.Register(ctx, "client", testutil.SessionID(2), rdid.KindClient))

	server := wire.NewBroker("server", scheduler.NewImmediate("server"), wire.WithTap(rec))
	client := wire.NewBroker("client", scheduler.NewImmediate("client"), wire.WithTap(rec))
	wire.Connect(server, client)

	for _, b := range []*wire.Broker{server, client} {
		require.NoError(t, b.Advise(lifetime.Eternal(), 10, func([]byte) error { return nil }))
		require.NoError(t, b.Advise(lifetime.Eternal(), 20, func([]byte) error { return nil }))
	}
	return server, client, rec
}

func TestRecorder_JournalsBothDirections(t *testing.T) {
	s := createTestStore(t)
	server, client, _ := journaledPair(t, s)
	ctx := context.Background()

	server.Send(10, []byte("a"))
	client.Send(20, []byte("b"))
	server.Send(10, []byte("c"))

	sessions, err := s.ReadSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "server", sessions[0].Endpoint)
	assert.Equal(t, testutil.SessionID(1).String(), sessions[0].ID)
	assert.Equal(t, "client", sessions[1].Kind)

	msgs, err := s.ReadMessages(ctx, sessions[0].ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, DirectionSent, msgs[0].Direction)
	assert.Equal(t, DirectionReceived, msgs[1].Direction)
	assert.Equal(t, []byte("b"), msgs[1].Payload)
	// Sessions took seq 1 and 2.
	assert.Equal(t, int64(3), msgs[0].Seq)

	stream, err := s.ReadEntityStream(ctx, sessions[1].ID, 10)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("c")}, Payloads(stream))
}

func TestRecorder_LargeEntityIDs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	rec := NewRecorder(s, NewLogicalClock(), discard())
	require.NoError(t, rec.Register(ctx, "server", testutil.SessionID(1), rdid.KindServer))

	id := rdid.ID(0xfedcba9876543210)
	rec.Sent("server", id, []byte("x"))
	rec.Sent("nobody", id, []byte("dropped"))

	msgs, err := s.ReadMessages(ctx, testutil.SessionID(1).String())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].EntityID)
}

func TestVerify_Consistent(t *testing.T) {
	s := createTestStore(t)
	server, client, _ := journaledPair(t, s)

	server.Send(10, []byte("a"))
	client.Send(10, []byte("b"))
	client.Send(20, []byte("c"))

	v, err := s.Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, v.OK(), "mismatches: %v", v.Mismatches)
	assert.Equal(t, 2, v.Entities)
	assert.Equal(t, 6, v.Messages)
}

func TestVerify_DetectsDivergence(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	server, _, _ := journaledPair(t, s)

	server.Send(10, []byte("a"))

	// A message the client never saw, and one the server never sent.
	require.NoError(t, s.WriteMessage(ctx, Message{Seq: 100, SessionID: testutil.SessionID(1).String(), Direction: DirectionSent, EntityID: 20, Payload: []byte("lost")}))
	require.NoError(t, s.WriteMessage(ctx, Message{Seq: 101, SessionID: testutil.SessionID(2).String(), Direction: DirectionReceived, EntityID: 10, Payload: []byte("ghost")}))

	v, err := s.Verify(ctx)
	require.NoError(t, err)
	require.Len(t, v.Mismatches, 2)
	assert.Equal(t, Mismatch{Entity: 10, From: "server", To: "client", Index: 1, Reason: "received but never sent"}, v.Mismatches[0])
	assert.Equal(t, Mismatch{Entity: 20, From: "server", To: "client", Index: 0, Reason: "sent but not received"}, v.Mismatches[1])
	assert.Contains(t, v.Mismatches[1].String(), "sent but not received")
}

func TestVerify_NeedsTwoSessions(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Verify(context.Background())
	assert.Error(t, err)
}
