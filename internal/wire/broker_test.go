package wire

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rdsync/internal/lifetime"
	"github.com/roach88/rdsync/internal/rderr"
	"github.com/roach88/rdsync/internal/rdid"
	"github.com/roach88/rdsync/internal/scheduler"
)

type recordingTap struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingTap) Sent(endpoint string, _ rdid.ID, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, endpoint+" > "+string(payload))
}

func (r *recordingTap) Received(endpoint string, _ rdid.ID, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, endpoint+" < "+string(payload))
}

func newPair(t *testing.T, opts ...BrokerOption) (*Broker, *Broker) {
	t.Helper()
	a := NewBroker("server", scheduler.NewImmediate("server"), opts...)
	b := NewBroker("client", scheduler.NewImmediate("client"), opts...)
	Connect(a, b)
	return a, b
}

func collect(got *[]string) Handler {
	return func(p []byte) error {
		*got = append(*got, string(p))
		return nil
	}
}

func TestBroker_DeliversToAdvisedHandler(t *testing.T) {
	a, b := newPair(t)
	lt := lifetime.New()
	defer lt.Terminate()

	var got []string
	require.NoError(t, b.Advise(lt, 5, collect(&got)))

	a.Send(5, []byte("one"))
	a.Send(5, []byte("two"))

	assert.Equal(t, []string{"one", "two"}, got)
	assert.Equal(t, uint64(2), a.Sent())
	assert.Equal(t, uint64(2), b.Received())
}

func TestBroker_BuffersUntilAdvised(t *testing.T) {
	a, b := newPair(t)
	lt := lifetime.New()
	defer lt.Terminate()

	a.Send(5, []byte("early-1"))
	a.Send(6, []byte("other"))
	a.Send(5, []byte("early-2"))
	assert.Equal(t, 3, b.Buffered())

	var got []string
	require.NoError(t, b.Advise(lt, 5, collect(&got)))
	assert.Equal(t, []string{"early-1", "early-2"}, got)
	assert.Equal(t, 1, b.Buffered())

	a.Send(5, []byte("live"))
	assert.Equal(t, []string{"early-1", "early-2", "live"}, got)
}

func TestBroker_OutboxFlushedOnAttach(t *testing.T) {
	a := NewBroker("server", scheduler.NewImmediate("server"))
	b := NewBroker("client", scheduler.NewImmediate("client"))
	lt := lifetime.New()
	defer lt.Terminate()

	var got []string
	require.NoError(t, b.Advise(lt, 1, collect(&got)))

	a.Send(1, []byte("before"))
	assert.Empty(t, got)

	Connect(a, b)
	a.Send(1, []byte("after"))
	assert.Equal(t, []string{"before", "after"}, got)
}

func TestBroker_DuplicateAdvise(t *testing.T) {
	_, b := newPair(t)
	lt := lifetime.New()

	require.NoError(t, b.Advise(lt, 5, func([]byte) error { return nil }))
	err := b.Advise(lt, 5, func([]byte) error { return nil })
	assert.ErrorIs(t, err, rderr.ErrAlreadyBound)

	// Terminating frees the id.
	lt.Terminate()
	lt2 := lifetime.New()
	defer lt2.Terminate()
	assert.NoError(t, b.Advise(lt2, 5, func([]byte) error { return nil }))
}

func TestBroker_AdviseNullID(t *testing.T) {
	_, b := newPair(t)
	err := b.Advise(lifetime.Eternal(), rdid.Null, func([]byte) error { return nil })
	assert.ErrorIs(t, err, rderr.ErrInvalidArgument)
}

func TestBroker_HandlerAfterTerminateBuffers(t *testing.T) {
	a, b := newPair(t)
	lt := lifetime.New()

	var got []string
	require.NoError(t, b.Advise(lt, 5, collect(&got)))
	lt.Terminate()

	a.Send(5, []byte("late"))
	assert.Empty(t, got)
	assert.Equal(t, 1, b.Buffered())
}

func TestBroker_HandlerErrors(t *testing.T) {
	var reported []error
	a := NewBroker("server", scheduler.NewImmediate("server"))
	b := NewBroker("client", scheduler.NewImmediate("client"),
		WithErrorHandler(func(_ rdid.ID, err error) { reported = append(reported, err) }))
	Connect(a, b)

	boom := errors.New("boom")
	require.NoError(t, b.Advise(lifetime.Eternal(), 3, func([]byte) error { return boom }))

	a.Send(3, []byte("x"))
	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], boom)
}

func TestBroker_Taps(t *testing.T) {
	tap := &recordingTap{}
	a, b := newPair(t, WithTap(tap))
	require.NoError(t, b.Advise(lifetime.Eternal(), 1, func([]byte) error { return nil }))

	a.Send(1, []byte("hi"))

	assert.Equal(t, []string{"server > hi", "client < hi"}, tap.events)
}
