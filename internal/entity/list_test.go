package entity

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rdsync/internal/lifetime"
	"github.com/roach88/rdsync/internal/rderr"
	"github.com/roach88/rdsync/internal/rdid"
	"github.com/roach88/rdsync/internal/testutil"
)

func TestList_Static(t *testing.T) {
	p := testutil.NewPair(t)

	serverList := staticList[string](t, 1)
	clientList := staticList[string](t, 1)

	var log []string
	clientList.Advise(lifetime.Eternal(), func(ev Event[string]) {
		log = append(log, ev.String())
	})

	assert.Equal(t, 0, serverList.Count())
	assert.Equal(t, 0, clientList.Count())

	require.NoError(t, serverList.Add("Server value 1"))
	require.NoError(t, serverList.AddAll("Server value 2", "Server value 3"))

	assert.Equal(t, 0, clientList.Count())
	require.NoError(t, p.Client.BindStatic(clientList, "top"))
	require.NoError(t, p.Server.BindStatic(serverList, "top"))

	assert.Equal(t, []string{"Server value 1", "Server value 2", "Server value 3"}, clientList.Entries())

	require.NoError(t, serverList.Add("Server value 4"))
	require.NoError(t, clientList.Set(3, "Client value 4"))

	assertEntry(t, clientList, 3, "Client value 4")
	assertEntry(t, serverList, 3, "Client value 4")

	require.NoError(t, clientList.Add("Client value 5"))
	require.NoError(t, serverList.Set(4, "Server value 5"))

	assertEntry(t, clientList, 4, "Server value 5")
	assertEntry(t, serverList, 4, "Server value 5")

	assert.Equal(t, []string{
		"Add 0:Server value 1",
		"Add 1:Server value 2",
		"Add 2:Server value 3",
		"Add 3:Server value 4",
		"Update 3:Client value 4",
		"Add 4:Client value 5",
		"Update 4:Server value 5",
	}, log)
	assert.Equal(t, serverList.Entries(), clientList.Entries())
	assert.Empty(t, p.Errors())
}

func TestList_Dynamic(t *testing.T) {
	p := testutil.NewPair(t)
	p.Register(t, dynamicEntityMarshaller())

	serverList := staticList[*dynamicEntity](t, 1)
	clientList := staticList[*dynamicEntity](t, 1)

	require.NoError(t, p.Client.BindStatic(clientList, "top"))
	require.NoError(t, p.Server.BindStatic(serverList, "top"))

	var log []string
	serverList.View(lifetime.Eternal(), func(lf *lifetime.Lifetime, k int, v *dynamicEntity) {
		lf.Bracket(
			func() { log = append(log, "start "+itoa(k)) },
			func() { log = append(log, "finish "+itoa(k)) },
		)
		v.foo.Advise(lf, func(foo *bool) { log = append(log, formatBool(foo)) })
	})

	require.NoError(t, clientList.Add(newDynamicEntity(nil)))
	first, err := clientList.Get(0)
	require.NoError(t, err)
	require.NoError(t, first.foo.Set(boolPtr(true)))
	require.NoError(t, first.foo.Set(boolPtr(true))) // no action

	require.NoError(t, clientList.Set(0, newDynamicEntity(boolPtr(true))))

	require.NoError(t, serverList.Add(newDynamicEntity(boolPtr(false))))

	require.NoError(t, clientList.RemoveAt(1))
	require.NoError(t, clientList.Add(newDynamicEntity(boolPtr(true))))

	require.NoError(t, clientList.Clear())

	assert.Equal(t, []string{
		"start 0", "null", "true",
		"finish 0", "start 0", "true",
		"start 1", "false",
		"finish 1", "start 1", "true",
		"finish 1", "finish 0",
	}, log)
	assert.Empty(t, p.Errors())

	// The replaced entity is unbound and rejects further use.
	assert.Equal(t, rdid.Null, first.RdID())
	assert.ErrorIs(t, first.foo.Set(boolPtr(false)), rderr.ErrUseAfterUnbind)
}

func TestList_PendingUntilBind(t *testing.T) {
	p := testutil.NewPair(t)
	serverList := staticList[string](t, 2)
	clientList := staticList[string](t, 2)

	require.NoError(t, serverList.AddAll("a", "b", "c"))
	require.NoError(t, serverList.RemoveAt(1))
	assert.Equal(t, 4, serverList.Pending())
	assert.Equal(t, uint64(0), p.ServerWire.Sent())

	require.NoError(t, p.Server.BindStatic(serverList, "top"))
	assert.Equal(t, 0, serverList.Pending())
	// The snapshot replaces the recorded operations.
	assert.Equal(t, uint64(2), p.ServerWire.Sent())

	// Arrived before the client bound: buffered, then applied at bind.
	assert.Equal(t, 2, p.ClientWire.Buffered())
	require.NoError(t, p.Client.BindStatic(clientList, "top"))
	assert.Equal(t, []string{"a", "c"}, clientList.Entries())
}

func TestList_RoundTrip(t *testing.T) {
	serverID, err := rdid.Static(4)
	require.NoError(t, err)
	tap := &sentTap{endpoint: "server", id: serverID}
	p := testutil.NewPair(t, testutil.WithTap(tap))

	serverList := staticList[int](t, 4)
	clientList := staticList[int](t, 4)

	require.NoError(t, serverList.AddAll(1, 2, 3))
	require.NoError(t, p.Server.BindStatic(serverList, "top"))
	require.NoError(t, p.Client.BindStatic(clientList, "top"))

	require.NoError(t, serverList.Add(4))
	require.NoError(t, serverList.RemoveAt(1))
	require.NoError(t, serverList.Set(0, 10))
	require.NoError(t, serverList.AddAll(5, 6))
	require.NoError(t, serverList.RemoveAt(3))
	require.NoError(t, serverList.Set(2, 40))

	assert.Equal(t, []int{10, 3, 40, 6}, serverList.Entries())
	assert.Equal(t, serverList.Entries(), clientList.Entries())

	replayed, err := Replay[int](p.Client.SerializationContext(), tap.Payloads())
	require.NoError(t, err)
	assert.Equal(t, serverList.Entries(), replayed)
}

func TestList_IndexOutOfRange(t *testing.T) {
	p := testutil.NewPair(t)
	l := staticList[string](t, 5)
	require.NoError(t, l.Add("only"))

	assert.ErrorIs(t, l.Set(1, "x"), rderr.ErrIndexOutOfRange)
	assert.ErrorIs(t, l.RemoveAt(-1), rderr.ErrIndexOutOfRange)
	_, err := l.Get(3)
	assert.ErrorIs(t, err, rderr.ErrIndexOutOfRange)
	assert.Equal(t, []string{"only"}, l.Entries())

	remote := staticList[string](t, 5)
	require.NoError(t, p.Server.BindStatic(l, "top"))
	require.NoError(t, p.Client.BindStatic(remote, "top"))

	payload, err := encodeOp(p.Server.SerializationContext(), Event[string]{Kind: OpUpdate, Index: 9, Value: "x"}, rdid.Null)
	require.NoError(t, err)
	p.ServerWire.Send(remote.RdID(), payload)

	errs := p.Errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], rderr.ErrIndexOutOfRange)
	assert.Equal(t, []string{"only"}, remote.Entries())
}

func TestList_UseAfterUnbind(t *testing.T) {
	p := testutil.NewPair(t)
	l := staticList[string](t, 6)
	lt := p.Lifetime.Nested()

	require.NoError(t, l.Bind(lt, p.Server, "scoped"))
	require.NoError(t, l.Add("a"))
	lt.Terminate()

	assert.ErrorIs(t, l.Add("b"), rderr.ErrUseAfterUnbind)
	assert.ErrorIs(t, l.Clear(), rderr.ErrUseAfterUnbind)
	assert.Equal(t, []string{"a"}, l.Entries())
}

func TestList_IdentifyTwice(t *testing.T) {
	l := staticList[string](t, 7)
	assert.ErrorIs(t, l.Identify(nil, 8), rderr.ErrAlreadyIdentified)
}

func TestList_EntryIDFallbackAfterShift(t *testing.T) {
	p := testutil.NewPair(t)
	p.Register(t, dynamicEntityMarshaller())

	serverList := staticList[*dynamicEntity](t, 8)
	clientList := staticList[*dynamicEntity](t, 8)
	require.NoError(t, p.Server.BindStatic(serverList, "top"))
	require.NoError(t, p.Client.BindStatic(clientList, "top"))

	require.NoError(t, serverList.AddAll(newDynamicEntity(nil), newDynamicEntity(nil), newDynamicEntity(nil)))
	require.NoError(t, serverList.RemoveAt(0))
	// Index 2 again; mix(list, "2") is still held by the entry now at 1.
	require.NoError(t, serverList.Add(newDynamicEntity(boolPtr(true))))

	listID := serverList.RdID()
	ids := make(map[rdid.ID]bool)
	for i, e := range serverList.Entries() {
		remote, err := clientList.Get(i)
		require.NoError(t, err)
		assert.Equal(t, e.RdID(), remote.RdID(), "entry %d", i)
		assert.False(t, ids[e.RdID()], "duplicate id at %d", i)
		ids[e.RdID()] = true
	}

	last, err := serverList.Get(2)
	require.NoError(t, err)
	assert.Equal(t, listID.Mix("#2"), last.RdID())
	assert.Equal(t, last.RdID().Mix("foo"), last.foo.RdID())

	// The property of the fallback entry is live on both sides.
	require.NoError(t, last.foo.Set(boolPtr(false)))
	remoteLast, err := clientList.Get(2)
	require.NoError(t, err)
	assert.Equal(t, "false", formatBool(remoteLast.foo.Value()))
	assert.Empty(t, p.Errors())
}

func TestList_RejectedEntryLeavesReplicasAligned(t *testing.T) {
	p := testutil.NewPair(t)
	p.Register(t, dynamicEntityMarshaller())

	serverList := staticList[*dynamicEntity](t, 9)
	clientList := staticList[*dynamicEntity](t, 9)
	require.NoError(t, p.Server.BindStatic(serverList, "top"))
	require.NoError(t, p.Client.BindStatic(clientList, "top"))

	e := newDynamicEntity(nil)
	require.NoError(t, clientList.Add(e))

	assert.ErrorIs(t, clientList.Add(e), rderr.ErrAlreadyBound)
	assert.ErrorIs(t, clientList.Set(0, e), rderr.ErrAlreadyBound)
	assert.True(t, e.IsBound())

	identified := newDynamicEntity(boolPtr(true))
	require.NoError(t, identified.Identify(nil, 99))
	assert.ErrorIs(t, clientList.Add(identified), rderr.ErrAlreadyIdentified)
	assert.ErrorIs(t, clientList.Set(0, identified), rderr.ErrAlreadyIdentified)

	assert.Equal(t, 1, clientList.Count())
	assert.Equal(t, 1, serverList.Count())
	got, err := clientList.Get(0)
	require.NoError(t, err)
	assert.Same(t, e, got)

	require.NoError(t, clientList.RemoveAt(0))
	assert.Equal(t, 0, clientList.Count())
	assert.Equal(t, 0, serverList.Count())
	assert.ErrorIs(t, clientList.Add(e), rderr.ErrUseAfterUnbind)
	assert.Equal(t, 0, clientList.Count())
	assert.Empty(t, p.Errors())
}

func TestList_DuplicateEntryBeforeBind(t *testing.T) {
	p := testutil.NewPair(t)
	p.Register(t, dynamicEntityMarshaller())

	serverList := staticList[*dynamicEntity](t, 10)
	clientList := staticList[*dynamicEntity](t, 10)

	e := newDynamicEntity(nil)
	require.NoError(t, serverList.Add(e))
	assert.ErrorIs(t, serverList.Add(e), rderr.ErrAlreadyBound)
	require.NoError(t, serverList.Set(0, e))
	require.NoError(t, serverList.Add(newDynamicEntity(boolPtr(false))))

	require.NoError(t, p.Client.BindStatic(clientList, "top"))
	require.NoError(t, p.Server.BindStatic(serverList, "top"))
	assert.Equal(t, 2, clientList.Count())
	assert.True(t, e.IsBound())

	// Entries keep the location they were bound with.
	second, err := serverList.Get(1)
	require.NoError(t, err)
	require.NoError(t, serverList.RemoveAt(0))
	assert.Equal(t, "top.[1]", second.Location())
	assert.Equal(t, 1, clientList.Count())
	assert.Empty(t, p.Errors())
}

func TestList_ViewEndsWithOuterLifetime(t *testing.T) {
	l := NewList[string]()
	require.NoError(t, l.AddAll("a", "b"))

	outer := lifetime.New()
	var log []string
	l.View(outer, func(lf *lifetime.Lifetime, k int, v string) {
		lf.Add(func() { log = append(log, "end "+v) })
	})

	outer.Terminate()
	assert.ElementsMatch(t, []string{"end a", "end b"}, log)

	// No longer observed.
	require.NoError(t, l.Add("c"))
	assert.Len(t, log, 2)
}

func assertEntry[T any](t *testing.T, l *List[T], i int, want T) {
	t.Helper()
	got, err := l.Get(i)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
