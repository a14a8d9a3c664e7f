package entity

import (
	"slices"
	"strconv"

	"github.com/roach88/rdsync/internal/lifetime"
	"github.com/roach88/rdsync/internal/protocol"
	"github.com/roach88/rdsync/internal/reactive"
	"github.com/roach88/rdsync/internal/rderr"
	"github.com/roach88/rdsync/internal/rdid"
)

// slot is the binding of one bindable entry. Slots belong to index
// positions, not to values.
type slot struct {
	lt *lifetime.Lifetime
	id rdid.ID
}

type listChange[T any] struct {
	ev     Event[T]
	id     rdid.ID
	remote bool
}

// List is a synchronized ordered collection.
//
// Entries that are themselves Bindable are identified as
// mix(list id, index) and bound under a lifetime private to their slot;
// replacing or removing the entry terminates that lifetime first. When the
// derived id is still held by another live entry, which happens once a
// removal has shifted later entries down, a side-specific dynamic id is
// used instead. The receiving side adopts whatever id the sender chose.
type List[T any] struct {
	protocol.Node

	entries []T
	slots   []slot
	pending []Event[T]
	changes reactive.Signal[listChange[T]]
}

// NewList creates an empty, unbound list.
func NewList[T any]() *List[T] {
	l := &List[T]{}
	l.OnInit(l.init)
	return l
}

// Count returns the number of entries.
func (l *List[T]) Count() int {
	return len(l.entries)
}

// Get returns the entry at index.
func (l *List[T]) Get(index int) (T, error) {
	var zero T
	if err := checkIndex(OpUpdate, index, len(l.entries), l.Location()); err != nil {
		return zero, err
	}
	return l.entries[index], nil
}

// Entries returns a copy of the entries.
func (l *List[T]) Entries() []T {
	return slices.Clone(l.entries)
}

// Pending returns the number of local operations recorded while unbound.
func (l *List[T]) Pending() int {
	return len(l.pending)
}

// Add appends v.
func (l *List[T]) Add(v T) error {
	return l.local(Event[T]{Kind: OpAdd, Index: len(l.entries), Value: v})
}

// AddAll appends values in order.
func (l *List[T]) AddAll(values ...T) error {
	for _, v := range values {
		if err := l.Add(v); err != nil {
			return err
		}
	}
	return nil
}

// Set replaces the entry at index.
func (l *List[T]) Set(index int, v T) error {
	return l.local(Event[T]{Kind: OpUpdate, Index: index, Value: v})
}

// RemoveAt removes the entry at index.
func (l *List[T]) RemoveAt(index int) error {
	return l.local(Event[T]{Kind: OpRemove, Index: index})
}

// Clear removes every entry, last index first.
func (l *List[T]) Clear() error {
	for i := len(l.entries) - 1; i >= 0; i-- {
		if err := l.RemoveAt(i); err != nil {
			return err
		}
	}
	return nil
}

// Advise calls fn with an Add event for every current entry, then with
// every applied operation until lt terminates.
func (l *List[T]) Advise(lt *lifetime.Lifetime, fn func(Event[T])) {
	for i, v := range l.entries {
		fn(Event[T]{Kind: OpAdd, Index: i, Value: v})
	}
	l.changes.Advise(lt, func(c listChange[T]) {
		fn(c.ev)
	})
}

// View calls fn once for every entry while it is present. The lifetime
// passed to fn ends when the entry is removed or replaced, or when lt ends.
func (l *List[T]) View(lt *lifetime.Lifetime, fn func(entry *lifetime.Lifetime, index int, v T)) {
	var lts []*lifetime.Lifetime

	start := func(i int, v T) {
		elt := lt.Nested()
		lts = slices.Insert(lts, i, elt)
		fn(elt, i, v)
	}
	finish := func(i int) {
		elt := lts[i]
		lts = slices.Delete(lts, i, i+1)
		elt.Terminate()
	}

	l.Advise(lt, func(ev Event[T]) {
		switch ev.Kind {
		case OpAdd:
			start(ev.Index, ev.Value)
		case OpUpdate:
			finish(ev.Index)
			start(ev.Index, ev.Value)
		case OpRemove:
			finish(ev.Index)
		}
	})
}

func (l *List[T]) local(ev Event[T]) error {
	if l.State() == protocol.StateUnbound {
		return rderr.New(rderr.CodeUseAfterUnbind, "", "%s on an unbound list", ev.Kind)
	}
	return l.apply(ev, rdid.Null, false)
}

// apply mutates the entries, maintains slots while bound and notifies.
// Remote operations carry the entry id chosen by the sender.
func (l *List[T]) apply(ev Event[T], id rdid.ID, remote bool) error {
	if err := checkIndex(ev.Kind, ev.Index, len(l.entries), l.Location()); err != nil {
		return err
	}

	bound := l.IsBound()
	i := ev.Index
	var err error

	if ev.Kind != OpRemove {
		if err := l.checkEntry(ev, bound); err != nil {
			return err
		}
	}

	switch ev.Kind {
	case OpRemove:
		ev.Value = l.entries[i]
		if bound {
			l.unbindSlot(i)
			l.slots = slices.Delete(l.slots, i, i+1)
		}
		l.entries = slices.Delete(l.entries, i, i+1)

	case OpUpdate:
		old := l.entries[i]
		if bound {
			l.unbindSlot(i)
		}
		l.entries[i] = ev.Value
		if bound {
			if id, err = l.bindSlot(i, ev.Value, id); err != nil {
				// The old value is already unbound; keep positions aligned.
				l.entries[i] = old
			}
		}

	case OpAdd:
		l.entries = slices.Insert(l.entries, i, ev.Value)
		if bound {
			l.slots = slices.Insert(l.slots, i, slot{})
			if id, err = l.bindSlot(i, ev.Value, id); err != nil {
				l.slots = slices.Delete(l.slots, i, i+1)
				l.entries = slices.Delete(l.entries, i, i+1)
			}
		}
	}
	if err != nil {
		return err
	}

	if !bound && !remote {
		l.pending = append(l.pending, ev)
	}
	l.changes.Fire(listChange[T]{ev: ev, id: id, remote: remote})
	return nil
}

func (l *List[T]) bindSlot(i int, v T, id rdid.ID) (rdid.ID, error) {
	b, ok := asBindable(v)
	if !ok {
		l.slots[i] = slot{}
		return rdid.Null, nil
	}

	proto, err := l.Protocol()
	if err != nil {
		return rdid.Null, err
	}
	if id.IsNull() {
		id = l.entryID(proto, i)
	}

	lt := l.Lifetime().Nested()
	if err := b.Identify(proto.Identities(), id); err != nil {
		lt.Terminate()
		return rdid.Null, err
	}
	// The location names the index at bind time; later removals do not
	// rename it.
	if err := b.Bind(lt, &l.Node, "["+strconv.Itoa(i)+"]"); err != nil {
		lt.Terminate()
		return rdid.Null, err
	}
	l.slots[i] = slot{lt: lt, id: id}
	return id, nil
}

// checkEntry rejects a bindable value that has been identified before or
// that the list already holds.
func (l *List[T]) checkEntry(ev Event[T], bound bool) error {
	b, ok := asBindable(ev.Value)
	if !ok {
		return nil
	}
	location := l.Location()
	if s, ok := b.(interface{ State() protocol.State }); ok && s.State() == protocol.StateUnbound {
		return rderr.New(rderr.CodeUseAfterUnbind, location, "%s of an unbound entry", ev.Kind)
	}
	if b.IsBound() {
		return rderr.New(rderr.CodeAlreadyBound, location, "%s of an entry bound at %s", ev.Kind, b.Location())
	}
	if !b.RdID().IsNull() {
		return rderr.New(rderr.CodeAlreadyIdentified, location, "%s of an entry identified as %s", ev.Kind, b.RdID())
	}
	if bound {
		return nil
	}
	for j, v := range l.entries {
		if ev.Kind == OpUpdate && j == ev.Index {
			continue
		}
		if other, ok := asBindable(v); ok && other == b {
			return rderr.New(rderr.CodeAlreadyBound, location, "%s of an entry already held at index %d", ev.Kind, j)
		}
	}
	return nil
}

func (l *List[T]) entryID(proto *protocol.Protocol, i int) rdid.ID {
	id := proto.Identities().Mix(l.RdID(), strconv.Itoa(i))
	for j, s := range l.slots {
		if j != i && s.id == id {
			return proto.Identities().Next(l.RdID())
		}
	}
	return id
}

func (l *List[T]) unbindSlot(i int) {
	if s := l.slots[i]; s.lt != nil {
		s.lt.Terminate()
	}
	l.slots[i] = slot{}
}

func (l *List[T]) init(lt *lifetime.Lifetime) error {
	proto, err := l.Protocol()
	if err != nil {
		return err
	}

	// The snapshot below supersedes whatever was recorded while unbound.
	l.pending = nil
	l.slots = make([]slot, len(l.entries))
	lt.Add(func() {
		l.slots = nil
		l.pending = nil
	})

	ctx := proto.SerializationContext()
	for i, v := range l.entries {
		id, err := l.bindSlot(i, v, rdid.Null)
		if err != nil {
			return err
		}
		payload, err := encodeOp(ctx, Event[T]{Kind: OpAdd, Index: i, Value: v}, id)
		if err != nil {
			return err
		}
		send(proto, l.RdID(), payload)
	}

	l.changes.Advise(lt, func(c listChange[T]) {
		if c.remote {
			return
		}
		payload, err := encodeOp(ctx, c.ev, c.id)
		if err != nil {
			proto.Report(err)
			return
		}
		send(proto, l.RdID(), payload)
	})

	return proto.Advise(lt, l.RdID(), l.receive)
}

func (l *List[T]) receive(payload []byte) error {
	proto, err := l.Protocol()
	if err != nil {
		return err
	}
	ev, id, err := decodeOp[T](proto.SerializationContext(), payload)
	if err != nil {
		return err
	}
	proto.Logger().Debug("applying remote list operation",
		"location", l.Location(),
		"op", ev.Kind.String(),
		"index", ev.Index,
	)
	return l.apply(ev, id, true)
}
