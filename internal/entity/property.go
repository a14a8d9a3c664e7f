package entity

import (
	"reflect"

	"github.com/roach88/rdsync/internal/lifetime"
	"github.com/roach88/rdsync/internal/protocol"
	"github.com/roach88/rdsync/internal/reactive"
	"github.com/roach88/rdsync/internal/rderr"
	"github.com/roach88/rdsync/internal/serial"
)

// Property is a synchronized scalar value.
//
// The initial value is assumed known to both sides and is not sent. A
// value set before bind is sent at bind. Setting a value deeply equal to
// the current one does nothing.
type Property[T any] struct {
	protocol.Node

	value    T
	dirty    bool
	applying bool
	changes  reactive.Signal[T]
}

// NewProperty creates an unbound property holding initial.
func NewProperty[T any](initial T) *Property[T] {
	p := &Property[T]{value: initial}
	p.OnInit(p.init)
	return p
}

// Value returns the current value.
func (p *Property[T]) Value() T {
	return p.value
}

// Set changes the value and notifies observers.
func (p *Property[T]) Set(v T) error {
	if p.State() == protocol.StateUnbound {
		return rderr.New(rderr.CodeUseAfterUnbind, "", "set on an unbound property")
	}
	if reflect.DeepEqual(p.value, v) {
		return nil
	}
	p.value = v
	if !p.IsBound() {
		p.dirty = true
	}
	p.changes.Fire(v)
	return nil
}

// Advise calls fn with the current value, then with every change until lt
// terminates.
func (p *Property[T]) Advise(lt *lifetime.Lifetime, fn func(T)) {
	fn(p.value)
	p.changes.Advise(lt, fn)
}

// View calls fn for the current value and every later one. Each value gets
// a lifetime that ends when the next value arrives or lt ends.
func (p *Property[T]) View(lt *lifetime.Lifetime, fn func(valueLt *lifetime.Lifetime, v T)) {
	seq := lifetime.NewSequential(lt)
	p.Advise(lt, func(v T) {
		fn(seq.Next(), v)
	})
}

func (p *Property[T]) init(lt *lifetime.Lifetime) error {
	proto, err := p.Protocol()
	if err != nil {
		return err
	}
	ctx := proto.SerializationContext()

	if p.dirty {
		p.dirty = false
		if err := p.send(proto, ctx, p.value); err != nil {
			return err
		}
	}

	p.changes.Advise(lt, func(v T) {
		if p.applying {
			return
		}
		if err := p.send(proto, ctx, v); err != nil {
			proto.Report(err)
		}
	})

	return proto.Advise(lt, p.RdID(), p.receive)
}

func (p *Property[T]) send(proto *protocol.Protocol, ctx *serial.Context, v T) error {
	buf := serial.NewBuffer()
	if err := serial.WriteValue(ctx, buf, v); err != nil {
		return err
	}
	send(proto, p.RdID(), buf.Bytes())
	return nil
}

func (p *Property[T]) receive(payload []byte) error {
	proto, err := p.Protocol()
	if err != nil {
		return err
	}
	v, err := serial.ReadValue[T](proto.SerializationContext(), serial.FromBytes(payload))
	if err != nil {
		return err
	}
	if reflect.DeepEqual(p.value, v) {
		return nil
	}

	p.applying = true
	defer func() { p.applying = false }()

	p.value = v
	p.changes.Fire(v)
	return nil
}
