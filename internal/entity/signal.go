package entity

import (
	"github.com/roach88/rdsync/internal/lifetime"
	"github.com/roach88/rdsync/internal/protocol"
	"github.com/roach88/rdsync/internal/reactive"
	"github.com/roach88/rdsync/internal/rderr"
	"github.com/roach88/rdsync/internal/serial"
)

// Signal is a synchronized stream of fire-and-forget values.
type Signal[T any] struct {
	protocol.Node

	fired reactive.Signal[T]
}

// NewSignal creates an unbound signal.
func NewSignal[T any]() *Signal[T] {
	s := &Signal[T]{}
	s.OnInit(s.init)
	return s
}

// Fire sends v to the remote side and notifies local observers.
// Firing an unbound signal is NotBound; there is nothing to buffer.
func (s *Signal[T]) Fire(v T) error {
	if !s.IsBound() {
		return rderr.New(rderr.CodeNotBound, s.Location(), "fire on an unbound signal")
	}
	proto, err := s.Protocol()
	if err != nil {
		return err
	}

	buf := serial.NewBuffer()
	if err := serial.WriteValue(proto.SerializationContext(), buf, v); err != nil {
		return err
	}
	send(proto, s.RdID(), buf.Bytes())

	s.fired.Fire(v)
	return nil
}

// Advise calls fn for every value fired on either side until lt ends.
func (s *Signal[T]) Advise(lt *lifetime.Lifetime, fn func(T)) {
	s.fired.Advise(lt, fn)
}

func (s *Signal[T]) init(lt *lifetime.Lifetime) error {
	proto, err := s.Protocol()
	if err != nil {
		return err
	}
	return proto.Advise(lt, s.RdID(), func(payload []byte) error {
		v, err := serial.ReadValue[T](proto.SerializationContext(), serial.FromBytes(payload))
		if err != nil {
			return err
		}
		s.fired.Fire(v)
		return nil
	})
}
