package entity

import (
	"fmt"
	"reflect"

	"github.com/roach88/rdsync/internal/protocol"
	"github.com/roach88/rdsync/internal/rderr"
	"github.com/roach88/rdsync/internal/rdid"
	"github.com/roach88/rdsync/internal/serial"
)

// OpKind is the kind of a list operation.
type OpKind int

const (
	OpAdd OpKind = iota
	OpUpdate
	OpRemove
)

// String returns the operation name.
func (k OpKind) String() string {
	switch k {
	case OpAdd:
		return "Add"
	case OpUpdate:
		return "Update"
	case OpRemove:
		return "Remove"
	default:
		return fmt.Sprintf("OpKind(%d)", int(k))
	}
}

// Event describes one applied list operation. For OpRemove, Value is the
// removed value.
type Event[T any] struct {
	Kind  OpKind
	Index int
	Value T
}

// String formats the event as "Kind index:value".
func (e Event[T]) String() string {
	return fmt.Sprintf("%s %d:%v", e.Kind, e.Index, e.Value)
}

func checkIndex(kind OpKind, index, count int, location string) error {
	limit := count
	if kind == OpAdd {
		limit = count + 1
	}
	if index < 0 || index >= limit {
		return rderr.New(rderr.CodeIndexOutOfRange, location,
			"%s at index %d, count is %d", kind, index, count)
	}
	return nil
}

// encodeOp writes kind, index and, except for removals, the entry id and
// the value.
func encodeOp[T any](ctx *serial.Context, ev Event[T], id rdid.ID) ([]byte, error) {
	buf := serial.NewBuffer()
	buf.WriteUint(uint64(ev.Kind))
	buf.WriteUint(uint64(ev.Index))
	if ev.Kind == OpRemove {
		return buf.Bytes(), nil
	}
	buf.WriteID(id)
	if err := serial.WriteValue(ctx, buf, ev.Value); err != nil {
		return nil, fmt.Errorf("encode %s %d: %w", ev.Kind, ev.Index, err)
	}
	return buf.Bytes(), nil
}

func decodeOp[T any](ctx *serial.Context, payload []byte) (Event[T], rdid.ID, error) {
	var ev Event[T]
	buf := serial.FromBytes(payload)

	kind, err := buf.ReadUint()
	if err != nil {
		return ev, rdid.Null, fmt.Errorf("decode op kind: %w", err)
	}
	if kind > uint64(OpRemove) {
		return ev, rdid.Null, rderr.New(rderr.CodeInvalidArgument, "", "unknown op kind %d", kind)
	}
	ev.Kind = OpKind(kind)

	index, err := buf.ReadUint()
	if err != nil {
		return ev, rdid.Null, fmt.Errorf("decode op index: %w", err)
	}
	ev.Index = int(index)

	if ev.Kind == OpRemove {
		return ev, rdid.Null, nil
	}

	id, err := buf.ReadID()
	if err != nil {
		return ev, rdid.Null, fmt.Errorf("decode entry id: %w", err)
	}
	ev.Value, err = serial.ReadValue[T](ctx, buf)
	if err != nil {
		return ev, rdid.Null, fmt.Errorf("decode %s %d: %w", ev.Kind, ev.Index, err)
	}
	return ev, id, nil
}

// asBindable returns v as a Bindable unless it is not one or is a nil
// pointer.
func asBindable(v any) (protocol.Bindable, bool) {
	b, ok := v.(protocol.Bindable)
	if !ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, false
	}
	return b, true
}

func send(proto *protocol.Protocol, id rdid.ID, payload []byte) {
	proto.Wire().Send(id, payload)
}
