package serial

import (
	"fmt"
	"reflect"
)

type funcMarshaller[T any] struct {
	name  string
	write func(ctx *Context, buf *Buffer, v T) error
	read  func(ctx *Context, buf *Buffer) (T, error)
}

// New builds a Marshaller for T from typed functions.
func New[T any](name string, write func(*Context, *Buffer, T) error, read func(*Context, *Buffer) (T, error)) Marshaller {
	return &funcMarshaller[T]{name: name, write: write, read: read}
}

func (m *funcMarshaller[T]) Name() string       { return m.name }
func (m *funcMarshaller[T]) Type() reflect.Type { return TypeOf[T]() }

func (m *funcMarshaller[T]) Write(ctx *Context, buf *Buffer, v any) error {
	tv, ok := v.(T)
	if !ok {
		return fmt.Errorf("serial: %s marshaller given %T", m.name, v)
	}
	return m.write(ctx, buf, tv)
}

func (m *funcMarshaller[T]) Read(ctx *Context, buf *Buffer) (any, error) {
	return m.read(ctx, buf)
}

func builtins() []Marshaller {
	return []Marshaller{
		New("string",
			func(_ *Context, b *Buffer, v string) error { b.WriteString(v); return nil },
			func(_ *Context, b *Buffer) (string, error) { return b.ReadString() }),
		New("bool",
			func(_ *Context, b *Buffer, v bool) error { b.WriteBool(v); return nil },
			func(_ *Context, b *Buffer) (bool, error) { return b.ReadBool() }),
		New("int",
			func(_ *Context, b *Buffer, v int) error { b.WriteInt(int64(v)); return nil },
			func(_ *Context, b *Buffer) (int, error) { v, err := b.ReadInt(); return int(v), err }),
		New("int32",
			func(_ *Context, b *Buffer, v int32) error { b.WriteInt(int64(v)); return nil },
			func(_ *Context, b *Buffer) (int32, error) { v, err := b.ReadInt(); return int32(v), err }),
		New("int64",
			func(_ *Context, b *Buffer, v int64) error { b.WriteInt(v); return nil },
			func(_ *Context, b *Buffer) (int64, error) { return b.ReadInt() }),
		New("float64",
			func(_ *Context, b *Buffer, v float64) error { b.WriteFloat(v); return nil },
			func(_ *Context, b *Buffer) (float64, error) { return b.ReadFloat() }),
		New("bytes",
			func(_ *Context, b *Buffer, v []byte) error { b.WriteBytes(v); return nil },
			func(_ *Context, b *Buffer) ([]byte, error) { return b.ReadBytes() }),
	}
}
