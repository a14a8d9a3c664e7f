// Package serial encodes values exchanged between endpoints.
//
// The byte layout is an internal detail of rdsync: integers are protobuf
// varints (zig-zag for signed values), ids are fixed64, strings and byte
// slices are length-prefixed. Types are resolved through a Registry of
// marshallers; polymorphic values carry the registered type id.
package serial

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/roach88/rdsync/internal/rdid"
)

// Buffer is an append-only writer and a forward-only reader.
type Buffer struct {
	data []byte
	pos  int
}

// NewBuffer creates an empty Buffer for writing.
func NewBuffer() *Buffer {
	return &Buffer{data: make([]byte, 0, 64)}
}

// FromBytes creates a Buffer that reads b.
func FromBytes(b []byte) *Buffer {
	return &Buffer{data: b}
}

// Bytes returns the written bytes.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Remaining returns the number of unread bytes.
func (b *Buffer) Remaining() int {
	return len(b.data) - b.pos
}

// WriteInt writes a zig-zag varint.
func (b *Buffer) WriteInt(v int64) {
	b.data = protowire.AppendVarint(b.data, protowire.EncodeZigZag(v))
}

// WriteUint writes a varint.
func (b *Buffer) WriteUint(v uint64) {
	b.data = protowire.AppendVarint(b.data, v)
}

// WriteBool writes a bool as a single varint.
func (b *Buffer) WriteBool(v bool) {
	b.data = protowire.AppendVarint(b.data, protowire.EncodeBool(v))
}

// WriteFloat writes a float64 as fixed64 bits.
func (b *Buffer) WriteFloat(v float64) {
	b.data = protowire.AppendFixed64(b.data, math.Float64bits(v))
}

// WriteString writes a length-prefixed string.
func (b *Buffer) WriteString(v string) {
	b.data = protowire.AppendString(b.data, v)
}

// WriteBytes writes a length-prefixed byte slice.
func (b *Buffer) WriteBytes(v []byte) {
	b.data = protowire.AppendBytes(b.data, v)
}

// WriteID writes an id as fixed64.
func (b *Buffer) WriteID(id rdid.ID) {
	b.data = protowire.AppendFixed64(b.data, uint64(id))
}

// ReadInt reads a zig-zag varint.
func (b *Buffer) ReadInt() (int64, error) {
	v, err := b.ReadUint()
	if err != nil {
		return 0, err
	}
	return protowire.DecodeZigZag(v), nil
}

// ReadUint reads a varint.
func (b *Buffer) ReadUint() (uint64, error) {
	v, n := protowire.ConsumeVarint(b.data[b.pos:])
	if n < 0 {
		return 0, readError("varint", protowire.ParseError(n))
	}
	b.pos += n
	return v, nil
}

// ReadBool reads a bool.
func (b *Buffer) ReadBool() (bool, error) {
	v, err := b.ReadUint()
	if err != nil {
		return false, err
	}
	return protowire.DecodeBool(v), nil
}

// ReadFloat reads a float64.
func (b *Buffer) ReadFloat() (float64, error) {
	v, n := protowire.ConsumeFixed64(b.data[b.pos:])
	if n < 0 {
		return 0, readError("float", protowire.ParseError(n))
	}
	b.pos += n
	return math.Float64frombits(v), nil
}

// ReadString reads a length-prefixed string.
func (b *Buffer) ReadString() (string, error) {
	v, n := protowire.ConsumeString(b.data[b.pos:])
	if n < 0 {
		return "", readError("string", protowire.ParseError(n))
	}
	b.pos += n
	return v, nil
}

// ReadBytes reads a length-prefixed byte slice. The result is a copy.
func (b *Buffer) ReadBytes() ([]byte, error) {
	v, n := protowire.ConsumeBytes(b.data[b.pos:])
	if n < 0 {
		return nil, readError("bytes", protowire.ParseError(n))
	}
	b.pos += n
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// ReadID reads an id.
func (b *Buffer) ReadID() (rdid.ID, error) {
	v, n := protowire.ConsumeFixed64(b.data[b.pos:])
	if n < 0 {
		return rdid.Null, readError("id", protowire.ParseError(n))
	}
	b.pos += n
	return rdid.ID(v), nil
}
