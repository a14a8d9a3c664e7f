package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/roach88/rdsync/internal/rdid"
)

const (
	fieldID      protowire.Number = 1
	fieldPayload protowire.Number = 2
)

// Frame is one addressed message on a transport.
type Frame struct {
	ID      rdid.ID
	Payload []byte
}

// FrameError reports a malformed frame.
type FrameError struct {
	Reason string
}

// Error implements the error interface.
func (e *FrameError) Error() string {
	return "wire: bad frame: " + e.Reason
}

// EncodeFrame encodes f as a protobuf message:
// field 1 fixed64 id, field 2 bytes payload.
func EncodeFrame(f Frame) []byte {
	b := make([]byte, 0, len(f.Payload)+16)
	b = protowire.AppendTag(b, fieldID, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, uint64(f.ID))
	b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, f.Payload)
	return b
}

// DecodeFrame parses a frame produced by EncodeFrame.
// Unknown fields are skipped.
func DecodeFrame(b []byte) (Frame, error) {
	var f Frame
	var haveID bool

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Frame{}, &FrameError{Reason: protowire.ParseError(n).Error()}
		}
		b = b[n:]

		switch {
		case num == fieldID && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return Frame{}, &FrameError{Reason: "id: " + protowire.ParseError(n).Error()}
			}
			f.ID = rdid.ID(v)
			haveID = true
			b = b[n:]

		case num == fieldPayload && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Frame{}, &FrameError{Reason: "payload: " + protowire.ParseError(n).Error()}
			}
			f.Payload = append([]byte(nil), v...)
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Frame{}, &FrameError{Reason: fmt.Sprintf("field %d: %v", num, protowire.ParseError(n))}
			}
			b = b[n:]
		}
	}

	if !haveID || f.ID.IsNull() {
		return Frame{}, &FrameError{Reason: "missing id"}
	}
	return f, nil
}
