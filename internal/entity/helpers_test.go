package entity

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rdsync/internal/protocol"
	"github.com/roach88/rdsync/internal/rdid"
	"github.com/roach88/rdsync/internal/serial"
)

// dynamicEntity is a bindable list entry with one synchronized property.
type dynamicEntity struct {
	protocol.Node
	foo *Property[*bool]
}

func newDynamicEntity(foo *bool) *dynamicEntity {
	e := &dynamicEntity{foo: NewProperty(foo)}
	e.DeclareChild("foo", e.foo)
	return e
}

func dynamicEntityMarshaller() serial.Marshaller {
	return serial.New("test.DynamicEntity",
		func(ctx *serial.Context, buf *serial.Buffer, e *dynamicEntity) error {
			return serial.WriteValue(ctx, buf, e.foo.Value())
		},
		func(ctx *serial.Context, buf *serial.Buffer) (*dynamicEntity, error) {
			foo, err := serial.ReadValue[*bool](ctx, buf)
			if err != nil {
				return nil, err
			}
			return newDynamicEntity(foo), nil
		})
}

func boolPtr(v bool) *bool { return &v }

func formatBool(v *bool) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprint(*v)
}

func staticList[T any](t *testing.T, n int) *List[T] {
	t.Helper()
	l, err := protocol.Static(NewList[T](), n)
	require.NoError(t, err)
	return l
}

// sentTap records payloads one endpoint sent for one id.
type sentTap struct {
	mu       sync.Mutex
	endpoint string
	id       rdid.ID
	payloads [][]byte
}

func (s *sentTap) Sent(endpoint string, id rdid.ID, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if endpoint == s.endpoint && id == s.id {
		s.payloads = append(s.payloads, payload)
	}
}

func (s *sentTap) Received(string, rdid.ID, []byte) {}

func (s *sentTap) Payloads() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.payloads...)
}
