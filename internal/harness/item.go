package harness

import (
	"strconv"

	"github.com/roach88/rdsync/internal/entity"
	"github.com/roach88/rdsync/internal/protocol"
	"github.com/roach88/rdsync/internal/serial"
)

// ItemTypeName is the registered serializer name of *Item.
const ItemTypeName = "rdsync.harness.Item"

// Item is a bindable list entry with one synchronized flag.
type Item struct {
	protocol.Node
	Flag *entity.Property[*bool]
}

// NewItem creates an unbound item.
func NewItem(flag *bool) *Item {
	it := &Item{Flag: entity.NewProperty(flag)}
	it.DeclareChild("flag", it.Flag)
	return it
}

// ItemMarshaller serializes an item as its current flag.
func ItemMarshaller() serial.Marshaller {
	return serial.New(ItemTypeName,
		func(ctx *serial.Context, buf *serial.Buffer, it *Item) error {
			return serial.WriteValue(ctx, buf, it.Flag.Value())
		},
		func(ctx *serial.Context, buf *serial.Buffer) (*Item, error) {
			flag, err := serial.ReadValue[*bool](ctx, buf)
			if err != nil {
				return nil, err
			}
			return NewItem(flag), nil
		})
}

// FormatFlag renders a flag as "true", "false" or "null".
func FormatFlag(v *bool) string {
	if v == nil {
		return "null"
	}
	return strconv.FormatBool(*v)
}

func flagOf(v any) *bool {
	b, ok := v.(bool)
	if !ok {
		return nil
	}
	return &b
}
