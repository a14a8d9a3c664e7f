package entity

import (
	"fmt"
	"slices"

	"github.com/roach88/rdsync/internal/serial"
)

// Replay applies encoded list operations, in order, to an empty list and
// returns the resulting entries. Bindable values are not bound.
func Replay[T any](ctx *serial.Context, payloads [][]byte) ([]T, error) {
	var entries []T
	for n, payload := range payloads {
		ev, _, err := decodeOp[T](ctx, payload)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", n, err)
		}
		if err := checkIndex(ev.Kind, ev.Index, len(entries), "replay"); err != nil {
			return nil, fmt.Errorf("operation %d: %w", n, err)
		}

		switch ev.Kind {
		case OpAdd:
			entries = slices.Insert(entries, ev.Index, ev.Value)
		case OpUpdate:
			entries[ev.Index] = ev.Value
		case OpRemove:
			entries = slices.Delete(entries, ev.Index, ev.Index+1)
		}
	}
	return entries, nil
}
