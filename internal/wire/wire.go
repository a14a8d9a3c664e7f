// Package wire carries entity messages between endpoints.
//
// A Wire routes opaque payloads addressed by entity id. Broker is the
// endpoint-side implementation: it owns the handler table, buffers messages
// that arrive before their entity is bound, and hands every delivery to the
// endpoint scheduler. Transports move frames between brokers: Connect for
// in-process pairs, WebSocket for real connections.
package wire

import (
	"github.com/roach88/rdsync/internal/lifetime"
	"github.com/roach88/rdsync/internal/rdid"
)

// Handler processes one inbound payload on the endpoint scheduler.
// A returned error has no caller to reach and is reported by the broker.
type Handler func(payload []byte) error

// Wire is the message channel seen by entities.
type Wire interface {
	// Send transmits payload to the remote entity with the same id.
	// Sends are fire-and-forget and preserve order per sender.
	Send(id rdid.ID, payload []byte)

	// Advise routes inbound payloads for id to h until lt terminates.
	// Messages that arrived for id before Advise are delivered first,
	// in arrival order. A second live handler for id is AlreadyBound.
	Advise(lt *lifetime.Lifetime, id rdid.ID, h Handler) error
}

// Tap observes traffic passing through a broker.
// Implementations must be safe for concurrent use.
type Tap interface {
	Sent(endpoint string, id rdid.ID, payload []byte)
	Received(endpoint string, id rdid.ID, payload []byte)
}

// Transport delivers frames to the remote broker.
type Transport interface {
	Deliver(f Frame) error
}
