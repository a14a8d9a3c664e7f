package rdid

import (
	"strconv"
	"sync/atomic"
)

// Kind distinguishes the two sides of a connection when allocating
// dynamic ids, so both sides can allocate without coordination.
type Kind int

const (
	// KindClient allocates odd sequence numbers.
	KindClient Kind = iota + 1
	// KindServer allocates even sequence numbers.
	KindServer
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindClient:
		return "client"
	case KindServer:
		return "server"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Identities is the per-endpoint id allocator.
//
// Mix is the deterministic, position-based derivation used for the declared
// tree. Next hands out dynamic ids that depend on the allocating side and
// are therefore never shared by the two endpoints.
//
// Thread-safety: safe for concurrent use. A nil *Identities still mixes.
type Identities struct {
	kind Kind
	seq  atomic.Int64
}

// NewIdentities creates an allocator for the given side.
func NewIdentities(kind Kind) *Identities {
	return &Identities{kind: kind}
}

// Kind returns the side this allocator serves.
func (i *Identities) Kind() Kind {
	if i == nil {
		return 0
	}
	return i.kind
}

// Mix derives a child id. Equivalent to id.Mix(key).
func (i *Identities) Mix(id ID, key string) ID {
	return id.Mix(key)
}

// Next allocates a dynamic id under parent.
// Client sequence numbers are odd, server ones even.
func (i *Identities) Next(parent ID) ID {
	n := i.seq.Add(1)*2 - 1
	if i.kind == KindServer {
		n++
	}
	return parent.Mix("#" + strconv.FormatInt(n, 10))
}
