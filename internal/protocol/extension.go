package protocol

import (
	"sync"

	"github.com/roach88/rdsync/internal/goid"
	"github.com/roach88/rdsync/internal/rderr"
)

type extensions struct {
	mu       sync.Mutex
	values   map[string]any
	creating map[string]*creation
}

// creation marks a name whose factory is running.
type creation struct {
	done    chan struct{}
	creator int64
}

// GetOrCreateExtension returns the extension called name, creating it with
// create on first request.
//
// create runs without the registry lock, so it may declare children or
// request other extensions of n. Concurrent requests for a name wait for
// the running creation. A bindable extension becomes a child of n; if n is
// already identified it is identified at once, and if n is bound it is
// bound under n's lifetime as well. When that fails the extension is
// discarded and the next request creates it again. Requesting an existing
// name with another type is a TypeMismatch.
func GetOrCreateExtension[T any](n *Node, name string, create func() T) (T, error) {
	var zero T

	for {
		n.ext.mu.Lock()
		if existing, ok := n.ext.values[name]; ok {
			n.ext.mu.Unlock()
			v, ok := existing.(T)
			if !ok {
				return zero, rderr.New(rderr.CodeTypeMismatch, n.Location(),
					"extension %q is %T, requested %T", name, existing, zero)
			}
			return v, nil
		}

		if c, ok := n.ext.creating[name]; ok {
			n.ext.mu.Unlock()
			if c.creator == goid.Current() {
				return zero, rderr.New(rderr.CodeInvalidArgument, n.Location(),
					"extension %q requested by its own factory", name)
			}
			<-c.done
			continue
		}

		c := &creation{done: make(chan struct{}), creator: goid.Current()}
		if n.ext.creating == nil {
			n.ext.creating = make(map[string]*creation)
		}
		n.ext.creating[name] = c
		n.ext.mu.Unlock()

		return createExtension(n, name, create, c)
	}
}

func createExtension[T any](n *Node, name string, create func() T, c *creation) (v T, err error) {
	var attached Bindable
	ok := false
	defer func() {
		n.ext.mu.Lock()
		delete(n.ext.creating, name)
		if ok {
			if n.ext.values == nil {
				n.ext.values = make(map[string]any)
			}
			n.ext.values[name] = v
			if attached != nil {
				n.children = append(n.children, child{key: name, value: attached})
			}
		}
		n.ext.mu.Unlock()
		close(c.done)
	}()

	v = create()
	b, bindable := any(v).(Bindable)
	if bindable {
		if err := attachExtension(n, name, b); err != nil {
			var zero T
			return zero, err
		}
		attached = b
	}
	ok = true
	return v, nil
}

func attachExtension(n *Node, name string, b Bindable) error {
	if n.rdid.IsNull() {
		return nil
	}
	proto, err := n.Protocol()
	if err != nil {
		// Identified but not yet bound: Bind will bind it with the rest.
		return b.Identify(nil, n.rdid.Mix(name))
	}
	if err := b.Identify(proto.Identities(), n.rdid.Mix(name)); err != nil {
		return err
	}
	return b.Bind(n.lt, n, name)
}

// Extension returns the extension called name if it exists with type T.
func Extension[T any](n *Node, name string) (T, bool) {
	n.ext.mu.Lock()
	defer n.ext.mu.Unlock()
	v, ok := n.ext.values[name].(T)
	return v, ok
}
