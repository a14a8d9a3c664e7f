package protocol

import (
	"github.com/roach88/rdsync/internal/lifetime"
	"github.com/roach88/rdsync/internal/reactive"
	"github.com/roach88/rdsync/internal/rderr"
	"github.com/roach88/rdsync/internal/rdid"
	"github.com/roach88/rdsync/internal/scheduler"
)

// NotBoundLocation is reported as the location of an entity before bind.
const NotBoundLocation = "<<not bound yet>>"

// State is a Node lifecycle state.
type State int

const (
	StateUnidentified State = iota
	StateIdentified
	StateBound
	StateUnbound
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnidentified:
		return "unidentified"
	case StateIdentified:
		return "identified"
	case StateBound:
		return "bound"
	case StateUnbound:
		return "unbound"
	default:
		return "unknown"
	}
}

type child struct {
	key   string
	value Bindable
}

// Node is the embeddable base of every bindable entity.
//
// The zero value is an unidentified, unbound node. Tree state is owned by
// the endpoint scheduler; only the extension map is locked.
type Node struct {
	rdid     rdid.ID
	state    State
	location string
	parent   Dynamic
	lt       *lifetime.Lifetime
	children []child
	hooks    []func(lt *lifetime.Lifetime) error

	ext extensions
}

// DeclareChild registers child under key. Children are identified and
// bound in declaration order, so declare them in the constructor.
func (n *Node) DeclareChild(key string, c Bindable) {
	n.ext.mu.Lock()
	defer n.ext.mu.Unlock()
	n.children = append(n.children, child{key: key, value: c})
}

// OnInit registers a hook run at bind, after the children are bound.
func (n *Node) OnInit(fn func(lt *lifetime.Lifetime) error) {
	n.hooks = append(n.hooks, fn)
}

// RdID returns the node id, Null before identification and after unbind.
func (n *Node) RdID() rdid.ID { return n.rdid }

// State returns the lifecycle state.
func (n *Node) State() State { return n.state }

// IsBound reports whether the node is bound.
func (n *Node) IsBound() bool { return n.state == StateBound }

// Lifetime returns the lifetime the node is bound under, or nil.
func (n *Node) Lifetime() *lifetime.Lifetime { return n.lt }

// Location implements Dynamic.
func (n *Node) Location() string {
	if n.state != StateBound {
		return NotBoundLocation
	}
	return n.location
}

// Protocol implements Dynamic.
func (n *Node) Protocol() (*Protocol, error) {
	if n.parent == nil {
		return nil, rderr.New(rderr.CodeNotBound, n.Location(), "no protocol: entity is not bound")
	}
	return n.parent.Protocol()
}

// Identify assigns id and identifies declared children with ids mixed
// from their keys.
func (n *Node) Identify(ids *rdid.Identities, id rdid.ID) error {
	if n.state == StateUnbound {
		return rderr.New(rderr.CodeUseAfterUnbind, "", "cannot identify an unbound entity")
	}
	if !n.rdid.IsNull() {
		return rderr.New(rderr.CodeAlreadyIdentified, n.Location(), "already identified as %s", n.rdid)
	}
	if id.IsNull() {
		return rderr.New(rderr.CodeInvalidArgument, n.Location(), "cannot identify with the null id")
	}

	n.rdid = id
	n.state = StateIdentified

	for _, c := range n.snapshotChildren() {
		if err := c.value.Identify(ids, ids.Mix(id, c.key)); err != nil {
			return err
		}
	}
	return nil
}

// Bind attaches the node to parent for the duration of lt, then binds the
// children and runs the init hooks with priority advising.
func (n *Node) Bind(lt *lifetime.Lifetime, parent Dynamic, name string) error {
	if n.parent != nil {
		return rderr.New(rderr.CodeAlreadyBound, n.Location(), "already bound")
	}
	if n.state == StateUnbound || lt.IsTerminated() {
		return rderr.New(rderr.CodeUseAfterUnbind, name, "cannot bind after unbind")
	}
	if n.rdid.IsNull() {
		return rderr.New(rderr.CodeInvalidArgument, name, "cannot bind an unidentified entity")
	}

	proto, err := parent.Protocol()
	if err != nil {
		return err
	}

	location := name
	if pl := parent.Location(); pl != "" {
		location = pl + "." + name
	}

	if err := scheduler.Assert(proto.Scheduler(), location); err != nil {
		proto.Report(err)
		return err
	}

	acquired := lt.Bracket(
		func() {
			n.parent = parent
			n.location = location
			n.lt = lt
			n.state = StateBound
		},
		func() {
			n.parent = nil
			n.lt = nil
			n.rdid = rdid.Null
			n.state = StateUnbound
		},
	)
	if !acquired {
		return rderr.New(rderr.CodeUseAfterUnbind, location, "lifetime terminated during bind")
	}

	proto.Logger().Debug("entity bound", "location", location, "id", n.rdid.String())

	var initErr error
	reactive.PriorityAdviseSection(func() {
		initErr = n.init(lt)
	})
	return initErr
}

func (n *Node) init(lt *lifetime.Lifetime) error {
	for _, c := range n.snapshotChildren() {
		if err := c.value.Bind(lt, n, c.key); err != nil {
			return err
		}
	}
	for _, hook := range n.hooks {
		if err := hook(lt); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) snapshotChildren() []child {
	n.ext.mu.Lock()
	defer n.ext.mu.Unlock()
	out := make([]child, len(n.children))
	copy(out, n.children)
	return out
}
