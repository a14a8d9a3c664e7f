// Package lifetime provides cancellation-scoped resource handles.
//
// A Lifetime collects termination actions and runs them in reverse
// registration order when it is terminated. Every bind, subscription and
// entry attachment in rdsync is scoped to one.
//
// Thread-safety: all methods are safe for concurrent use. Termination actions
// run on the goroutine that calls Terminate.
package lifetime

import "sync"

type action struct {
	fn func()
}

// Lifetime is a cancellation scope.
// The zero value is not usable; create lifetimes with New or Nested.
type Lifetime struct {
	mu         sync.Mutex
	actions    []*action
	removed    int
	terminated bool
	eternal    bool
}

var eternal = &Lifetime{eternal: true}

// Eternal returns the lifetime that never terminates.
// Actions added to it are dropped.
func Eternal() *Lifetime {
	return eternal
}

// New creates a root lifetime. The caller is responsible for terminating it.
func New() *Lifetime {
	return &Lifetime{}
}

// Nested creates a child lifetime that terminates no later than lt.
// If lt is already terminated the child is returned terminated.
func (lt *Lifetime) Nested() *Lifetime {
	child := New()
	if lt.eternal {
		return child
	}

	token, ok := lt.add(child.Terminate)
	if !ok {
		child.Terminate()
		return child
	}
	// Detach from the parent once the child ends on its own.
	child.Add(func() { lt.remove(token) })
	return child
}

// Add registers fn to run on termination.
// If lt is already terminated fn runs immediately and Add returns false.
func (lt *Lifetime) Add(fn func()) bool {
	if lt.eternal {
		return true
	}
	if _, ok := lt.add(fn); !ok {
		fn()
		return false
	}
	return true
}

// Bracket runs acquire now and schedules release for termination.
// Neither runs if lt is already terminated; Bracket then returns false.
func (lt *Lifetime) Bracket(acquire, release func()) bool {
	if lt.IsTerminated() {
		return false
	}
	acquire()
	lt.Add(release)
	return true
}

// IsTerminated reports whether Terminate has been called.
func (lt *Lifetime) IsTerminated() bool {
	if lt.eternal {
		return false
	}
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.terminated
}

// IsEternal reports whether lt is the Eternal lifetime.
func (lt *Lifetime) IsEternal() bool {
	return lt.eternal
}

// Terminate runs all registered actions, last registered first.
// Subsequent calls are no-ops. Terminating Eternal is a no-op.
func (lt *Lifetime) Terminate() {
	if lt.eternal {
		return
	}

	lt.mu.Lock()
	if lt.terminated {
		lt.mu.Unlock()
		return
	}
	lt.terminated = true
	actions := lt.actions
	lt.actions = nil
	lt.mu.Unlock()

	for i := len(actions) - 1; i >= 0; i-- {
		if fn := actions[i].fn; fn != nil {
			fn()
		}
	}
}

func (lt *Lifetime) add(fn func()) (*action, bool) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if lt.terminated {
		return nil, false
	}
	a := &action{fn: fn}
	lt.actions = append(lt.actions, a)
	return a, true
}

func (lt *Lifetime) remove(a *action) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if lt.terminated || a.fn == nil {
		return
	}
	a.fn = nil
	lt.removed++

	// Compact once most slots are dead so long-lived parents do not grow
	// with every short-lived child.
	if lt.removed > 32 && lt.removed*2 > len(lt.actions) {
		live := lt.actions[:0]
		for _, x := range lt.actions {
			if x.fn != nil {
				live = append(live, x)
			}
		}
		for i := len(live); i < len(lt.actions); i++ {
			lt.actions[i] = nil
		}
		lt.actions = live
		lt.removed = 0
	}
}

// Sequential hands out consecutive nested lifetimes where starting the next
// one terminates the previous.
type Sequential struct {
	parent  *Lifetime
	current *Lifetime
}

// NewSequential creates a Sequential scoped to parent.
func NewSequential(parent *Lifetime) *Sequential {
	return &Sequential{parent: parent}
}

// Next terminates the current lifetime and returns a fresh one.
func (s *Sequential) Next() *Lifetime {
	s.TerminateCurrent()
	s.current = s.parent.Nested()
	return s.current
}

// TerminateCurrent terminates the current lifetime, if any.
func (s *Sequential) TerminateCurrent() {
	if s.current != nil {
		s.current.Terminate()
		s.current = nil
	}
}
