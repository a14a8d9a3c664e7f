// Package reactive provides the signal primitive observed by entities and
// application code.
//
// Advisers registered inside PriorityAdviseSection are notified before all
// others. Binding runs entity initialization in such a section, so the
// structural wiring of an entity (sending, binding entries) always completes
// before application subscriptions see an event.
package reactive

import (
	"sync"

	"github.com/roach88/rdsync/internal/goid"
	"github.com/roach88/rdsync/internal/lifetime"
)

var sections = struct {
	sync.Mutex
	depth map[int64]int
}{depth: make(map[int64]int)}

// PriorityAdviseSection runs fn with priority advising enabled for the
// calling goroutine. Sections nest.
func PriorityAdviseSection(fn func()) {
	id := goid.Current()
	sections.Lock()
	sections.depth[id]++
	sections.Unlock()

	defer func() {
		sections.Lock()
		if sections.depth[id] <= 1 {
			delete(sections.depth, id)
		} else {
			sections.depth[id]--
		}
		sections.Unlock()
	}()

	fn()
}

// InPrioritySection reports whether the calling goroutine is inside
// PriorityAdviseSection.
func InPrioritySection() bool {
	id := goid.Current()
	sections.Lock()
	defer sections.Unlock()
	return sections.depth[id] > 0
}

type listener[T any] struct {
	fn    func(T)
	alive bool
}

// Signal delivers values to advisers in priority-then-registration order.
// The zero value is ready to use.
type Signal[T any] struct {
	mu       sync.Mutex
	priority []*listener[T]
	normal   []*listener[T]
}

// Advise registers fn until lt terminates.
// Nothing is registered if lt is already terminated.
func (s *Signal[T]) Advise(lt *lifetime.Lifetime, fn func(T)) {
	if lt.IsTerminated() {
		return
	}
	l := &listener[T]{fn: fn, alive: true}
	priority := InPrioritySection()

	s.mu.Lock()
	if priority {
		s.priority = append(s.priority, l)
	} else {
		s.normal = append(s.normal, l)
	}
	s.mu.Unlock()

	lt.Add(func() { s.remove(l, priority) })
}

// Fire notifies every live adviser. Advisers added during Fire are not
// notified of the current value; advisers removed during Fire are skipped.
func (s *Signal[T]) Fire(v T) {
	s.mu.Lock()
	snapshot := make([]*listener[T], 0, len(s.priority)+len(s.normal))
	snapshot = append(snapshot, s.priority...)
	snapshot = append(snapshot, s.normal...)
	s.mu.Unlock()

	for _, l := range snapshot {
		if s.isAlive(l) {
			l.fn(v)
		}
	}
}

// Len returns the number of live advisers.
func (s *Signal[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.priority) + len(s.normal)
}

func (s *Signal[T]) isAlive(l *listener[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return l.alive
}

func (s *Signal[T]) remove(l *listener[T], priority bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.alive = false
	list := &s.normal
	if priority {
		list = &s.priority
	}
	for i, x := range *list {
		if x == l {
			*list = append((*list)[:i:i], (*list)[i+1:]...)
			return
		}
	}
}
