// Package scheduler provides the single logical thread each endpoint runs on.
//
// All binding, identification and reactive notification for the entities of
// an endpoint happen on its scheduler. The protocol asserts this at the
// start of every bind instead of locking the tree.
package scheduler

import (
	"github.com/roach88/rdsync/internal/goid"
	"github.com/roach88/rdsync/internal/rderr"
)

// Scheduler runs work with thread affinity.
type Scheduler interface {
	// Queue schedules fn to run on the scheduler.
	Queue(fn func())

	// IsActive reports whether the caller is running on the scheduler.
	IsActive() bool

	// Name identifies the scheduler in diagnostics.
	Name() string
}

// Assert returns a WrongThread error unless the caller runs on s.
func Assert(s Scheduler, location string) error {
	if s.IsActive() {
		return nil
	}
	return rderr.New(rderr.CodeWrongThread, location,
		"must be called on scheduler %q (goroutine %d)", s.Name(), goid.Current())
}

// Immediate runs queued work inline on the caller.
// It is owned by the goroutine that created it.
//
// Used by tests and in-process pairs where everything runs on one goroutine.
type Immediate struct {
	name  string
	owner int64
}

// NewImmediate creates an Immediate owned by the calling goroutine.
func NewImmediate(name string) *Immediate {
	return &Immediate{name: name, owner: goid.Current()}
}

// Queue runs fn immediately.
func (s *Immediate) Queue(fn func()) {
	fn()
}

// IsActive reports whether the caller is the owning goroutine.
func (s *Immediate) IsActive() bool {
	return goid.Current() == s.owner
}

// Name returns the scheduler name.
func (s *Immediate) Name() string {
	return s.name
}
