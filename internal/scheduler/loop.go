package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/rdsync/internal/goid"
)

// ErrStopped is returned by Do when the loop no longer accepts work.
var ErrStopped = errors.New("scheduler: loop stopped")

// Loop is a single-writer event loop.
//
// Thread-safety model:
//   - Queue(), Do(), Stop(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine, which becomes the
//     owner for IsActive
//
// A panic in queued work is logged with the scheduler name and the loop
// continues; retrying would reorder work.
type Loop struct {
	name   string
	queue  *workQueue
	owner  atomic.Int64
	logger *slog.Logger
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLogger sets the logger used for dropped work and recovered panics.
func WithLogger(l *slog.Logger) LoopOption {
	return func(s *Loop) {
		s.logger = l
	}
}

// NewLoop creates a stopped loop. Call Run to start processing.
func NewLoop(name string, opts ...LoopOption) *Loop {
	s := &Loop{
		name:   name,
		queue:  newWorkQueue(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the scheduler name.
func (s *Loop) Name() string {
	return s.name
}

// Queue schedules fn. Work queued after Stop is dropped and logged.
func (s *Loop) Queue(fn func()) {
	if !s.queue.Enqueue(fn) {
		s.logger.Warn("work dropped: scheduler stopped", "scheduler", s.name)
	}
}

// IsActive reports whether the caller is the goroutine running Run.
func (s *Loop) IsActive() bool {
	owner := s.owner.Load()
	return owner != 0 && owner == goid.Current()
}

// Do queues fn and waits for it to finish, the loop to stop, or ctx.
func (s *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !s.queue.Enqueue(func() {
		defer close(done)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued, not yet started work items.
func (s *Loop) Pending() int {
	return s.queue.Len()
}

// Run processes work until ctx is cancelled or Stop is called.
// Work still queued at Stop is drained before Run returns.
func (s *Loop) Run(ctx context.Context) error {
	if !s.owner.CompareAndSwap(0, goid.Current()) {
		return fmt.Errorf("scheduler %q: Run called twice", s.name)
	}
	defer s.owner.Store(0)

	s.logger.Debug("scheduler starting", "scheduler", s.name)

	for {
		if fn, ok := s.queue.TryDequeue(); ok {
			s.execute(fn)
			continue
		}

		select {
		case <-ctx.Done():
			s.logger.Debug("scheduler stopping: context cancelled", "scheduler", s.name)
			s.queue.Close()
			return ctx.Err()

		case <-s.queue.Wait():
			// The signal channel closes on Stop, which fires this case
			// immediately; exit once the queue is drained.
			if s.queue.Len() == 0 && s.isClosed() {
				s.logger.Debug("scheduler stopping: queue closed", "scheduler", s.name)
				return nil
			}
		}
	}
}

// Stop closes the queue; Run returns once remaining work is processed.
func (s *Loop) Stop() {
	s.queue.Close()
}

func (s *Loop) isClosed() bool {
	s.queue.mu.Lock()
	defer s.queue.mu.Unlock()
	return s.queue.closed
}

func (s *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled work panicked",
				"scheduler", s.name,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	fn()
}
