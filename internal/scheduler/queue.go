package scheduler

import "sync"

// workQueue is a thread-safe FIFO of pending work.
//
// The queue is unbounded so that cascading notifications can enqueue
// arbitrarily many follow-ups without blocking.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type workQueue struct {
	mu     sync.Mutex
	items  []func()
	closed bool
	signal chan struct{} // buffered, size 1
}

func newWorkQueue() *workQueue {
	return &workQueue{
		items:  make([]func(), 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds fn to the back of the queue.
// Returns false if the queue is closed.
func (q *workQueue) Enqueue(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, fn)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
func (q *workQueue) TryDequeue() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}

	fn := q.items[0]
	// Nil out the slot so the closure can be collected.
	q.items[0] = nil

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return fn, true
}

// Wait returns a channel that signals when work may be available.
func (q *workQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *workQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close signals that no more work will be enqueued and wakes waiters.
func (q *workQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
