package store

import "sync/atomic"

// Clock hands out journal sequence numbers.
type Clock interface {
	Next() int64
}

// LogicalClock is a monotonic logical clock.
//
// Every journal record is stamped with a strictly increasing seq from it,
// so the journal order is the order the recorder observed traffic in,
// independent of wall time.
//
// Thread-safety: safe for concurrent use.
type LogicalClock struct {
	seq atomic.Int64
}

// NewLogicalClock creates a clock whose first Next returns 1.
func NewLogicalClock() *LogicalClock {
	return &LogicalClock{}
}

// Next returns the next sequence number.
func (c *LogicalClock) Next() int64 {
	return c.seq.Add(1)
}
