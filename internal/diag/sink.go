// Package diag accumulates protocol violations for strict validation.
//
// A Sink is owned by the goroutine that created it. Violations reported on
// the owner are returned to the caller immediately; violations reported from
// any other goroutine, where no caller can usefully receive them, are
// recorded and surface later through Drain.
package diag

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/roach88/rdsync/internal/goid"
)

// Separator is placed between violations in AggregateError messages.
const Separator = "\n\n --------------------------- \n\n"

// ViolationError is a violation raised on the owning goroutine.
type ViolationError struct {
	Category string
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *ViolationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *ViolationError) Unwrap() error {
	return e.Err
}

// AggregateError lists every violation accumulated since the last Drain.
type AggregateError struct {
	Violations []string
}

// Error implements the error interface.
func (e *AggregateError) Error() string {
	return fmt.Sprintf("There are %d violations:\n%s",
		len(e.Violations), strings.Join(e.Violations, Separator))
}

// Sink is a constructible violation accumulator.
//
// Thread-safety: Report and Drain are safe for concurrent use.
type Sink struct {
	mu           sync.Mutex
	owner        int64
	warnAsErrors bool
	violations   []string
}

// Option configures a Sink.
type Option func(*Sink)

// WithWarnAsErrors makes warnings count as violations.
func WithWarnAsErrors() Option {
	return func(s *Sink) {
		s.warnAsErrors = true
	}
}

// NewSink creates a Sink owned by the calling goroutine.
func NewSink(opts ...Option) *Sink {
	s := &Sink{owner: goid.Current()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether records at level are violations.
func (s *Sink) Enabled(level slog.Level) bool {
	if level >= slog.LevelError {
		return true
	}
	return s.warnAsErrors && level >= slog.LevelWarn
}

// Report records a violation.
//
// On the owning goroutine it returns a *ViolationError instead of recording.
// Levels below the threshold are ignored and Report returns nil.
func (s *Sink) Report(level slog.Level, category, msg string, err error) error {
	if !s.Enabled(level) {
		return nil
	}

	if goid.Current() == s.owner {
		return &ViolationError{Category: category, Message: msg, Err: err}
	}

	rendered := render(level, category, msg, err)
	s.mu.Lock()
	s.violations = append(s.violations, rendered)
	s.mu.Unlock()
	return nil
}

// Len returns the number of accumulated violations.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.violations)
}

// Drain clears the accumulator and returns an *AggregateError listing what
// it held, or nil if it was empty.
func (s *Sink) Drain() error {
	s.mu.Lock()
	violations := s.violations
	s.violations = nil
	s.mu.Unlock()

	if len(violations) == 0 {
		return nil
	}
	return &AggregateError{Violations: violations}
}

func render(level slog.Level, category, msg string, err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s | %s | %s", level, category, msg)
	if err != nil {
		fmt.Fprintf(&b, " | %v", err)
	}
	return b.String()
}
