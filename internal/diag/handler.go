package diag

import (
	"context"
	"log/slog"
	"strings"
)

// Handler returns a slog.Handler that forwards every record to next (when
// next is non-nil) and reports error records to the sink.
//
// Violations on the owning goroutine panic with the *ViolationError, so a
// strict test fails at the faulting call. The "category" attribute, if
// present, names the violation category.
func (s *Sink) Handler(next slog.Handler) slog.Handler {
	return &handler{sink: s, next: next}
}

type handler struct {
	sink  *Sink
	next  slog.Handler
	attrs []slog.Attr
	group string
}

func (h *handler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.sink.Enabled(level) {
		return true
	}
	return h.next != nil && h.next.Enabled(ctx, level)
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	if h.next != nil && h.next.Enabled(ctx, r.Level) {
		if err := h.next.Handle(ctx, r); err != nil {
			return err
		}
	}
	if !h.sink.Enabled(r.Level) {
		return nil
	}

	category := "rdsync"
	var errAttr error
	var extra []string
	collect := func(a slog.Attr) bool {
		switch {
		case a.Key == "category":
			category = a.Value.String()
		case a.Key == "error":
			if e, ok := a.Value.Any().(error); ok {
				errAttr = e
				return true
			}
			extra = append(extra, a.String())
		default:
			extra = append(extra, a.String())
		}
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(collect)

	msg := r.Message
	if len(extra) > 0 {
		msg += " " + strings.Join(extra, " ")
	}

	if err := h.sink.Report(r.Level, category, msg, errAttr); err != nil {
		panic(err)
	}
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.next
	if next != nil {
		next = next.WithAttrs(attrs)
	}
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		merged = append(merged, a)
	}
	return &handler{sink: h.sink, next: next, attrs: merged, group: h.group}
}

func (h *handler) WithGroup(name string) slog.Handler {
	next := h.next
	if next != nil {
		next = next.WithGroup(name)
	}
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &handler{sink: h.sink, next: next, attrs: h.attrs, group: group}
}
