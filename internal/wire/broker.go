package wire

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/rdsync/internal/lifetime"
	"github.com/roach88/rdsync/internal/rderr"
	"github.com/roach88/rdsync/internal/rdid"
	"github.com/roach88/rdsync/internal/scheduler"
)

// ErrorHandler receives handler errors.
type ErrorHandler func(id rdid.ID, err error)

// Broker implements Wire for one endpoint.
//
// Thread-safety model:
//   - Send(), Dispatch(), SetTransport(): safe from any goroutine
//   - handlers run on the endpoint scheduler, one at a time
//
// Outbound frames are held until a transport is attached, then flushed in
// send order.
type Broker struct {
	name    string
	sched   scheduler.Scheduler
	logger  *slog.Logger
	taps    []Tap
	onError ErrorHandler

	mu        sync.Mutex
	handlers  map[rdid.ID]Handler
	pending   map[rdid.ID][][]byte
	transport Transport
	outbox    []Frame

	sent     atomic.Uint64
	received atomic.Uint64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithTap adds a traffic observer.
func WithTap(t Tap) BrokerOption {
	return func(b *Broker) {
		b.taps = append(b.taps, t)
	}
}

// WithLogger sets the broker logger.
func WithLogger(l *slog.Logger) BrokerOption {
	return func(b *Broker) {
		b.logger = l
	}
}

// WithErrorHandler replaces the default error handler, which logs.
func WithErrorHandler(h ErrorHandler) BrokerOption {
	return func(b *Broker) {
		b.onError = h
	}
}

// NewBroker creates a broker delivering on sched.
func NewBroker(name string, sched scheduler.Scheduler, opts ...BrokerOption) *Broker {
	b := &Broker{
		name:     name,
		sched:    sched,
		logger:   slog.Default(),
		handlers: make(map[rdid.ID]Handler),
		pending:  make(map[rdid.ID][][]byte),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.onError == nil {
		b.onError = func(id rdid.ID, err error) {
			b.logger.Error("message handler failed",
				"endpoint", b.name,
				"id", id.String(),
				"error", err,
			)
		}
	}
	return b
}

// Name returns the endpoint name used in taps and logs.
func (b *Broker) Name() string {
	return b.name
}

// Send implements Wire.
func (b *Broker) Send(id rdid.ID, payload []byte) {
	b.sent.Add(1)
	for _, t := range b.taps {
		t.Sent(b.name, id, payload)
	}

	f := Frame{ID: id, Payload: payload}

	b.mu.Lock()
	tr := b.transport
	if tr == nil {
		b.outbox = append(b.outbox, f)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	b.deliver(tr, f)
}

// SetTransport attaches tr and flushes frames sent so far.
func (b *Broker) SetTransport(tr Transport) {
	b.mu.Lock()
	b.transport = tr
	outbox := b.outbox
	b.outbox = nil
	b.mu.Unlock()

	for _, f := range outbox {
		b.deliver(tr, f)
	}
}

// Advise implements Wire.
func (b *Broker) Advise(lt *lifetime.Lifetime, id rdid.ID, h Handler) error {
	if id.IsNull() {
		return rderr.New(rderr.CodeInvalidArgument, "", "cannot advise the null id")
	}
	if lt.IsTerminated() {
		return nil
	}

	b.mu.Lock()
	if _, ok := b.handlers[id]; ok {
		b.mu.Unlock()
		return rderr.New(rderr.CodeAlreadyBound, "", "handler for %s already registered on %s", id, b.name)
	}
	b.handlers[id] = h
	queued := b.pending[id]
	delete(b.pending, id)
	b.mu.Unlock()

	lt.Add(func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	})

	for _, payload := range queued {
		b.handle(id, h, payload)
	}
	return nil
}

// Dispatch accepts a frame from the transport and schedules its delivery.
func (b *Broker) Dispatch(f Frame) {
	b.received.Add(1)
	for _, t := range b.taps {
		t.Received(b.name, f.ID, f.Payload)
	}

	b.sched.Queue(func() {
		b.mu.Lock()
		h, ok := b.handlers[f.ID]
		if !ok {
			b.pending[f.ID] = append(b.pending[f.ID], f.Payload)
		}
		b.mu.Unlock()

		if ok {
			b.handle(f.ID, h, f.Payload)
		}
	})
}

// Sent returns the number of frames sent.
func (b *Broker) Sent() uint64 {
	return b.sent.Load()
}

// Received returns the number of frames dispatched from the transport.
func (b *Broker) Received() uint64 {
	return b.received.Load()
}

// Buffered returns the number of inbound messages waiting for a handler.
func (b *Broker) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, q := range b.pending {
		n += len(q)
	}
	return n
}

func (b *Broker) handle(id rdid.ID, h Handler, payload []byte) {
	if err := h(payload); err != nil {
		b.onError(id, err)
	}
}

func (b *Broker) deliver(tr Transport, f Frame) {
	if err := tr.Deliver(f); err != nil {
		b.logger.Warn("frame not delivered",
			"endpoint", b.name,
			"id", f.ID.String(),
			"error", err,
		)
	}
}
