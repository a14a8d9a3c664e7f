package protocol

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/rdsync/internal/diag"
	"github.com/roach88/rdsync/internal/lifetime"
	"github.com/roach88/rdsync/internal/rderr"
	"github.com/roach88/rdsync/internal/rdid"
	"github.com/roach88/rdsync/internal/scheduler"
	"github.com/roach88/rdsync/internal/serial"
	"github.com/roach88/rdsync/internal/wire"
)

// Dynamic is anything an entity can be bound under.
type Dynamic interface {
	// Protocol returns the endpoint, or NotBound if not attached to one.
	Protocol() (*Protocol, error)

	// Location is the dotted path used in names and diagnostics.
	Location() string
}

// Bindable is the capability set shared by every synchronized entity.
type Bindable interface {
	Dynamic

	RdID() rdid.ID
	Identify(ids *rdid.Identities, id rdid.ID) error
	Bind(lt *lifetime.Lifetime, parent Dynamic, name string) error
	IsBound() bool
}

// Protocol is one endpoint of a connection.
//
// Thread-safety: accessors are safe from any goroutine. Binding must happen
// on the endpoint scheduler and is asserted.
type Protocol struct {
	name        string
	ids         *rdid.Identities
	sched       scheduler.Scheduler
	wire        wire.Wire
	serializers *serial.Registry
	lt          *lifetime.Lifetime
	logger      *slog.Logger
	sink        *diag.Sink
	session     uuid.UUID
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithLogger sets the base logger. The endpoint name and session id are
// attached to it.
func WithLogger(l *slog.Logger) Option {
	return func(p *Protocol) {
		p.logger = l
	}
}

// WithSink reports violations to s in addition to logging them.
func WithSink(s *diag.Sink) Option {
	return func(p *Protocol) {
		p.sink = s
	}
}

// WithSerializers shares a registry between endpoints.
func WithSerializers(r *serial.Registry) Option {
	return func(p *Protocol) {
		p.serializers = r
	}
}

// WithSessionID overrides the generated session id.
func WithSessionID(id uuid.UUID) Option {
	return func(p *Protocol) {
		p.session = id
	}
}

// New creates an endpoint. Entities bound with BindStatic live until lt
// terminates.
func New(name string, kind rdid.Kind, sched scheduler.Scheduler, w wire.Wire, lt *lifetime.Lifetime, opts ...Option) *Protocol {
	p := &Protocol{
		name:   name,
		ids:    rdid.NewIdentities(kind),
		sched:  sched,
		wire:   w,
		lt:     lt,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.serializers == nil {
		p.serializers = serial.NewRegistry()
	}
	if p.session == uuid.Nil {
		p.session = uuid.Must(uuid.NewV7())
	}
	p.logger = p.logger.With(
		"endpoint", p.name,
		"session", p.session.String(),
	)
	return p
}

// Name returns the endpoint name.
func (p *Protocol) Name() string { return p.name }

// Identities returns the endpoint id allocator.
func (p *Protocol) Identities() *rdid.Identities { return p.ids }

// Scheduler returns the endpoint scheduler.
func (p *Protocol) Scheduler() scheduler.Scheduler { return p.sched }

// Wire returns the endpoint wire.
func (p *Protocol) Wire() wire.Wire { return p.wire }

// Serializers returns the serializer registry.
func (p *Protocol) Serializers() *serial.Registry { return p.serializers }

// Lifetime returns the root lifetime.
func (p *Protocol) Lifetime() *lifetime.Lifetime { return p.lt }

// Logger returns the endpoint logger.
func (p *Protocol) Logger() *slog.Logger { return p.logger }

// Sink returns the diagnostics sink, or nil.
func (p *Protocol) Sink() *diag.Sink { return p.sink }

// SessionID returns the endpoint session id.
func (p *Protocol) SessionID() uuid.UUID { return p.session }

// Protocol implements Dynamic.
func (p *Protocol) Protocol() (*Protocol, error) { return p, nil }

// Location implements Dynamic. Top-level entities are named by their bind
// name alone.
func (p *Protocol) Location() string { return "" }

// SerializationContext returns the context passed to marshallers.
func (p *Protocol) SerializationContext() *serial.Context {
	return &serial.Context{Serializers: p.serializers}
}

// BindStatic identifies b from name unless it already has an id, then
// binds it under the root lifetime.
func (p *Protocol) BindStatic(b Bindable, name string) error {
	if b.RdID().IsNull() {
		if err := b.Identify(p.ids, rdid.FromName(name)); err != nil {
			return err
		}
	}
	return b.Bind(p.lt, p, name)
}

// Advise registers h for id on the wire. Handler errors are reported
// instead of being returned to the transport.
func (p *Protocol) Advise(lt *lifetime.Lifetime, id rdid.ID, h wire.Handler) error {
	return p.wire.Advise(lt, id, func(payload []byte) error {
		if err := h(payload); err != nil {
			return p.Report(err)
		}
		return nil
	})
}

// Report logs a violation and forwards it to the sink.
// It returns the sink's immediate error when called on the sink owner.
func (p *Protocol) Report(err error) error {
	p.logger.Error("protocol violation",
		"category", "protocol",
		"code", string(rderr.CodeOf(err)),
		"error", err,
	)
	if p.sink == nil {
		return nil
	}
	return p.sink.Report(slog.LevelError, "protocol", "protocol violation", err)
}

// Static assigns the static id n to b.
func Static[B Bindable](b B, n int) (B, error) {
	id, err := rdid.Static(n)
	if err != nil {
		return b, err
	}
	return b, b.Identify(nil, id)
}

// WithIDFromName assigns the id derived from name to b.
func WithIDFromName[B Bindable](b B, name string) (B, error) {
	return b, b.Identify(nil, rdid.FromName(name))
}
