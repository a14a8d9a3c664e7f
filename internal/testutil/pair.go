package testutil

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/roach88/rdsync/internal/diag"
	"github.com/roach88/rdsync/internal/lifetime"
	"github.com/roach88/rdsync/internal/protocol"
	"github.com/roach88/rdsync/internal/rdid"
	"github.com/roach88/rdsync/internal/scheduler"
	"github.com/roach88/rdsync/internal/serial"
	"github.com/roach88/rdsync/internal/wire"
)

// Pair is a server and a client endpoint joined by an in-memory wire.
//
// Both endpoints use immediate schedulers owned by the test goroutine, so
// a send is applied on the other side before it returns.
type Pair struct {
	Server     *protocol.Protocol
	Client     *protocol.Protocol
	ServerWire *wire.Broker
	ClientWire *wire.Broker
	Sink       *diag.Sink
	Lifetime   *lifetime.Lifetime

	mu     sync.Mutex
	errors []error
}

// PairOption configures NewPair.
type PairOption func(*pairConfig)

type pairConfig struct {
	logger *slog.Logger
	taps   []wire.Tap
}

// WithLogger sets the logger for both endpoints. The default discards.
func WithLogger(l *slog.Logger) PairOption {
	return func(c *pairConfig) {
		c.logger = l
	}
}

// WithTap observes traffic on both brokers.
func WithTap(t wire.Tap) PairOption {
	return func(c *pairConfig) {
		c.taps = append(c.taps, t)
	}
}

// NewPair creates a connected pair. The lifetime is terminated at test
// cleanup.
func NewPair(t testing.TB, opts ...PairOption) *Pair {
	t.Helper()

	cfg := pairConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Pair{
		Sink:     diag.NewSink(),
		Lifetime: lifetime.New(),
	}
	t.Cleanup(p.Lifetime.Terminate)

	newEndpoint := func(name string, kind rdid.Kind, n int) (*protocol.Protocol, *wire.Broker) {
		sched := scheduler.NewImmediate(name)
		brokerOpts := []wire.BrokerOption{
			wire.WithLogger(cfg.logger),
			wire.WithErrorHandler(func(_ rdid.ID, err error) { p.record(err) }),
		}
		for _, tap := range cfg.taps {
			brokerOpts = append(brokerOpts, wire.WithTap(tap))
		}
		b := wire.NewBroker(name, sched, brokerOpts...)
		proto := protocol.New(name, kind, sched, b, p.Lifetime,
			protocol.WithLogger(cfg.logger),
			protocol.WithSink(p.Sink),
			protocol.WithSessionID(SessionID(n)),
		)
		return proto, b
	}

	p.Server, p.ServerWire = newEndpoint("server", rdid.KindServer, 1)
	p.Client, p.ClientWire = newEndpoint("client", rdid.KindClient, 2)
	wire.Connect(p.ServerWire, p.ClientWire)
	return p
}

// Register adds m to both endpoints' serializer registries.
func (p *Pair) Register(t testing.TB, m serial.Marshaller) {
	t.Helper()
	for _, proto := range []*protocol.Protocol{p.Server, p.Client} {
		if err := proto.Serializers().Register(m); err != nil {
			t.Fatalf("register %s on %s: %v", m.Name(), proto.Name(), err)
		}
	}
}

// Errors returns the errors raised by message handlers on either side.
func (p *Pair) Errors() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error(nil), p.errors...)
}

func (p *Pair) record(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors = append(p.errors, err)
}
