package harness

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/rdsync/internal/diag"
	"github.com/roach88/rdsync/internal/lifetime"
	"github.com/roach88/rdsync/internal/protocol"
	"github.com/roach88/rdsync/internal/rderr"
	"github.com/roach88/rdsync/internal/rdid"
	"github.com/roach88/rdsync/internal/scheduler"
	"github.com/roach88/rdsync/internal/wire"
)

// Option configures Run.
type Option func(*config)

type config struct {
	logger *slog.Logger
	taps   []wire.Tap
}

// WithLogger sets the endpoint logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithTap observes the traffic of both endpoints.
func WithTap(t wire.Tap) Option {
	return func(c *config) {
		c.taps = append(c.taps, t)
	}
}

// Harness holds the two endpoints of one scenario run.
type Harness struct {
	lt       *lifetime.Lifetime
	result   *Result
	replicas map[string]replica
	protos   map[string]*protocol.Protocol

	mu     sync.Mutex
	remote []string
}

// Run executes a scenario on a fresh pair of endpoints.
//
// Run returns an error only when the endpoints cannot be set up; failed
// expectations are reported in the result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := config{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &Harness{
		lt:       lifetime.New(),
		result:   NewResult(),
		replicas: make(map[string]replica),
		protos:   make(map[string]*protocol.Protocol),
	}
	defer h.lt.Terminate()

	sink := diag.NewSink()
	var brokers []*wire.Broker
	for i, side := range []string{SideServer, SideClient} {
		side := side
		kind := rdid.KindServer
		if side == SideClient {
			kind = rdid.KindClient
		}
		sched := scheduler.NewImmediate(side)
		brokerOpts := []wire.BrokerOption{
			wire.WithLogger(cfg.logger),
			wire.WithErrorHandler(func(id rdid.ID, err error) {
				h.recordRemote(fmt.Sprintf("%s received %s: %v", side, id, err))
			}),
		}
		for _, tap := range cfg.taps {
			brokerOpts = append(brokerOpts, wire.WithTap(tap))
		}
		b := wire.NewBroker(side, sched, brokerOpts...)
		brokers = append(brokers, b)

		proto := protocol.New(side, kind, sched, b, h.lt,
			protocol.WithLogger(cfg.logger),
			protocol.WithSink(sink),
			protocol.WithSessionID(sessionID(i+1)),
		)
		if scenario.List.Kind == KindDynamic {
			if err := proto.Serializers().Register(ItemMarshaller()); err != nil {
				return nil, fmt.Errorf("register item serializer: %w", err)
			}
		}

		r, err := newReplica(scenario.List)
		if err != nil {
			return nil, err
		}
		h.protos[side] = proto
		h.replicas[side] = r
	}
	wire.Connect(brokers[0], brokers[1])

	for i, step := range scenario.Steps {
		h.execute(i+1, scenario.List.Name, step)
	}

	h.result.Replicas = Replicas{
		Server: h.replicas[SideServer].entries(),
		Client: h.replicas[SideClient].entries(),
	}
	h.checkExpect(scenario.Expect)
	return h.result, nil
}

func (h *Harness) execute(n int, name string, step Step) {
	r := h.replicas[step.Side]
	log := func(line string) {
		h.result.Log = append(h.result.Log, line)
	}

	var err error
	switch step.Op {
	case OpAdd:
		err = r.add(step.Value)
	case OpAddAll:
		err = r.addAll(step.Values)
	case OpSet:
		err = r.set(*step.Index, step.Value)
	case OpRemove:
		err = r.remove(*step.Index)
	case OpClear:
		err = r.clear()
	case OpSetFlag:
		err = r.setFlag(*step.Index, step.Value)
	case OpBind:
		err = h.protos[step.Side].BindStatic(r.bindable(), name)
	case OpAdvise:
		r.advise(h.lt, log)
	case OpView:
		r.view(h.lt, log)
	default:
		err = fmt.Errorf("unknown op %q", step.Op)
	}

	ev := TraceEvent{
		Step:   n,
		Side:   step.Side,
		Op:     step.Op,
		Args:   describe(name, step),
		Server: h.replicas[SideServer].count(),
		Client: h.replicas[SideClient].count(),
	}
	if err != nil {
		ev.Error = string(rderr.CodeOf(err))
		if ev.Error == "" {
			ev.Error = err.Error()
		}
	}
	h.result.Trace = append(h.result.Trace, ev)

	if ev.Error != step.Error {
		if step.Error == "" {
			h.result.AddError(fmt.Sprintf("step %d: %s %s: unexpected error: %v", n, step.Side, step.Op, err))
		} else {
			h.result.AddError(fmt.Sprintf("step %d: %s %s: expected %s, got %q", n, step.Side, step.Op, step.Error, ev.Error))
		}
	}

	for _, msg := range h.drainRemote() {
		h.result.AddError(fmt.Sprintf("step %d: %s", n, msg))
	}
}

func (h *Harness) checkExpect(e Expect) {
	check := func(what string, got, want []string) {
		if want != nil && !slices.Equal(got, want) {
			h.result.AddError(fmt.Sprintf("expect.%s: got %q, want %q", what, got, want))
		}
	}
	check("server", h.result.Replicas.Server, e.Server)
	check("client", h.result.Replicas.Client, e.Client)
	check("log", h.result.Log, e.Log)
}

func (h *Harness) recordRemote(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remote = append(h.remote, msg)
}

func (h *Harness) drainRemote() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.remote
	h.remote = nil
	return out
}

func describe(name string, step Step) string {
	switch step.Op {
	case OpAdd:
		return formatValue(step.Value)
	case OpAddAll:
		parts := make([]string, len(step.Values))
		for i, v := range step.Values {
			parts[i] = formatValue(v)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case OpSet, OpSetFlag:
		return strconv.Itoa(*step.Index) + " " + formatValue(step.Value)
	case OpRemove:
		return strconv.Itoa(*step.Index)
	case OpBind:
		return name
	}
	return ""
}

// sessionID returns a fixed v7-shaped id so runs are reproducible.
func sessionID(n int) uuid.UUID {
	var id uuid.UUID
	id[6] = 0x70
	id[8] = 0x80
	id[15] = byte(n)
	return id
}
