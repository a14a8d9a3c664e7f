package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/rdsync/internal/diag"
	"github.com/roach88/rdsync/internal/entity"
	"github.com/roach88/rdsync/internal/lifetime"
	"github.com/roach88/rdsync/internal/metrics"
	"github.com/roach88/rdsync/internal/protocol"
	"github.com/roach88/rdsync/internal/rdid"
	"github.com/roach88/rdsync/internal/scheduler"
	"github.com/roach88/rdsync/internal/store"
	"github.com/roach88/rdsync/internal/wire"
)

// Transports accepted by the demo command.
const (
	TransportPipe      = "pipe"
	TransportWebSocket = "ws"
)

// DemoOptions holds flags for the demo command.
type DemoOptions struct {
	*RootOptions
	Transport string
	Addr      string
	Database  string
	Timeout   time.Duration
}

// MetricSample is one gathered metric value.
type MetricSample struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
}

// JournalSummary reports the verification of a demo journal.
type JournalSummary struct {
	Path       string   `json:"path"`
	Sessions   int      `json:"sessions"`
	Entities   int      `json:"entities"`
	Messages   int      `json:"messages"`
	Consistent bool     `json:"consistent"`
	Mismatches []string `json:"mismatches,omitempty"`
}

// DemoResult is the outcome of a demo run.
type DemoResult struct {
	Transport string          `json:"transport"`
	Log       []string        `json:"log"`
	Server    []string        `json:"server"`
	Client    []string        `json:"client"`
	Metrics   []MetricSample  `json:"metrics"`
	Journal   *JournalSummary `json:"journal,omitempty"`
}

// NewDemoCommand creates the demo command.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DemoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Synchronize a list between two endpoints",
		Long: `Run a server and a client endpoint, each on its own event loop, and
synchronize a list of strings between them.

The server fills the list before either side binds; both sides then edit
it. The command prints the client's change log, both replicas and the wire
metrics. With --db every message is journaled and the journal is verified
afterwards.

Exit codes:
  0 - Replicas converged
  1 - Replicas or journal diverged, or a protocol violation was reported
  2 - Command error (transport setup, database, timeout)

Examples:
  rdsync demo
  rdsync demo --transport ws
  rdsync demo --db ./journal.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Transport, "transport", TransportPipe, "transport between endpoints (pipe|ws)")
	cmd.Flags().StringVar(&opts.Addr, "addr", "127.0.0.1:0", "listen address for the ws transport")
	cmd.Flags().StringVar(&opts.Database, "db", "", "journal every message to this SQLite database")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "overall deadline")

	return cmd
}

// demoEndpoint is one side of the demo. Its list is only touched on its
// loop.
type demoEndpoint struct {
	name   string
	loop   *scheduler.Loop
	broker *wire.Broker
	proto  *protocol.Protocol
	lt     *lifetime.Lifetime
	list   *entity.List[string]
}

func newDemoEndpoint(name string, kind rdid.Kind, logger *slog.Logger, sink *diag.Sink, taps []wire.Tap) (*demoEndpoint, error) {
	loop := scheduler.NewLoop(name, scheduler.WithLogger(logger))

	brokerOpts := []wire.BrokerOption{wire.WithLogger(logger)}
	for _, tap := range taps {
		brokerOpts = append(brokerOpts, wire.WithTap(tap))
	}
	broker := wire.NewBroker(name, loop, brokerOpts...)

	lt := lifetime.New()
	list, err := protocol.Static(entity.NewList[string](), 1)
	if err != nil {
		return nil, err
	}
	return &demoEndpoint{
		name:   name,
		loop:   loop,
		broker: broker,
		proto:  protocol.New(name, kind, loop, broker, lt, protocol.WithLogger(logger), protocol.WithSink(sink)),
		lt:     lt,
		list:   list,
	}, nil
}

// do runs fn on the endpoint's loop and returns its error.
func (e *demoEndpoint) do(ctx context.Context, fn func() error) error {
	var err error
	if doErr := e.loop.Do(ctx, func() { err = fn() }); doErr != nil {
		return doErr
	}
	if err != nil {
		return fmt.Errorf("%s: %w", e.name, err)
	}
	return nil
}

func runDemo(opts *DemoOptions, cmd *cobra.Command) error {
	if opts.Transport != TransportPipe && opts.Transport != TransportWebSocket {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid transport %q: must be %s or %s", opts.Transport, TransportPipe, TransportWebSocket))
	}
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()

	reg := prometheus.NewRegistry()
	taps := []wire.Tap{metrics.NewWireMetrics(reg)}

	var st *store.Store
	var rec *store.Recorder
	if opts.Database != "" {
		var err error
		st, err = openJournal(ctx, opts.Database)
		if err != nil {
			return err
		}
		defer st.Close()
		rec = store.NewRecorder(st, store.NewLogicalClock(), logger)
		taps = append(taps, rec)
	}

	sink := diag.NewSink()
	server, err := newDemoEndpoint("server", rdid.KindServer, logger, sink, taps)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create server endpoint", err)
	}
	client, err := newDemoEndpoint("client", rdid.KindClient, logger, sink, taps)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create client endpoint", err)
	}
	if rec != nil {
		for _, e := range []*demoEndpoint{server, client} {
			if err := rec.Register(ctx, e.name, e.proto.SessionID(), e.proto.Identities().Kind()); err != nil {
				return WrapExitError(ExitCommandError, "failed to record session", err)
			}
		}
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)
	for _, e := range []*demoEndpoint{server, client} {
		e := e
		g.Go(func() error { return ignoreCanceled(e.loop.Run(gctx)) })
	}

	if err := connectDemo(gctx, g, opts, logger, server, client); err != nil {
		stop()
		_ = g.Wait()
		return WrapExitError(ExitCommandError, "failed to connect endpoints", err)
	}
	formatter.VerboseLog("endpoints connected over %s", opts.Transport)

	result := &DemoResult{Transport: opts.Transport}
	scriptErr := runDemoScript(gctx, server, client, &result.Log)
	if scriptErr == nil {
		scriptErr = collectReplicas(gctx, server, client, result)
	}

	for _, e := range []*demoEndpoint{server, client} {
		_ = e.loop.Do(gctx, e.lt.Terminate)
	}
	stop()
	if err := g.Wait(); err != nil && scriptErr == nil {
		scriptErr = err
	}
	if scriptErr != nil {
		return WrapExitError(ExitCommandError, "demo did not complete", scriptErr)
	}

	result.Metrics, err = gatherMetrics(reg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to gather metrics", err)
	}
	if st != nil {
		result.Journal, err = summarizeJournal(ctx, st, opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to verify journal", err)
		}
	}

	var failure *CLIError
	switch {
	case !slices.Equal(result.Server, result.Client):
		failure = &CLIError{Code: CodeReplicaMismatch, Message: "replicas diverged"}
	case result.Journal != nil && !result.Journal.Consistent:
		failure = &CLIError{Code: CodeJournalMismatch, Message: "journal verification failed"}
	}
	if violations := sink.Drain(); violations != nil && failure == nil {
		failure = &CLIError{Code: CodeViolation, Message: violations.Error()}
	}

	return formatter.Report(result, func(w io.Writer) { writeDemoText(w, result) }, failure)
}

// openJournal opens path and refuses journals that already hold sessions,
// since verification pairs exactly two.
func openJournal(ctx context.Context, path string) (*store.Store, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	sessions, err := st.ReadSessions(ctx)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to read sessions", err)
	}
	if len(sessions) > 0 {
		st.Close()
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("journal %s already holds %d session(s)", path, len(sessions)))
	}
	return st, nil
}

func connectDemo(ctx context.Context, g *errgroup.Group, opts *DemoOptions, logger *slog.Logger, server, client *demoEndpoint) error {
	if opts.Transport == TransportPipe {
		wire.Connect(server.broker, client.broker)
		return nil
	}

	settings := wire.DefaultWebSocketSettings()
	upgrader := wire.Upgrader(settings)

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return err
	}

	accepted := make(chan *wire.WebSocket, 1)
	srv := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				logger.Warn("websocket upgrade failed", "error", err)
				return
			}
			select {
			case accepted <- wire.NewWebSocket(conn, settings, logger):
			default:
				logger.Warn("rejecting second connection", "remote", r.RemoteAddr)
				_ = conn.Close()
			}
		}),
		ReadHeaderTimeout: settings.HandshakeTimeout,
	}

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return srv.Close()
	})

	url := "ws://" + ln.Addr().String() + "/"
	logger.Debug("dialing", "url", url)
	clientWS, err := wire.Dial(ctx, url, settings, logger)
	if err != nil {
		return err
	}
	g.Go(func() error { return clientWS.Run(ctx, client.broker) })

	select {
	case serverWS := <-accepted:
		g.Go(func() error { return serverWS.Run(ctx, server.broker) })
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runDemoScript replays the reference exchange: the server fills the list
// while unbound, the client observes and binds first, then both edit.
func runDemoScript(ctx context.Context, server, client *demoEndpoint, log *[]string) error {
	steps := []struct {
		on *demoEndpoint
		fn func() error
	}{
		{server, func() error {
			return server.list.AddAll("Server value 1", "Server value 2", "Server value 3")
		}},
		{client, func() error {
			client.list.Advise(client.lt, func(ev entity.Event[string]) {
				*log = append(*log, ev.String())
			})
			return client.proto.BindStatic(client.list, "top")
		}},
		{server, func() error { return server.proto.BindStatic(server.list, "top") }},
		{server, func() error { return server.list.Add("Server value 4") }},
		{client, func() error { return client.list.Set(3, "Client value 4") }},
		{client, func() error { return client.list.Add("Client value 5") }},
		{server, func() error { return server.list.Set(4, "Server value 5") }},
	}

	for _, step := range steps {
		if err := step.on.do(ctx, step.fn); err != nil {
			return err
		}
		if err := settle(ctx, server, client); err != nil {
			return err
		}
	}
	return nil
}

// settle waits until every sent message has been received and handled on
// both sides.
func settle(ctx context.Context, a, b *demoEndpoint) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		sentA, sentB := a.broker.Sent(), b.broker.Sent()
		if sentA == b.broker.Received() && sentB == a.broker.Received() {
			// Handlers run in queue order, so an empty task queued now
			// completes after every delivery already dispatched.
			if err := a.loop.Do(ctx, func() {}); err != nil {
				return err
			}
			if err := b.loop.Do(ctx, func() {}); err != nil {
				return err
			}
			if a.broker.Sent() == sentA && b.broker.Sent() == sentB {
				return nil
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func collectReplicas(ctx context.Context, server, client *demoEndpoint, result *DemoResult) error {
	if err := server.do(ctx, func() error {
		result.Server = server.list.Entries()
		return nil
	}); err != nil {
		return err
	}
	return client.do(ctx, func() error {
		result.Client = client.list.Entries()
		return nil
	})
}

// gatherMetrics flattens the registry into samples sorted by name and
// labels. Histograms contribute their sample count.
func gatherMetrics(reg *prometheus.Registry) ([]MetricSample, error) {
	families, err := reg.Gather()
	if err != nil {
		return nil, err
	}

	var samples []MetricSample
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			s := MetricSample{Name: mf.GetName(), Labels: make(map[string]string)}
			for _, lp := range m.GetLabel() {
				s.Labels[lp.GetName()] = lp.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				s.Value = m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				s.Name += "_count"
				s.Value = float64(m.GetHistogram().GetSampleCount())
			default:
				continue
			}
			samples = append(samples, s)
		}
	}

	sort.SliceStable(samples, func(i, j int) bool {
		if samples[i].Name != samples[j].Name {
			return samples[i].Name < samples[j].Name
		}
		return formatLabels(samples[i].Labels) < formatLabels(samples[j].Labels)
	})
	return samples, nil
}

func summarizeJournal(ctx context.Context, st *store.Store, path string) (*JournalSummary, error) {
	v, err := st.Verify(ctx)
	if err != nil {
		return nil, err
	}
	summary := &JournalSummary{
		Path:       path,
		Sessions:   len(v.Sessions),
		Entities:   v.Entities,
		Messages:   v.Messages,
		Consistent: v.OK(),
	}
	for _, m := range v.Mismatches {
		summary.Mismatches = append(summary.Mismatches, m.String())
	}
	return summary, nil
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func writeDemoText(w io.Writer, r *DemoResult) {
	fmt.Fprintf(w, "Transport: %s\n\n", r.Transport)

	fmt.Fprintln(w, "Client log:")
	for _, line := range r.Log {
		fmt.Fprintf(w, "  %s\n", line)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Server: %q\n", r.Server)
	fmt.Fprintf(w, "Client: %q\n\n", r.Client)

	fmt.Fprintln(w, "Metrics:")
	for _, s := range r.Metrics {
		fmt.Fprintf(w, "  %s%s %g\n", s.Name, formatLabels(s.Labels), s.Value)
	}

	if j := r.Journal; j != nil {
		fmt.Fprintln(w)
		status := "consistent"
		if !j.Consistent {
			status = "INCONSISTENT"
		}
		fmt.Fprintf(w, "Journal %s: %d sessions, %d entities, %d messages, %s\n",
			j.Path, j.Sessions, j.Entities, j.Messages, status)
		for _, m := range j.Mismatches {
			fmt.Fprintf(w, "  %s\n", m)
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
