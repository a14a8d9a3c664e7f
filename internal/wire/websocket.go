package wire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by Deliver after the connection has shut down.
var ErrClosed = errors.New("wire: websocket closed")

// WebSocketSettings holds connection timeouts.
type WebSocketSettings struct {
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
}

// DefaultWebSocketSettings returns the settings used when none are given.
func DefaultWebSocketSettings() WebSocketSettings {
	return WebSocketSettings{
		WriteTimeout:     5 * time.Second,
		HandshakeTimeout: 2 * time.Second,
	}
}

// WebSocket is a Transport over one gorilla/websocket connection.
// Each frame travels as one binary message.
//
// Deliver never waits for the network: frames go to an unbounded outbox
// drained by the write loop.
type WebSocket struct {
	conn     *websocket.Conn
	settings WebSocketSettings
	logger   *slog.Logger

	out       outbox
	done      chan struct{}
	closeOnce sync.Once
}

// outbox is the unbounded queue between Deliver and the write loop.
type outbox struct {
	mu     sync.Mutex
	items  [][]byte
	signal chan struct{} // buffered, size 1
}

func (o *outbox) push(msg []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = append(o.items, msg)
	select {
	case o.signal <- struct{}{}:
	default:
	}
}

func (o *outbox) drain() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	items := o.items
	o.items = nil
	return items
}


// NewWebSocket wraps an established connection.
func NewWebSocket(conn *websocket.Conn, settings WebSocketSettings, logger *slog.Logger) *WebSocket {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocket{
		conn:     conn,
		settings: settings,
		logger:   logger,
		out:      outbox{signal: make(chan struct{}, 1)},
		done:     make(chan struct{}),
	}
}

// Dial connects to a WebSocket endpoint.
func Dial(ctx context.Context, url string, settings WebSocketSettings, logger *slog.Logger) (*WebSocket, error) {
	dialer := websocket.Dialer{HandshakeTimeout: settings.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewWebSocket(conn, settings, logger), nil
}

// Upgrader returns an upgrader for the accepting side.
func Upgrader(settings WebSocketSettings) *websocket.Upgrader {
	return &websocket.Upgrader{
		HandshakeTimeout: settings.HandshakeTimeout,
		CheckOrigin:      func(*http.Request) bool { return true },
	}
}

// Deliver queues f for the write loop.
func (w *WebSocket) Deliver(f Frame) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}
	w.out.push(EncodeFrame(f))
	return nil
}

// Run attaches w to b and pumps frames until ctx ends or the peer closes.
// A clean shutdown returns nil.
func (w *WebSocket) Run(ctx context.Context, b *Broker) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b.SetTransport(w)

	g, ctx := errgroup.WithContext(ctx)
	writerDone := make(chan struct{})

	g.Go(func() error {
		defer cancel()
		return w.readLoop(ctx, b)
	})

	g.Go(func() error {
		defer close(writerDone)
		defer cancel()
		return w.writeLoop(ctx)
	})

	// The read loop only returns once the connection closes, which must
	// wait for the writer to flush.
	g.Go(func() error {
		<-ctx.Done()
		<-writerDone
		w.close()
		_ = w.conn.Close()
		return nil
	})

	return g.Wait()
}

func (w *WebSocket) readLoop(ctx context.Context, b *Broker) error {
	for {
		messageType, message, err := w.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("websocket read: %w", err)
		}
		if messageType != websocket.BinaryMessage {
			w.logger.Debug("ignoring non-binary websocket message", "type", messageType)
			continue
		}

		f, err := DecodeFrame(message)
		if err != nil {
			w.logger.Warn("dropping malformed frame", "endpoint", b.Name(), "error", err)
			continue
		}
		b.Dispatch(f)
	}
}

func (w *WebSocket) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			// Flush what is already queued, then say goodbye.
			for _, msg := range w.out.drain() {
				if err := w.write(msg); err != nil {
					return nil
				}
			}
			deadline := time.Now().Add(w.settings.WriteTimeout)
			_ = w.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return nil

		case <-w.out.signal:
			for _, msg := range w.out.drain() {
				if err := w.write(msg); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("websocket write: %w", err)
				}
			}
		}
	}
}

func (w *WebSocket) write(msg []byte) error {
	if w.settings.WriteTimeout > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.settings.WriteTimeout))
	}
	return w.conn.WriteMessage(websocket.BinaryMessage, msg)
}

func (w *WebSocket) close() {
	w.closeOnce.Do(func() {
		close(w.done)
	})
}

// Close stops accepting frames and closes the connection.
func (w *WebSocket) Close() error {
	w.close()
	return w.conn.Close()
}
