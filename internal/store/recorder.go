package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/rdsync/internal/rdid"
)

// Recorder journals broker traffic. It implements wire.Tap.
//
// Endpoints must be registered before their traffic is recorded; messages
// from unknown endpoints are logged and dropped. Sequence assignment and
// insertion happen under one lock, so seq order is insertion order.
type Recorder struct {
	store  *Store
	clock  Clock
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]string
}

// NewRecorder creates a recorder writing to s.
func NewRecorder(s *Store, clock Clock, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:    s,
		clock:    clock,
		logger:   logger,
		sessions: make(map[string]string),
	}
}

// Register records a session for endpoint.
func (r *Recorder) Register(ctx context.Context, endpoint string, session uuid.UUID, kind rdid.Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess := Session{
		ID:         session.String(),
		Endpoint:   endpoint,
		Kind:       kind.String(),
		StartedSeq: r.clock.Next(),
	}
	if err := r.store.WriteSession(ctx, sess); err != nil {
		return err
	}
	r.sessions[endpoint] = sess.ID
	return nil
}

// Sent records an outbound message.
func (r *Recorder) Sent(endpoint string, id rdid.ID, payload []byte) {
	r.record(endpoint, DirectionSent, id, payload)
}

// Received records an inbound message.
func (r *Recorder) Received(endpoint string, id rdid.ID, payload []byte) {
	r.record(endpoint, DirectionReceived, id, payload)
}

func (r *Recorder) record(endpoint string, dir Direction, id rdid.ID, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessionID, ok := r.sessions[endpoint]
	if !ok {
		r.logger.Warn("journal: message from unregistered endpoint",
			"endpoint", endpoint,
			"id", id.String(),
		)
		return
	}

	m := Message{
		Seq:       r.clock.Next(),
		SessionID: sessionID,
		Direction: dir,
		EntityID:  id,
		Payload:   append([]byte(nil), payload...),
	}
	if err := r.store.WriteMessage(context.Background(), m); err != nil {
		r.logger.Error("journal: write failed",
			"endpoint", endpoint,
			"seq", m.Seq,
			"error", err,
		)
	}
}
