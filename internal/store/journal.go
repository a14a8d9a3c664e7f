package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/rdsync/internal/rdid"
)

// Direction is the direction of a journaled message.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Session is one endpoint's participation in a journal.
type Session struct {
	ID         string
	Endpoint   string
	Kind       string
	StartedSeq int64
}

// Message is one journaled wire message.
type Message struct {
	Seq       int64
	SessionID string
	Direction Direction
	EntityID  rdid.ID
	Payload   []byte
}

// WriteSession records a session. Writing the same id twice is a no-op.
func (s *Store) WriteSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, endpoint, kind, started_seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, sess.ID, sess.Endpoint, sess.Kind, sess.StartedSeq)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// WriteMessage appends a message. The session must exist.
func (s *Store) WriteMessage(ctx context.Context, m Message) error {
	payload := m.Payload
	if payload == nil {
		payload = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (seq, session_id, direction, entity_id, payload)
		VALUES (?, ?, ?, ?, ?)
	`, m.Seq, m.SessionID, string(m.Direction), int64(m.EntityID), payload)
	if err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// ReadSessions returns all sessions ordered by start.
func (s *Store) ReadSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, endpoint, kind, started_seq
		FROM sessions
		ORDER BY started_seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Endpoint, &sess.Kind, &sess.StartedSeq); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadMessages returns every message of a session in seq order.
func (s *Store) ReadMessages(ctx context.Context, sessionID string) ([]Message, error) {
	return s.queryMessages(ctx, `
		SELECT seq, session_id, direction, entity_id, payload
		FROM messages
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
}

// ReadEntityStream returns the messages a session sent or received for one
// entity, in seq order. For a list this is the order its operations were
// applied on that endpoint.
func (s *Store) ReadEntityStream(ctx context.Context, sessionID string, entity rdid.ID) ([]Message, error) {
	return s.queryMessages(ctx, `
		SELECT seq, session_id, direction, entity_id, payload
		FROM messages
		WHERE session_id = ? AND entity_id = ?
		ORDER BY seq ASC
	`, sessionID, int64(entity))
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

func scanMessage(rows *sql.Rows) (Message, error) {
	var m Message
	var direction string
	var entity int64
	if err := rows.Scan(&m.Seq, &m.SessionID, &direction, &entity, &m.Payload); err != nil {
		return Message{}, fmt.Errorf("scan message: %w", err)
	}
	m.Direction = Direction(direction)
	m.EntityID = rdid.ID(uint64(entity))
	return m, nil
}

// Payloads extracts message payloads in order.
func Payloads(messages []Message) [][]byte {
	out := make([][]byte, len(messages))
	for i, m := range messages {
		out[i] = m.Payload
	}
	return out
}
