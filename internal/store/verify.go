package store

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"github.com/roach88/rdsync/internal/rdid"
)

// Mismatch is the first divergence found for one entity and direction.
type Mismatch struct {
	Entity rdid.ID
	From   string
	To     string
	Index  int
	Reason string
}

// String formats the mismatch for reports.
func (m Mismatch) String() string {
	return fmt.Sprintf("%s -> %s entity %s message %d: %s", m.From, m.To, m.Entity, m.Index, m.Reason)
}

// Verification summarizes a journal check.
type Verification struct {
	Sessions   []Session
	Entities   int
	Messages   int
	Mismatches []Mismatch
}

// OK reports whether no mismatch was found.
func (v Verification) OK() bool {
	return len(v.Mismatches) == 0
}

// Verify checks a journal of exactly two sessions: for every entity, each
// side must have received precisely the messages the other sent, in send
// order.
func (s *Store) Verify(ctx context.Context) (Verification, error) {
	sessions, err := s.ReadSessions(ctx)
	if err != nil {
		return Verification{}, fmt.Errorf("verify: %w", err)
	}
	if len(sessions) != 2 {
		return Verification{}, fmt.Errorf("verify: need exactly 2 sessions, journal has %d", len(sessions))
	}

	a, b := sessions[0], sessions[1]
	msgsA, err := s.ReadMessages(ctx, a.ID)
	if err != nil {
		return Verification{}, fmt.Errorf("verify: %w", err)
	}
	msgsB, err := s.ReadMessages(ctx, b.ID)
	if err != nil {
		return Verification{}, fmt.Errorf("verify: %w", err)
	}

	v := Verification{
		Sessions: sessions,
		Messages: len(msgsA) + len(msgsB),
	}

	entities := make(map[rdid.ID]bool)
	for _, m := range msgsA {
		entities[m.EntityID] = true
	}
	for _, m := range msgsB {
		entities[m.EntityID] = true
	}
	v.Entities = len(entities)

	v.Mismatches = append(v.Mismatches, compare(a, b, msgsA, msgsB)...)
	v.Mismatches = append(v.Mismatches, compare(b, a, msgsB, msgsA)...)
	return v, nil
}

func byEntity(messages []Message, dir Direction) map[rdid.ID][][]byte {
	out := make(map[rdid.ID][][]byte)
	for _, m := range messages {
		if m.Direction == dir {
			out[m.EntityID] = append(out[m.EntityID], m.Payload)
		}
	}
	return out
}

func compare(from, to Session, fromMsgs, toMsgs []Message) []Mismatch {
	sent := byEntity(fromMsgs, DirectionSent)
	received := byEntity(toMsgs, DirectionReceived)

	var ids []rdid.ID
	for id := range sent {
		ids = append(ids, id)
	}
	for id := range received {
		if _, ok := sent[id]; !ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	var out []Mismatch
	for _, id := range ids {
		s, r := sent[id], received[id]
		for i := 0; i < max(len(s), len(r)); i++ {
			var reason string
			switch {
			case i >= len(r):
				reason = "sent but not received"
			case i >= len(s):
				reason = "received but never sent"
			case !bytes.Equal(s[i], r[i]):
				reason = "payload differs"
			default:
				continue
			}
			out = append(out, Mismatch{
				Entity: id,
				From:   from.Endpoint,
				To:     to.Endpoint,
				Index:  i,
				Reason: reason,
			})
			break
		}
	}
	return out
}
