package rdid

import (
	"crypto/sha256"
	"encoding/binary"
	"strconv"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/rdsync/internal/rderr"
)

// ID identifies an entity across endpoints.
type ID uint64

// Null is the unassigned id.
const Null ID = 0

// MaxStaticID bounds the reserved static range (exclusive).
const MaxStaticID = 1_000_000

// DomainMix separates mix hashes from any other SHA-256 use.
// The version suffix allows a future algorithm change.
const DomainMix = "rdsync/rdid/v1"

// IsNull reports whether id is unassigned.
func (id ID) IsNull() bool {
	return id == Null
}

// IsStatic reports whether id lies in the reserved static range.
func (id ID) IsStatic() bool {
	return id > Null && id < MaxStaticID
}

// String renders the id in decimal.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Mix derives a child id from id and key.
//
// Format: first 8 bytes (big-endian) of
// SHA256(DomainMix + 0x00 + bigEndian64(id) + NFC(key)).
// Results landing in [0, MaxStaticID) are shifted out of the reserved range.
// The parent is fixed width, so no separator is needed before the key.
func (id ID) Mix(key string) ID {
	var parent [8]byte
	binary.BigEndian.PutUint64(parent[:], uint64(id))

	h := sha256.New()
	h.Write([]byte(DomainMix))
	h.Write([]byte{0x00})
	h.Write(parent[:])
	h.Write([]byte(norm.NFC.String(key)))
	sum := h.Sum(nil)

	v := binary.BigEndian.Uint64(sum[:8])
	if v < MaxStaticID {
		v += MaxStaticID
	}
	return ID(v)
}

// Static returns the well-known id n.
// Fails with InvalidArgument unless 0 < n < MaxStaticID.
func Static(n int) (ID, error) {
	if n <= 0 || n >= MaxStaticID {
		return Null, rderr.New(rderr.CodeInvalidArgument, "",
			"static id must satisfy 0 < id < %d, got %d", MaxStaticID, n)
	}
	return ID(n), nil
}

// FromName derives a top-level id from a name: Null mixed with name.
func FromName(name string) ID {
	return Null.Mix(name)
}
