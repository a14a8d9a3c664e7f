package rdid

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rdsync/internal/rderr"
)

func TestMix_Deterministic(t *testing.T) {
	a := FromName("top").Mix("foo")
	b := FromName("top").Mix("foo")
	assert.Equal(t, a, b)
}

func TestMix_SiblingsNeverCollide(t *testing.T) {
	parents := []ID{Null, 1, 42, FromName("top")}
	for _, parent := range parents {
		seen := make(map[ID]string)
		for i := 0; i < 2000; i++ {
			key := fmt.Sprintf("%d", i)
			id := parent.Mix(key)
			if prev, ok := seen[id]; ok {
				t.Fatalf("parent %s: keys %q and %q collide on %s", parent, prev, key, id)
			}
			seen[id] = key
		}
	}
	assert.NotEqual(t, Null.Mix("a"), Null.Mix("b"))
}

func TestMix_OrderSensitive(t *testing.T) {
	// Not required to differ, but the chosen hash does.
	assert.NotEqual(t, Null.Mix("a").Mix("b"), Null.Mix("b").Mix("a"))
}

func TestMix_NeverInReservedRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		id := ID(i).Mix("x")
		assert.False(t, id.IsNull())
		assert.False(t, id.IsStatic())
	}
}

func TestMix_NFCNormalizesKey(t *testing.T) {
	composed := "\u00e9"
	decomposed := "e\u0301"
	assert.Equal(t, Null.Mix(composed), Null.Mix(decomposed))
}

func TestFromName_IsNullMix(t *testing.T) {
	top := FromName("top")
	assert.Equal(t, Null.Mix("top"), top)
	assert.NotEqual(t, top.Mix("0"), top.Mix("00"))
	assert.NotEqual(t, top, FromName(" top"))
}

func TestStatic(t *testing.T) {
	tests := []struct {
		n       int
		wantErr bool
	}{
		{n: 1},
		{n: MaxStaticID - 1},
		{n: 0, wantErr: true},
		{n: -5, wantErr: true},
		{n: MaxStaticID, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d", tt.n), func(t *testing.T) {
			id, err := Static(tt.n)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, rderr.ErrInvalidArgument))
				assert.True(t, id.IsNull())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, ID(tt.n), id)
			assert.True(t, id.IsStatic())
		})
	}
}

func TestIdentities_NextDisjointAcrossSides(t *testing.T) {
	client := NewIdentities(KindClient)
	server := NewIdentities(KindServer)
	parent := FromName("top")

	seen := make(map[ID]bool)
	for i := 0; i < 100; i++ {
		c := client.Next(parent)
		s := server.Next(parent)
		assert.False(t, seen[c])
		assert.False(t, seen[s])
		seen[c] = true
		seen[s] = true
	}
	assert.Len(t, seen, 200)
}

func TestIdentities_NilMixes(t *testing.T) {
	var ids *Identities
	assert.Equal(t, Null.Mix("k"), ids.Mix(Null, "k"))
	assert.Equal(t, Kind(0), ids.Kind())
}
