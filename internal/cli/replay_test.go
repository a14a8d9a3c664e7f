package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rdsync/internal/store"
)

func TestReplayMissingDatabaseFlag(t *testing.T) {
	cmd := NewReplayCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestReplayEmptyJournal(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	st, err := store.Open(db)
	require.NoError(t, err)
	st.Close()

	_, err = executeJSON(t, "replay", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "exactly 2 sessions")
}

func TestReplayDetectsLostMessage(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	st, err := store.Open(db)
	require.NoError(t, err)
	require.NoError(t, st.WriteSession(ctx, store.Session{ID: "a", Endpoint: "server", Kind: "server", StartedSeq: 1}))
	require.NoError(t, st.WriteSession(ctx, store.Session{ID: "b", Endpoint: "client", Kind: "client", StartedSeq: 2}))
	require.NoError(t, st.WriteMessage(ctx, store.Message{Seq: 3, SessionID: "a", Direction: store.DirectionSent, EntityID: 1, Payload: []byte{0}}))
	st.Close()

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"replay", "--db", db})

	err = cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "sent but not received")
	assert.Contains(t, buf.String(), "Journal verification failed")
}
