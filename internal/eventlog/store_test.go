package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/agentrund/pkg/types"
)

func TestAppendSequenceNumbersAreDenseAndMonotonic(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	sid := types.NewSessionID()
	seqs, err := store.Append(context.Background(), sid, []types.EventPayload{
		types.SessionCreatedPayload{},
		types.MessageAppendedPayload{},
		types.MessageAppendedPayload{},
	})
	require.NoError(t, err)
	assert.Equal(t, []types.SequenceNumber{1, 2, 3}, seqs)

	more, err := store.Append(context.Background(), sid, []types.EventPayload{types.MessageAppendedPayload{}})
	require.NoError(t, err)
	assert.Equal(t, []types.SequenceNumber{4}, more)
}

func TestReadReturnsPrefix(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	sid := types.NewSessionID()
	_, err = store.Append(context.Background(), sid, []types.EventPayload{
		types.SessionCreatedPayload{},
		types.MessageAppendedPayload{},
		types.MessageAppendedPayload{},
	})
	require.NoError(t, err)

	events, err := store.Read(context.Background(), sid, 2, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, types.SequenceNumber(2), events[0].SequenceNumber)
	assert.Equal(t, types.SequenceNumber(3), events[1].SequenceNumber)
}

func TestReadUnknownSessionIsNotFound(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Read(context.Background(), types.NewSessionID(), 1, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTailDeliversBacklogThenLiveGaplessly(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	sid := types.NewSessionID()
	_, err = store.Append(context.Background(), sid, []types.EventPayload{
		types.SessionCreatedPayload{},
		types.MessageAppendedPayload{},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := store.Tail(ctx, sid, 1)
	require.NoError(t, err)

	var got []types.SequenceNumber
	for i := 0; i < 2; i++ {
		select {
		case ev := <-ch:
			got = append(got, ev.SequenceNumber)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for backlog event")
		}
	}
	assert.Equal(t, []types.SequenceNumber{1, 2}, got)

	_, err = store.Append(context.Background(), sid, []types.EventPayload{types.MessageAppendedPayload{}})
	require.NoError(t, err)

	select {
	case ev := <-ch:
		assert.Equal(t, types.SequenceNumber(3), ev.SequenceNumber)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for live event")
	}
}

func TestListSessionsAndDelete(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	sid := types.NewSessionID()
	_, err = store.Append(context.Background(), sid, []types.EventPayload{types.SessionCreatedPayload{}})
	require.NoError(t, err)

	summaries, err := store.ListSessions(context.Background(), SessionFilter{})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, sid, summaries[0].ID)

	require.NoError(t, store.Delete(context.Background(), sid))

	summaries, err = store.ListSessions(context.Background(), SessionFilter{})
	require.NoError(t, err)
	assert.Empty(t, summaries)
}
