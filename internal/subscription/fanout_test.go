package subscription

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/agentrund/internal/eventlog"
	"github.com/opencode-ai/agentrund/internal/session"
	"github.com/opencode-ai/agentrund/pkg/types"
)

func newTestStore(t *testing.T) eventlog.Store {
	t.Helper()
	store, err := eventlog.New(filepath.Join(t.TempDir(), "events"))
	require.NoError(t, err)
	return store
}

func drain(t *testing.T, ch <-chan Envelope, n int, timeout time.Duration) []Envelope {
	t.Helper()
	var out []Envelope
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case env, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, env)
		case <-deadline:
			t.Fatalf("timed out waiting for %d envelopes, got %d", n, len(out))
		}
	}
	return out
}

func TestSubscribeReplaysBacklogThenLive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newTestStore(t)
	sessionID := types.SessionID("sess1")
	_, err := store.Append(ctx, sessionID, []types.EventPayload{
		types.MessageAppendedPayload{Message: types.Message{ID: "m1"}},
		types.MessageAppendedPayload{Message: types.Message{ID: "m2"}},
	})
	require.NoError(t, err)

	f := NewFanout(8)
	out, err := f.Subscribe(ctx, store, sessionID, 1)
	require.NoError(t, err)

	envs := drain(t, out, 2, time.Second)
	require.Len(t, envs, 2)
	assert.Equal(t, types.SequenceNumber(1), envs[0].Event.SequenceNumber)
	assert.Equal(t, types.SequenceNumber(2), envs[1].Event.SequenceNumber)

	f.Broadcast(sessionID, types.Event{SessionID: sessionID, SequenceNumber: 3, Kind: types.EventOperationCompleted})
	envs = drain(t, out, 1, time.Second)
	require.Len(t, envs, 1)
	assert.Equal(t, types.SequenceNumber(3), envs[0].Event.SequenceNumber)
}

func TestSubscribeDedupesAcrossBacklogLiveSeam(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newTestStore(t)
	sessionID := types.SessionID("sess1")
	_, err := store.Append(ctx, sessionID, []types.EventPayload{
		types.MessageAppendedPayload{Message: types.Message{ID: "m1"}},
	})
	require.NoError(t, err)

	f := NewFanout(8)
	out, err := f.Subscribe(ctx, store, sessionID, 1)
	require.NoError(t, err)

	// A duplicate of the already-replayed backlog event, as if the
	// broadcaster raced the backlog read, must not be redelivered.
	f.Broadcast(sessionID, types.Event{SessionID: sessionID, SequenceNumber: 1, Kind: types.EventMessageAppended})
	f.Broadcast(sessionID, types.Event{SessionID: sessionID, SequenceNumber: 2, Kind: types.EventOperationCompleted})

	envs := drain(t, out, 2, time.Second)
	require.Len(t, envs, 2)
	assert.Equal(t, types.SequenceNumber(1), envs[0].Event.SequenceNumber)
	assert.Equal(t, types.SequenceNumber(2), envs[1].Event.SequenceNumber)
}

func TestBroadcastDeltaDeliversToSubscriber(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newTestStore(t)
	sessionID := types.SessionID("sess1")

	f := NewFanout(8)
	out, err := f.Subscribe(ctx, store, sessionID, 1)
	require.NoError(t, err)

	f.BroadcastDelta(sessionID, types.OpID("op1"), session.ProviderDelta{Text: "hello"})

	envs := drain(t, out, 1, time.Second)
	require.Len(t, envs, 1)
	require.NotNil(t, envs[0].Delta)
	assert.Equal(t, types.OpID("op1"), envs[0].Delta.OpID)
	assert.Equal(t, "hello", envs[0].Delta.Delta.Text)
}

func TestLaggedSubscriberIsDroppedWithTerminalError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newTestStore(t)
	sessionID := types.SessionID("sess1")

	f := NewFanout(1)
	out, err := f.Subscribe(ctx, store, sessionID, 1)
	require.NoError(t, err)

	// Flood well past the buffer without draining out, forcing an overflow.
	for i := 1; i <= 20; i++ {
		f.Broadcast(sessionID, types.Event{
			SessionID: sessionID, SequenceNumber: types.SequenceNumber(i), Kind: types.EventOperationCompleted,
		})
	}

	var sawLagged bool
	deadline := time.After(5 * time.Second)
	for !sawLagged {
		select {
		case env, ok := <-out:
			if !ok {
				t.Fatal("channel closed without a terminal Lagged envelope")
			}
			if env.Err != nil {
				require.ErrorIs(t, env.Err, ErrLagged)
				sawLagged = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for lagged subscriber to be dropped")
		}
	}

	_, ok := <-out
	assert.False(t, ok, "channel closes after the terminal Lagged envelope")
}

func TestMultipleSubscribersAreIndependent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newTestStore(t)
	sessionID := types.SessionID("sess1")

	f := NewFanout(8)
	outA, err := f.Subscribe(ctx, store, sessionID, 1)
	require.NoError(t, err)
	outB, err := f.Subscribe(ctx, store, sessionID, 1)
	require.NoError(t, err)

	f.Broadcast(sessionID, types.Event{SessionID: sessionID, SequenceNumber: 1, Kind: types.EventOperationCompleted})

	a := drain(t, outA, 1, time.Second)
	b := drain(t, outB, 1, time.Second)
	assert.Equal(t, types.SequenceNumber(1), a[0].Event.SequenceNumber)
	assert.Equal(t, types.SequenceNumber(1), b[0].Event.SequenceNumber)
}
