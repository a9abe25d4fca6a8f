package session

import "github.com/opencode-ai/agentrund/pkg/types"

// Broadcaster fans events out to live subscribers (§4.1's "live tail").
// Persisted events arrive via Broadcast; streamed deltas, which are never
// persisted (§4.4 step 2), arrive via BroadcastDelta instead.
type Broadcaster interface {
	Broadcast(sessionID types.SessionID, ev types.Event)
	BroadcastDelta(sessionID types.SessionID, opID types.OpID, delta ProviderDelta)
}

// NoopBroadcaster discards everything; useful for tests and for running an
// actor headless with no live subscribers attached yet.
type NoopBroadcaster struct{}

func (NoopBroadcaster) Broadcast(types.SessionID, types.Event)             {}
func (NoopBroadcaster) BroadcastDelta(types.SessionID, types.OpID, ProviderDelta) {}
