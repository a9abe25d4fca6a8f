// Package subscription implements the subscription fan-out (§4.9): clients
// subscribe with (session_id, from_sequence), receive missing backlog from
// the event log first, then live events and deltas with no gap and no
// duplicate across the seam. A slow subscriber is bounded; on overflow it
// is dropped with a terminal Lagged error rather than slowing down — or
// blocking — anyone else, including the session actor doing the
// broadcasting.
//
// Grounded on telnet2-opencode's internal/event/bus.go (the gochannel
// pub/sub this package plays the same per-subscriber role around) and
// internal/server/sse.go for the backlog-then-live handoff an HTTP
// long-lived stream needs.
package subscription

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/opencode-ai/agentrund/internal/eventlog"
	"github.com/opencode-ai/agentrund/internal/session"
	"github.com/opencode-ai/agentrund/pkg/types"
)

// DefaultBufferSize is the bounded per-subscriber buffer §4.9 names as an
// example ("e.g. 1024 events").
const DefaultBufferSize = 1024

// ErrLagged is the terminal error delivered to a subscriber whose buffer
// overflowed. The subscriber must resubscribe from the last sequence
// number it observed.
var ErrLagged = errors.New("subscription: subscriber lagged and was dropped")

// DeltaEvent carries one non-persisted streamed delta (§4.4 step 2) to a
// live subscriber.
type DeltaEvent struct {
	OpID  types.OpID
	Delta session.ProviderDelta
}

// Envelope is one item delivered to a subscriber: exactly one of Event,
// Delta, or Err is set. Err, when set, is always the last item sent before
// the channel closes.
type Envelope struct {
	Event *types.Event
	Delta *DeltaEvent
	Err   error
}

type subscriber struct {
	sessionID types.SessionID
	ch        chan Envelope
	lastSeq   atomic.Uint64 // highest sequence number already delivered; dedups the backlog/live seam
	lagged    atomic.Bool
	closed    bool
}

// Fanout implements session.Broadcaster and additionally exposes Subscribe,
// the client-facing half of §4.9: backlog replay plus live tail, bounded
// per subscriber.
type Fanout struct {
	mu         sync.Mutex
	subs       map[types.SessionID]map[*subscriber]struct{}
	bufferSize int
}

// NewFanout constructs a Fanout. bufferSize <= 0 uses DefaultBufferSize.
func NewFanout(bufferSize int) *Fanout {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Fanout{
		subs:       make(map[types.SessionID]map[*subscriber]struct{}),
		bufferSize: bufferSize,
	}
}

// Broadcast implements session.Broadcaster.
func (f *Fanout) Broadcast(sessionID types.SessionID, ev types.Event) {
	e := ev
	f.publish(sessionID, Envelope{Event: &e}, e.SequenceNumber)
}

// BroadcastDelta implements session.Broadcaster.
func (f *Fanout) BroadcastDelta(sessionID types.SessionID, opID types.OpID, delta session.ProviderDelta) {
	f.publish(sessionID, Envelope{Delta: &DeltaEvent{OpID: opID, Delta: delta}}, 0)
}

// publish fans out to every live subscriber of sessionID. seq is the
// envelope's sequence number for dedup purposes, or 0 for a delta (which
// carries no sequence number and is never part of backlog replay, so it
// never needs dedup against it).
func (f *Fanout) publish(sessionID types.SessionID, env Envelope, seq types.SequenceNumber) {
	f.mu.Lock()
	subs := f.subs[sessionID]
	var lagged []*subscriber
	for sub := range subs {
		if sub.closed {
			continue
		}
		if seq != 0 && seq <= types.SequenceNumber(sub.lastSeq.Load()) {
			continue // already delivered via backlog
		}
		select {
		case sub.ch <- env:
			if seq != 0 {
				sub.lastSeq.Store(uint64(seq))
			}
		default:
			lagged = append(lagged, sub)
		}
	}
	for _, sub := range lagged {
		delete(subs, sub)
		sub.closed = true
		sub.lagged.Store(true)
	}
	f.mu.Unlock()

	// Close rather than send: the subscriber's own channel may already be
	// full, and a lagging subscriber is by definition not being drained
	// promptly, so a blocking send here would stall the broadcaster on the
	// exact subscriber this whole mechanism exists to shed. The forwarding
	// goroutine in Subscribe notices the close and the lagged flag, and
	// emits the terminal ErrLagged itself.
	for _, sub := range lagged {
		close(sub.ch)
	}
}

func (f *Fanout) register(sub *subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs[sub.sessionID] == nil {
		f.subs[sub.sessionID] = make(map[*subscriber]struct{})
	}
	f.subs[sub.sessionID][sub] = struct{}{}
}

func (f *Fanout) unregister(sub *subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if set := f.subs[sub.sessionID]; set != nil {
		delete(set, sub)
	}
}

// Subscribe implements §4.9 end to end: register for live events first (so
// nothing published while backlog is being read is lost), replay backlog
// from the event log, then stream live events deduplicated against the
// last backlog sequence number delivered. The returned channel is closed
// when ctx is cancelled or the subscriber lags (after one ErrLagged
// envelope); deleting the session does not close it.
func (f *Fanout) Subscribe(ctx context.Context, store eventlog.Store, sessionID types.SessionID, from types.SequenceNumber) (<-chan Envelope, error) {
	sub := &subscriber{
		sessionID: sessionID,
		ch:        make(chan Envelope, f.bufferSize),
	}
	if from > 0 {
		sub.lastSeq.Store(uint64(from - 1))
	}
	f.register(sub)

	backlog, err := store.Read(ctx, sessionID, from, 0)
	if err != nil && !errors.Is(err, eventlog.ErrNotFound) {
		f.unregister(sub)
		close(sub.ch)
		return nil, err
	}

	out := make(chan Envelope, f.bufferSize)
	go func() {
		defer close(out)
		defer f.unregister(sub)

		for _, ev := range backlog {
			e := ev
			select {
			case out <- Envelope{Event: &e}:
				sub.lastSeq.Store(uint64(e.SequenceNumber))
			case <-ctx.Done():
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-sub.ch:
				if !ok {
					if sub.lagged.Load() {
						select {
						case out <- Envelope{Err: ErrLagged}:
						case <-ctx.Done():
						}
					}
					return
				}
				if env.Event != nil && env.Event.SequenceNumber <= types.SequenceNumber(sub.lastSeq.Load()) {
					continue
				}
				select {
				case out <- env:
					if env.Event != nil {
						sub.lastSeq.Store(uint64(env.Event.SequenceNumber))
					}
					if env.Err != nil {
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
