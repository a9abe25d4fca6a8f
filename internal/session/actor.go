// Package session implements the session actor (§4.4/§5): one goroutine
// per live session, a single serialized inbox, driving exactly one
// operation at a time through internal/reducer and dispatching the effects
// it produces against the provider, the tool executor, and the approval
// gate. Grounded on telnet2-opencode's internal/session/loop.go for the
// step-limit/retry/backoff shape of the agentic loop, adapted from a
// monolithic function into the explicit Reduce/effect split this module's
// reducer already performs.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/opencode-ai/agentrund/internal/agent"
	"github.com/opencode-ai/agentrund/internal/approval"
	"github.com/opencode-ai/agentrund/internal/effect"
	"github.com/opencode-ai/agentrund/internal/eventlog"
	"github.com/opencode-ai/agentrund/internal/reducer"
	"github.com/opencode-ai/agentrund/internal/tool"
	"github.com/opencode-ai/agentrund/pkg/types"
)

// Retry/backoff/step-limit constants, carried over from
// telnet2-opencode's internal/session/loop.go.
const (
	MaxSteps              = 50
	MaxRetries            = 3
	RetryInitialInterval  = time.Second
	RetryMaxInterval      = 30 * time.Second
	RetryMaxElapsedTime   = 2 * time.Minute
	MaxContextTokens      = 150000
	ApprovalGateTimeout   = 10 * time.Minute
)

func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.MaxElapsedTime = RetryMaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, MaxRetries), ctx)
}

// Actor owns one session's in-memory AppState and is the only writer of
// that session's event log; every mutation flows through its inbox so
// concurrent client requests are serialized into a single, deterministic
// history (§5's "one actor per live session" requirement).
type Actor struct {
	sessionID types.SessionID

	store    eventlog.Store
	registry *tool.Registry
	executor *tool.Executor
	gate     *approval.Gate
	doomLoop *approval.DoomLoopDetector
	provider Provider
	bus      Broadcaster
	stepper  *agent.Stepper

	inbox chan inboxItem

	mu    sync.Mutex
	state reducer.AppState

	stepCounts map[types.OpID]int
	cancels    map[types.OpID]context.CancelFunc
}

type inboxItem struct {
	action effect.Action
	reply  chan error
}

// NewActor constructs an actor for sessionID. Call Load before Run to
// replay its event log into memory.
func NewActor(sessionID types.SessionID, store eventlog.Store, registry *tool.Registry, executor *tool.Executor, gate *approval.Gate, doomLoop *approval.DoomLoopDetector, provider Provider, bus Broadcaster) *Actor {
	if bus == nil {
		bus = NoopBroadcaster{}
	}
	return &Actor{
		sessionID:  sessionID,
		store:      store,
		registry:   registry,
		executor:   executor,
		gate:       gate,
		doomLoop:   doomLoop,
		provider:   provider,
		bus:        bus,
		stepper:    agent.NewStepper(),
		inbox:      make(chan inboxItem, 64),
		state:      reducer.New(),
		stepCounts: make(map[types.OpID]int),
		cancels:    make(map[types.OpID]context.CancelFunc),
	}
}

// Load replays the session's full event log into memory. Call once before
// Run.
func (a *Actor) Load(ctx context.Context) error {
	events, err := a.store.Read(ctx, a.sessionID, 0, 0)
	if err != nil {
		return fmt.Errorf("session: load %s: %w", a.sessionID, err)
	}
	state := reducer.New()
	for _, ev := range events {
		state = reducer.ApplyEvent(state, ev)
	}
	a.mu.Lock()
	a.state = state
	a.mu.Unlock()
	return nil
}

// Run processes the inbox until ctx is cancelled. It is meant to be the
// body of the actor's dedicated goroutine.
func (a *Actor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-a.inbox:
			err := a.apply(ctx, item.action)
			if item.reply != nil {
				item.reply <- err
			}
		}
	}
}

// Submit enqueues act and blocks until it has been applied (or ctx ends).
func (a *Actor) Submit(ctx context.Context, act effect.Action) error {
	reply := make(chan error, 1)
	select {
	case a.inbox <- inboxItem{action: act, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post enqueues act without waiting for it to be applied, used by
// background goroutines (provider streams, tool executions, approval
// replies) feeding their outcome back into the serialized inbox.
func (a *Actor) post(act effect.Action) {
	a.inbox <- inboxItem{action: act}
}

// SendMessage is the client-facing entry point for §4.4's "new user turn".
func (a *Actor) SendMessage(ctx context.Context, content []types.Block) (types.OpID, error) {
	opID := types.NewOpID()
	err := a.Submit(ctx, effect.SendMessage{
		MessageID: types.NewMessageID(),
		OpID:      opID,
		Content:   content,
		Now:       now(),
	})
	return opID, err
}

// EditMessage is the client-facing entry point for §4.2 scenario E4.
func (a *Actor) EditMessage(ctx context.Context, editOf types.MessageID, content []types.Block) (types.OpID, error) {
	opID := types.NewOpID()
	err := a.Submit(ctx, effect.EditMessage{
		NewMessageID: types.NewMessageID(),
		OpID:         opID,
		EditOf:       editOf,
		Content:      content,
		Now:          now(),
	})
	return opID, err
}

// Cancel requests cancellation of the session's active operation,
// pre-computing the synthetic failures Reduce needs to stay pure.
func (a *Actor) Cancel(ctx context.Context, opID types.OpID) error {
	a.mu.Lock()
	var failures []effect.SyntheticFailure
	ids := make([]types.ToolCallID, 0, len(a.state.PendingToolCalls))
	for id, pc := range a.state.PendingToolCalls {
		if pc.OpID == opID {
			ids = append(ids, id)
		}
	}
	a.mu.Unlock()

	sortToolCallIDs(ids)
	for _, id := range ids {
		failures = append(failures, effect.SyntheticFailure{ToolCallID: id, MessageID: types.NewMessageID()})
	}

	a.mu.Lock()
	cancel, ok := a.cancels[opID]
	a.mu.Unlock()
	if ok {
		cancel()
	}

	return a.Submit(ctx, effect.CancelOperation{OpID: opID, Now: now(), Failures: failures})
}

// Decide delivers a client's approval decision to the waiting Gate, which
// in turn feeds an ApprovalReceived action back into the inbox.
func (a *Actor) Decide(decision types.ApprovalDecision) error {
	return a.gate.Decide(decision.RequestID, decision)
}

// State returns a snapshot of the actor's current AppState for read-only
// RPCs (GetSession, ListMessages, ...).
func (a *Actor) State() reducer.AppState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func sortToolCallIDs(ids []types.ToolCallID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

func now() types.Timestamp { return types.Timestamp(time.Now().UnixMilli()) }
