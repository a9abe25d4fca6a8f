package session

import (
	"context"
	"sync"
	"time"

	"github.com/opencode-ai/agentrund/internal/approval"
	"github.com/opencode-ai/agentrund/internal/eventlog"
	"github.com/opencode-ai/agentrund/internal/tool"
	"github.com/opencode-ai/agentrund/pkg/types"
)

// DefaultIdleGrace is how long a session's actor stays resident in memory
// after its last activity before the Supervisor evicts it (§5's "evict
// idle after a grace period, reload from the event log on demand").
const DefaultIdleGrace = 30 * time.Minute

// Supervisor routes requests by session ID to a resident Actor, starting
// one by replaying the event log on first use and evicting actors that
// have been idle past IdleGrace. Grounded on telnet2-opencode's per-session
// processor lookup in internal/session, generalized into an explicit
// actor-lifecycle manager since this module's reducer/effect split needs a
// dedicated goroutine per session rather than a shared worker pool.
type Supervisor struct {
	store    eventlog.Store
	registry *tool.Registry
	executor *tool.Executor
	provider Provider
	bus      Broadcaster

	idleGrace time.Duration

	mu      sync.Mutex
	actors  map[types.SessionID]*residentActor
	cancel  context.CancelFunc
	baseCtx context.Context
}

type residentActor struct {
	actor      *Actor
	gate       *approval.Gate
	doomLoop   *approval.DoomLoopDetector
	cancel     context.CancelFunc
	lastActive time.Time
}

// NewSupervisor constructs a Supervisor. ctx bounds the lifetime of every
// actor it spawns; cancelling it stops all of them.
func NewSupervisor(ctx context.Context, store eventlog.Store, registry *tool.Registry, executor *tool.Executor, provider Provider, bus Broadcaster) *Supervisor {
	baseCtx, cancel := context.WithCancel(ctx)
	return &Supervisor{
		store:     store,
		registry:  registry,
		executor:  executor,
		provider:  provider,
		bus:       bus,
		idleGrace: DefaultIdleGrace,
		actors:    make(map[types.SessionID]*residentActor),
		baseCtx:   baseCtx,
		cancel:    cancel,
	}
}

// Get returns the resident Actor for sessionID, starting one by replaying
// the event log if none is resident yet.
func (sv *Supervisor) Get(ctx context.Context, sessionID types.SessionID) (*Actor, error) {
	sv.mu.Lock()
	if ra, ok := sv.actors[sessionID]; ok {
		ra.lastActive = time.Now()
		sv.mu.Unlock()
		return ra.actor, nil
	}
	sv.mu.Unlock()

	actorCtx, cancel := context.WithCancel(sv.baseCtx)
	gate := approval.New(ApprovalGateTimeout)
	doomLoop := approval.NewDoomLoopDetector()
	actor := NewActor(sessionID, sv.store, sv.registry, sv.executor, gate, doomLoop, sv.provider, sv.bus)

	if err := actor.Load(ctx); err != nil {
		cancel()
		return nil, err
	}
	go actor.Run(actorCtx)

	sv.mu.Lock()
	sv.actors[sessionID] = &residentActor{actor: actor, gate: gate, doomLoop: doomLoop, cancel: cancel, lastActive: time.Now()}
	sv.mu.Unlock()
	return actor, nil
}

// Evict stops and drops a resident actor immediately, regardless of
// IdleGrace — used for an explicit session delete (§4.9).
func (sv *Supervisor) Evict(sessionID types.SessionID) {
	sv.mu.Lock()
	ra, ok := sv.actors[sessionID]
	delete(sv.actors, sessionID)
	sv.mu.Unlock()
	if ok {
		ra.cancel()
	}
}

// SweepIdle evicts every actor whose last activity predates IdleGrace. A
// caller should invoke this periodically (e.g. from a time.Ticker); it
// does not start its own timer so tests can call it deterministically.
func (sv *Supervisor) SweepIdle() {
	cutoff := time.Now().Add(-sv.idleGrace)
	sv.mu.Lock()
	defer sv.mu.Unlock()
	for id, ra := range sv.actors {
		if ra.lastActive.Before(cutoff) {
			ra.cancel()
			delete(sv.actors, id)
		}
	}
}

// Shutdown stops every resident actor.
func (sv *Supervisor) Shutdown() {
	sv.cancel()
	sv.mu.Lock()
	sv.actors = make(map[types.SessionID]*residentActor)
	sv.mu.Unlock()
}
