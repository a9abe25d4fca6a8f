// Package approval implements the pending-request side of the approval
// policy described in SPEC_FULL.md §4.6: once the agent stepper has already
// decided a tool call needs a human decision, this package is what holds
// that request open, waits for a client reply or a timeout, and turns
// either into an effect.ApprovalReceived action. It is grounded on
// telnet2-opencode's internal/permission/checker.go, whose pending-channel
// map this mirrors; the "always" memory that checker.go keeps in-process is
// instead reducer-owned state here (types.ApprovalMemory), since it must
// survive replay.
package approval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opencode-ai/agentrund/pkg/types"
)

// DefaultTimeout is how long a pending request waits for a client decision
// before it is treated as an implicit deny (§4.6).
const DefaultTimeout = 10 * time.Minute

// ErrUnknownRequest is returned by Decide when the request already resolved
// or was never opened on this gate (e.g. after a process restart).
var ErrUnknownRequest = fmt.Errorf("approval: unknown or already-resolved request")

type pendingRequest struct {
	toolCallID types.ToolCallID
	replies    chan types.ApprovalDecision
}

// Gate tracks one pending approval request per RequestID. It holds no
// policy of its own — RequiresApproval/AutoApproved decisions are made
// upstream by the agent stepper, which consults the session's ToolConfig
// and the reducer's ApprovalMemory before ever calling Open.
type Gate struct {
	timeout time.Duration

	mu      sync.Mutex
	pending map[types.RequestID]*pendingRequest
}

// New constructs a Gate with the given pending-request timeout. A zero
// timeout uses DefaultTimeout.
func New(timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gate{timeout: timeout, pending: make(map[types.RequestID]*pendingRequest)}
}

// Open registers a pending request and blocks until Decide is called with a
// matching RequestID, the timeout elapses (implicit deny), or ctx is
// cancelled (the caller — normally the session actor shutting down — gets
// ctx.Err() and should treat the call as abandoned, not denied).
func (g *Gate) Open(ctx context.Context, requestID types.RequestID, toolCallID types.ToolCallID) (types.ApprovalDecision, error) {
	pr := &pendingRequest{toolCallID: toolCallID, replies: make(chan types.ApprovalDecision, 1)}
	g.mu.Lock()
	g.pending[requestID] = pr
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.pending, requestID)
		g.mu.Unlock()
	}()

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return types.ApprovalDecision{}, ctx.Err()
	case <-timer.C:
		return types.ApprovalDecision{RequestID: requestID, ToolCallID: toolCallID, Action: types.ApprovalDeny}, nil
	case d := <-pr.replies:
		return d, nil
	}
}

// Decide delivers a client's decision to the matching pending request.
// Returns ErrUnknownRequest if the request has already resolved (including
// by timeout) or was never opened — the caller should treat that as a
// no-op, not an error to surface to the client, since it just means the
// reply arrived late.
func (g *Gate) Decide(requestID types.RequestID, decision types.ApprovalDecision) error {
	g.mu.Lock()
	pr, ok := g.pending[requestID]
	g.mu.Unlock()
	if !ok {
		return ErrUnknownRequest
	}
	select {
	case pr.replies <- decision:
	default:
	}
	return nil
}

// Cancel abandons a pending request without delivering a decision, used
// when the operation it belongs to is cancelled out from under it.
func (g *Gate) Cancel(requestID types.RequestID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pending, requestID)
}
