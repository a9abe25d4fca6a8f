// Package effect defines the declarative Effect/Action vocabulary (§4.3)
// that separates the reducer's pure decisions from the interpreter's I/O.
// An Effect describes work to be done; the interpreter is the only code
// that performs it, and always reports back with an Action.
package effect

import (
	"time"

	"github.com/opencode-ai/agentrund/pkg/types"
)

// Effect is implemented by every concrete effect below.
type Effect interface {
	effect()
}

// CallLlm asks the interpreter to start (or continue) a provider request
// for the given conversation, cancellable via CancelRef.
type CallLlm struct {
	OpID       types.OpID
	Model      types.ModelRef
	Messages   []types.Message
	ToolNames  []string
	CancelRef  types.OpID // the op whose cancellation should abort this call
}

func (CallLlm) effect() {}

// RunTool asks the interpreter to dispatch one tool call through the
// executor. A zero Timeout tells the executor to apply its own configured
// default rather than racing the call against no deadline at all.
type RunTool struct {
	OpID       types.OpID
	ToolCallID types.ToolCallID
	Name       string
	Parameters map[string]any
	Timeout    time.Duration
}

func (RunTool) effect() {}

// RequestApproval asks the interpreter to surface a pending tool call to
// the approval gate (which itself may ask the client, or resolve instantly
// from ApprovalMemory).
type RequestApproval struct {
	RequestID  types.RequestID
	ToolCallID types.ToolCallID
	ToolCall   types.ToolCall
}

func (RequestApproval) effect() {}

// PersistEvents asks the interpreter to append a batch atomically to the
// event log.
type PersistEvents struct {
	SessionID types.SessionID
	Payloads  []types.EventPayload
}

func (PersistEvents) effect() {}

// Broadcast asks the interpreter to fan an already-persisted event out to
// subscribers without waiting for the next PersistEvents round-trip (used
// for low-latency delivery of streaming deltas, which are never
// persisted — see §4.4 step 2).
type Broadcast struct {
	SessionID types.SessionID
	Event     types.Event
}

func (Broadcast) effect() {}

// ScheduleTimeout asks the interpreter to fire a TimeoutFired action for
// opID after the given duration unless cancelled first.
type ScheduleTimeout struct {
	OpID  types.OpID
	After time.Duration
}

func (ScheduleTimeout) effect() {}
