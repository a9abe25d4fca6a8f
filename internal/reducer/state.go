// Package reducer implements the core's pure domain logic (§4.2): folding
// persisted events into an AppState, and turning a client-originated Action
// into the events and effects that should follow from it. Nothing in this
// package performs I/O, reads the clock, or generates randomness — every
// timestamp and identifier it needs arrives as part of the Action or Event
// it is given, exactly as grounded in goa-ai's runLoopState (a similarly
// pure, explicitly-threaded piece of turn state).
package reducer

import "github.com/opencode-ai/agentrund/pkg/types"

// PendingToolCall is the bookkeeping the reducer keeps for a tool call
// between ToolCallStarted and its terminal event. Parameters are retained
// so a later ApprovalReceived can produce a RunTool effect without the
// caller re-supplying them.
type PendingToolCall struct {
	OpID       types.OpID
	Name       string
	Parameters map[string]any
	StartedAt  types.Timestamp

	AwaitingApproval bool
	RequestID        types.RequestID
}

// AppState is the canonical in-memory projection of one session's event
// log (§3). It is immutable from the caller's point of view: every
// reducer function returns a new AppState rather than mutating its
// receiver, so a caller can always keep the previous snapshot around (used
// by the agent stepper to diff "what changed this step").
type AppState struct {
	Session types.Session

	Messages map[types.MessageID]types.Message
	Children map[types.MessageID][]types.MessageID
	Roots    []types.MessageID
	Tip      types.MessageID

	Ops map[types.OpID]types.Operation

	PendingToolCalls map[types.ToolCallID]PendingToolCall

	Approval types.ApprovalMemory

	Deleted bool
}

// New returns the zero state: no session yet created. Applying a
// SessionCreated event is the only valid first transition.
func New() AppState {
	return AppState{
		Messages:         make(map[types.MessageID]types.Message),
		Children:         make(map[types.MessageID][]types.MessageID),
		Ops:              make(map[types.OpID]types.Operation),
		PendingToolCalls: make(map[types.ToolCallID]PendingToolCall),
	}
}

// clone makes a shallow-structural copy: every map/slice field gets a new
// backing store so in-place mutation of the returned value never aliases
// the receiver, while the types.Message/types.Operation values themselves
// are copied by value (they contain no nested maps that outlive a single
// event).
func (s AppState) clone() AppState {
	out := s
	out.Messages = make(map[types.MessageID]types.Message, len(s.Messages))
	for k, v := range s.Messages {
		out.Messages[k] = v
	}
	out.Children = make(map[types.MessageID][]types.MessageID, len(s.Children))
	for k, v := range s.Children {
		out.Children[k] = append([]types.MessageID(nil), v...)
	}
	out.Roots = append([]types.MessageID(nil), s.Roots...)
	out.Ops = make(map[types.OpID]types.Operation, len(s.Ops))
	for k, v := range s.Ops {
		out.Ops[k] = v
	}
	out.PendingToolCalls = make(map[types.ToolCallID]PendingToolCall, len(s.PendingToolCalls))
	for k, v := range s.PendingToolCalls {
		out.PendingToolCalls[k] = v
	}
	return out
}

// MessagePath walks from a leaf back to its root, returning messages in
// chronological (root-first) order. Used by the agent stepper to build the
// transcript sent to the LLM for the current tip.
func (s AppState) MessagePath(leaf types.MessageID) []types.Message {
	var reversed []types.Message
	cur := leaf
	for cur != "" {
		msg, ok := s.Messages[cur]
		if !ok {
			break
		}
		reversed = append(reversed, msg)
		if msg.ParentID == nil {
			break
		}
		cur = *msg.ParentID
	}
	out := make([]types.Message, len(reversed))
	for i, m := range reversed {
		out[len(reversed)-1-i] = m
	}
	return out
}
