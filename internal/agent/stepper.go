// Package agent implements the agent stepper (§4.4): the small state machine
// that drives one Operation through a provider call, an optional round of
// tool dispatch, and back again until the turn terminates. The session actor
// (internal/session) owns the effect dispatch and event persistence this
// state machine's transitions require; Stepper itself holds no I/O and no
// reference to the reducer's AppState, only the per-operation step the actor
// is currently in, so it can be asked "is this transition legal" without
// dragging the whole actor into a test.
//
// Grounded on telnet2-opencode's internal/session/loop.go, which drives the
// same turn shape inline inside one function; this package pulls the state
// machine out into its own named states instead of tracking progress with
// ad-hoc booleans.
package agent

import (
	"fmt"
	"sync"

	"github.com/opencode-ai/agentrund/pkg/types"
)

// State is one step of §4.4's FSM.
type State int

const (
	// Idle is not a state any tracked operation is ever actually in — it is
	// the zero value, meaning "Stepper has never heard of this op".
	Idle State = iota
	AwaitingLlm
	StreamingAssistant
	DispatchingTools
	AwaitingToolResults
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingLlm:
		return "awaiting_llm"
	case StreamingAssistant:
		return "streaming_assistant"
	case DispatchingTools:
		return "dispatching_tools"
	case AwaitingToolResults:
		return "awaiting_tool_results"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// TransitionError reports an attempted move the FSM doesn't allow — the
// caller already has a stale or duplicate outcome and should drop it rather
// than treat the error as fatal (the same "stale reply" handling the reducer
// applies to approvals and tool outcomes).
type TransitionError struct {
	OpID types.OpID
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("agent: op %s cannot move %s -> %s", e.OpID, e.From, e.To)
}

// Stepper tracks the current State of every in-flight Operation in a
// session. It is safe for concurrent use since the actor's effect-dispatch
// goroutines (one per in-flight CallLlm/RunTool) report outcomes
// concurrently even though only one is ever "active" for a given op at a
// time.
type Stepper struct {
	mu   sync.Mutex
	step map[types.OpID]State
}

// NewStepper returns an empty Stepper.
func NewStepper() *Stepper {
	return &Stepper{step: make(map[types.OpID]State)}
}

// State reports the current step for opID, or Idle if the Stepper has never
// seen it (either not yet started, or already forgotten via Forget).
func (st *Stepper) State(opID types.OpID) State {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.step[opID]
}

// Forget drops an operation's tracked state, bounding the map's size once an
// operation is terminal and its outcome has been observed.
func (st *Stepper) Forget(opID types.OpID) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.step, opID)
}

func (st *Stepper) move(opID types.OpID, allowedFrom []State, to State) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	cur := st.step[opID]
	for _, from := range allowedFrom {
		if cur == from {
			st.step[opID] = to
			return nil
		}
	}
	return &TransitionError{OpID: opID, From: cur, To: to}
}

// Start begins a new operation: §4.4 transition 1, SendMessage/EditMessage
// emitting the first CallLlm.
func (st *Stepper) Start(opID types.OpID) error {
	return st.move(opID, []State{Idle}, AwaitingLlm)
}

// Delta records that a streaming chunk arrived: §4.4 transition 2.
func (st *Stepper) Delta(opID types.OpID) error {
	return st.move(opID, []State{AwaitingLlm, StreamingAssistant}, StreamingAssistant)
}

// Completed records LlmCompleted: §4.4 transition 3. hasToolCalls decides
// whether the op moves on to dispatch tool calls or is already at its
// terminal step.
func (st *Stepper) Completed(opID types.OpID, hasToolCalls bool) error {
	to := Done
	if hasToolCalls {
		to = DispatchingTools
	}
	return st.move(opID, []State{AwaitingLlm, StreamingAssistant}, to)
}

// ToolsDispatched records that every resolved tool call from the current
// assistant message has been handed to the executor or the approval gate.
func (st *Stepper) ToolsDispatched(opID types.OpID) error {
	return st.move(opID, []State{DispatchingTools}, AwaitingToolResults)
}

// ToolResultReceived records one ToolCompleted/ToolFailed/denial: §4.4
// transition 4. allResolved is whether this was the last outstanding call
// for the op, which loops back to AwaitingLlm (unless the caller separately
// ends the op as terminal with no further CallLlm, for the "no tool calls"
// tie-break in transition 2).
func (st *Stepper) ToolResultReceived(opID types.OpID, allResolved bool) error {
	if !allResolved {
		return st.move(opID, []State{AwaitingToolResults}, AwaitingToolResults)
	}
	return st.move(opID, []State{AwaitingToolResults}, AwaitingLlm)
}

// Cancelled records §4.4 transition 5: CancelOperation ends the op
// regardless of which step it was on.
func (st *Stepper) Cancelled(opID types.OpID) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.step[opID] = Done
}

// Failed records a provider error (§4.4's "operation ends in Failed without
// aborting the session") or a step-limit/timeout termination.
func (st *Stepper) Failed(opID types.OpID) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.step[opID] = Done
}
