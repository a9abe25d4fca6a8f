package effect

import "github.com/opencode-ai/agentrund/pkg/types"

// Action is implemented by every concrete action below. Actions are either
// client-issued commands (SendMessage, CancelOperation, ApprovalReceived)
// or outcomes the interpreter posts back after executing an Effect
// (LlmDelta, LlmCompleted, ToolCompleted, ...). Both flow through the same
// Reduce entrypoint (§4.3/§4.4).
type Action interface {
	action()
}

// SendMessage starts a new operation from user content appended to the
// current tip. OpID is supplied by the caller (the session actor, which
// owns a ULID source) so Reduce never generates identifiers itself.
type SendMessage struct {
	MessageID types.MessageID
	OpID      types.OpID
	Content   []types.Block
	Now       types.Timestamp
}

func (SendMessage) action() {}

// EditMessage appends a new message whose parent is the predecessor of the
// edited message, per §4.2/§8 scenario E4.
type EditMessage struct {
	NewMessageID types.MessageID
	OpID         types.OpID
	EditOf       types.MessageID
	Content      []types.Block
	Now          types.Timestamp
}

func (EditMessage) action() {}

// SyntheticFailure is one pending tool call the session actor observed in
// its own live AppState before issuing a CancelOperation, paired with a
// pre-generated MessageID for the ToolResult Reduce will synthesize. The
// actor — not the pure reducer — is what is allowed to look at "current
// state" to decide how many synthetic failures a cancellation needs.
type SyntheticFailure struct {
	ToolCallID types.ToolCallID
	MessageID  types.MessageID
}

// CancelOperation requests cancellation of the session's active operation.
// Failures must be supplied in ascending ToolCallID order (§8 property 4's
// determinism requirement); Reduce does not re-sort them.
type CancelOperation struct {
	OpID     types.OpID
	Now      types.Timestamp
	Failures []SyntheticFailure
}

func (CancelOperation) action() {}

// ApprovalReceived is the client's reply to a pending approval request.
// MessageID is pre-generated by the actor for the ToolResult Reduce must
// synthesize if the decision is a denial.
type ApprovalReceived struct {
	Decision  types.ApprovalDecision
	MessageID types.MessageID
	Now       types.Timestamp
}

func (ApprovalReceived) action() {}

// LlmDelta is one streamed chunk of the assistant's in-progress message.
// Per §4.4 step 2, deltas are broadcast but never persisted individually.
type LlmDelta struct {
	OpID  types.OpID
	Text  string
	Thought string
	ToolCallDelta *types.ToolCallRequest
}

func (LlmDelta) action() {}

// ResolvedToolCall is one tool call request extracted from an assistant
// message, already judged by the agent stepper against the tool registry
// and approval policy (§4.4/§4.6) before Reduce ever sees it: Reduce only
// records decisions, it does not make them, so it never needs a registry
// or clock of its own.
type ResolvedToolCall struct {
	ToolCallID types.ToolCallID
	Name       string
	Parameters map[string]any

	// Known is false when Name does not resolve in the tool registry; such
	// calls fail immediately with ToolErrUnknownTool without ever being
	// offered to the approval gate (§4.4 edge cases).
	Known bool

	// AutoApproved is true when RequiresApproval is false, the name is
	// pre-approved for this session, or ApprovalMemory already remembers a
	// matching "always" decision. Ignored when Known is false.
	AutoApproved bool

	// RequestID is set when neither Known-but-denied applies: an approval
	// request accompanies the tool call and waits for ApprovalReceived.
	RequestID types.RequestID

	// UnknownResultMessageID is the pre-generated MessageID for the
	// synthetic ToolResult Reduce appends when Known is false. Unused
	// otherwise.
	UnknownResultMessageID types.MessageID
}

// LlmCompleted carries the fully assembled assistant message once the
// provider finishes a turn, plus the stepper's resolution of every tool
// call it contains.
type LlmCompleted struct {
	OpID      types.OpID
	MessageID types.MessageID
	Model     types.ModelRef
	Content   []types.Block
	Finish    string
	Now       types.Timestamp
	ToolCalls []ResolvedToolCall
}

func (LlmCompleted) action() {}

// LlmFailed reports an unrecoverable provider error (§7 "Provider").
type LlmFailed struct {
	OpID    types.OpID
	Message string
}

func (LlmFailed) action() {}

// ToolCompleted reports a successful tool execution outcome.
type ToolCompleted struct {
	OpID       types.OpID
	ToolCallID types.ToolCallID
	MessageID  types.MessageID
	Result     types.ToolResult
	Now        types.Timestamp
}

func (ToolCompleted) action() {}

// ToolFailed reports a tool execution failure of any kind (§7 "Tool
// execution": backend error, timeout, cancellation, unknown tool, denial).
type ToolFailed struct {
	OpID       types.OpID
	ToolCallID types.ToolCallID
	MessageID  types.MessageID
	Error      types.ToolError
	Now        types.Timestamp
}

func (ToolFailed) action() {}

// TimeoutFired reports that a ScheduleTimeout effect's deadline elapsed.
type TimeoutFired struct {
	OpID types.OpID
}

func (TimeoutFired) action() {}

// CompactionCompleted reports that internal/agent's context-window check
// tripped and a summarization call finished: the stepper folded the
// messages it replaces into SummaryText before the operation's own CallLlm
// continued. The summary becomes a new root message (ParentID nil), which
// is what makes AppState.MessagePath stop there for every later CallLlm
// without disturbing the replaced messages' own position in the DAG for
// history/branching.
type CompactionCompleted struct {
	OpID             types.OpID
	SummaryMessageID types.MessageID
	Model            types.ModelRef
	SummaryText      string
	Replaced         []types.MessageID
	Now              types.Timestamp
}

func (CompactionCompleted) action() {}
